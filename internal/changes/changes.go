// Package changes turns per-URL API change ledgers into the change maps a
// rendered page consumes.
//
// A ledger records, for every documentation URL, which versions added or
// modified the API at that URL:
//
//	{"/documentation/foo": {"v4": "modified", "v2": "added"}}
//
// Navigator indexes carry one ledger per interface language:
//
//	{"swift": {...ledger...}, "occ": {...ledger...}}
package changes

import "sort"

// Kind is the kind of change a version made at a URL. Values other than
// Added and Modified (such as "removed") are carried through unchanged.
type Kind string

const (
	Added    Kind = "added"
	Modified Kind = "modified"
)

// Ledger maps a URL to the change each version made there.
type Ledger map[string]map[string]Kind

// LanguageLedger maps an interface language to its ledger.
type LanguageLedger map[string]Ledger

// Change is the annotation attached to one URL or reference.
type Change struct {
	Change Kind `json:"change"`
}

// ChangeMap is keyed by URL, or by reference identifier after ResolveReferences.
type ChangeMap map[string]Change

// NavigationChanges is the flat URL to kind form used by navigation indexes.
type NavigationChanges map[string]Kind

// ForVersion returns the change recorded for versionID at every URL that has
// one. URLs without an entry for versionID are omitted, and so are URLs whose
// entry is the empty kind.
func ForVersion(ledger Ledger, versionID string) ChangeMap {
	out := make(ChangeMap)
	for url, versions := range ledger {
		if kind, ok := lookup(versions, versionID); ok {
			out[url] = Change{Change: kind}
		}
	}
	return out
}

// NavigationForVersion is ForVersion with bare kinds as values. Empty kinds
// are omitted the same way.
func NavigationForVersion(ledger Ledger, versionID string) NavigationChanges {
	out := make(NavigationChanges)
	for url, versions := range ledger {
		if kind, ok := lookup(versions, versionID); ok {
			out[url] = kind
		}
	}
	return out
}

// LanguageScoped applies NavigationForVersion to each language's ledger.
// Every language in ledgers appears in the result, with an empty map when
// none of its URLs changed in versionID.
func LanguageScoped(ledgers LanguageLedger, versionID string) map[string]NavigationChanges {
	out := make(map[string]NavigationChanges, len(ledgers))
	for language := range ledgers {
		out[language] = ForLanguage(ledgers, language, versionID)
	}
	return out
}

// ForLanguage returns the navigation changes for one language. A language
// missing from ledgers yields an empty map.
func ForLanguage(ledgers LanguageLedger, language, versionID string) NavigationChanges {
	return NavigationForVersion(ledgers[language], versionID)
}

func lookup(versions map[string]Kind, versionID string) (Kind, bool) {
	kind, ok := versions[versionID]
	if !ok || kind == "" {
		return "", false
	}
	return kind, true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
