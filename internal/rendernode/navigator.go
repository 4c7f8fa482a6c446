package rendernode

import (
	"fmt"
	"sort"

	json "github.com/goccy/go-json"

	"github.com/starford/perthro/internal/changes"
)

// NavigatorIndex is the part of index/index.json the server reads.
type NavigatorIndex struct {
	// Languages lists the interface languages the navigator covers.
	Languages []string
	// VersionDifferences is the per-language API change ledger.
	VersionDifferences changes.LanguageLedger
}

// ParseNavigatorIndex decodes a navigator index. A missing
// versionDifferences key yields an empty ledger.
func ParseNavigatorIndex(data []byte) (*NavigatorIndex, error) {
	var raw struct {
		InterfaceLanguages map[string]json.RawMessage `json:"interfaceLanguages"`
		VersionDifferences changes.LanguageLedger     `json:"versionDifferences"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("rendernode: decode navigator index: %w", err)
	}

	seen := make(map[string]struct{})
	langs := []string{}
	for l := range raw.InterfaceLanguages {
		seen[l] = struct{}{}
		langs = append(langs, l)
	}
	for l := range raw.VersionDifferences {
		if _, ok := seen[l]; !ok {
			langs = append(langs, l)
		}
	}

	ledger := raw.VersionDifferences
	if ledger == nil {
		ledger = changes.LanguageLedger{}
	}
	sort.Strings(langs)
	return &NavigatorIndex{Languages: langs, VersionDifferences: ledger}, nil
}
