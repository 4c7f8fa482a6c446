package changes

// Reference is an entry of a render node's reference table.
type Reference struct {
	Identifier string `json:"identifier"`
	URL        string `json:"url"`
	Title      string `json:"title,omitempty"`
	Kind       string `json:"kind,omitempty"`
	Type       string `json:"type,omitempty"`
}

// ReferenceTable maps a reference identifier such as
// "doc://org.example/documentation/foo" to its reference.
type ReferenceTable map[string]Reference

// ResolveReferences re-keys a URL keyed change map by the identifiers of the
// references that point at those URLs. Identifiers whose URL has no change
// are omitted; several identifiers sharing a URL each receive the change.
//
// Every reference is compared with every URL, |refs| × |changes| comparisons.
// The walk goes in sorted identifier order, then sorted URL order, and a
// later match overwrites an earlier one for the same identifier. Because
// change map keys are unique and each reference has one URL, at most one
// match per identifier exists today.
func ResolveReferences(changeMap ChangeMap, refs ReferenceTable) ChangeMap {
	out, _ := ResolveCounted(changeMap, refs)
	return out
}

// ResolveCounted is ResolveReferences that also reports how many
// reference/URL comparisons were made.
func ResolveCounted(changeMap ChangeMap, refs ReferenceTable) (ChangeMap, int) {
	out := make(ChangeMap)
	urls := sortedKeys(changeMap)
	comparisons := 0
	for _, id := range sortedKeys(refs) {
		ref := refs[id]
		for _, url := range urls {
			comparisons++
			if ref.URL == url {
				out[id] = Change{Change: changeMap[url].Change}
			}
		}
	}
	return out, comparisons
}
