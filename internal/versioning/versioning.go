// Package versioning reconstructs render nodes at historical versions by
// replaying the JSON patches embedded in the node's "versions" history.
//
// A versioned node looks like:
//
//	{
//	  "metadata": {"version": {"displayName": "v3"}, ...},
//	  "versions": [
//	    {"version": {"displayName": "v2"}, "patch": [ ...RFC 6902 ops... ]},
//	    {"version": {"displayName": "v1"}, "patch": [ ... ]}
//	  ],
//	  ...
//	}
//
// versions[0].patch takes the current node to v2, versions[1].patch takes
// that result to v1, and so on. Patches are cumulative.
package versioning

import (
	"bytes"
	"errors"

	json "github.com/goccy/go-json"
)

// Document is the raw JSON encoding of a render node.
type Document []byte

// IsNull reports whether d carries no document at all.
func (d Document) IsNull() bool {
	trimmed := bytes.TrimSpace(d)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// VersionInfo names a version.
type VersionInfo struct {
	DisplayName string `json:"displayName"`
}

// Entry is one step of a node's version history.
type Entry struct {
	Version VersionInfo     `json:"version"`
	Patch   json.RawMessage `json:"patch"`
}

// History is the version information embedded in a render node.
type History struct {
	Current string
	Entries []Entry
}

// header mirrors only the parts of a render node the reconstructor reads.
// Pointers distinguish an absent field from an empty one.
type header struct {
	Metadata *struct {
		Version *struct {
			DisplayName *string `json:"displayName"`
		} `json:"version"`
	} `json:"metadata"`
	Versions *[]Entry `json:"versions"`
}

// ReadHistory decodes the version history of doc. ok is false when doc is
// null, is not a JSON object, or lacks metadata.version.displayName or a
// versions array.
func ReadHistory(doc Document) (h History, ok bool) {
	if doc.IsNull() {
		return History{}, false
	}
	var hdr header
	if err := json.Unmarshal(doc, &hdr); err != nil {
		return History{}, false
	}
	if hdr.Metadata == nil || hdr.Metadata.Version == nil || hdr.Metadata.Version.DisplayName == nil {
		return History{}, false
	}
	if hdr.Versions == nil {
		return History{}, false
	}
	return History{
		Current: *hdr.Metadata.Version.DisplayName,
		Entries: *hdr.Versions,
	}, true
}

// HasVersionHistory reports whether doc carries a current version name and a
// (possibly empty) versions list. It never fails on malformed input.
func HasVersionHistory(doc Document) bool {
	_, ok := ReadHistory(doc)
	return ok
}

// ListVersions returns the current version name followed by the display name
// of every history entry, most recent first. An unversioned document yields
// an empty, non-nil slice.
func ListVersions(doc Document) []string {
	h, ok := ReadHistory(doc)
	if !ok {
		return []string{}
	}
	return h.Names()
}

// Names returns the version names in recency order, current first.
func (h History) Names() []string {
	out := make([]string, 0, len(h.Entries)+1)
	out = append(out, h.Current)
	for _, e := range h.Entries {
		out = append(out, e.Version.DisplayName)
	}
	return out
}

// IndexOf returns the index of the first entry named name, or -1.
// Later entries with a repeated name are unreachable.
func (h History) IndexOf(name string) int {
	for i, e := range h.Entries {
		if e.Version.DisplayName == name {
			return i
		}
	}
	return -1
}

// ErrUnversioned is returned by a strict Reconstructor when the document has
// no version history.
var ErrUnversioned = errors.New("versioning: document has no version history")

// ErrPatchFailed matches every *PatchError via errors.Is.
var ErrPatchFailed = errors.New("versioning: patch failed")
