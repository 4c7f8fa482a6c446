// Package rendernode decodes the parts of rendered documentation nodes and
// navigator indexes that the archive server needs.
package rendernode

import (
	"fmt"
	"path"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/starford/perthro/internal/changes"
)

// DataDir is the archive directory holding render node JSON files.
const DataDir = "data"

// NavigatorIndexPath is the archive-relative path of the navigator index.
const NavigatorIndexPath = "index/index.json"

// Identifier names a render node.
type Identifier struct {
	URL               string `json:"url"`
	InterfaceLanguage string `json:"interfaceLanguage"`
}

// Node holds the summary fields of a render node.
type Node struct {
	Identifier Identifier
	Kind       string
	Title      string
	Role       string
	// Version is metadata.version.displayName, empty when the node is unversioned.
	Version    string
	Abstract   string
	References changes.ReferenceTable
}

type inlineContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
	Code string `json:"code"`
}

type rawNode struct {
	Identifier Identifier `json:"identifier"`
	Kind       string     `json:"kind"`
	Metadata   struct {
		Title   string `json:"title"`
		Role    string `json:"role"`
		Version struct {
			DisplayName string `json:"displayName"`
		} `json:"version"`
	} `json:"metadata"`
	Abstract   []inlineContent        `json:"abstract"`
	References changes.ReferenceTable `json:"references"`
}

// Parse decodes a render node.
func Parse(data []byte) (*Node, error) {
	var raw rawNode
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("rendernode: decode: %w", err)
	}
	refs := raw.References
	if refs == nil {
		refs = changes.ReferenceTable{}
	}
	return &Node{
		Identifier: raw.Identifier,
		Kind:       raw.Kind,
		Title:      raw.Metadata.Title,
		Role:       raw.Metadata.Role,
		Version:    raw.Metadata.Version.DisplayName,
		Abstract:   abstractText(raw.Abstract),
		References: refs,
	}, nil
}

// ParseReferences decodes only the reference table of a render node.
func ParseReferences(data []byte) (changes.ReferenceTable, error) {
	var raw struct {
		References changes.ReferenceTable `json:"references"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("rendernode: decode references: %w", err)
	}
	if raw.References == nil {
		return changes.ReferenceTable{}, nil
	}
	return raw.References, nil
}

func abstractText(items []inlineContent) string {
	var b strings.Builder
	for _, it := range items {
		switch it.Type {
		case "text":
			b.WriteString(it.Text)
		case "codeVoice":
			b.WriteString(it.Code)
		}
	}
	return strings.TrimSpace(b.String())
}

// URLForPath maps an archive path such as "data/documentation/foo/bar.json"
// to the documentation URL "/documentation/foo/bar".
func URLForPath(p string) string {
	p = path.Clean(strings.ReplaceAll(p, "\\", "/"))
	p = strings.TrimPrefix(p, DataDir+"/")
	p = strings.TrimSuffix(p, ".json")
	return "/" + strings.TrimPrefix(p, "/")
}

// PathForURL is the inverse of URLForPath.
func PathForURL(url string) string {
	url = strings.Trim(path.Clean("/"+url), "/")
	return DataDir + "/" + url + ".json"
}
