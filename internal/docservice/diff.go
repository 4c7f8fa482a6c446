package docservice

import (
	"bytes"
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	diffpatch "github.com/sergi/go-diff/diffmatchpatch"

	"github.com/starford/perthro/internal/apperr"
)

// DiffOp is the kind of a diff hunk.
type DiffOp string

const (
	DiffEqual  DiffOp = "equal"
	DiffInsert DiffOp = "insert"
	DiffDelete DiffOp = "delete"
)

// DiffHunk is a run of lines sharing one DiffOp.
type DiffHunk struct {
	Op   DiffOp `json:"op"`
	Text string `json:"text"`
}

// DiffView is the line diff between two reconstructions of a document.
type DiffView struct {
	Path string `json:"path"`
	From string `json:"from"`
	To   string `json:"to"`
	// FromOutcome and ToOutcome report how each side was reconstructed.
	FromOutcome string     `json:"from_outcome"`
	ToOutcome   string     `json:"to_outcome"`
	Hunks       []DiffHunk `json:"hunks"`
	// Patch is the diff in diff-match-patch patch text form.
	Patch string `json:"patch"`
}

// Changed reports whether the two sides differ.
func (d *DiffView) Changed() bool {
	for _, h := range d.Hunks {
		if h.Op != DiffEqual {
			return true
		}
	}
	return false
}

// Diff reconstructs the document at path at from and at to and returns a
// line diff of their indented JSON. An empty version means current.
func (s *Service) Diff(_ context.Context, p, from, to string) (*DiffView, error) {
	p, err := NormalizePath(p)
	if err != nil {
		return nil, err
	}
	data, err := s.read(p)
	if err != nil {
		return nil, err
	}
	a, err := s.reconstruct(p, data, from)
	if err != nil {
		return nil, err
	}
	b, err := s.reconstruct(p, data, to)
	if err != nil {
		return nil, err
	}
	hunks, patch, err := DiffJSON(a.Document, b.Document)
	if err != nil {
		return nil, fmt.Errorf("docservice: diff %s: %w", p, err)
	}
	return &DiffView{
		Path:        p,
		From:        from,
		To:          to,
		FromOutcome: a.Outcome.String(),
		ToOutcome:   b.Outcome.String(),
		Hunks:       hunks,
		Patch:       patch,
	}, nil
}

// DiffJSON indents both documents and diffs them line by line.
func DiffJSON(a, b []byte) ([]DiffHunk, string, error) {
	left, err := indent(a)
	if err != nil {
		return nil, "", err
	}
	right, err := indent(b)
	if err != nil {
		return nil, "", err
	}

	dmp := diffpatch.New()
	ca, cb, lines := dmp.DiffLinesToChars(left, right)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(ca, cb, false), lines)

	hunks := make([]DiffHunk, 0, len(diffs))
	for _, d := range diffs {
		op := DiffEqual
		switch d.Type {
		case diffpatch.DiffInsert:
			op = DiffInsert
		case diffpatch.DiffDelete:
			op = DiffDelete
		}
		hunks = append(hunks, DiffHunk{Op: op, Text: d.Text})
	}
	patch := dmp.PatchToText(dmp.PatchMake(left, diffs))
	return hunks, patch, nil
}

func indent(doc []byte) (string, error) {
	if len(bytes.TrimSpace(doc)) == 0 {
		return "", nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, doc, "", "  "); err != nil {
		return "", fmt.Errorf("%w: %w", apperr.ErrInvalidInput, err)
	}
	buf.WriteByte('\n')
	return buf.String(), nil
}
