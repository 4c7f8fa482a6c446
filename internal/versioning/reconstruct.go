package versioning

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	jsonpatch "github.com/evanphx/json-patch"
	json "github.com/goccy/go-json"
)

// Outcome says which path Resolve took.
type Outcome int

const (
	// Unversioned: the document has no version history.
	Unversioned Outcome = iota
	// Head: the target is empty or names the current version.
	Head
	// UnknownVersion: the document is versioned but no entry has the target name.
	UnknownVersion
	// Patched: history entries were replayed up to the target.
	Patched
)

func (o Outcome) String() string {
	switch o {
	case Unversioned:
		return "unversioned"
	case Head:
		return "head"
	case UnknownVersion:
		return "unknown_version"
	case Patched:
		return "patched"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is a reconstructed document together with how it was produced.
type Result struct {
	Document Document
	Outcome  Outcome
	// Index is the last history entry applied, or -1 when nothing was applied.
	Index int
}

// PatchError reports a history entry whose patch could not be applied.
type PatchError struct {
	Version string // display name of the failing entry
	Index   int    // index of the failing entry in versions
	Op      int    // index of the failing operation, -1 if the patch did not decode
	Kind    string // operation kind, e.g. "replace"
	Path    string // operation path
	Err     error
}

func (e *PatchError) Error() string {
	if e.Op < 0 {
		return fmt.Sprintf("versioning: patch %d (%s): %v", e.Index, e.Version, e.Err)
	}
	return fmt.Sprintf("versioning: patch %d (%s) op %d %s %q: %v",
		e.Index, e.Version, e.Op, e.Kind, e.Path, e.Err)
}

func (e *PatchError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrPatchFailed) true for every PatchError.
func (e *PatchError) Is(target error) bool { return target == ErrPatchFailed }

// Option configures a Reconstructor.
type Option func(*Reconstructor)

// WithStrictHistory makes Resolve fail with ErrUnversioned instead of
// returning an unversioned document unchanged.
func WithStrictHistory() Option {
	return func(r *Reconstructor) {
		r.strict = true
	}
}

// Reconstructor replays version history. The zero value is lenient and
// ready to use.
type Reconstructor struct {
	strict bool
}

// New returns a Reconstructor configured by opts.
func New(opts ...Option) *Reconstructor {
	r := &Reconstructor{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var defaultReconstructor = New()

// Reconstruct returns doc as it existed at target. doc itself is returned
// when it is null, target is empty, doc is unversioned, or target is the
// current or an unknown version. The only error is a *PatchError.
func Reconstruct(target string, doc Document) (Document, error) {
	res, err := defaultReconstructor.Resolve(target, doc)
	if err != nil {
		return nil, err
	}
	return res.Document, nil
}

// Resolve reconstructs doc at target and reports the outcome.
func (r *Reconstructor) Resolve(target string, doc Document) (Result, error) {
	unchanged := func(o Outcome) Result {
		return Result{Document: doc, Outcome: o, Index: -1}
	}

	h, ok := ReadHistory(doc)
	if !ok {
		if r.strict && !doc.IsNull() {
			return Result{}, ErrUnversioned
		}
		return unchanged(Unversioned), nil
	}
	if target == "" || target == h.Current {
		return unchanged(Head), nil
	}
	k := h.IndexOf(target)
	if k < 0 {
		return unchanged(UnknownVersion), nil
	}

	// The result must not alias doc, even when every patch up to k is empty.
	cur := bytes.Clone([]byte(doc))
	for i := 0; i <= k; i++ {
		next, err := applyEntry(cur, i, h.Entries[i])
		if err != nil {
			return Result{}, err
		}
		cur = next
	}
	return Result{Document: cur, Outcome: Patched, Index: k}, nil
}

func applyEntry(doc []byte, index int, e Entry) ([]byte, error) {
	raw := bytes.TrimSpace(e.Patch)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return doc, nil
	}
	patch, err := jsonpatch.DecodePatch(raw)
	if err != nil {
		return nil, &PatchError{Version: e.Version.DisplayName, Index: index, Op: -1, Err: err}
	}

	cur := doc
	for j, op := range patch {
		path, _ := op.Path()
		fail := func(err error) error {
			return &PatchError{
				Version: e.Version.DisplayName,
				Index:   index,
				Op:      j,
				Kind:    op.Kind(),
				Path:    path,
				Err:     err,
			}
		}
		if err := checkSource(cur, op); err != nil {
			return nil, fail(err)
		}
		next, err := jsonpatch.Patch{op}.Apply(cur)
		if err != nil {
			return nil, fail(err)
		}
		cur = next
	}
	return cur, nil
}

// checkSource fails when the value an operation reads or overwrites is not
// in doc. json-patch treats a replace of a missing object key as an add.
func checkSource(doc []byte, op jsonpatch.Operation) error {
	var (
		ref string
		err error
	)
	switch op.Kind() {
	case "replace", "remove":
		ref, err = op.Path()
	case "move", "copy":
		ref, err = op.From()
	default:
		return nil
	}
	if err != nil {
		return err
	}
	return resolvePointer(doc, ref)
}

// resolvePointer walks the RFC 6901 pointer ref through doc. Array indexes
// must be in range and non-negative; json-patch panics on a negative index
// for replace, move and copy.
func resolvePointer(doc []byte, ref string) error {
	if ref == "" {
		return nil
	}
	if !strings.HasPrefix(ref, "/") {
		return fmt.Errorf("pointer %q does not start with /", ref)
	}
	var node any
	if err := json.Unmarshal(doc, &node); err != nil {
		return err
	}
	for _, tok := range strings.Split(ref[1:], "/") {
		tok = strings.ReplaceAll(strings.ReplaceAll(tok, "~1", "/"), "~0", "~")
		switch v := node.(type) {
		case map[string]any:
			next, ok := v[tok]
			if !ok {
				return fmt.Errorf("%w: no key %q at %q", errMissing, tok, ref)
			}
			node = next
		case []any:
			i, err := strconv.Atoi(tok)
			if err != nil || i < 0 || i >= len(v) {
				return fmt.Errorf("%w: no index %q at %q", errMissing, tok, ref)
			}
			node = v[i]
		default:
			return fmt.Errorf("%w: %q is not a container at %q", errMissing, tok, ref)
		}
	}
	return nil
}

var errMissing = errors.New("path does not resolve")
