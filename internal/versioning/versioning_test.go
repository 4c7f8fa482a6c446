package versioning

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
)

// threeVersions is a node at v3 whose history reaches back to v1. The v1
// patch replaces a key that only exists after the v2 patch ran, so the
// patches only apply in order.
const threeVersions = `{
  "kind": "symbol",
  "metadata": {"title": "Bar", "version": {"displayName": "v3"}},
  "abstract": "current",
  "versions": [
    {"version": {"displayName": "v2"}, "patch": [
      {"op": "replace", "path": "/metadata/version/displayName", "value": "v2"},
      {"op": "replace", "path": "/abstract", "value": "two"},
      {"op": "add", "path": "/legacy", "value": "added by v2"}
    ]},
    {"version": {"displayName": "v1"}, "patch": [
      {"op": "replace", "path": "/metadata/version/displayName", "value": "v1"},
      {"op": "replace", "path": "/legacy", "value": "rewritten by v1"},
      {"op": "remove", "path": "/abstract"}
    ]}
  ]
}`

func decode(t *testing.T, doc Document) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(doc, &m); err != nil {
		t.Fatalf("decode %s: %v", doc, err)
	}
	return m
}

func TestHasVersionHistory(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want bool
	}{
		{"versioned", threeVersions, true},
		{"empty versions", `{"metadata":{"version":{"displayName":"v1"}},"versions":[]}`, true},
		{"nil", "", false},
		{"null", "null", false},
		{"not an object", `[1,2]`, false},
		{"garbage", `{"metadata":`, false},
		{"no metadata", `{"versions":[]}`, false},
		{"no version", `{"metadata":{},"versions":[]}`, false},
		{"no display name", `{"metadata":{"version":{}},"versions":[]}`, false},
		{"no versions", `{"metadata":{"version":{"displayName":"v1"}}}`, false},
		{"versions not a list", `{"metadata":{"version":{"displayName":"v1"}},"versions":"v0"}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := HasVersionHistory(Document(tc.doc)); got != tc.want {
				t.Errorf("HasVersionHistory = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestListVersions(t *testing.T) {
	got := ListVersions(Document(threeVersions))
	want := []string{"v3", "v2", "v1"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ListVersions mismatch (-want +got):\n%s", diff)
	}
}

func TestListVersions_Unversioned(t *testing.T) {
	for _, doc := range []string{"", "null", `{"kind":"article"}`} {
		got := ListVersions(Document(doc))
		if got == nil {
			t.Fatalf("ListVersions(%q) = nil, want empty slice", doc)
		}
		if len(got) != 0 {
			t.Errorf("ListVersions(%q) = %v, want empty", doc, got)
		}
	}
}

func TestListVersions_LengthAndHead(t *testing.T) {
	doc := Document(threeVersions)
	h, ok := ReadHistory(doc)
	if !ok {
		t.Fatal("ReadHistory: not versioned")
	}
	got := ListVersions(doc)
	if len(got) != 1+len(h.Entries) {
		t.Errorf("len = %d, want %d", len(got), 1+len(h.Entries))
	}
	if got[0] != h.Current {
		t.Errorf("head = %q, want %q", got[0], h.Current)
	}
}

func TestReconstruct_AppliesPatchesInOrder(t *testing.T) {
	got, err := Reconstruct("v1", Document(threeVersions))
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	m := decode(t, got)

	meta := m["metadata"].(map[string]any)
	if name := meta["version"].(map[string]any)["displayName"]; name != "v1" {
		t.Errorf("displayName = %v, want v1", name)
	}
	if _, ok := m["abstract"]; ok {
		t.Errorf("abstract should be removed at v1, got %v", m["abstract"])
	}
	if m["legacy"] != "rewritten by v1" {
		t.Errorf("legacy = %v, want %q", m["legacy"], "rewritten by v1")
	}
	if meta["title"] != "Bar" {
		t.Errorf("untouched field changed: title = %v", meta["title"])
	}
}

func TestReconstruct_StopsAtTarget(t *testing.T) {
	got, err := Reconstruct("v2", Document(threeVersions))
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	m := decode(t, got)
	if m["abstract"] != "two" {
		t.Errorf("abstract = %v, want two", m["abstract"])
	}
	if m["legacy"] != "added by v2" {
		t.Errorf("legacy = %v, want %q", m["legacy"], "added by v2")
	}
}

func TestReconstruct_ReturnsInputUnchanged(t *testing.T) {
	doc := Document(threeVersions)
	unversioned := Document(`{"kind":"article","metadata":{"title":"Intro"}}`)

	cases := []struct {
		name   string
		target string
		doc    Document
	}{
		{"empty target", "", doc},
		{"head", "v3", doc},
		{"unknown", "v4", doc},
		{"unversioned", "v1", unversioned},
		{"unversioned empty target", "", unversioned},
		{"null document", "v1", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Reconstruct(tc.target, tc.doc)
			if err != nil {
				t.Fatalf("Reconstruct: %v", err)
			}
			if !bytes.Equal(got, tc.doc) {
				t.Errorf("document changed:\n got %s\nwant %s", got, tc.doc)
			}
		})
	}
}

func TestReconstruct_DoesNotMutateInput(t *testing.T) {
	doc := Document(threeVersions)
	before := bytes.Clone(doc)

	got, err := Reconstruct("v1", doc)
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if !bytes.Equal(doc, before) {
		t.Error("input document was mutated")
	}
	if len(got) > 0 && len(doc) > 0 && &got[0] == &doc[0] {
		t.Error("result aliases the input buffer")
	}
}

func TestReconstruct_Idempotent(t *testing.T) {
	doc := Document(threeVersions)
	once, err := Reconstruct("v2", doc)
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	twice, err := Reconstruct("v2", once)
	if err != nil {
		t.Fatalf("Reconstruct twice: %v", err)
	}
	if diff := cmp.Diff(decode(t, once), decode(t, twice)); diff != "" {
		t.Errorf("second reconstruction differs (-once +twice):\n%s", diff)
	}

	again, err := Reconstruct("v2", doc)
	if err != nil {
		t.Fatalf("Reconstruct again: %v", err)
	}
	if diff := cmp.Diff(decode(t, once), decode(t, again)); diff != "" {
		t.Errorf("replay is not deterministic (-first +again):\n%s", diff)
	}
}

func TestReconstruct_FirstMatchWins(t *testing.T) {
	doc := Document(`{
	  "metadata": {"version": {"displayName": "v3"}},
	  "n": 0,
	  "versions": [
	    {"version": {"displayName": "beta"}, "patch": [{"op": "replace", "path": "/n", "value": 1}]},
	    {"version": {"displayName": "beta"}, "patch": [{"op": "replace", "path": "/n", "value": 2}]}
	  ]
	}`)
	got, err := Reconstruct("beta", doc)
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if n := decode(t, got)["n"]; n != float64(1) {
		t.Errorf("n = %v, want 1", n)
	}
}

func TestReconstruct_EmptyPatchStillCopies(t *testing.T) {
	doc := Document(`{"metadata":{"version":{"displayName":"v2"}},"versions":[{"version":{"displayName":"v1"}}]}`)
	got, err := Reconstruct("v1", doc)
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if !bytes.Equal(got, doc) {
		t.Errorf("got %s, want %s", got, doc)
	}
	got[0] = 'X'
	if doc[0] == 'X' {
		t.Error("result shares memory with the input")
	}
}

func TestReconstruct_PatchError(t *testing.T) {
	doc := Document(`{
	  "metadata": {"version": {"displayName": "v3"}},
	  "title": "x",
	  "versions": [
	    {"version": {"displayName": "v2"}, "patch": [{"op": "replace", "path": "/title", "value": "y"}]},
	    {"version": {"displayName": "v1"}, "patch": [
	      {"op": "replace", "path": "/title", "value": "z"},
	      {"op": "replace", "path": "/missing/deeper", "value": 1}
	    ]}
	  ]
	}`)
	before := bytes.Clone(doc)

	got, err := Reconstruct("v1", doc)
	if err == nil {
		t.Fatalf("expected error, got %s", got)
	}
	if got != nil {
		t.Errorf("partial result returned: %s", got)
	}
	if !errors.Is(err, ErrPatchFailed) {
		t.Errorf("errors.Is(err, ErrPatchFailed) = false for %v", err)
	}
	var pe *PatchError
	if !errors.As(err, &pe) {
		t.Fatalf("error %T is not a *PatchError", err)
	}
	if pe.Index != 1 || pe.Version != "v1" {
		t.Errorf("entry = %d (%s), want 1 (v1)", pe.Index, pe.Version)
	}
	if pe.Op != 1 || pe.Kind != "replace" || pe.Path != "/missing/deeper" {
		t.Errorf("op = %d %s %q, want 1 replace /missing/deeper", pe.Op, pe.Kind, pe.Path)
	}
	if !bytes.Equal(doc, before) {
		t.Error("input mutated by failed reconstruction")
	}

	// Versions before the broken entry still reconstruct.
	if _, err := Reconstruct("v2", doc); err != nil {
		t.Errorf("Reconstruct(v2): %v", err)
	}
}

func TestReconstruct_ReplaceMissingKey(t *testing.T) {
	const head = `{"metadata":{"version":{"displayName":"v2"}},"arr":[1],"a/b":"slash","title":"x","versions":[{"version":{"displayName":"v1"},"patch":%s}]}`

	cases := []struct {
		name  string
		patch string
		op    int
		kind  string
		path  string
	}{
		{"replace key", `[{"op":"replace","path":"/nope","value":1}]`, 0, "replace", "/nope"},
		{"replace after valid op", `[{"op":"replace","path":"/title","value":"y"},{"op":"replace","path":"/metadata/nope","value":1}]`, 1, "replace", "/metadata/nope"},
		{"replace index", `[{"op":"replace","path":"/arr/5","value":1}]`, 0, "replace", "/arr/5"},
		{"negative index", `[{"op":"replace","path":"/arr/-1","value":1}]`, 0, "replace", "/arr/-1"},
		{"remove key", `[{"op":"remove","path":"/nope"}]`, 0, "remove", "/nope"},
		{"move from", `[{"op":"move","from":"/nope","path":"/title"}]`, 0, "move", "/title"},
		{"copy from", `[{"op":"copy","from":"/arr/3","path":"/copied"}]`, 0, "copy", "/copied"},
		{"through scalar", `[{"op":"replace","path":"/title/deeper","value":1}]`, 0, "replace", "/title/deeper"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Reconstruct("v1", Document(fmt.Sprintf(head, tc.patch)))
			if got != nil {
				t.Errorf("partial result returned: %s", got)
			}
			var pe *PatchError
			if !errors.As(err, &pe) {
				t.Fatalf("err = %v, want *PatchError", err)
			}
			if pe.Op != tc.op || pe.Kind != tc.kind || pe.Path != tc.path {
				t.Errorf("op = %d %s %q, want %d %s %q", pe.Op, pe.Kind, pe.Path, tc.op, tc.kind, tc.path)
			}
			if !errors.Is(err, errMissing) {
				t.Errorf("errors.Is(err, errMissing) = false for %v", err)
			}
		})
	}

	// Existing targets and escaped keys still apply.
	patch := `[{"op":"replace","path":"/a~1b","value":"ok"},{"op":"replace","path":"/arr/0","value":2},{"op":"copy","from":"/title","path":"/copied"}]`
	got, err := Reconstruct("v1", Document(fmt.Sprintf(head, patch)))
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(got, &m); err != nil {
		t.Fatal(err)
	}
	if m["a/b"] != "ok" || m["copied"] != "x" {
		t.Errorf("got %s", got)
	}
	if arr, _ := m["arr"].([]any); len(arr) != 1 || arr[0] != float64(2) {
		t.Errorf("arr = %v, want [2]", m["arr"])
	}
}

func TestReconstruct_UndecodablePatch(t *testing.T) {
	doc := Document(`{"metadata":{"version":{"displayName":"v2"}},"versions":[{"version":{"displayName":"v1"},"patch":{"op":"remove"}}]}`)
	_, err := Reconstruct("v1", doc)
	var pe *PatchError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *PatchError", err)
	}
	if pe.Op != -1 {
		t.Errorf("Op = %d, want -1", pe.Op)
	}
}

func TestResolve_Outcomes(t *testing.T) {
	r := New()
	doc := Document(threeVersions)
	cases := []struct {
		target string
		doc    Document
		want   Outcome
		index  int
	}{
		{"v3", doc, Head, -1},
		{"", doc, Head, -1},
		{"v9", doc, UnknownVersion, -1},
		{"v2", doc, Patched, 0},
		{"v1", doc, Patched, 1},
		{"v1", Document(`{"kind":"article"}`), Unversioned, -1},
		{"v1", nil, Unversioned, -1},
	}
	for _, tc := range cases {
		res, err := r.Resolve(tc.target, tc.doc)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", tc.target, err)
		}
		if res.Outcome != tc.want || res.Index != tc.index {
			t.Errorf("Resolve(%q) = %v/%d, want %v/%d", tc.target, res.Outcome, res.Index, tc.want, tc.index)
		}
	}
}

func TestResolve_Strict(t *testing.T) {
	r := New(WithStrictHistory())

	_, err := r.Resolve("v1", Document(`{"kind":"article"}`))
	if !errors.Is(err, ErrUnversioned) {
		t.Errorf("err = %v, want ErrUnversioned", err)
	}

	res, err := r.Resolve("v1", nil)
	if err != nil {
		t.Fatalf("null document should pass through: %v", err)
	}
	if res.Outcome != Unversioned {
		t.Errorf("outcome = %v, want unversioned", res.Outcome)
	}

	if _, err := r.Resolve("v2", Document(threeVersions)); err != nil {
		t.Errorf("versioned document: %v", err)
	}
}

func TestReconstruct_ConcurrentSharedInput(t *testing.T) {
	doc := Document(threeVersions)
	before := bytes.Clone(doc)

	want := map[string]Document{}
	for _, v := range []string{"v2", "v1"} {
		got, err := Reconstruct(v, doc)
		if err != nil {
			t.Fatal(err)
		}
		want[v] = got
	}

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 32; i++ {
		v := "v2"
		if i%2 == 1 {
			v = "v1"
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := Reconstruct(v, doc)
			if err != nil {
				errs <- err
				return
			}
			if !bytes.Equal(got, want[v]) {
				errs <- errors.New("nondeterministic result for " + v)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	if !bytes.Equal(doc, before) {
		t.Error("shared input mutated")
	}
}

func TestOutcomeString(t *testing.T) {
	if Patched.String() != "patched" || UnknownVersion.String() != "unknown_version" {
		t.Errorf("unexpected names: %s %s", Patched, UnknownVersion)
	}
}
