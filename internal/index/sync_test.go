package index

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/perthro/internal/changes"
	"github.com/starford/perthro/internal/storage"
)

const versionedNode = `{
  "identifier": {"url": "doc://org.example/documentation/Fazz", "interfaceLanguage": "swift"},
  "kind": "symbol",
  "metadata": {"title": "Fazz", "role": "collection", "version": {"displayName": "v2"}},
  "abstract": [{"type": "text", "text": "A framework."}],
  "versions": [
    {"version": {"displayName": "v1"}, "patch": [{"op": "replace", "path": "/metadata/version/displayName", "value": "v1"}]}
  ]
}`

const navigatorIndex = `{
  "interfaceLanguages": {"swift": []},
  "versionDifferences": {
    "swift": {"doc://org.example/documentation/Fazz": {"v1": "added"}}
  }
}`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func syncEnv(t *testing.T) (string, storage.Provider, *DB) {
	t.Helper()
	root := t.TempDir()
	store, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	return root, store, testDB(t)
}

func writeArchiveFile(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestSync_IndexesDocuments(t *testing.T) {
	root, store, db := syncEnv(t)
	writeArchiveFile(t, root, "data/documentation/fazz.json", versionedNode)
	writeArchiveFile(t, root, "data/documentation/plain.json", `{"kind":"article","metadata":{"title":"Plain"}}`)
	writeArchiveFile(t, root, "data/documentation/broken.json", `{not json`)

	if err := Sync(db, store, discardLogger()); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	row, err := db.GetDocument("data/documentation/fazz.json")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if row.URL != "/documentation/fazz" || row.Title != "Fazz" || row.Language != "swift" {
		t.Errorf("row = %+v", row)
	}
	if diff := cmp.Diff([]string{"v2", "v1"}, row.Versions); diff != "" {
		t.Errorf("versions mismatch (-want +got):\n%s", diff)
	}

	plain, err := db.GetDocument("data/documentation/plain.json")
	if err != nil {
		t.Fatalf("GetDocument plain: %v", err)
	}
	if len(plain.Versions) != 0 || plain.CurrentVersion != "" {
		t.Errorf("plain row = %+v, want unversioned", plain)
	}

	if cs, _ := db.GetChecksum("data/documentation/broken.json"); cs != "" {
		t.Error("invalid JSON should not be indexed")
	}
}

func TestSync_RemovesStale(t *testing.T) {
	root, store, db := syncEnv(t)
	writeArchiveFile(t, root, "data/gone.json", versionedNode)
	_ = Sync(db, store, discardLogger())

	_ = os.Remove(filepath.Join(root, "data", "gone.json"))
	_ = Sync(db, store, discardLogger())

	if cs, _ := db.GetChecksum("data/gone.json"); cs != "" {
		t.Error("stale document should be removed")
	}
}

func TestSync_LoadsLedger(t *testing.T) {
	root, store, db := syncEnv(t)
	writeArchiveFile(t, root, "index/index.json", navigatorIndex)

	if err := Sync(db, store, discardLogger()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	got, err := db.Ledger("swift")
	if err != nil {
		t.Fatal(err)
	}
	want := changes.Ledger{"doc://org.example/documentation/Fazz": {"v1": changes.Added}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ledger mismatch (-want +got):\n%s", diff)
	}
}

func TestSyncLedger_ChangeDetection(t *testing.T) {
	root, store, db := syncEnv(t)
	writeArchiveFile(t, root, "index/index.json", navigatorIndex)

	changed, err := SyncLedger(db, store)
	if err != nil || !changed {
		t.Fatalf("first SyncLedger = %v, %v; want true, nil", changed, err)
	}
	changed, err = SyncLedger(db, store)
	if err != nil || changed {
		t.Fatalf("second SyncLedger = %v, %v; want false, nil", changed, err)
	}

	_ = os.Remove(filepath.Join(root, "index", "index.json"))
	changed, err = SyncLedger(db, store)
	if err != nil || !changed {
		t.Fatalf("SyncLedger after removal = %v, %v; want true, nil", changed, err)
	}
	all, _ := db.LanguageLedger()
	if len(all) != 0 {
		t.Errorf("ledger = %v, want empty after navigator index removal", all)
	}
}
