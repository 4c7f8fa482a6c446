package index

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/perthro/internal/apperr"
	"github.com/starford/perthro/internal/changes"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "perthro-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	if err := db.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	for _, table := range []string{"documents", "changes", "meta"} {
		var count int
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
}

func TestUpsertAndGetDocument(t *testing.T) {
	db := testDB(t)
	row := DocumentRow{
		Path:           "data/documentation/fazz/boo.json",
		URL:            "/documentation/fazz/boo",
		Title:          "Boo",
		Kind:           "symbol",
		Role:           "symbol",
		Language:       "swift",
		CurrentVersion: "v3",
		Versions:       []string{"v3", "v2", "v1"},
		Abstract:       "Plays a boo sound.",
		Checksum:       "abc123",
		UpdatedAt:      time.Now(),
	}
	if err := db.UpsertDocument(row); err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}
	cs, err := db.GetChecksum(row.Path)
	if err != nil {
		t.Fatalf("GetChecksum: %v", err)
	}
	if cs != "abc123" {
		t.Errorf("checksum = %q, want %q", cs, "abc123")
	}

	got, err := db.GetDocument(row.Path)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if diff := cmp.Diff(row.Versions, got.Versions); diff != "" {
		t.Errorf("versions mismatch (-want +got):\n%s", diff)
	}
	if got.URL != row.URL || got.Language != "swift" || got.CurrentVersion != "v3" {
		t.Errorf("row = %+v", got)
	}
}

func TestGetDocument_NotFound(t *testing.T) {
	db := testDB(t)
	_, err := db.GetDocument("data/missing.json")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUpsert_UnversionedHasEmptyVersions(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertDocument(DocumentRow{Path: "data/a.json", Checksum: "1"})
	got, err := db.GetDocument("data/a.json")
	if err != nil {
		t.Fatal(err)
	}
	if got.Versions == nil || len(got.Versions) != 0 {
		t.Errorf("versions = %#v, want empty non-nil", got.Versions)
	}
}

func TestUpsertUpdatesExisting(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertDocument(DocumentRow{Path: "data/up.json", Title: "Old", Checksum: "1"})
	_ = db.UpsertDocument(DocumentRow{Path: "data/up.json", Title: "New", Checksum: "2"})

	got, _ := db.GetDocument("data/up.json")
	if got.Title != "New" || got.Checksum != "2" {
		t.Errorf("row = %+v", got)
	}
}

func TestDeleteDocument(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertDocument(DocumentRow{Path: "data/del.json", Checksum: "x"})

	if err := db.DeleteDocument("data/del.json"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	cs, _ := db.GetChecksum("data/del.json")
	if cs != "" {
		t.Errorf("deleted document still has checksum %q", cs)
	}
}

func TestGetChecksum_NotFound(t *testing.T) {
	db := testDB(t)
	cs, err := db.GetChecksum("data/nonexistent.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cs != "" {
		t.Errorf("expected empty checksum, got %q", cs)
	}
}

func TestPathForURL(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertDocument(DocumentRow{Path: "data/documentation/foo.json", URL: "/documentation/foo", Checksum: "1"})

	p, err := db.PathForURL("/documentation/foo")
	if err != nil {
		t.Fatalf("PathForURL: %v", err)
	}
	if p != "data/documentation/foo.json" {
		t.Errorf("path = %q", p)
	}
	if _, err := db.PathForURL("/documentation/bar"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func seedDocuments(t *testing.T, db *DB) {
	t.Helper()
	rows := []DocumentRow{
		{Path: "data/a.json", Title: "Charlie", Language: "swift", Versions: []string{"v3", "v2", "v1"}, Checksum: "a"},
		{Path: "data/b.json", Title: "Alpha", Language: "occ", Versions: []string{"v3", "v2"}, Checksum: "b"},
		{Path: "data/c.json", Title: "Bravo", Language: "swift", Checksum: "c"},
	}
	for _, r := range rows {
		if err := db.UpsertDocument(r); err != nil {
			t.Fatal(err)
		}
	}
}

func paths(rows []DocumentRow) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Path
	}
	return out
}

func TestListDocuments(t *testing.T) {
	db := testDB(t)
	seedDocuments(t, db)

	tests := []struct {
		name      string
		q         ListQuery
		wantPaths []string
		wantTotal int
	}{
		{"all", ListQuery{}, []string{"data/a.json", "data/b.json", "data/c.json"}, 3},
		{"paged", ListQuery{Limit: 1, Offset: 1}, []string{"data/b.json"}, 3},
		{"language", ListQuery{Language: "swift"}, []string{"data/a.json", "data/c.json"}, 2},
		{"version", ListQuery{Version: "v1"}, []string{"data/a.json"}, 1},
		{"version and language", ListQuery{Version: "v2", Language: "occ"}, []string{"data/b.json"}, 1},
		{"sort by title", ListQuery{Sort: "title"}, []string{"data/b.json", "data/c.json", "data/a.json"}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, total, err := db.ListDocuments(tt.q)
			if err != nil {
				t.Fatalf("ListDocuments: %v", err)
			}
			if total != tt.wantTotal {
				t.Errorf("total = %d, want %d", total, tt.wantTotal)
			}
			if diff := cmp.Diff(tt.wantPaths, paths(rows)); diff != "" {
				t.Errorf("paths mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestVersions(t *testing.T) {
	db := testDB(t)
	seedDocuments(t, db)

	got, err := db.Versions()
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	if diff := cmp.Diff([]string{"v3", "v2", "v1"}, got); diff != "" {
		t.Errorf("versions mismatch (-want +got):\n%s", diff)
	}
}

func TestVersions_Empty(t *testing.T) {
	db := testDB(t)
	got, err := db.Versions()
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("versions = %#v, want empty", got)
	}
}

func TestSearch_Basic(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertDocument(DocumentRow{
		Path:     "data/s.json",
		URL:      "/s",
		Title:    "Search Me",
		Abstract: "uniqueword appears here",
		Checksum: "1",
	})

	results, err := db.Search("uniqueword", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Path != "data/s.json" || results[0].URL != "/s" {
		t.Errorf("search results = %+v, want 1 hit for data/s.json", results)
	}
}

func TestLedgerRoundTrip(t *testing.T) {
	db := testDB(t)
	ledger := changes.LanguageLedger{
		"swift": {
			"doc://org.example/documentation/Fazz": {"v2": changes.Added, "v1": changes.Modified},
		},
		"occ": {
			"doc://org.example/documentation/Fazz/Boo": {"v1": changes.Added},
		},
	}
	if err := db.ReplaceLedger(ledger, "nav1"); err != nil {
		t.Fatalf("ReplaceLedger: %v", err)
	}

	all, err := db.LanguageLedger()
	if err != nil {
		t.Fatalf("LanguageLedger: %v", err)
	}
	if diff := cmp.Diff(ledger, all); diff != "" {
		t.Errorf("ledger mismatch (-want +got):\n%s", diff)
	}

	swift, err := db.Ledger("swift")
	if err != nil {
		t.Fatalf("Ledger: %v", err)
	}
	if diff := cmp.Diff(ledger["swift"], swift); diff != "" {
		t.Errorf("swift ledger mismatch (-want +got):\n%s", diff)
	}

	cs, _ := db.LedgerChecksum()
	if cs != "nav1" {
		t.Errorf("ledger checksum = %q, want nav1", cs)
	}
}

func TestReplaceLedger_DropsOldEntries(t *testing.T) {
	db := testDB(t)
	_ = db.ReplaceLedger(changes.LanguageLedger{"swift": {"/a": {"v1": changes.Added}}}, "1")
	_ = db.ReplaceLedger(changes.LanguageLedger{"swift": {"/b": {"v1": changes.Modified}}}, "2")

	got, _ := db.Ledger("swift")
	want := changes.Ledger{"/b": {"v1": changes.Modified}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ledger mismatch (-want +got):\n%s", diff)
	}
}

func TestLedger_UnknownLanguage(t *testing.T) {
	db := testDB(t)
	got, err := db.Ledger("kotlin")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("ledger = %#v, want empty", got)
	}
}
