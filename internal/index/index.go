package index

import "github.com/starford/perthro/internal/changes"

// DocumentIndex defines the interface for archive indexing operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type DocumentIndex interface {
	UpsertDocument(d DocumentRow) error
	DeleteDocument(path string) error
	GetChecksum(path string) (string, error)
	GetDocument(path string) (*DocumentRow, error)
	PathForURL(url string) (string, error)
	ListDocuments(q ListQuery) ([]DocumentRow, int, error)
	Search(query string, limit int) ([]SearchResult, error)
	Versions() ([]string, error)
	AllChecksums() (map[string]string, error)
	ReplaceLedger(ledger changes.LanguageLedger, checksum string) error
	LedgerChecksum() (string, error)
	Ledger(language string) (changes.Ledger, error)
	LanguageLedger() (changes.LanguageLedger, error)
	Close() error
}

// Verify *DB satisfies DocumentIndex at compile time.
var _ DocumentIndex = (*DB)(nil)
