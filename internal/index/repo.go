package index

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/starford/perthro/internal/apperr"
)

// DocumentRow represents a row in the documents table.
type DocumentRow struct {
	Path           string
	URL            string
	Title          string
	Kind           string
	Role           string
	Language       string
	CurrentVersion string
	// Versions is the node's version list, current first. Empty for
	// unversioned nodes.
	Versions  []string
	Abstract  string
	Checksum  string
	UpdatedAt time.Time
}

// SearchResult represents one search hit.
type SearchResult struct {
	Path    string
	URL     string
	Title   string
	Snippet string
}

// ListQuery filters and pages ListDocuments.
type ListQuery struct {
	Limit    int
	Offset   int
	Language string
	// Version keeps only documents whose history includes this version.
	Version string
	// Sort is one of "path" (default), "title", "updated_at".
	Sort string
}

const documentColumns = `path, url, title, kind, role, language, current_version, versions, abstract, checksum, updated_at`

// UpsertDocument inserts or replaces a document and its FTS entry within a transaction.
func (db *DB) UpsertDocument(d DocumentRow) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	versions := d.Versions
	if versions == nil {
		versions = []string{}
	}
	versionsJSON, err := json.Marshal(versions)
	if err != nil {
		return fmt.Errorf("index: encode versions: %w", err)
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = time.Now()
	}

	_, err = tx.Exec(`
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			url             = excluded.url,
			title           = excluded.title,
			kind            = excluded.kind,
			role            = excluded.role,
			language        = excluded.language,
			current_version = excluded.current_version,
			versions        = excluded.versions,
			abstract        = excluded.abstract,
			checksum        = excluded.checksum,
			updated_at      = excluded.updated_at
	`, d.Path, d.URL, d.Title, d.Kind, d.Role, d.Language, d.CurrentVersion,
		string(versionsJSON), d.Abstract, d.Checksum, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert document: %w", err)
	}

	if err := ftsUpsert(tx, d.Path, d.Title, d.Abstract); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteDocument removes a document and its FTS entry.
func (db *DB) DeleteDocument(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, path)
	if _, err := tx.Exec(`DELETE FROM documents WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete document: %w", err)
	}
	return tx.Commit()
}

// GetChecksum returns the stored checksum for a document, or empty string if not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM documents WHERE path = ?`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get checksum: %w", err)
	}
	return cs, nil
}

// GetDocument returns the indexed row for path, or apperr.ErrNotFound.
func (db *DB) GetDocument(path string) (*DocumentRow, error) {
	row := db.conn.QueryRow(`SELECT `+documentColumns+` FROM documents WHERE path = ?`, path)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: document %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get document: %w", err)
	}
	return d, nil
}

// PathForURL returns the archive path of the document published at url.
func (db *DB) PathForURL(url string) (string, error) {
	var p string
	err := db.conn.QueryRow(`SELECT path FROM documents WHERE url = ? ORDER BY path LIMIT 1`, url).Scan(&p)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("index: url %s: %w", url, apperr.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("index: path for url: %w", err)
	}
	return p, nil
}

// ListDocuments returns a page of documents and the total count matching q.
func (db *DB) ListDocuments(q ListQuery) ([]DocumentRow, int, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	var where []string
	var args []any
	if q.Language != "" {
		where = append(where, `language = ?`)
		args = append(args, q.Language)
	}
	if q.Version != "" {
		where = append(where, `EXISTS (SELECT 1 FROM json_each(documents.versions) WHERE json_each.value = ?)`)
		args = append(args, q.Version)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM documents`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count documents: %w", err)
	}

	order := "path"
	switch q.Sort {
	case "title":
		order = "title, path"
	case "updated_at":
		order = "updated_at DESC, path"
	}

	rows, err := db.conn.Query(`SELECT `+documentColumns+` FROM documents`+clause+
		` ORDER BY `+order+` LIMIT ? OFFSET ?`, append(args, q.Limit, q.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list documents: %w", err)
	}
	defer rows.Close()

	var out []DocumentRow
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *d)
	}
	return out, total, rows.Err()
}

// Versions returns every version name known to the archive, ordered by the
// earliest position at which any document lists it.
func (db *DB) Versions() ([]string, error) {
	rows, err := db.conn.Query(`
		SELECT json_each.value
		FROM documents, json_each(documents.versions)
		GROUP BY json_each.value
		ORDER BY MIN(json_each.key), json_each.value
	`)
	if err != nil {
		return nil, fmt.Errorf("index: versions: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// AllChecksums returns path → checksum for every indexed document.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (*DocumentRow, error) {
	var d DocumentRow
	var versions string
	if err := s.Scan(&d.Path, &d.URL, &d.Title, &d.Kind, &d.Role, &d.Language,
		&d.CurrentVersion, &versions, &d.Abstract, &d.Checksum, &d.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(versions), &d.Versions); err != nil {
		return nil, fmt.Errorf("index: decode versions of %s: %w", d.Path, err)
	}
	if d.Versions == nil {
		d.Versions = []string{}
	}
	return &d, nil
}
