package index

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/perthro/internal/changes"
)

const ledgerChecksumKey = "ledger_checksum"

// ReplaceLedger swaps the stored change ledger for ledger in one transaction
// and records the checksum of the navigator index it came from.
func (db *DB) ReplaceLedger(ledger changes.LanguageLedger, checksum string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM changes`); err != nil {
		return fmt.Errorf("index: clear ledger: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO changes (language, url, version, kind) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare ledger insert: %w", err)
	}
	defer stmt.Close()
	for language, urls := range ledger {
		for url, versions := range urls {
			for version, kind := range versions {
				if _, err := stmt.Exec(language, url, version, string(kind)); err != nil {
					return fmt.Errorf("index: insert change: %w", err)
				}
			}
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, ledgerChecksumKey, checksum); err != nil {
		return fmt.Errorf("index: store ledger checksum: %w", err)
	}
	return tx.Commit()
}

// LedgerChecksum returns the checksum recorded by the last ReplaceLedger.
func (db *DB) LedgerChecksum() (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT value FROM meta WHERE key = ?`, ledgerChecksumKey).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: ledger checksum: %w", err)
	}
	return cs, nil
}

// Ledger returns the change ledger of one language. An unknown language
// yields an empty ledger.
func (db *DB) Ledger(language string) (changes.Ledger, error) {
	rows, err := db.conn.Query(`SELECT url, version, kind FROM changes WHERE language = ?`, language)
	if err != nil {
		return nil, fmt.Errorf("index: ledger: %w", err)
	}
	defer rows.Close()

	out := changes.Ledger{}
	for rows.Next() {
		var url, version, kind string
		if err := rows.Scan(&url, &version, &kind); err != nil {
			return nil, err
		}
		if out[url] == nil {
			out[url] = map[string]changes.Kind{}
		}
		out[url][version] = changes.Kind(kind)
	}
	return out, rows.Err()
}

// LanguageLedger returns the ledgers of every language.
func (db *DB) LanguageLedger() (changes.LanguageLedger, error) {
	rows, err := db.conn.Query(`SELECT language, url, version, kind FROM changes`)
	if err != nil {
		return nil, fmt.Errorf("index: language ledger: %w", err)
	}
	defer rows.Close()

	out := changes.LanguageLedger{}
	for rows.Next() {
		var language, url, version, kind string
		if err := rows.Scan(&language, &url, &version, &kind); err != nil {
			return nil, err
		}
		if out[language] == nil {
			out[language] = changes.Ledger{}
		}
		if out[language][url] == nil {
			out[language][url] = map[string]changes.Kind{}
		}
		out[language][url][version] = changes.Kind(kind)
	}
	return out, rows.Err()
}
