// Package models defines the domain types shared by storage and the index.
package models

import "time"

// DocumentMetadata is a lightweight description of an archive file returned
// by list operations.
type DocumentMetadata struct {
	// Path is archive-relative and always names the .json form, even when
	// the file is stored compressed.
	Path       string    `json:"path"`
	Checksum   string    `json:"checksum"`
	Compressed bool      `json:"compressed,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}
