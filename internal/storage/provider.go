// Package storage defines the documentation archive file-system abstraction.
package storage

import "github.com/starford/perthro/internal/models"

// Provider is the interface for archive file operations. Paths are relative
// to the archive root and use forward slashes.
type Provider interface {
	// List returns metadata for every .json (or .json.zst) file under dir.
	List(dir string) ([]models.DocumentMetadata, error)
	// Read returns the decoded bytes of the file at path. A path ending in
	// .json falls back to a compressed .json.zst sibling.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path, including a compressed sibling.
	Delete(path string) error
	// Root returns the absolute archive directory.
	Root() string
}
