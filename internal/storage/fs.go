package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/starford/perthro/internal/checksum"
	"github.com/starford/perthro/internal/models"
)

const (
	jsonExt       = ".json"
	compressedExt = ".json.zst"
	tmpPrefix     = ".perthro-tmp-"
)

// Safe for concurrent use; construction is expensive.
var zstdDecoder, _ = zstd.NewReader(nil)

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to archive directory
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute archive directory.
func (f *FS) Root() string { return f.root }

// safePath resolves a relative path against the archive root and rejects
// any result that escapes it.
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	abs, err := filepath.Abs(filepath.Join(f.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: path escapes archive root: %s", rel)
	}
	return abs, nil
}

// List walks dir and returns metadata for every document file. Compressed
// files are reported under their .json name.
func (f *FS) List(dir string) ([]models.DocumentMetadata, error) {
	base, err := f.safePath(dir)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(base); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	var out []models.DocumentMetadata
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		name := d.Name()
		if d.IsDir() || strings.HasPrefix(name, tmpPrefix) {
			return nil
		}
		compressed := strings.HasSuffix(name, compressedExt)
		if !compressed && !strings.HasSuffix(name, jsonExt) {
			return nil
		}
		if compressed {
			// A plain sibling wins.
			if _, err := os.Stat(strings.TrimSuffix(p, ".zst")); err == nil {
				return nil
			}
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		data, err := f.readAbs(p, compressed)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(f.root, strings.TrimSuffix(p, ".zst"))
		out = append(out, models.DocumentMetadata{
			Path:       filepath.ToSlash(rel),
			Checksum:   checksum.Sum(data),
			Compressed: compressed,
			UpdatedAt:  info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	return out, nil
}

// Read returns the decoded bytes of an archive file.
func (f *FS) Read(path string) ([]byte, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return nil, err
	}
	data, err := f.readAbs(abs, strings.HasSuffix(abs, compressedExt))
	if errors.Is(err, os.ErrNotExist) && strings.HasSuffix(abs, jsonExt) {
		if zdata, zerr := f.readAbs(abs+".zst", true); zerr == nil {
			return zdata, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return data, nil
}

func (f *FS) readAbs(abs string, compressed bool) ([]byte, error) {
	data, err := os.ReadFile(abs)
	if err != nil || !compressed {
		return data, err
	}
	out, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	return out, nil
}

// Write atomically writes content: tmp file → fsync → rename.
func (f *FS) Write(path string, content []byte) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tmpPrefix+"*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// Delete removes a document and its compressed sibling. It fails with an
// os.ErrNotExist wrapped error when neither exists.
func (f *FS) Delete(path string) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	removed := false
	for _, p := range []string{abs, abs + ".zst"} {
		err := os.Remove(p)
		switch {
		case err == nil:
			removed = true
		case !errors.Is(err, os.ErrNotExist):
			return fmt.Errorf("storage: delete %s: %w", path, err)
		}
	}
	if !removed {
		return fmt.Errorf("storage: delete %s: %w", path, os.ErrNotExist)
	}
	return nil
}
