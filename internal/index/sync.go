package index

import (
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/starford/perthro/internal/checksum"
	"github.com/starford/perthro/internal/rendernode"
	"github.com/starford/perthro/internal/storage"
	"github.com/starford/perthro/internal/versioning"
)

// Sync walks the archive and brings the index up to date:
//   - new/changed render nodes are parsed and upserted
//   - nodes removed from disk are deleted from the index
//   - the change ledger is reloaded when the navigator index changed
func Sync(db *DB, store storage.Provider, logger *slog.Logger) error {
	metas, err := store.List(rendernode.DataDir)
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		if checksums[m.Path] == m.Checksum {
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := indexFile(db, m.Path, data, m.UpdatedAt); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("path", m.Path))
		}
	}

	// Remove stale entries.
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeleteDocument(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	if _, err := SyncLedger(db, store); err != nil {
		logger.Warn("sync: ledger load failed", slog.String("error", err.Error()))
	}
	return nil
}

// SyncLedger reloads the change ledger from the navigator index when its
// checksum differs from the stored one. A missing navigator index clears the
// ledger. changed reports whether the stored ledger was replaced.
func SyncLedger(db *DB, store storage.Provider) (changed bool, err error) {
	data, err := store.Read(rendernode.NavigatorIndexPath)
	if errors.Is(err, os.ErrNotExist) {
		data, err = nil, nil
	}
	if err != nil {
		return false, err
	}

	cs := ""
	if data != nil {
		cs = checksum.Sum(data)
	}
	stored, err := db.LedgerChecksum()
	if err != nil {
		return false, err
	}
	if stored == cs {
		return false, nil
	}

	nav := &rendernode.NavigatorIndex{}
	if data != nil {
		if nav, err = rendernode.ParseNavigatorIndex(data); err != nil {
			return false, err
		}
	}
	if err := db.ReplaceLedger(nav.VersionDifferences, cs); err != nil {
		return false, err
	}
	return true, nil
}

// BuildRow parses a render node into its index row.
func BuildRow(path string, data []byte, updatedAt time.Time) (DocumentRow, error) {
	node, err := rendernode.Parse(data)
	if err != nil {
		return DocumentRow{}, err
	}
	return DocumentRow{
		Path:           path,
		URL:            rendernode.URLForPath(path),
		Title:          node.Title,
		Kind:           node.Kind,
		Role:           node.Role,
		Language:       node.Identifier.InterfaceLanguage,
		CurrentVersion: node.Version,
		Versions:       versioning.ListVersions(versioning.Document(data)),
		Abstract:       node.Abstract,
		Checksum:       checksum.Sum(data),
		UpdatedAt:      updatedAt,
	}, nil
}

// indexFile parses data and upserts it into the DB.
func indexFile(db *DB, path string, data []byte, updatedAt time.Time) error {
	row, err := BuildRow(path, data, updatedAt)
	if err != nil {
		return err
	}
	return db.UpsertDocument(row)
}
