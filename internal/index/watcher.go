package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/perthro/internal/rendernode"
	"github.com/starford/perthro/internal/storage"
)

// Event kinds reported to an EventCallback.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
	// EventLedger reports that the change ledger was reloaded from the
	// navigator index. The path is the navigator index path.
	EventLedger = "ledger"
)

// EventCallback is called after a watcher-driven index change.
type EventCallback func(kind string, path string)

// Watch starts an fsnotify watcher on the archive root and processes file
// change events until ctx is cancelled. It calls cb (if non-nil) after
// each successful index mutation.
//
// New directories created at runtime are automatically added to the watch
// list. Rename events trigger a reconciliation pass that removes stale
// index entries whose files no longer exist on disk.
func Watch(ctx context.Context, db *DB, store storage.Provider, root string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	emit := func(kind, path string) {
		if cb != nil {
			cb(kind, path)
		}
	}

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(200 * time.Millisecond)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			reconcile(db, store, logger, emit)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", absPath))
					}
					indexNewDir(db, store, root, absPath, logger, emit)
					continue
				}
			}

			rel, relErr := filepath.Rel(root, absPath)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			if rel == rendernode.NavigatorIndexPath {
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				changed, syncErr := SyncLedger(db, store)
				if syncErr != nil {
					logger.Warn("watcher: ledger load failed", slog.String("error", syncErr.Error()))
					continue
				}
				if changed {
					logger.Debug("watcher: ledger reloaded")
					emit(EventLedger, rel)
				}
				continue
			}

			docPath, ok := documentPath(rel)
			if !ok {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				kind := EventUpdated
				if ev.Op&fsnotify.Create != 0 {
					kind = EventCreated
				}
				if reindex(db, store, docPath, logger) {
					logger.Debug("watcher: indexed", slog.String("path", docPath), slog.String("op", kind))
					emit(kind, docPath)
				}

			case ev.Op&fsnotify.Remove != 0:
				// The other encoding of the same document may still exist.
				if _, readErr := store.Read(docPath); readErr == nil {
					if reindex(db, store, docPath, logger) {
						emit(EventUpdated, docPath)
					}
					continue
				}
				if delErr := db.DeleteDocument(docPath); delErr != nil {
					logger.Warn("watcher: delete failed", slog.String("path", docPath), slog.String("error", delErr.Error()))
					continue
				}
				logger.Debug("watcher: deleted", slog.String("path", docPath))
				emit(EventDeleted, docPath)

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify fires Rename on the old path only; the new path
				// arrives as a Create if it stays inside a watched dir.
				if _, readErr := store.Read(docPath); readErr != nil {
					if delErr := db.DeleteDocument(docPath); delErr != nil {
						logger.Warn("watcher: rename delete failed", slog.String("path", docPath), slog.String("error", delErr.Error()))
					} else {
						logger.Debug("watcher: rename old deleted", slog.String("path", docPath))
						emit(EventDeleted, docPath)
					}
				}
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// documentPath maps an archive-relative file path to the document path it
// is indexed under. Only .json and .json.zst files below the data directory
// are documents.
func documentPath(rel string) (string, bool) {
	if !strings.HasPrefix(rel, rendernode.DataDir+"/") {
		return "", false
	}
	if strings.HasPrefix(filepath.Base(rel), tmpFilePrefix) {
		return "", false
	}
	switch {
	case strings.HasSuffix(rel, ".json"):
		return rel, true
	case strings.HasSuffix(rel, ".json.zst"):
		return strings.TrimSuffix(rel, ".zst"), true
	}
	return "", false
}

// tmpFilePrefix matches the temp files storage.FS writes before renaming.
const tmpFilePrefix = ".perthro-tmp-"

func reindex(db *DB, store storage.Provider, docPath string, logger *slog.Logger) bool {
	data, err := store.Read(docPath)
	if err != nil {
		logger.Warn("watcher: read failed", slog.String("path", docPath), slog.String("error", err.Error()))
		return false
	}
	if err := indexFile(db, docPath, data, time.Now()); err != nil {
		logger.Warn("watcher: index failed", slog.String("path", docPath), slog.String("error", err.Error()))
		return false
	}
	return true
}

// reconcile does a lightweight sync using batch lookups: it removes index
// entries without a file on disk and indexes files that are new or changed.
func reconcile(db *DB, store storage.Provider, logger *slog.Logger, emit EventCallback) {
	checksums, err := db.AllChecksums()
	if err != nil {
		logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}

	metas, err := store.List(rendernode.DataDir)
	if err != nil {
		logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]string, len(metas))
	for _, m := range metas {
		disk[m.Path] = m.Checksum
	}

	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if delErr := db.DeleteDocument(p); delErr == nil {
				logger.Debug("reconcile: removed stale", slog.String("path", p))
				emit(EventDeleted, p)
			}
		}
	}

	for p, cs := range disk {
		old, known := checksums[p]
		if old == cs {
			continue
		}
		if !reindex(db, store, p, logger) {
			continue
		}
		logger.Debug("reconcile: indexed", slog.String("path", p))
		if known {
			emit(EventUpdated, p)
		} else {
			emit(EventCreated, p)
		}
	}
}

// indexNewDir indexes any documents found in a newly created directory.
func indexNewDir(db *DB, store storage.Provider, root, dirPath string, logger *slog.Logger, emit EventCallback) {
	_ = filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		docPath, ok := documentPath(filepath.ToSlash(rel))
		if !ok {
			return nil
		}
		if reindex(db, store, docPath, logger) {
			logger.Debug("watcher: indexed from new dir", slog.String("path", docPath))
			emit(EventCreated, docPath)
		}
		return nil
	})
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
