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

	"github.com/davidcpage/research-notebook/internal/card"
	"github.com/davidcpage/research-notebook/internal/syncer"
)

// EventCallback is called after a watcher-driven change to the card
// tree. kind is one of "created", "updated", "deleted".
type EventCallback func(kind string, path string)

// Watch starts an fsnotify watcher on the notebook root and processes
// external file changes until ctx is cancelled. Changed card files are
// invalidated in the session (checksum mismatch forces a re-read) and
// the index follows; cb (if non-nil) fires after each mutation.
//
// New directories created at runtime are added to the watch list.
// Rename events trigger a debounced reconciliation pass that removes
// index entries whose files no longer exist on disk.
func Watch(ctx context.Context, db CardIndex, sess *syncer.Session, notebookRoot string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, notebookRoot); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", notebookRoot))

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
			reconcileAfterRename(db, sess, logger, cb)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name
			rel, relErr := filepath.Rel(notebookRoot, absPath)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			// Changes inside the reserved config directory are picked
			// up on the next scan, not per-event.
			if strings.HasPrefix(rel, card.ConfigDir+"/") {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if card.ReservedDir(info.Name()) {
						continue
					}
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", absPath))
					}
					scheduleReconcile()
					continue
				}
			}

			if ev.Op&(fsnotify.Rename|fsnotify.Remove) != 0 {
				if sess.Invalidate(rel) {
					if err := db.DeleteCard(rel); err != nil {
						logger.Warn("watcher: index delete failed",
							slog.String("path", rel), slog.String("error", err.Error()))
					}
					if cb != nil {
						cb("deleted", rel)
					}
				}
				scheduleReconcile()
				continue
			}

			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}

			_, existed := sess.Get(rel)
			if !sess.Invalidate(rel) {
				continue
			}
			c, ok := sess.Get(rel)
			if !ok {
				// The edit left the file unparseable and the session
				// dropped the card; the index row goes with it.
				if existed {
					if err := db.DeleteCard(rel); err != nil {
						logger.Warn("watcher: index delete failed",
							slog.String("path", rel), slog.String("error", err.Error()))
					}
					if cb != nil {
						cb("deleted", rel)
					}
				}
				continue
			}
			if err := db.UpsertCard(rowFor(c), extractRefs(c.Body)); err != nil {
				logger.Warn("watcher: index upsert failed",
					slog.String("path", rel), slog.String("error", err.Error()))
				continue
			}
			kind := "updated"
			if !existed {
				kind = "created"
			}
			logger.Debug("watcher: reindexed", slog.String("path", rel), slog.String("kind", kind))
			if cb != nil {
				cb(kind, rel)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// reconcileAfterRename drops index entries whose cards vanished from
// the session tree.
func reconcileAfterRename(db CardIndex, sess *syncer.Session, logger *slog.Logger, cb EventCallback) {
	indexed, err := db.AllPaths()
	if err != nil {
		logger.Warn("watcher: reconcile failed", slog.String("error", err.Error()))
		return
	}
	for p := range indexed {
		if _, ok := sess.Get(p); ok {
			continue
		}
		sess.Invalidate(p)
		if _, stillThere := sess.Get(p); stillThere {
			continue
		}
		if err := db.DeleteCard(p); err != nil {
			logger.Warn("watcher: reconcile delete failed",
				slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		if cb != nil {
			cb("deleted", p)
		}
	}
}

// addDirsRecursive adds root and all its non-reserved subdirectories to
// the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && card.ReservedDir(d.Name()) {
			return fs.SkipDir
		}
		return w.Add(path)
	})
}
