// Package importer watches an inbox directory and imports audio files that
// appear in it as external records.
package importer

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/ansuz/internal/models"
)

// DebounceInterval is how long a path must stay quiet before it is imported.
const DebounceInterval = 200 * time.Millisecond

var audioExts = map[string]bool{
	".m4a":  true,
	".mp3":  true,
	".wav":  true,
	".ogg":  true,
	".aac":  true,
	".flac": true,
	".opus": true,
}

// IsAudio reports whether path has a supported audio extension.
func IsAudio(path string) bool {
	return audioExts[strings.ToLower(filepath.Ext(path))]
}

// Importer creates records for external files. Importing a path twice must
// return the existing record.
type Importer interface {
	Import(ctx context.Context, loc, title string) (models.AudioRecord, error)
}

// EventCallback is called after each successful import.
type EventCallback func(rec models.AudioRecord)

// Watch imports every audio file already under dir, then watches dir and
// its subdirectories until ctx is cancelled. Write bursts are debounced so a
// file is imported once it stops changing. Files are never moved or deleted.
func Watch(ctx context.Context, imp Importer, dir string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, dir); err != nil {
		return err
	}

	logger.Info("importer: started", slog.String("dir", dir))
	importDir(ctx, imp, dir, logger, cb)

	pending := make(map[string]struct{})
	var debounce *time.Timer
	var debounceCh <-chan time.Time

	schedule := func(path string) {
		pending[path] = struct{}{}
		if debounce == nil {
			debounce = time.NewTimer(DebounceInterval)
			debounceCh = debounce.C
		} else {
			debounce.Reset(DebounceInterval)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			logger.Info("importer: stopped")
			return nil

		case <-debounceCh:
			for p := range pending {
				importFile(ctx, imp, p, logger, cb)
			}
			pending = make(map[string]struct{})

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			path := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(path); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, path); addErr != nil {
						logger.Warn("importer: add new dir failed",
							slog.String("path", path),
							slog.String("error", addErr.Error()))
					}
					importDir(ctx, imp, path, logger, cb)
					continue
				}
			}

			if !IsAudio(path) {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				schedule(path)
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				delete(pending, path)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("importer: watch error", slog.String("error", watchErr.Error()))
		}
	}
}

func importFile(ctx context.Context, imp Importer, path string, logger *slog.Logger, cb EventCallback) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Size() == 0 {
		return
	}
	rec, err := imp.Import(ctx, path, "")
	if err != nil {
		logger.Warn("importer: import failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	logger.Debug("importer: imported", slog.String("path", path), slog.Int64("id", rec.ID))
	if cb != nil {
		cb(rec)
	}
}

// importDir imports every audio file under dir.
func importDir(ctx context.Context, imp Importer, dir string, logger *slog.Logger, cb EventCallback) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !IsAudio(path) {
			return nil
		}
		if ctx.Err() != nil {
			return filepath.SkipAll
		}
		importFile(ctx, imp, path, logger, cb)
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
