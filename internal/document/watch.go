package document

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

type Logger interface {
	Printf(format string, args ...any)
}

// Watch loads path, reports it through onLoad, and reloads it whenever the
// file is written, created or renamed into place. Bursts of events within
// settle are folded into one reload. Watch returns when ctx is done.
func Watch(ctx context.Context, path string, settle time.Duration, onLoad func(*Document), logger Logger) error {
	doc, err := Load(path)
	if err != nil {
		return err
	}
	onLoad(doc)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	// Watch the directory: editors replace files by renaming over them.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}
	target := filepath.Clean(path)

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				pending = time.After(settle)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logf(logger, "watch %s: %v", path, err)
		case <-pending:
			pending = nil
			doc, err := Load(path)
			if err != nil {
				logf(logger, "reload %s failed: %v", path, err)
				continue
			}
			onLoad(doc)
		}
	}
}

func logf(logger Logger, format string, args ...any) {
	if logger == nil {
		return
	}
	logger.Printf(format, args...)
}
