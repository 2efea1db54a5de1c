package store

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	wmerrors "github.com/turtacn/wmswitch/pkg/errors"
	"github.com/turtacn/wmswitch/pkg/logger"
)

// Watcher reports changes to a single config file. It watches the parent
// directory so atomic replacements (write temp, rename) are seen.
type Watcher struct {
	path     string
	debounce time.Duration
	log      logger.Logger
}

func NewWatcher(path string, debounce time.Duration) *Watcher {
	return &Watcher{
		path:     filepath.Clean(path),
		debounce: debounce,
		log:      logger.Log.With("component", "watcher"),
	}
}

const relevantOps = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove

// Run blocks until ctx is done, calling onChange once per burst of events
// on the file. onChange runs on the watcher goroutine.
func (w *Watcher) Run(ctx context.Context, onChange func()) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return wmerrors.New(wmerrors.ErrCodeConfigLoad, "watch", "cannot create watcher", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		w.log.Warn("Cannot create config dir", "dir", dir, "err", err)
	}
	if err := fw.Add(dir); err != nil {
		return wmerrors.New(wmerrors.ErrCodeConfigLoad, "watch", "cannot watch "+dir, err)
	}
	w.log.Info("Watching config", "path", w.path)

	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path || ev.Op&relevantOps == 0 {
				continue
			}
			w.log.Debug("Config event", "op", ev.Op.String())
			fire = time.After(w.debounce)
		case <-fire:
			fire = nil
			onChange()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("Watcher error", "err", err)
		}
	}
}

// Personal.AI order the ending
