package daemon

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const configDebounce = 500 * time.Millisecond

// watchConfig calls reload whenever the file at path is written, created or
// renamed into place, until ctx is done. Bursts of events within
// configDebounce cause a single reload.
//
// The parent directory is watched, not the file itself, so that atomic
// replacements keep being seen.
func watchConfig(ctx context.Context, path string, reload func() error) error {
	path = filepath.Clean(path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to create config watcher")
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return pkgerrors.Wrapf(err, "failed to watch %s", filepath.Dir(path))
	}

	logrus.WithField("path", path).Info("watching config file for changes")

	go func() {
		defer w.Close()

		var debounce *time.Timer
		defer func() {
			if debounce != nil {
				debounce.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != path {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				logrus.WithField("op", ev.Op.String()).Debug("config file changed")
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(configDebounce, func() {
					if err := reload(); err != nil {
						logrus.Errorf("failed to reload config: %v", err)
					}
				})
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logrus.Errorf("config watcher: %v", err)
			}
		}
	}()

	return nil
}
