package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watcher reloads the agents file on change and hands each valid parse
// to the callback. An invalid file is logged and dropped; the previous
// configuration stays in effect.
type Watcher struct {
	path     string
	onChange func(*AgentsFile)
	log      *logrus.Entry
}

// NewWatcher creates a watcher for the given agents file.
func NewWatcher(path string, onChange func(*AgentsFile)) *Watcher {
	return &Watcher{
		path:     path,
		onChange: onChange,
		log:      logrus.WithField("component", "config-watcher"),
	}
}

// Run watches until ctx is cancelled. Editors replace files with
// rename-over-write, so the parent directory is watched rather than the
// file itself, and events are debounced before reloading.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	target := filepath.Base(w.path)

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	reload := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(250*time.Millisecond, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case <-reload:
			parsed, err := LoadAgentsFile(w.path)
			if err != nil {
				w.log.WithError(err).Warn("ignoring invalid agents file update")
				continue
			}
			w.log.WithField("agents", len(parsed.Agents)).Info("agents file reloaded")
			w.onChange(parsed)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("watch error")
		}
	}
}
