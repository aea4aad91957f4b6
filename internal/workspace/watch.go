package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher records files created or written anywhere under a working
// directory while a script runs. fsnotify is not recursive, so new
// subdirectories are added as they appear.
type Watcher struct {
	w    *fsnotify.Watcher
	mu   sync.Mutex
	seen map[string]bool
	done chan struct{}
}

func Watch(dir string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}
	w := &Watcher{w: fw, seen: map[string]bool{}, done: make(chan struct{})}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.w.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			info, err := os.Stat(event.Name)
			if err != nil {
				continue
			}
			if info.IsDir() {
				if err := w.w.Add(event.Name); err != nil {
					slog.Debug("watching new directory", "dir", event.Name, "err", err)
				}
				continue
			}
			w.mu.Lock()
			w.seen[event.Name] = true
			w.mu.Unlock()
		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			slog.Debug("workspace watcher", "err", err)
		}
	}
}

// Created returns every file path observed so far, sorted.
func (w *Watcher) Created() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.seen))
	for p := range w.seen {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// Close stops watching and returns the files observed.
func (w *Watcher) Close() []string {
	_ = w.w.Close()
	<-w.done
	return w.Created()
}
