package piregistry

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounce = 200 * time.Millisecond

// Watcher observes the mirror base for external edits to registry or
// config files and reports the affected project, debounced per project.
// Consumers typically invalidate their per-project caches in OnChange.
type Watcher struct {
	base     string
	onChange func(project string)
	fsw      *fsnotify.Watcher

	mu     sync.Mutex
	timers map[string]*time.Timer

	stopCh chan struct{}
	doneCh chan struct{}
}

// Watch starts watching the base directory and every existing project
// subdirectory. Project directories created later are picked up too.
func Watch(base string, onChange func(project string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		base:     base,
		onChange: onChange,
		fsw:      fsw,
		timers:   make(map[string]*time.Timer),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}

	if err := fsw.Add(base); err != nil {
		fsw.Close()
		return nil, err
	}
	entries, err := os.ReadDir(base)
	if err != nil {
		fsw.Close()
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			// best effort: a vanished directory is caught by later events
			_ = fsw.Add(filepath.Join(base, entry.Name()))
		}
	}

	go w.loop()
	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.stopCh)
	err := w.fsw.Close()
	<-w.doneCh
	return err
}

func (w *Watcher) loop() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		case event, open := <-w.fsw.Events:
			if !open {
				return
			}
			w.handle(event)
		case err, open := <-w.fsw.Errors:
			if !open {
				return
			}
			log.Printf("warning: registry watcher: %v", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	rel, err := filepath.Rel(w.base, event.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}

	// A new project directory appears: watch it. Files may have landed
	// before the watch was in place, so check for them explicitly.
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.fsw.Add(event.Name)
			for _, f := range []string{"registry.json", "config.json"} {
				if _, err := os.Stat(filepath.Join(event.Name, f)); err == nil {
					w.notify(filepath.Base(event.Name))
					break
				}
			}
			return
		}
	}

	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Rename) {
		return
	}

	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) != 2 {
		return
	}
	project, file := parts[0], parts[1]
	if file != "registry.json" && file != "config.json" {
		return
	}
	w.notify(project)
}

// notify fires onChange after the debounce window; rapid successive
// writes (temp-file renames) collapse into one callback.
func (w *Watcher) notify(project string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, pending := w.timers[project]; pending {
		timer.Reset(debounce)
		return
	}
	w.timers[project] = time.AfterFunc(debounce, func() {
		w.mu.Lock()
		delete(w.timers, project)
		w.mu.Unlock()
		w.onChange(project)
	})
}
