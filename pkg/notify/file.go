package notify

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// FileWatcher turns changes to a file-backed session store into signals. The
// write itself is the broadcast, so Broadcast does nothing and signals carry
// no origin; this process also sees its own writes.
type FileWatcher struct {
	path string
}

// NewFileWatcher watches the session file at path.
func NewFileWatcher(path string) (*FileWatcher, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("notify: watch path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve watch path: %w", err)
	}
	return &FileWatcher{path: abs}, nil
}

func (w *FileWatcher) Broadcast(context.Context, string) error { return nil }

func (w *FileWatcher) Listen(ctx context.Context, fn func(origin string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("new watcher: %w", err)
	}
	// Watch the directory: atomic renames replace the file's inode.
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != w.path {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
					fn("")
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return nil
}

func (w *FileWatcher) Close() error { return nil }
