package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DirWatcher reports files in a set of directories that match a glob
// pattern whenever they are created or written. Events arriving within
// the debounce window are delivered as one batch.
type DirWatcher struct {
	dirs     []string
	pattern  string
	debounce time.Duration
	logger   *slog.Logger
}

func NewDirWatcher(dir, pattern string, debounce time.Duration) (*DirWatcher, error) {
	return NewMultiDirWatcher([]string{dir}, pattern, debounce)
}

// NewMultiDirWatcher watches every directory in dirs with one pattern.
func NewMultiDirWatcher(dirs []string, pattern string, debounce time.Duration) (*DirWatcher, error) {
	if len(dirs) == 0 {
		return nil, errors.New("no directories to watch")
	}
	if pattern == "" {
		pattern = "*.log"
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	return &DirWatcher{
		dirs:     slices.Clone(dirs),
		pattern:  pattern,
		debounce: debounce,
		logger:   slog.Default().With("component", "dir-watcher", "dirs", len(dirs)),
	}, nil
}

// Existing lists the matching files already in the directories, sorted.
func (w *DirWatcher) Existing() ([]string, error) {
	var files []string
	for _, dir := range w.dirs {
		matches, err := filepath.Glob(filepath.Join(dir, w.pattern))
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if info, err := os.Stat(m); err == nil && info.Mode().IsRegular() {
				files = append(files, m)
			}
		}
	}
	slices.Sort(files)
	return files, nil
}

func (w *DirWatcher) matches(path string) bool {
	ok, _ := filepath.Match(w.pattern, filepath.Base(path))
	return ok
}

// Run watches until ctx ends, calling onChange with the sorted set of
// changed files. An error from onChange is logged and watching continues.
func (w *DirWatcher) Run(ctx context.Context, onChange func(ctx context.Context, paths []string) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()
	for _, dir := range w.dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}
	w.logger.Info("watching for log changes", "pattern", w.pattern)

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !w.matches(event.Name) {
				continue
			}
			pending[event.Name] = struct{}{}
			timer.Reset(w.debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		case <-timer.C:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			clear(pending)
			slices.Sort(paths)
			if err := onChange(ctx, paths); err != nil {
				w.logger.Error("handling log change", "files", len(paths), "error", err)
			}
		}
	}
}
