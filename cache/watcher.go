// Copyright (C) 2025 Tessellate AI (oss@tessellate.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// InvalidateFunc receives the project-relative paths of files whose
// content changed, after debouncing.
type InvalidateFunc func(relativePaths []string)

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	// DebounceWindow is how long to wait for further events before
	// invalidating. Default 100ms.
	DebounceWindow time.Duration

	// IgnoreDirs are directory basenames never descended into.
	IgnoreDirs []string
}

// DefaultWatcherOptions returns sensible defaults.
func DefaultWatcherOptions() WatcherOptions {
	return WatcherOptions{
		DebounceWindow: 100 * time.Millisecond,
		IgnoreDirs:     []string{".git", "node_modules", "vendor", ".venv", "__pycache__", "target", "dist", ".idea"},
	}
}

// Watcher observes a project tree and pushes file-change invalidations
// into symbol caches ahead of their next query. Caches stay correct
// without it, since every query re-checks the fingerprint; the watcher
// only keeps memory from accumulating dead entries.
//
// Thread Safety:
//
//	Safe for concurrent use. The invalidate callback runs on a single
//	goroutine.
type Watcher struct {
	rootPath   string
	watcher    *fsnotify.Watcher
	invalidate InvalidateFunc
	opts       WatcherOptions

	changes  chan string
	done     chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a watcher for the project root. Call Start to begin
// observing.
func NewWatcher(rootPath string, invalidate InvalidateFunc, opts *WatcherOptions) (*Watcher, error) {
	if opts == nil {
		defaults := DefaultWatcherOptions()
		opts = &defaults
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		rootPath:   rootPath,
		watcher:    fsw,
		invalidate: invalidate,
		opts:       *opts,
		changes:    make(chan string, 1024),
		done:       make(chan struct{}),
	}, nil
}

// Start watches the root directory and all subdirectories. Runs until the
// context is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addRecursive(w.rootPath); err != nil {
		return err
	}

	go w.processEvents(ctx)
	go w.debounceLoop(ctx)

	slog.Debug("File watcher started", slog.String("root", w.rootPath))
	return nil
}

// Stop stops the watcher. Idempotent.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.watcher.Close()
	})
}

// addRecursive adds a directory tree to the watch set.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignored(filepath.Base(path)) && path != root {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

func (w *Watcher) ignored(base string) bool {
	for _, dir := range w.opts.IgnoreDirs {
		if base == dir {
			return true
		}
	}
	return false
}

// processEvents converts fsnotify events into relative paths.
func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.ignored(filepath.Base(event.Name)) {
				continue
			}

			// New directories join the watch set.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.watcher.Add(event.Name)
					continue
				}
			}

			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Create) {
				continue
			}

			rel, err := filepath.Rel(w.rootPath, event.Name)
			if err != nil {
				continue
			}
			select {
			case w.changes <- filepath.ToSlash(rel):
			default:
				// Buffer full; the next query's fingerprint check covers it.
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("File watcher error", slog.String("error", err.Error()))
		}
	}
}

// debounceLoop batches change paths and invokes the callback once per
// quiet window.
func (w *Watcher) debounceLoop(ctx context.Context) {
	pending := make(map[string]struct{})
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if len(pending) > 0 && w.invalidate != nil {
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			w.invalidate(paths)
			pending = make(map[string]struct{})
		}
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-w.done:
			flush()
			return
		case path := <-w.changes:
			pending[path] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.opts.DebounceWindow)
				timerC = timer.C
			} else {
				timer.Reset(w.opts.DebounceWindow)
			}
		case <-timerC:
			flush()
		}
	}
}
