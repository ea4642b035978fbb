// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package settings

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/AleutianAI/HumanizerFOSS/pkg/logging"
)

// ChangeHandler is called with the new settings after a successful
// reload.
type ChangeHandler func(Settings)

// Watcher holds the current settings and reloads them when the backing
// file changes.
//
// # Description
//
// Watches the file's parent directory (editors often replace files via
// rename, which drops a watch set on the file itself) and debounces
// bursts of write events. A reload that fails to parse or validate
// keeps the previous settings.
//
// # Thread Safety
//
// Safe for concurrent use. Handlers are called from a single goroutine.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	logger   *logging.Logger
	debounce time.Duration

	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	mu       sync.RWMutex
	current  Settings
	handlers []ChangeHandler
}

// NewWatcher loads the file once and begins watching it for changes.
//
// # Inputs
//
//   - path: the YAML settings file. Must exist and be valid.
//   - logger: may be nil.
//
// # Outputs
//
//   - *Watcher: running watcher; call Close when done.
//   - error: non-nil if the initial load or the watch setup fails.
func NewWatcher(path string, logger *logging.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logging.Default()
	}

	initial, err := Load(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch settings directory: %w", err)
	}

	w := &Watcher{
		path:     path,
		watcher:  fsw,
		logger:   logger,
		debounce: 100 * time.Millisecond,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		current:  initial,
	}
	go w.run()
	return w, nil
}

// Current returns the latest valid settings.
func (w *Watcher) Current() Settings {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange registers a handler for future reloads.
func (w *Watcher) OnChange(h ChangeHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, h)
}

// Close stops the watcher. Idempotent.
func (w *Watcher) Close() {
	w.stopOnce.Do(func() {
		close(w.done)
		<-w.stopped
		w.watcher.Close()
	})
}

func (w *Watcher) run() {
	defer close(w.stopped)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case <-timerC:
			timerC = nil
			timer = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("settings watcher error", "error", err.Error())
		}
	}
}

func (w *Watcher) reload() {
	next, err := Load(w.path)
	if err != nil {
		w.logger.Warn("settings reload rejected, keeping previous values",
			"path", w.path,
			"error", err.Error(),
		)
		return
	}

	w.mu.Lock()
	w.current = next
	handlers := make([]ChangeHandler, len(w.handlers))
	copy(handlers, w.handlers)
	w.mu.Unlock()

	w.logger.Info("settings reloaded", "path", w.path)
	for _, h := range handlers {
		h(next)
	}
}
