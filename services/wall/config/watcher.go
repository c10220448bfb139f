// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of events an editor save produces.
const reloadDebounce = 500 * time.Millisecond

// Watcher hot-reloads one external config file.
//
// Description:
//
//	Watches the file's directory (editors replace files by rename, which
//	breaks direct file watches), reloads on write or create events for
//	the file, and publishes the new snapshot only when it validates. A
//	broken edit never replaces a good running configuration.
//
// Thread Safety:
//
//	Current is safe from any goroutine. Start must be called once.
type Watcher struct {
	path     string
	current  atomic.Pointer[Config]
	onReload func(*Config)
	watcher  *fsnotify.Watcher

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher creates a watcher over one config file.
//
// Inputs:
//
//	path     - The external config file to watch. Must be non-empty.
//	initial  - The snapshot served until the first successful reload.
//	onReload - Optional callback invoked with each published snapshot.
//
// Outputs:
//
//	*Watcher - Ready to Start.
//	error    - Non-nil when the underlying watch cannot be created.
func NewWatcher(path string, initial *Config, onReload func(*Config)) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config watcher requires a file path")
	}
	if initial == nil {
		return nil, fmt.Errorf("config watcher requires an initial snapshot")
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	w := &Watcher{
		path:     filepath.Clean(path),
		onReload: onReload,
		watcher:  fsWatcher,
	}
	w.current.Store(initial)

	dir := filepath.Dir(w.path)
	if err := fsWatcher.Add(dir); err != nil {
		closeErr := fsWatcher.Close()
		if closeErr != nil {
			slog.Warn("failed to close watcher after add error", "error", closeErr)
		}
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	return w, nil
}

// Current returns the latest published snapshot.
func (w *Watcher) Current() *Config {
	return w.current.Load()
}

// Start runs the watch loop until the context is cancelled.
//
// This function blocks. Run it in a goroutine:
//
//	go watcher.Start(ctx)
func (w *Watcher) Start(ctx context.Context) {
	slog.Info("config watcher started", "path", w.path)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher error", "error", err)

		case <-ctx.Done():
			slog.Info("config watcher stopping", "reason", ctx.Err())
			return
		}
	}
}

// Stop closes the underlying watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return w.watcher.Close()
}

// handleEvent filters the directory stream down to edits of the file.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	slog.Debug("config file changed", "path", w.path, "op", event.Op.String())
	w.scheduleReload()
}

// scheduleReload arms the debounce timer, resetting any pending one.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(reloadDebounce, w.reload)
}

// reload loads, validates, and publishes the file, keeping the old
// snapshot on any failure.
func (w *Watcher) reload() {
	cfg, err := LoadFile(w.path)
	if err != nil {
		slog.Warn("config reload rejected, keeping previous configuration",
			"path", w.path,
			"error", err)
		return
	}

	w.current.Store(cfg)
	slog.Info("config reloaded", "path", w.path)

	if w.onReload != nil {
		w.onReload(cfg)
	}
}
