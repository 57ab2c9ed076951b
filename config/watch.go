// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounce = 25 * time.Millisecond

// Watcher reloads the configuration when a loader file changes. Stop
// must be called to release filesystem resources.
type Watcher struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Stop halts the watcher and waits for its goroutine to exit.
func (w *Watcher) Stop() {
	if w == nil {
		return
	}
	w.once.Do(func() {
		w.cancel()
		<-w.done
	})
}

// Watch reloads the configuration whenever one of the loader's files
// is written, created, renamed or removed, and passes each successfully
// loaded configuration to onChange. Bursts of events are coalesced.
// Load and validation errors go to onError, if it is not nil, and the
// previous configuration stays in effect.
//
// Watch watches the parent directories of the files, so editors that
// replace a file by renaming over it are handled.
func (l *Loader) Watch(ctx context.Context, onChange func(Config), onError func(error)) (*Watcher, error) {
	if onChange == nil {
		return nil, errors.New("reqcache/config: watch requires a change callback")
	}
	targets := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, f := range l.files {
		if f == "" {
			continue
		}
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, fmt.Errorf("reqcache/config: resolve %s: %w", f, err)
		}
		abs = filepath.Clean(abs)
		targets[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	if len(targets) == 0 {
		return nil, errors.New("reqcache/config: no files to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("reqcache/config: watch: %w", err)
	}
	for dir := range dirs {
		if err = watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return nil, fmt.Errorf("reqcache/config: watch add %s: %w", dir, err)
		}
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w := &Watcher{cancel: cancel, done: make(chan struct{})}
	report := func(err error) {
		if onError != nil {
			onError(err)
		}
	}

	go func() {
		defer close(w.done)
		defer func() {
			if err := watcher.Close(); err != nil {
				report(fmt.Errorf("reqcache/config: watch close: %w", err))
			}
		}()

		var timer *time.Timer
		var signal <-chan time.Time
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()

		for {
			select {
			case <-watchCtx.Done():
				return
			case <-signal:
				signal = nil
				cfg, err := l.Load(watchCtx)
				if err != nil {
					if !errors.Is(err, context.Canceled) {
						report(err)
					}
					continue
				}
				onChange(cfg)
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !targets[filepath.Clean(event.Name)] {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(debounce)
				} else {
					timer.Reset(debounce)
				}
				signal = timer.C
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				report(fmt.Errorf("reqcache/config: watch error: %w", err))
			}
		}
	}()

	return w, nil
}
