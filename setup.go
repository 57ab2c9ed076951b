// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package reqcache

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gogama/reqcache/cache"
	"github.com/gogama/reqcache/config"
	"github.com/gogama/reqcache/metrics"
	"github.com/gogama/reqcache/reach"
	"github.com/gogama/reqcache/timeout"
)

// NewDispatcher returns a dispatcher configured by cfg, logging to
// logger and recording to rec. Either may be nil. A LevelDB cache
// opened here is closed by the dispatcher's Close method.
func NewDispatcher(cfg config.Config, logger *slog.Logger, rec *metrics.Recorder) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Dispatcher{
		BaseURL:       cfg.BaseURL,
		CDNURL:        cfg.CDNURL,
		TimeoutPolicy: timeout.Transfer(cfg.Timeout, cfg.TransferTimeout),
		StatusCodes:   StatusRange{Min: cfg.StatusCodes.Min, Max: cfg.StatusCodes.Max},
		AcceptTypes:   cfg.AcceptTypes,
		DownloadDir:   cfg.Downloads.Dir,
		AppVersion:    cfg.AppVersion,
		MaxConcurrent: cfg.MaxConcurrent,
		Logger:        logger,
		Metrics:       rec,
	}

	tempRoot := cfg.Downloads.TempDir
	if tempRoot == "" {
		tempRoot = os.TempDir()
	}
	d.TempDir = filepath.Join(tempRoot, cfg.Downloads.Name)

	cacheRoot := cfg.Cache.Dir
	if cacheRoot == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			dir = os.TempDir()
		}
		cacheRoot = dir
	}
	switch cfg.Cache.Backend {
	case "dir":
		d.Cache = &cache.Dir{Root: cacheRoot, Name: cfg.Cache.Name}
	case "leveldb":
		db, err := cache.OpenLevelDB(filepath.Join(cacheRoot, cfg.Cache.Name))
		if err != nil {
			return nil, fmt.Errorf("reqcache: open cache: %w", err)
		}
		d.Cache = db
		d.closers = append(d.closers, io.Closer(db))
	}

	if cfg.Reachability.Enabled {
		d.Reachability = &reach.Prober{
			Host:     cfg.Reachability.Host,
			Interval: cfg.Reachability.Interval,
			Logger:   logger,
		}
	}
	return d, nil
}
