// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Command reqcache sends requests through a cached dispatcher from the
// command line.
//
// Usage:
//
//	reqcache [--config file]... <command> [flags]
//
// Configuration is read from the given YAML files in order and then
// from REQCACHE_* environment variables, for example
// REQCACHE_BASE_URL=https://api.example.com or
// REQCACHE_CACHE__BACKEND=leveldb.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "reqcache:", err)
		stop()
		os.Exit(1)
	}
}
