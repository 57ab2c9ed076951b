// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package timeout

import (
	"time"

	"github.com/gogama/reqcache/request"
)

// A Policy defines a timeout policy which may be plugged into the
// request dispatcher (reqcache.Dispatcher) to direct how to set the
// timeout of each request it sends.
//
// A non-zero Timeout on the request configuration always takes
// precedence over the policy.
//
// Implementations of Policy must be safe for concurrent use by multiple
// goroutines.
type Policy interface {
	// Timeout returns the timeout to set on the HTTP request described
	// by c.
	Timeout(c *request.Config) time.Duration
}

// DefaultPolicy is the default timeout policy. It sets a fixed timeout
// of 30 seconds on each request.
var DefaultPolicy Policy = Fixed(30 * time.Second)

// Infinite is a built-in timeout policy which never times out.
var Infinite Policy = Fixed(1<<63 - 1)

// Fixed constructs a timeout policy that uses the same value for every
// request.
func Fixed(d time.Duration) Policy {
	return policy{d, d}
}

// Transfer constructs a timeout policy that gives file transfers a
// different timeout than ordinary requests.
//
// Parameter usual is the timeout of ordinary requests. Parameter
// transfer is the timeout of downloads and of requests that upload a
// body (Upload, UploadFile or Multipart).
//
// Consider the following timeout policy:
//
// 	p := Transfer(10*time.Second, 10*time.Minute)
//
// The policy p lets an API call run for 10 seconds, but a download for
// up to 10 minutes.
func Transfer(usual, transfer time.Duration) Policy {
	return policy{usual, transfer}
}

type policy struct {
	usual    time.Duration
	transfer time.Duration
}

func (p policy) Timeout(c *request.Config) time.Duration {
	if isTransfer(c) {
		return p.transfer
	}

	return p.usual
}

func isTransfer(c *request.Config) bool {
	return c.IsDownload() || c.Upload != nil || c.UploadFile != "" || c.Multipart != nil
}
