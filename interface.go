// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package reqcache

import (
	"net/http"

	"github.com/gogama/reqcache/reach"
)

// An HTTPDoer implements a Do method in the same manner as the GoLang
// standard library http.Client from the net/http package.
type HTTPDoer interface {
	// Do sends an HTTP request and returns an HTTP response following
	// policy (such as redirects, cookies, auth) configured on the
	// HTTPDoer.
	//
	// The Do method must follow the contract documented on the GoLang
	// standard library http.Client from the net/http package.
	Do(r *http.Request) (*http.Response, error)
}

// An Executor runs posted functions. The dispatcher delivers every
// delegate and closure notification through its main Executor, so an
// Executor that runs functions one at a time gives callers a single
// notification context.
//
// Post must not block waiting for previously posted functions, since
// functions are posted from within other posted functions.
type Executor interface {
	Post(f func())
}

// A Delegate is notified when a request finishes or fails.
//
// Both methods are called on the dispatcher's main Executor, before
// the request's success or failure closure.
type Delegate interface {
	RequestFinished(r *Request)
	RequestFailed(r *Request)
}

// A ChainDelegate is notified when every step of a chain succeeds, or
// when a step fails.
type ChainDelegate interface {
	ChainFinished(c *Chain)
	ChainFailed(c *Chain, failed *Request)
}

// A BatchDelegate is notified when every request of a batch succeeds,
// or when the first request fails.
type BatchDelegate interface {
	BatchFinished(b *Batch)
	BatchFailed(b *Batch, failed *Request)
}

// Reachability is the connectivity monitor consulted by the
// dispatcher. reach.Prober implements Reachability.
type Reachability interface {
	// Status returns the last observed status.
	Status() reach.Status
	// SetListener sets the function called when the status changes.
	SetListener(f func(reach.Status))
	// StartListening starts monitoring. It must be a no-op if
	// monitoring is already running.
	StartListening()
	// StopListening stops monitoring. It must not wait for the
	// listener to return.
	StopListening()
}

// A URLFilter rewrites the relative path of a request before it is
// resolved against the base URL, for example to add common query
// parameters. Filters run in registration order.
type URLFilter func(path string, r *Request) string

// DelegateFuncs adapts a pair of functions to the Delegate interface.
// A nil function is skipped.
type DelegateFuncs struct {
	Finished func(r *Request)
	Failed   func(r *Request)
}

// RequestFinished calls f.Finished if it is not nil.
func (f DelegateFuncs) RequestFinished(r *Request) {
	if f.Finished != nil {
		f.Finished(r)
	}
}

// RequestFailed calls f.Failed if it is not nil.
func (f DelegateFuncs) RequestFailed(r *Request) {
	if f.Failed != nil {
		f.Failed(r)
	}
}
