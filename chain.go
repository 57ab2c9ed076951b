// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package reqcache

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// A ChainCallback is called after a step of a chain succeeds, before
// the next step starts.
type ChainCallback func(c *Chain, r *Request)

// A Chain runs requests one at a time, in order. Step N+1 starts only
// after step N has succeeded and its callback has returned. The chain
// finishes when the last step succeeds, and fails as soon as any step
// fails, in which case the remaining steps are never started.
//
// While a step runs, the chain owns its notifications: the step's
// delegate is replaced and its closures are dropped.
type Chain struct {
	// Delegate is notified of the chain's outcome. It may be nil.
	Delegate ChainDelegate

	id          uuid.UUID
	dispatcher  *Dispatcher
	accessories HandlerGroup

	lock      sync.Mutex
	requests  []*Request
	callbacks []ChainCallback
	next      int
	started   bool
	current   *Request
	failed    *Request
	closed    bool
	onSuccess func(*Chain)
	onFailure func(*Chain)
}

// ID returns the identifier of the chain.
func (c *Chain) ID() uuid.UUID {
	return c.id
}

// Add appends a step. The callback may be nil. Steps must be added
// before Start.
func (c *Chain) Add(r *Request, cb ChainCallback) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.requests = append(c.requests, r)
	c.callbacks = append(c.callbacks, cb)
}

// Requests returns the steps of the chain.
func (c *Chain) Requests() []*Request {
	c.lock.Lock()
	defer c.lock.Unlock()
	return append([]*Request(nil), c.requests...)
}

// FailedRequest returns the step that failed, or nil.
func (c *Chain) FailedRequest() *Request {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.failed
}

// FromCache reports whether every step has succeeded from the cache.
func (c *Chain) FromCache() bool {
	for _, r := range c.Requests() {
		if !r.FromCache() {
			return false
		}
	}
	return true
}

// AddAccessory installs an accessory handler for the given event.
func (c *Chain) AddAccessory(evt Event, h Handler) {
	c.accessories.PushBack(evt, h)
}

// SetCallbacks sets the closures called after the delegate when the
// chain finishes or fails.
func (c *Chain) SetCallbacks(success, failure func(*Chain)) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.onSuccess = success
	c.onFailure = failure
}

// StartWith sets the closures and starts the chain.
func (c *Chain) StartWith(success, failure func(*Chain)) {
	c.SetCallbacks(success, failure)
	c.Start()
}

// Start starts the first step. A chain runs once: Start logs a warning
// and does nothing if the chain was already started or has no steps.
func (c *Chain) Start() {
	d := c.dispatcherOrDefault()
	c.lock.Lock()
	if c.started || len(c.requests) == 0 {
		c.lock.Unlock()
		d.logger().Warn("chain already started or empty, ignoring start", slog.String("chain", c.id.String()))
		return
	}
	c.started = true
	c.lock.Unlock()

	d.registerUnit(c, nil)
	c.accessories.run(WillStart, nil)
	c.startNext()
}

// startNext starts the next step and reports whether there was one.
func (c *Chain) startNext() bool {
	c.lock.Lock()
	if c.closed || c.next >= len(c.requests) {
		c.lock.Unlock()
		return false
	}
	r := c.requests[c.next]
	c.next++
	c.current = r
	c.lock.Unlock()

	r.setDelegate(chainStep{c})
	r.ClearCallbacks()
	r.Start()
	return true
}

func (c *Chain) stepFinished(r *Request) {
	c.lock.Lock()
	if c.closed || c.current != r {
		c.lock.Unlock()
		return
	}
	cb := c.callbacks[c.next-1]
	c.lock.Unlock()

	if cb != nil {
		cb(c, r)
	}
	if c.startNext() {
		return
	}
	c.lock.Lock()
	if c.closed {
		c.lock.Unlock()
		return
	}
	c.closed = true
	c.current = nil
	c.lock.Unlock()
	c.deliver(nil)
}

func (c *Chain) stepFailed(r *Request) {
	c.lock.Lock()
	if c.closed || c.current != r {
		c.lock.Unlock()
		return
	}
	c.closed = true
	c.current = nil
	c.failed = r
	c.lock.Unlock()
	c.deliver(r)
}

// deliver sends the chain notification. The caller must have closed the
// chain.
func (c *Chain) deliver(failed *Request) {
	c.lock.Lock()
	delegate, onSuccess, onFailure := c.Delegate, c.onSuccess, c.onFailure
	c.onSuccess, c.onFailure = nil, nil
	c.lock.Unlock()

	c.dispatcherOrDefault().unregisterUnit(c, nil)
	c.accessories.run(WillStop, nil)
	if failed == nil {
		if delegate != nil {
			delegate.ChainFinished(c)
		}
		if onSuccess != nil {
			onSuccess(c)
		}
	} else {
		if delegate != nil {
			delegate.ChainFailed(c, failed)
		}
		if onFailure != nil {
			onFailure(c)
		}
	}
	c.accessories.run(DidStop, nil)
}

// Stop stops the running step. Steps not yet started are abandoned. No
// chain notification is delivered, and the accessories are removed
// after DidStop.
func (c *Chain) Stop() {
	c.accessories.run(WillStop, nil)
	c.lock.Lock()
	current := c.current
	c.current = nil
	c.closed = true
	c.Delegate = nil
	c.onSuccess, c.onFailure = nil, nil
	c.lock.Unlock()

	if current != nil {
		current.Stop()
	}
	c.dispatcherOrDefault().unregisterUnit(c, nil)
	c.accessories.run(DidStop, nil)
	c.accessories.Clear()
}

func (c *Chain) dispatcherOrDefault() *Dispatcher {
	if c.dispatcher == nil {
		return DefaultDispatcher
	}
	return c.dispatcher
}

type chainStep struct {
	c *Chain
}

func (s chainStep) RequestFinished(r *Request) { s.c.stepFinished(r) }

func (s chainStep) RequestFailed(r *Request) { s.c.stepFailed(r) }
