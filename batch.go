// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package reqcache

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// A Batch runs requests concurrently. It finishes once every request
// has succeeded, and fails as soon as one request fails, in which case
// every other request is stopped and no further successes are counted.
//
// While the batch runs, it owns the notifications of its requests:
// their delegates are replaced and their closures are dropped.
type Batch struct {
	// Delegate is notified of the batch's outcome. It may be nil.
	Delegate BatchDelegate

	id          uuid.UUID
	dispatcher  *Dispatcher
	accessories HandlerGroup

	lock      sync.Mutex
	requests  []*Request
	started   bool
	finished  int
	failed    *Request
	closed    bool
	onSuccess func(*Batch)
	onFailure func(*Batch)
}

// ID returns the identifier of the batch.
func (b *Batch) ID() uuid.UUID {
	return b.id
}

// Requests returns the requests of the batch.
func (b *Batch) Requests() []*Request {
	b.lock.Lock()
	defer b.lock.Unlock()
	return append([]*Request(nil), b.requests...)
}

// Finished returns the number of requests that have succeeded.
func (b *Batch) Finished() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.finished
}

// FailedRequest returns the first request that failed, or nil.
func (b *Batch) FailedRequest() *Request {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.failed
}

// FromCache reports whether every request succeeded from the cache.
func (b *Batch) FromCache() bool {
	for _, r := range b.Requests() {
		if !r.FromCache() {
			return false
		}
	}
	return true
}

// AddAccessory installs an accessory handler for the given event.
func (b *Batch) AddAccessory(evt Event, h Handler) {
	b.accessories.PushBack(evt, h)
}

// SetCallbacks sets the closures called after the delegate when the
// batch finishes or fails.
func (b *Batch) SetCallbacks(success, failure func(*Batch)) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.onSuccess = success
	b.onFailure = failure
}

// StartWith sets the closures and starts the batch.
func (b *Batch) StartWith(success, failure func(*Batch)) {
	b.SetCallbacks(success, failure)
	b.Start()
}

// Start starts every request. A batch runs once: Start logs a warning
// and does nothing if the batch was already started.
func (b *Batch) Start() {
	d := b.dispatcherOrDefault()
	b.lock.Lock()
	if b.started || b.finished > 0 {
		b.lock.Unlock()
		d.logger().Warn("batch already started, ignoring start", slog.String("batch", b.id.String()))
		return
	}
	b.started = true
	reqs := append([]*Request(nil), b.requests...)
	b.lock.Unlock()

	d.registerUnit(nil, b)
	b.accessories.run(WillStart, nil)
	if len(reqs) == 0 {
		b.lock.Lock()
		b.closed = true
		b.lock.Unlock()
		b.deliver(nil)
		return
	}
	for _, r := range reqs {
		r.setDelegate(batchMember{b})
		r.ClearCallbacks()
	}
	for _, r := range reqs {
		r.Start()
	}
}

func (b *Batch) memberFinished(r *Request) {
	b.lock.Lock()
	if b.closed {
		b.lock.Unlock()
		return
	}
	b.finished++
	done := b.finished == len(b.requests)
	if done {
		b.closed = true
	}
	b.lock.Unlock()
	if done {
		b.deliver(nil)
	}
}

func (b *Batch) memberFailed(r *Request) {
	b.lock.Lock()
	if b.closed {
		b.lock.Unlock()
		return
	}
	b.closed = true
	b.failed = r
	reqs := append([]*Request(nil), b.requests...)
	b.lock.Unlock()

	for _, other := range reqs {
		if other != r {
			other.Stop()
		}
	}
	b.deliver(r)
}

// deliver sends the batch notification. The caller must have closed
// the batch.
func (b *Batch) deliver(failed *Request) {
	b.lock.Lock()
	delegate, onSuccess, onFailure := b.Delegate, b.onSuccess, b.onFailure
	b.onSuccess, b.onFailure = nil, nil
	b.lock.Unlock()

	b.dispatcherOrDefault().unregisterUnit(nil, b)
	b.accessories.run(WillStop, nil)
	if failed == nil {
		if delegate != nil {
			delegate.BatchFinished(b)
		}
		if onSuccess != nil {
			onSuccess(b)
		}
	} else {
		if delegate != nil {
			delegate.BatchFailed(b, failed)
		}
		if onFailure != nil {
			onFailure(b)
		}
	}
	b.accessories.run(DidStop, nil)
}

// Stop stops every request of the batch. No batch notification is
// delivered, and the accessories are removed after DidStop.
func (b *Batch) Stop() {
	b.accessories.run(WillStop, nil)
	b.lock.Lock()
	b.closed = true
	b.Delegate = nil
	b.onSuccess, b.onFailure = nil, nil
	reqs := append([]*Request(nil), b.requests...)
	b.lock.Unlock()

	for _, r := range reqs {
		r.Stop()
	}
	b.dispatcherOrDefault().unregisterUnit(nil, b)
	b.accessories.run(DidStop, nil)
	b.accessories.Clear()
}

func (b *Batch) dispatcherOrDefault() *Dispatcher {
	if b.dispatcher == nil {
		return DefaultDispatcher
	}
	return b.dispatcher
}

type batchMember struct {
	b *Batch
}

func (m batchMember) RequestFinished(r *Request) { m.b.memberFinished(r) }

func (m batchMember) RequestFailed(r *Request) { m.b.memberFailed(r) }
