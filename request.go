// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package reqcache

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gogama/reqcache/cache"
	"github.com/gogama/reqcache/request"
)

// Hooks are optional functions run around a request's notifications.
// Preprocessors run on the request's background goroutine (on the main
// executor for cache hits) before filters. Filters run on the main
// executor before the delegate and closures.
type Hooks struct {
	CompletePreprocessor func(r *Request)
	CompleteFilter       func(r *Request)
	FailedPreprocessor   func(r *Request)
	FailedFilter         func(r *Request)
}

// A Request is a reusable unit of work: a request configuration plus
// the response of its most recent start. Create requests with
// Dispatcher.NewRequest. A Request created any other way is dispatched
// by DefaultDispatcher.
//
// Each call to Start produces at most one terminal notification: the
// delegate's RequestFinished followed by the success closure, or the
// delegate's RequestFailed followed by the failure closure. Both
// closures are dropped once either has fired. Stop suppresses the
// notification altogether.
//
// The exported fields must not be changed while the request is in
// flight.
type Request struct {
	// Config describes what to send and how to cache the response.
	Config *request.Config
	// Delegate is notified of the outcome. It may be nil.
	Delegate Delegate
	// Tag is free for use by the application.
	Tag int
	// Hooks are run around the notifications.
	Hooks Hooks
	// Progress, if not nil, is called from the background goroutine as
	// the response body or download is received. Total is -1 when the
	// length is unknown.
	Progress func(done, total int64)

	dispatcher  *Dispatcher
	accessories HandlerGroup

	lock      sync.Mutex
	onSuccess func(*Request)
	onFailure func(*Request)
	task      *task
	exec      *request.Execution
}

// String describes the request for logs.
func (r *Request) String() string {
	if r.Config == nil {
		return "<nil config>"
	}
	return r.Config.MethodOrDefault() + " " + r.Config.Path
}

// Dispatcher returns the dispatcher of the request.
func (r *Request) Dispatcher() *Dispatcher {
	if r.dispatcher == nil {
		return DefaultDispatcher
	}
	return r.dispatcher
}

// Start starts the request. If the request may use the cache and a
// valid cached response exists, the request succeeds from the cache
// without network activity, but its notification is still delivered
// asynchronously on the main executor. Otherwise the request is sent.
//
// Start returns immediately. If the request is already in flight, Start
// logs a warning and does nothing.
func (r *Request) Start() {
	r.start(true)
}

// StartWith sets the success and failure closures and starts the
// request.
func (r *Request) StartWith(success, failure func(*Request)) {
	r.SetCallbacks(success, failure)
	r.Start()
}

// StartWithoutCache starts the request without checking the cache. The
// response is still saved to the cache on success, so this refreshes
// the cached response.
func (r *Request) StartWithoutCache() {
	r.start(false)
}

func (r *Request) start(useCache bool) {
	d := r.Dispatcher()
	d.init()
	t := r.begin(d)
	if t == nil {
		return
	}
	r.accessories.run(WillStart, t.exec)
	if useCache && d.cacheable(r.Config) && d.loadCache(r, t.exec) == nil {
		d.main.Post(func() { d.completeFromCache(t) })
		return
	}
	d.send(t)
}

// begin creates the task of a new start, or returns nil if the request
// is already in flight.
func (r *Request) begin(d *Dispatcher) *task {
	r.lock.Lock()
	if r.task != nil && !r.task.done.Load() {
		r.lock.Unlock()
		d.logger().Warn("request already started, ignoring start", slog.String("request", r.String()))
		return nil
	}
	t := &task{r: r, exec: &request.Execution{Config: r.Config, Start: d.now()}}
	t.ctx, t.cancel = context.WithCancel(context.Background())
	r.task = t
	r.lock.Unlock()
	return t
}

func (d *Dispatcher) completeFromCache(t *task) {
	defer t.cancel()
	if t.done.Load() {
		return
	}
	r := t.r
	t.exec.End = d.now()
	r.setExecution(t.exec)
	if h := r.Hooks.CompletePreprocessor; h != nil {
		h(r)
	}
	d.notify(t)
}

// Stop stops the request. The WillStop accessories run, the delegate
// is dropped, the request is canceled, and the DidStop accessories run.
// No terminal notification is delivered for the current start.
func (r *Request) Stop() {
	exec := r.currentExecution()
	r.accessories.run(WillStop, exec)
	r.lock.Lock()
	r.Delegate = nil
	r.lock.Unlock()
	r.Dispatcher().Cancel(r)
	r.accessories.run(DidStop, exec)
}

// SetCallbacks sets the success and failure closures.
func (r *Request) SetCallbacks(success, failure func(*Request)) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.onSuccess = success
	r.onFailure = failure
}

// ClearCallbacks drops the success and failure closures.
func (r *Request) ClearCallbacks() {
	r.SetCallbacks(nil, nil)
}

// AddAccessory installs an accessory handler for the given event.
func (r *Request) AddAccessory(evt Event, h Handler) {
	r.accessories.PushBack(evt, h)
}

func (r *Request) takeCallbacks() (Delegate, func(*Request), func(*Request)) {
	r.lock.Lock()
	defer r.lock.Unlock()
	delegate, success, failure := r.Delegate, r.onSuccess, r.onFailure
	r.onSuccess, r.onFailure = nil, nil
	return delegate, success, failure
}

func (r *Request) setDelegate(delegate Delegate) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.Delegate = delegate
}

func (r *Request) currentTask() *task {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.task
}

func (r *Request) currentExecution() *request.Execution {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.task != nil {
		return r.task.exec
	}
	return r.exec
}

func (r *Request) setExecution(e *request.Execution) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.exec = e
}

// InFlight reports whether the request has been started and has not
// yet finished, failed or stopped.
func (r *Request) InFlight() bool {
	t := r.currentTask()
	return t != nil && !t.done.Load()
}

// LoadCache runs the cache check and, if the cached response is valid,
// makes it the request's response. The returned error is a cache.Error
// when the cached response cannot be used.
func (r *Request) LoadCache() error {
	d := r.Dispatcher()
	exec := &request.Execution{Config: r.Config, Start: d.now()}
	if err := d.loadCache(r, exec); err != nil {
		return err
	}
	exec.End = exec.Start
	r.setExecution(exec)
	return nil
}

// SaveResponseToCache stores data in the cache as the response of this
// request, for example a response fetched by another request. Nothing
// is stored if data is empty, the request's max age is not positive,
// the request is a download, or its current response came from the
// cache.
func (r *Request) SaveResponseToCache(data []byte) error {
	d := r.Dispatcher()
	if d.Cache == nil {
		return errNoCache
	}
	if !storable(r.Config, r.FromCache(), data) {
		d.logger().Debug("response not stored in cache", slog.String("request", r.String()))
		return nil
	}
	id, err := d.CacheIdentity(r)
	if err != nil {
		return err
	}
	status := 200
	if e := r.Execution(); e != nil && e.StatusCode() != 0 {
		status = e.StatusCode()
	}
	md := cache.NewMetadata(d.expect(r.Config), request.DetectCharset(data, ""), status, d.now())
	return d.store(r, id, data, md)
}

// Execution returns the execution of the most recent completed start,
// or nil.
func (r *Request) Execution() *request.Execution {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.exec
}

// Data returns the raw response bytes.
func (r *Request) Data() []byte {
	if e := r.Execution(); e != nil {
		return e.Body
	}
	return nil
}

// Text returns the response decoded as text. It is empty unless the
// response type is request.Default or request.String.
func (r *Request) Text() string {
	if e := r.Execution(); e != nil {
		return e.Decoded.Text
	}
	return ""
}

// Object returns the decoded JSON or property list value.
func (r *Request) Object() any {
	if e := r.Execution(); e != nil {
		return e.Decoded.Object
	}
	return nil
}

// JSON returns the decoded JSON value if it is an object.
func (r *Request) JSON() map[string]any {
	m, _ := r.Object().(map[string]any)
	return m
}

// Plist returns the decoded property list value.
func (r *Request) Plist() any {
	if r.Config != nil && r.Config.ResponseType != request.Plist {
		return nil
	}
	return r.Object()
}

// StatusCode returns the response status code, or 0.
func (r *Request) StatusCode() int {
	if e := r.Execution(); e != nil {
		return e.StatusCode()
	}
	return 0
}

// Err returns the error of the most recent start, or nil.
func (r *Request) Err() error {
	if e := r.Execution(); e != nil {
		return e.Err
	}
	return nil
}

// FromCache reports whether the current response came from the cache.
func (r *Request) FromCache() bool {
	if e := r.Execution(); e != nil {
		return e.FromCache
	}
	return false
}

// DownloadedFile returns the destination of a completed download.
func (r *Request) DownloadedFile() string {
	if e := r.Execution(); e != nil {
		return e.DownloadPath
	}
	return ""
}
