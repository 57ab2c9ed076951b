// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package reqcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogama/reqcache/cache"
	"github.com/gogama/reqcache/metrics"
	"github.com/gogama/reqcache/reach"
	"github.com/gogama/reqcache/request"
	"github.com/gogama/reqcache/timeout"
	"github.com/google/uuid"
)

// A StatusRange is an inclusive range of HTTP status codes. The zero
// value means 200-299.
type StatusRange struct {
	Min int
	Max int
}

// DefaultStatusRange is the range of acceptable status codes used when
// Dispatcher.StatusCodes is the zero value.
var DefaultStatusRange = StatusRange{Min: 200, Max: 299}

// Contains reports whether code lies within the range.
func (sr StatusRange) Contains(code int) bool {
	sr = sr.orDefault()
	return sr.Min <= code && code <= sr.Max
}

func (sr StatusRange) orDefault() StatusRange {
	if sr == (StatusRange{}) {
		return DefaultStatusRange
	}
	return sr
}

// DefaultDispatcher is the dispatcher used by requests that were not
// created by a dispatcher. It has the zero value configuration.
var DefaultDispatcher = &Dispatcher{}

// A Dispatcher sends requests, tracks them while they are in flight,
// and routes their outcome back to them. Its zero value is a valid
// configuration.
//
// The zero value dispatcher uses http.DefaultClient (from net/http) as
// the HTTPDoer, timeout.DefaultPolicy as the timeout policy, accepts
// status codes 200-299 and any content type, has no response cache and
// no reachability monitoring, and delivers notifications on a serial
// executor it creates on first use.
//
// Dispatcher is safe for concurrent use by multiple goroutines. Its
// configuration fields must not be changed once it has dispatched a
// request.
//
// On top of the HTTPDoer, Dispatcher adds the following features:
//
// • Dispatcher resolves each request's URL against a base or CDN URL,
// after running the configured URL filters;
//
// • Dispatcher reads the entire response body, validates the status
// code and content type, and decodes the body according to the
// request's response type;
//
// • Dispatcher stores successful responses in the response cache, from
// which later starts of an identical request are served;
//
// • Dispatcher streams downloads to disk and resumes them after a
// cancellation or failure; and
//
// • Dispatcher delivers every delegate and closure notification on a
// single main executor.
type Dispatcher struct {
	// HTTPDoer specifies the mechanics of sending HTTP requests and
	// receiving responses.
	//
	// If HTTPDoer is nil, http.DefaultClient from the standard net/http
	// package is used.
	HTTPDoer HTTPDoer
	// BaseURL is the URL relative request paths are resolved against
	// when the request does not set its own.
	BaseURL string
	// CDNURL is the base URL of requests that opt into CDN routing
	// when the request does not set its own.
	CDNURL string
	// TimeoutPolicy specifies how to set the timeout of each request.
	// A non-zero Timeout on a request's configuration takes precedence.
	// A timeout of zero means no timeout.
	//
	// If TimeoutPolicy is nil, timeout.DefaultPolicy is used.
	TimeoutPolicy timeout.Policy
	// StatusCodes is the range of acceptable status codes. A response
	// outside the range fails the request with a *StatusError.
	StatusCodes StatusRange
	// AcceptTypes lists the acceptable response media types, which may
	// use wildcards such as "text/*". If empty, every content type is
	// acceptable.
	AcceptTypes []string
	// URLFilters rewrite relative request paths, in order, before they
	// are resolved.
	URLFilters []URLFilter
	// Cache stores responses. If Cache is nil, responses are never
	// cached.
	Cache cache.Backend
	// DownloadDir is the directory relative download paths are
	// resolved against.
	DownloadDir string
	// TempDir holds partial downloads and their resume state. If
	// empty, a reqcache/downloads directory under os.TempDir() is
	// used.
	TempDir string
	// AppVersion is stored with cached responses. A cached response
	// stored by another application version is not reused.
	AppVersion string
	// Reachability, if not nil, is consulted before each request is
	// sent. Requests fail fast with ErrUnreachable while it reports the
	// network not reachable, and every in-flight request is canceled
	// when the network becomes unreachable.
	Reachability Reachability
	// MaxConcurrent limits the number of requests sent at once. Waiting
	// requests are admitted in priority order. If zero, there is no
	// limit and priority has no effect.
	MaxConcurrent int
	// Main runs delegate and closure notifications. If nil, the
	// dispatcher creates a SerialExecutor, which Close stops.
	Main Executor
	// Logger receives the dispatcher's logs. If nil, slog.Default() is
	// used.
	Logger *slog.Logger
	// Metrics records dispatcher metrics. It may be nil.
	Metrics *metrics.Recorder
	// Now returns the current time. If nil, time.Now is used.
	Now func() time.Time

	initOnce  sync.Once
	main      Executor
	ownedMain *SerialExecutor
	gate      *gate

	lock      sync.Mutex
	nextTask  uint64
	inflight  map[uint64]*task
	chains    map[uuid.UUID]*Chain
	batches   map[uuid.UUID]*Batch
	listening bool

	writes  sync.WaitGroup
	closers []io.Closer
}

// A task is one start of a request.
type task struct {
	id     uint64
	r      *Request
	exec   *request.Execution
	ctx    context.Context
	cancel context.CancelFunc
	dl     atomic.Pointer[download]
	// done is set exactly once, by whichever of completion or
	// cancellation happens first.
	done atomic.Bool
}

func (d *Dispatcher) init() {
	d.initOnce.Do(func() {
		d.main = d.Main
		if d.main == nil {
			d.ownedMain = NewSerialExecutor()
			d.main = d.ownedMain
		}
		if d.MaxConcurrent > 0 {
			d.gate = newGate(d.MaxConcurrent)
		}
	})
}

// NewRequest returns a new request, dispatched by d, for the given
// configuration.
func (d *Dispatcher) NewRequest(c *request.Config) *Request {
	return &Request{Config: c, dispatcher: d}
}

// NewChain returns a new empty chain dispatched by d.
func (d *Dispatcher) NewChain() *Chain {
	return &Chain{id: uuid.New(), dispatcher: d}
}

// NewBatch returns a new batch of the given requests, dispatched by d.
// Requests created by another dispatcher keep their own dispatcher.
func (d *Dispatcher) NewBatch(reqs ...*Request) *Batch {
	return &Batch{id: uuid.New(), dispatcher: d, requests: append([]*Request(nil), reqs...)}
}

// Add sends r over the network, bypassing the cache check and without
// firing the WillStart accessories. If r is already in flight, Add logs
// a warning and does nothing.
func (d *Dispatcher) Add(r *Request) {
	d.init()
	t := r.begin(d)
	if t == nil {
		return
	}
	d.send(t)
}

func (d *Dispatcher) send(t *task) {
	d.register(t)
	go d.run(t)
}

func (d *Dispatcher) run(t *task) {
	defer t.cancel()

	r := t.r
	exec := t.exec
	c := r.Config
	if c == nil {
		d.complete(t, urlErrorWrap("", "", errors.New("reqcache: nil request config")))
		return
	}
	method := c.MethodOrDefault()
	if err := c.Validate(); err != nil {
		d.complete(t, urlErrorWrap(method, c.Path, err))
		return
	}
	rawURL, err := d.BuildURL(r)
	if err != nil {
		d.complete(t, urlErrorWrap(method, c.Path, err))
		return
	}
	if d.Reachability != nil {
		d.listen()
		if d.Reachability.Status() == reach.NotReachable {
			d.logger().Info("network not reachable", slog.String("request", r.String()))
			d.complete(t, urlErrorWrap(method, rawURL, ErrUnreachable))
			return
		}
	}
	if d.gate != nil {
		p := request.Normal
		if c.Priority != nil {
			p = *c.Priority
		}
		if err = d.gate.acquire(t.ctx, p); err != nil {
			d.complete(t, urlErrorWrap(method, rawURL, err))
			return
		}
		defer d.gate.release()
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		d.complete(t, urlErrorWrap(method, rawURL, err))
		return
	}
	ctx, cancel := t.ctx, context.CancelFunc(func() {})
	if to := d.timeout(c); to > 0 {
		ctx, cancel = context.WithTimeout(t.ctx, to)
	}
	defer cancel()
	exec.Request, err = c.HTTPRequest(ctx, u)
	if err != nil {
		d.complete(t, urlErrorWrap(method, rawURL, err))
		return
	}
	var dl *download
	if c.IsDownload() {
		if dl, err = d.newDownload(c, exec.Request.URL); err != nil {
			d.complete(t, urlErrorWrap(method, rawURL, err))
			return
		}
		t.dl.Store(dl)
		dl.prepare(exec.Request)
	}

	r.accessories.run(BeforeSend, exec)
	exec.Response, err = d.doer().Do(exec.Request)
	if err == nil {
		if dl != nil {
			err = d.receive(t, dl)
		} else {
			err = d.readBody(t)
		}
	}
	r.accessories.run(AfterResponse, exec)
	if err == nil && dl == nil {
		if err = d.validate(exec.Response); err == nil {
			exec.Charset = request.DetectCharset(exec.Body, exec.Response.Header.Get("Content-Type"))
			exec.Decoded, err = request.Decode(c.ResponseType, exec.Body, exec.Charset)
		}
	}
	if err != nil {
		err = urlErrorWrap(method, rawURL, err)
	}
	d.complete(t, err)
}

func (d *Dispatcher) readBody(t *task) error {
	resp := t.exec.Response
	defer func() {
		_ = resp.Body.Close()
	}()
	var rdr io.Reader = resp.Body
	if t.r.Progress != nil {
		rdr = &progressReader{r: resp.Body, total: resp.ContentLength, f: t.r.Progress}
	}
	var err error
	t.exec.Body, err = io.ReadAll(rdr)
	return err
}

func (d *Dispatcher) validate(resp *http.Response) error {
	if !d.StatusCodes.Contains(resp.StatusCode) {
		return &StatusError{Code: resp.StatusCode, Accepted: d.StatusCodes.orDefault()}
	}
	if len(d.AcceptTypes) == 0 {
		return nil
	}
	ct := resp.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		mediaType = ct
	}
	for _, accepted := range d.AcceptTypes {
		if mediaTypeMatches(accepted, mediaType) {
			return nil
		}
	}
	return &ContentTypeError{ContentType: ct, Accepted: d.AcceptTypes}
}

func mediaTypeMatches(pattern, mediaType string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	mediaType = strings.ToLower(mediaType)
	if pattern == "*/*" || pattern == mediaType {
		return true
	}
	if strings.HasSuffix(pattern, "/*") {
		return strings.HasPrefix(mediaType, strings.TrimSuffix(pattern, "*"))
	}
	return false
}

// complete runs on the task goroutine. It stores the response, runs the
// preprocessor hook and posts the notification to the main executor.
func (d *Dispatcher) complete(t *task, err error) {
	if t.done.Load() {
		return
	}
	r := t.r
	exec := t.exec
	exec.Err = err
	exec.End = d.now()
	r.setExecution(exec)
	if err == nil {
		d.saveCache(t)
		if h := r.Hooks.CompletePreprocessor; h != nil {
			h(r)
		}
	} else if h := r.Hooks.FailedPreprocessor; h != nil {
		h(r)
	}
	d.main.Post(func() { d.notify(t) })
}

// notify runs on the main executor and delivers exactly one terminal
// notification for t, unless t was canceled.
func (d *Dispatcher) notify(t *task) {
	if !t.done.CompareAndSwap(false, true) {
		return
	}
	d.unregister(t)

	r := t.r
	exec := t.exec
	d.observe(r, exec)

	r.accessories.run(WillStop, exec)
	delegate, onSuccess, onFailure := r.takeCallbacks()
	if exec.Err == nil {
		if h := r.Hooks.CompleteFilter; h != nil {
			h(r)
		}
		if delegate != nil {
			delegate.RequestFinished(r)
		}
		if onSuccess != nil {
			onSuccess(r)
		}
	} else {
		if h := r.Hooks.FailedFilter; h != nil {
			h(r)
		}
		if delegate != nil {
			delegate.RequestFailed(r)
		}
		if onFailure != nil {
			onFailure(r)
		}
	}
	r.accessories.run(DidStop, exec)
}

func (d *Dispatcher) observe(r *Request, exec *request.Execution) {
	outcome := metrics.Success
	if exec.Err != nil {
		outcome = metrics.Failure
		d.logger().Info("request failed",
			slog.String("request", r.String()),
			slog.Int("status", exec.StatusCode()),
			slog.String("category", exec.Failure().String()),
			slog.String("reason", exec.Err.Error()))
	} else {
		d.logger().Debug("request finished",
			slog.String("request", r.String()),
			slog.Int("status", exec.StatusCode()),
			slog.Bool("from_cache", exec.FromCache),
			slog.Duration("duration", exec.Duration()))
	}
	d.Metrics.ObserveRequest(outcome, exec.FromCache, exec.Failure().String(), exec.Duration())
}

// Cancel stops r without notifying its delegate or closures. The
// resume state of a download is saved before the transfer is
// interrupted. Cancel does not fire accessory events; use Request.Stop
// for that.
func (d *Dispatcher) Cancel(r *Request) {
	t := r.currentTask()
	defer r.ClearCallbacks()
	if t == nil || !t.done.CompareAndSwap(false, true) {
		return
	}
	if dl := t.dl.Load(); dl != nil {
		if err := dl.save(); err != nil {
			d.logger().Warn("failed to save download resume state",
				slog.String("request", r.String()), slog.String("reason", err.Error()))
		}
	}
	if t.cancel != nil {
		t.cancel()
	}
	d.unregister(t)
	d.logger().Debug("request canceled", slog.String("request", r.String()))
	d.Metrics.ObserveRequest(metrics.Canceled, false, "canceled", time.Since(t.exec.Start))
}

// CancelAll stops every running chain and batch, and every in-flight
// request, and stops reachability monitoring.
func (d *Dispatcher) CancelAll() {
	d.stopListening()

	d.lock.Lock()
	chains := make([]*Chain, 0, len(d.chains))
	for _, c := range d.chains {
		chains = append(chains, c)
	}
	batches := make([]*Batch, 0, len(d.batches))
	for _, b := range d.batches {
		batches = append(batches, b)
	}
	d.lock.Unlock()

	for _, c := range chains {
		c.Stop()
	}
	for _, b := range batches {
		b.Stop()
	}
	for _, r := range d.inFlightRequests() {
		r.Stop()
	}
}

// InFlight returns the number of requests in flight.
func (d *Dispatcher) InFlight() int {
	d.lock.Lock()
	defer d.lock.Unlock()
	return len(d.inflight)
}

func (d *Dispatcher) inFlightRequests() []*Request {
	d.lock.Lock()
	defer d.lock.Unlock()
	reqs := make([]*Request, 0, len(d.inflight))
	for _, t := range d.inflight {
		reqs = append(reqs, t.r)
	}
	return reqs
}

func (d *Dispatcher) register(t *task) {
	d.lock.Lock()
	if d.inflight == nil {
		d.inflight = make(map[uint64]*task)
	}
	d.nextTask++
	t.id = d.nextTask
	d.inflight[t.id] = t
	n := len(d.inflight)
	d.lock.Unlock()

	d.Metrics.SetInFlight(n)
	d.logger().Debug("request added", slog.String("request", t.r.String()), slog.Uint64("task", t.id))
}

func (d *Dispatcher) unregister(t *task) {
	d.lock.Lock()
	if _, ok := d.inflight[t.id]; !ok {
		d.lock.Unlock()
		return
	}
	delete(d.inflight, t.id)
	n := len(d.inflight)
	stop := n == 0 && d.listening
	if stop {
		d.listening = false
	}
	d.lock.Unlock()

	d.Metrics.SetInFlight(n)
	if stop {
		d.Reachability.StopListening()
	}
}

func (d *Dispatcher) registerUnit(c *Chain, b *Batch) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if c != nil {
		if d.chains == nil {
			d.chains = make(map[uuid.UUID]*Chain)
		}
		d.chains[c.id] = c
	}
	if b != nil {
		if d.batches == nil {
			d.batches = make(map[uuid.UUID]*Batch)
		}
		d.batches[b.id] = b
	}
}

func (d *Dispatcher) unregisterUnit(c *Chain, b *Batch) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if c != nil {
		delete(d.chains, c.id)
	}
	if b != nil {
		delete(d.batches, b.id)
	}
}

func (d *Dispatcher) listen() {
	d.lock.Lock()
	if d.listening {
		d.lock.Unlock()
		return
	}
	d.listening = true
	d.lock.Unlock()

	d.Reachability.SetListener(d.reachabilityChanged)
	d.Reachability.StartListening()
}

func (d *Dispatcher) stopListening() {
	if d.Reachability == nil {
		return
	}
	d.lock.Lock()
	d.listening = false
	d.lock.Unlock()
	d.Reachability.StopListening()
}

func (d *Dispatcher) reachabilityChanged(s reach.Status) {
	if s == reach.Reachable {
		return
	}
	d.logger().Warn("network lost, canceling requests", slog.String("status", s.String()))
	d.main.Post(d.CancelAll)
}

// BuildURL returns the URL r is sent to.
//
// A path which is already an absolute URL is used unmodified. Otherwise
// the URL filters run in order, and the filtered path is resolved
// against the request's base URL (or CDN URL, if the request opts in),
// falling back to the dispatcher's. An empty path resolves to the base
// URL itself.
func (d *Dispatcher) BuildURL(r *Request) (string, error) {
	c := r.Config
	if c == nil {
		return "", errors.New("reqcache: nil request config")
	}
	if c.Custom != nil {
		req, err := c.Custom(context.Background())
		if err != nil {
			return "", err
		}
		return req.URL.String(), nil
	}

	p := c.Path
	if u, err := url.Parse(p); err == nil && u.Scheme != "" && u.Host != "" {
		return p, nil
	}
	for _, f := range d.URLFilters {
		p = f(p, r)
	}

	var base string
	if c.UseCDN {
		base = firstNonEmpty(c.CDNURL, d.CDNURL)
	} else {
		base = firstNonEmpty(c.BaseURL, d.BaseURL)
	}
	if p == "" {
		return base, nil
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("reqcache: invalid base URL: %w", err)
	}
	if base != "" && !strings.HasPrefix(base, "/") && !strings.HasSuffix(baseURL.Path, "/") {
		baseURL.Path += "/"
		if baseURL.RawPath != "" {
			baseURL.RawPath += "/"
		}
	}
	ref, err := url.Parse(p)
	if err != nil {
		return "", fmt.Errorf("reqcache: invalid path: %w", err)
	}
	return baseURL.ResolveReference(ref).String(), nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func (d *Dispatcher) timeout(c *request.Config) time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	p := d.TimeoutPolicy
	if p == nil {
		p = timeout.DefaultPolicy
	}
	return p.Timeout(c)
}

func (d *Dispatcher) doer() HTTPDoer {
	if d.HTTPDoer == nil {
		return http.DefaultClient
	}

	return d.HTTPDoer
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

func (d *Dispatcher) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}

// Close waits for pending asynchronous cache writes, stops reachability
// monitoring, stops the main executor if the dispatcher created it, and
// closes any cache database opened by NewDispatcher. Requests must not
// be started after Close.
func (d *Dispatcher) Close() error {
	d.writes.Wait()
	d.stopListening()
	if d.ownedMain != nil {
		d.ownedMain.Close()
	}
	var errs []error
	for _, c := range d.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type progressReader struct {
	r     io.Reader
	done  int64
	total int64
	f     func(done, total int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.done += int64(n)
		p.f(p.done, p.total)
	}
	return n, err
}
