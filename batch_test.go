// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package reqcache

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gogama/reqcache/request"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestBatch(t *testing.T) {
	t.Run("all succeed", testBatchAllSucceed)
	t.Run("fail fast", testBatchFailFast)
	t.Run("fail fast cancels slow request", testBatchFailFastCancelsSlow)
	t.Run("empty", testBatchEmpty)
	t.Run("from cache", testBatchFromCache)
	t.Run("stop", testBatchStop)
	t.Run("double start", testBatchDoubleStart)
}

func testBatchAllSucceed(t *testing.T) {
	srv := newPathServer(t)
	d := newTestDispatcher(t, srv.URL)
	const n = 5
	var reqs []*Request
	for i := 0; i < n; i++ {
		r := d.NewRequest(&request.Config{Path: string(rune('a' + i))})
		r.SetCallbacks(func(*Request) { t.Error("child closure called") }, nil)
		reqs = append(reqs, r)
	}
	b := d.NewBatch(reqs...)
	delegate := newMockBatchDelegate(t)
	b.Delegate = delegate
	tr := addTrace(b)

	var finished atomic.Int32
	done := make(chan struct{})
	delegate.On("BatchFinished", b).Run(func(mock.Arguments) {
		assert.Equal(t, n, b.Finished())
	}).Return().Once()
	b.StartWith(func(*Batch) {
		finished.Add(1)
		close(done)
	}, func(*Batch) { t.Error("batch failed") })
	waitFor(t, done)
	tr.waitDidStop(t)
	drain(d)

	assert.EqualValues(t, 1, finished.Load())
	assert.Len(t, srv.requested(), n)
	assert.Nil(t, b.FailedRequest())
	assert.Equal(t, reqs, b.Requests())
	assert.Equal(t, []string{"WillStart", "WillStop", "DidStop"}, tr.events())
	assert.Empty(t, d.batches)
	delegate.AssertExpectations(t)
}

func testBatchFailFast(t *testing.T) {
	srv := newPathServer(t)
	srv.status["/bad"] = http.StatusNotFound
	srv.hang["/slow1"] = true
	srv.hang["/slow2"] = true
	d := newTestDispatcher(t, srv.URL)

	slow1 := d.NewRequest(&request.Config{Path: "slow1"})
	bad := d.NewRequest(&request.Config{Path: "bad"})
	slow2 := d.NewRequest(&request.Config{Path: "slow2"})
	b := d.NewBatch(slow1, bad, slow2)
	delegate := newMockBatchDelegate(t)
	b.Delegate = delegate

	var failures atomic.Int32
	done := make(chan struct{})
	delegate.On("BatchFailed", b, bad).Return().Once()
	b.StartWith(func(*Batch) { t.Error("batch finished") }, func(*Batch) {
		failures.Add(1)
		close(done)
	})
	waitFor(t, done)
	drain(d)

	assert.EqualValues(t, 1, failures.Load())
	assert.Same(t, bad, b.FailedRequest())
	assert.False(t, slow1.InFlight())
	assert.False(t, slow2.InFlight())
	assert.Equal(t, 0, d.InFlight())
	assert.Empty(t, d.batches)
	delegate.AssertExpectations(t)
	delegate.AssertNotCalled(t, "BatchFinished", mock.Anything)
}

func testBatchFailFastCancelsSlow(t *testing.T) {
	canceled := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/a":
			select {
			case <-time.After(10 * time.Second):
				_, _ = io.WriteString(w, "late")
			case <-r.Context().Done():
				close(canceled)
			}
		case "/b":
			time.Sleep(5 * time.Millisecond)
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	d := newTestDispatcher(t, srv.URL)
	a := d.NewRequest(&request.Config{Path: "a"})
	b := d.NewRequest(&request.Config{Path: "b"})
	batch := d.NewBatch(a, b)

	done := make(chan struct{})
	batch.StartWith(func(*Batch) { t.Error("batch finished") }, func(*Batch) { close(done) })
	waitFor(t, done)
	waitFor(t, canceled)

	assert.Same(t, b, batch.FailedRequest())
	assert.Nil(t, a.Execution())
	assert.Equal(t, 0, batch.Finished())
}

func testBatchEmpty(t *testing.T) {
	d := newTestDispatcher(t, "http://localhost")
	b := d.NewBatch()
	var finished int
	b.StartWith(func(*Batch) { finished++ }, nil)
	assert.Equal(t, 1, finished)
	assert.Empty(t, d.batches)
}

func testBatchFromCache(t *testing.T) {
	d := newTestDispatcher(t, "http://localhost")
	d.HTTPDoer = newMockHTTPDoer(t)
	var reqs []*Request
	for _, p := range []string{"a", "b", "c"} {
		r := d.NewRequest(&request.Config{Path: p, CacheMaxAge: time.Hour})
		require.NoError(t, r.SaveResponseToCache([]byte(p)))
		reqs = append(reqs, r)
	}
	b := d.NewBatch(reqs...)
	done := make(chan struct{})
	b.StartWith(func(*Batch) { close(done) }, nil)
	waitFor(t, done)
	assert.True(t, b.FromCache())
	assert.Equal(t, 3, b.Finished())
}

func testBatchStop(t *testing.T) {
	srv := newPathServer(t)
	srv.hang["/a"] = true
	srv.hang["/b"] = true
	d := newTestDispatcher(t, srv.URL)
	a := d.NewRequest(&request.Config{Path: "a"})
	b := d.NewRequest(&request.Config{Path: "b"})
	batch := d.NewBatch(a, b)
	delegate := newMockBatchDelegate(t)
	batch.Delegate = delegate
	tr := addTrace(batch)

	batch.Start()
	assert.Eventually(t, func() bool { return len(srv.requested()) == 2 }, 5*time.Second, 5*time.Millisecond)
	batch.Stop()
	tr.waitDidStop(t)
	drain(d)

	assert.False(t, a.InFlight())
	assert.False(t, b.InFlight())
	assert.Equal(t, 0, d.InFlight())
	assert.Empty(t, d.batches)
	assert.Equal(t, []string{"WillStart", "WillStop", "DidStop"}, tr.events())
	delegate.AssertNotCalled(t, "BatchFinished", mock.Anything)
	delegate.AssertNotCalled(t, "BatchFailed", mock.Anything, mock.Anything)
}

func testBatchDoubleStart(t *testing.T) {
	srv, hits := newCountingServer(t, "text/plain", "x")
	d := newTestDispatcher(t, srv.URL)
	b := d.NewBatch(d.NewRequest(&request.Config{Path: "a"}))
	var finished atomic.Int32
	done := make(chan struct{})
	b.StartWith(func(*Batch) {
		finished.Add(1)
		close(done)
	}, nil)
	b.Start()
	waitFor(t, done)
	b.Start()
	drain(d)
	assert.EqualValues(t, 1, finished.Load())
	assert.EqualValues(t, 1, hits.Load())
	assert.NotEqual(t, b.ID(), d.NewBatch().ID())
}

type mockBatchDelegate struct {
	mock.Mock
}

func newMockBatchDelegate(t *testing.T) *mockBatchDelegate {
	m := &mockBatchDelegate{}
	m.Test(t)
	return m
}

func (m *mockBatchDelegate) BatchFinished(b *Batch) {
	m.Called(b)
}

func (m *mockBatchDelegate) BatchFailed(b *Batch, failed *Request) {
	m.Called(b, failed)
}
