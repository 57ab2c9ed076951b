// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package reqcache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gogama/reqcache/request"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate_Limit(t *testing.T) {
	g := newGate(2)
	ctx := context.Background()
	require.NoError(t, g.acquire(ctx, request.Normal))
	require.NoError(t, g.acquire(ctx, request.Normal))

	admitted := make(chan struct{})
	go func() {
		_ = g.acquire(ctx, request.Normal)
		close(admitted)
	}()
	assert.Eventually(t, func() bool { return g.queued() == 1 }, time.Second, time.Millisecond)
	select {
	case <-admitted:
		t.Fatal("admitted over the limit")
	case <-time.After(20 * time.Millisecond):
	}
	g.release()
	waitFor(t, admitted)
	assert.Equal(t, 0, g.queued())
	assert.Equal(t, 2, g.active)
}

func TestGate_PriorityOrder(t *testing.T) {
	g := newGate(1)
	ctx := context.Background()
	require.NoError(t, g.acquire(ctx, request.Normal))

	var lock sync.Mutex
	var order []string
	var wg sync.WaitGroup
	enqueue := func(name string, p request.Priority) {
		n := g.queued()
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, g.acquire(ctx, p))
			lock.Lock()
			order = append(order, name)
			lock.Unlock()
			g.release()
		}()
		assert.Eventually(t, func() bool { return g.queued() == n+1 }, time.Second, time.Millisecond)
	}
	enqueue("low", request.Low)
	enqueue("normal-1", request.Normal)
	enqueue("high", request.High)
	enqueue("normal-2", request.Normal)

	g.release()
	wg.Wait()
	assert.Equal(t, []string{"high", "normal-1", "normal-2", "low"}, order)
	assert.Equal(t, 0, g.active)
}

func TestGate_Canceled(t *testing.T) {
	g := newGate(1)
	require.NoError(t, g.acquire(context.Background(), request.Normal))

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() { errs <- g.acquire(ctx, request.High) }()
	assert.Eventually(t, func() bool { return g.queued() == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errs, context.Canceled)
	assert.Equal(t, 0, g.queued())

	g.release()
	assert.Equal(t, 0, g.active)
	require.NoError(t, g.acquire(context.Background(), request.Low))
	assert.Equal(t, 1, g.active)
}
