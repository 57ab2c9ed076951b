// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package reqcache

import (
	"container/heap"
	"context"
	"sync"

	"github.com/gogama/reqcache/request"
)

// gate admits at most limit concurrent tasks. Waiting tasks are
// admitted by descending priority, and in arrival order within a
// priority.
type gate struct {
	limit int

	lock    sync.Mutex
	active  int
	seq     uint64
	waiting waitQueue
}

type waiter struct {
	priority request.Priority
	seq      uint64
	ready    chan struct{}
	index    int
}

func newGate(limit int) *gate {
	return &gate{limit: limit}
}

// acquire blocks until the task may run or ctx is done.
func (g *gate) acquire(ctx context.Context, p request.Priority) error {
	g.lock.Lock()
	if g.active < g.limit && len(g.waiting) == 0 {
		g.active++
		g.lock.Unlock()
		return nil
	}
	g.seq++
	w := &waiter{priority: p, seq: g.seq, ready: make(chan struct{})}
	heap.Push(&g.waiting, w)
	g.lock.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		g.lock.Lock()
		if w.index >= 0 {
			heap.Remove(&g.waiting, w.index)
			g.lock.Unlock()
		} else {
			// Admitted concurrently with cancellation.
			g.lock.Unlock()
			g.release()
		}
		return ctx.Err()
	}
}

func (g *gate) release() {
	g.lock.Lock()
	defer g.lock.Unlock()
	if len(g.waiting) > 0 {
		w := heap.Pop(&g.waiting).(*waiter)
		close(w.ready)
		return
	}
	g.active--
}

func (g *gate) queued() int {
	g.lock.Lock()
	defer g.lock.Unlock()
	return len(g.waiting)
}

type waitQueue []*waiter

func (q waitQueue) Len() int { return len(q) }

func (q waitQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q waitQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *waitQueue) Push(x any) {
	w := x.(*waiter)
	w.index = len(*q)
	*q = append(*q, w)
}

func (q *waitQueue) Pop() any {
	old := *q
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	w.index = -1
	*q = old[:n-1]
	return w
}
