// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package reqcache

import "sync"

// A SerialExecutor runs posted functions one at a time, in the order
// posted, on a single goroutine. Post never blocks.
//
// A SerialExecutor must be created with NewSerialExecutor.
type SerialExecutor struct {
	lock   sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
}

// NewSerialExecutor starts a new serial executor.
func NewSerialExecutor() *SerialExecutor {
	x := &SerialExecutor{done: make(chan struct{})}
	x.cond = sync.NewCond(&x.lock)
	go x.loop()
	return x
}

// Post queues f to run after every previously posted function. After
// Close, Post drops f.
func (x *SerialExecutor) Post(f func()) {
	x.lock.Lock()
	defer x.lock.Unlock()
	if x.closed {
		return
	}
	x.queue = append(x.queue, f)
	x.cond.Signal()
}

// Close stops accepting functions and waits until every function
// already posted has run. Close must not be called from a posted
// function.
func (x *SerialExecutor) Close() {
	x.lock.Lock()
	if !x.closed {
		x.closed = true
		x.cond.Signal()
	}
	x.lock.Unlock()
	<-x.done
}

func (x *SerialExecutor) loop() {
	defer close(x.done)
	for {
		x.lock.Lock()
		for len(x.queue) == 0 && !x.closed {
			x.cond.Wait()
		}
		if len(x.queue) == 0 {
			x.lock.Unlock()
			return
		}
		f := x.queue[0]
		x.queue[0] = nil
		x.queue = x.queue[1:]
		x.lock.Unlock()
		f()
	}
}
