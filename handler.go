// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package reqcache

import (
	"sync"

	"github.com/gogama/reqcache/request"
)

// A HandlerGroup is a group of accessory handler chains which can be
// installed on a Request, Chain or Batch. The zero value is an empty
// group ready to use, and a HandlerGroup is safe for concurrent use.
type HandlerGroup struct {
	lock     sync.RWMutex
	handlers [][]Handler
}

// PushBack adds an event handler to the back of the event handler chain
// for a specific event type.
func (g *HandlerGroup) PushBack(evt Event, h Handler) {
	if h == nil {
		panic("reqcache: nil handler")
	}

	g.lock.Lock()
	defer g.lock.Unlock()

	if g.handlers == nil {
		g.handlers = make([][]Handler, numEvents)
	}

	g.handlers[evt] = append(g.handlers[evt], h)
}

// Clear removes every handler from the group.
func (g *HandlerGroup) Clear() {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.handlers = nil
}

func (g *HandlerGroup) run(evt Event, e *request.Execution) {
	g.lock.RLock()
	i := int(evt)
	var chain []Handler
	if i < len(g.handlers) {
		chain = g.handlers[i]
	}
	g.lock.RUnlock()
	run(chain, evt, e)
}

func run(chain []Handler, evt Event, e *request.Execution) {
	for _, h := range chain {
		h.Handle(evt, e)
	}
}

// A Handler handles the occurrence of an accessory event.
//
// Handlers installed on a Request receive the request's current
// execution. Handlers installed on a Chain or Batch receive a nil
// execution, since the events concern the whole unit.
type Handler interface {
	Handle(Event, *request.Execution)
}

// The HandlerFunc type is an adapter to allow the use of ordinary
// functions as event handlers. If f is a function with appropriate
// signature, then HandlerFunc(f) is a Handler that calls f.
type HandlerFunc func(Event, *request.Execution)

// Handle calls f(evt, e).
func (f HandlerFunc) Handle(evt Event, e *request.Execution) {
	f(evt, e)
}
