// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package reqcache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/gogama/reqcache/request"
	"github.com/stretchr/testify/assert"
)

func TestHandlerGroup(t *testing.T) {
	var evts []string
	var execs []*request.Execution
	h1 := &testHandler{seq: 1, evts: &evts, execs: &execs}
	h2 := &testHandler{seq: 2, evts: &evts, execs: &execs}
	g := &HandlerGroup{}
	t.Run("PushBack", func(t *testing.T) {
		assert.Panics(t, func() { g.PushBack(WillStart, nil) })
		assert.Panics(t, func() { g.PushBack(Event(123), h1) })
		g.PushBack(WillStart, h1)
		g.PushBack(WillStart, h2)
		g.PushBack(DidStop, h1)
	})
	t.Run("run", func(t *testing.T) {
		e1 := &request.Execution{Charset: "1"}
		e2 := &request.Execution{Charset: "2"}
		g.run(AfterResponse, e1)
		assert.Empty(t, evts)
		assert.Empty(t, execs)
		g.run(WillStart, e1)
		assert.Equal(t, []string{"1.WillStart", "2.WillStart"}, evts)
		assert.Equal(t, []*request.Execution{e1, e1}, execs)
		evts = evts[:0]
		execs = execs[:0]
		g.run(DidStop, e2)
		assert.Equal(t, []string{"1.DidStop"}, evts)
		assert.Equal(t, []*request.Execution{e2}, execs)
	})
	t.Run("Clear", func(t *testing.T) {
		evts = evts[:0]
		g.Clear()
		g.run(WillStart, nil)
		assert.Empty(t, evts)
	})
}

func TestHandlerGroup_ZeroValueRun(t *testing.T) {
	var g HandlerGroup
	assert.NotPanics(t, func() { g.run(WillStop, nil) })
}

type testHandler struct {
	lock  sync.Mutex
	seq   int
	evts  *[]string
	execs *[]*request.Execution
}

func (h *testHandler) Handle(evt Event, e *request.Execution) {
	h.lock.Lock()
	defer h.lock.Unlock()
	*h.evts = append(*h.evts, fmt.Sprintf("%d.%s", h.seq, evt))
	*h.execs = append(*h.execs, e)
}

func TestHandlerFunc(t *testing.T) {
	var _evt Event
	var _e *request.Execution
	var f = func(evt Event, e *request.Execution) {
		_evt = evt
		_e = e
	}
	h := HandlerFunc(f)
	e := &request.Execution{}
	h.Handle(BeforeSend, e)

	assert.Equal(t, BeforeSend, _evt)
	assert.Same(t, e, _e)
}
