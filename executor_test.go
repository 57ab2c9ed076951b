// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package reqcache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSerialExecutor(t *testing.T) {
	x := NewSerialExecutor()
	var lock sync.Mutex
	var got []int
	running := 0
	for i := 0; i < 100; i++ {
		x.Post(func() {
			lock.Lock()
			running++
			assert.Equal(t, 1, running)
			got = append(got, i)
			running--
			lock.Unlock()
		})
	}
	x.Close()

	assert.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestSerialExecutor_PostFromTask(t *testing.T) {
	x := NewSerialExecutor()
	done := make(chan struct{})
	x.Post(func() {
		x.Post(func() { close(done) })
	})
	waitFor(t, done)
	x.Close()
}

func TestSerialExecutor_Close(t *testing.T) {
	x := NewSerialExecutor()
	x.Close()
	x.Close()
	ran := false
	x.Post(func() { ran = true })
	assert.False(t, ran)
}
