// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package reqcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvents(t *testing.T) {
	assert.Len(t, eventNames, numEvents)
	assert.Len(t, Events(), numEvents)
	events := Events()
	assert.Equal(t, WillStart, events[WillStart])
	assert.Equal(t, BeforeSend, events[BeforeSend])
	assert.Equal(t, AfterResponse, events[AfterResponse])
	assert.Equal(t, WillStop, events[WillStop])
	assert.Equal(t, DidStop, events[DidStop])
}

func TestEvent_Name(t *testing.T) {
	assert.Equal(t, "WillStart", WillStart.Name())
	assert.Equal(t, "BeforeSend", BeforeSend.Name())
	assert.Equal(t, "AfterResponse", AfterResponse.Name())
	assert.Equal(t, "WillStop", WillStop.Name())
	assert.Equal(t, "DidStop", DidStop.String())
}
