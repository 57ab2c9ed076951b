// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package reqcache

// An Event identifies the event type when installing or running an
// accessory Handler. Install accessories on a Request, Chain or Batch to
// observe its lifecycle independently of its outcome.
type Event int

const (
	// WillStart identifies the event that occurs when a request, chain
	// or batch is started, before the cache is checked or any network
	// activity takes place.
	//
	// WillStart fires on the goroutine that called Start. The execution
	// passed to request handlers is the new, empty execution.
	WillStart Event = iota
	// BeforeSend identifies the event that occurs after the HTTP
	// request has been built and before it is sent.
	//
	// BeforeSend fires on the request's background goroutine. Handlers
	// may modify the execution's request. BeforeSend never fires for
	// cache hits, or for chains and batches.
	BeforeSend
	// AfterResponse identifies the event that occurs after the HTTP
	// response body has been read, or after the attempt failed, and
	// before the response is validated and decoded.
	//
	// AfterResponse fires on the request's background goroutine and
	// never fires for cache hits, or for chains and batches.
	AfterResponse
	// WillStop identifies the event that occurs before the delegate
	// and closures are notified of the outcome, and at the start of an
	// explicit Stop.
	//
	// WillStop fires on the dispatcher's main Executor, except when
	// caused by Stop, in which case it fires on the caller's goroutine.
	WillStop
	// DidStop identifies the event that occurs after the delegate and
	// closures have been notified of the outcome, and at the end of an
	// explicit Stop.
	DidStop
	// eventSentinel provides the total number of events typed as an
	// Event.
	eventSentinel

	// numEvents provides the total number of events types as an int.
	numEvents = int(eventSentinel)
)

var eventNames = []string{
	"WillStart",
	"BeforeSend",
	"AfterResponse",
	"WillStop",
	"DidStop",
}

// Events returns a slice containing all accessory events, in the order
// in which they would occur.
func Events() []Event {
	return []Event{
		WillStart,
		BeforeSend,
		AfterResponse,
		WillStop,
		DidStop,
	}
}

// Name returns the name of the event.
func (evt Event) Name() string {
	return eventNames[int(evt)]
}

// String returns the name of the event.
func (evt Event) String() string {
	return evt.Name()
}
