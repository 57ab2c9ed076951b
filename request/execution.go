// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"context"
	"net/http"
	"time"

	"github.com/gogama/reqcache/failure"
)

// An Execution represents the state of a single attempt to run a
// request, whether the attempt is answered by the network or by the
// response cache.
//
// The dispatcher creates a new Execution each time a request is
// started, and updates it as the attempt progresses (for example when
// the HTTP response becomes available). Once the attempt has ended the
// Execution is no longer modified.
//
// Accessory handlers may set values on an Execution using its SetValue
// method and read them back using the Value method. However, they
// should treat the structure's exported field values as immutable.
// Limited exceptions to this rule include making reasonable changes to
// the http.Request before it is sent (for example, to support an OAuth
// signing use case) during the BeforeSend event.
type Execution struct {
	// Config specifies the configuration of the request being run. It
	// is never nil.
	Config *Config

	// Start is the start time of the attempt. It is assigned a non-zero
	// value when the attempt starts, and this value remains constant
	// thereafter.
	Start time.Time

	// End is the end time of the attempt. It contains the zero value
	// until the attempt ends, when it is set to the current time.
	End time.Time

	// Request specifies the HTTP request sent in the attempt. It is nil
	// if the attempt was answered from cache or failed before a request
	// could be built.
	Request *http.Request

	// Response specifies the HTTP response received in the attempt. It
	// is nil if the attempt ended in a transport error, was answered
	// from cache, or is still underway.
	Response *http.Response

	// Err indicates the error that ended the attempt. It is nil if the
	// attempt succeeded or is still underway.
	//
	// Once the attempt has ended, Err holds the same error value passed
	// to the request's failure notifications.
	Err error

	// Body is the complete response body. For a cache hit it holds the
	// cached bytes. For a download it is nil, and the body is found in
	// the file named by DownloadPath.
	//
	// Note that it is possible that both Body and Err are non-nil, if
	// the response was received but failed validation or decoding.
	Body []byte

	// Decoded holds the decoded form of Body, per the configured
	// response type.
	Decoded Decoded

	// Charset is the canonical name of the charset used to decode Body
	// as text. For a cache hit it is the charset stored with the cached
	// data.
	Charset string

	// FromCache indicates whether Body was loaded from the response
	// cache rather than received from the network.
	FromCache bool

	// DownloadPath is the path of the downloaded file, once a download
	// request has succeeded.
	DownloadPath string

	// CacheStatusCode is the HTTP status code stored alongside cached
	// data. It is only set when FromCache is true.
	CacheStatusCode int

	// data contains arbitrary user data. The reqcache library will not
	// touch this field.
	//
	// Accessory handlers may interact with this via the Value and
	// SetValue methods.
	data context.Context
}

// StatusCode returns the status code of the HTTP response received in
// the attempt. For a cache hit, the status code stored with the cached
// data is returned. If there is no HTTP response, 0 is returned.
func (e *Execution) StatusCode() int {
	if e.Response == nil {
		return e.CacheStatusCode
	}

	return e.Response.StatusCode
}

// Header returns the HTTP response headers received in the attempt. If
// there is no HTTP response, the nil header is returned.
//
// Note that a nil return value is always safe for read-only operations,
// since http.Header is a map type. There should never be a reason to
// write to the returned value, since it represents the response headers.
func (e *Execution) Header() http.Header {
	if e.Response == nil {
		var nilHeader http.Header
		return nilHeader
	}

	return e.Response.Header
}

// Duration returns the duration of the attempt.
//
// If the attempt has not yet started, the duration is zero. If the
// attempt has Ended, the duration returned is equal to End minus
// Start. Otherwise, it is equal to the current time minus Start.
func (e *Execution) Duration() time.Duration {
	if !e.Started() {
		return time.Duration(0)
	} else if !e.Ended() {
		return time.Now().Sub(e.Start)
	}

	return e.End.Sub(e.Start)
}

// Started indicates whether the attempt has started.
func (e *Execution) Started() bool {
	return e.Start != (time.Time{})
}

// Ended indicates whether the attempt has ended. Once it has ended, End
// is a non-zero time and there will be no further changes to the
// execution.
func (e *Execution) Ended() bool {
	return e.End != (time.Time{})
}

// Timeout indicates whether Err contains a non-nil value which
// indicates a timeout.
func (e *Execution) Timeout() bool {
	return failure.Categorize(e.Err) == failure.Timeout
}

// Failure returns the failure category of Err.
func (e *Execution) Failure() failure.Category {
	return failure.Categorize(e.Err)
}

// SetValue allows accessory handlers to store arbitrary data in the
// execution.
//
// The key must follow the same rules as the key parameter in
// context.WithValue, namely it:
//
// • it may not be nil;
//
// • it must be comparable;
//
// • it should not be of type string or any other built-in type to avoid
// collisions between different handlers putting data into the same
// execution.
func (e *Execution) SetValue(key, value any) {
	ctx := e.data
	if ctx == nil {
		ctx = context.Background()
	}

	e.data = context.WithValue(ctx, key, value)
}

// Value returns the data value associated with this execution for key,
// or nil if there is no value associated with key.
func (e *Execution) Value(key any) any {
	ctx := e.data
	if ctx == nil {
		return nil
	}

	return ctx.Value(key)
}
