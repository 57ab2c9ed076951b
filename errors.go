// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package reqcache

import (
	"fmt"
	"net/url"
	"strings"
)

// ErrUnreachable is the cause of the failure of a request started while
// the dispatcher's Reachability reports the network not reachable.
var ErrUnreachable error = unreachableError{}

type unreachableError struct{}

func (unreachableError) Error() string { return "reqcache: network is not reachable" }

// Unreachable always returns true.
func (unreachableError) Unreachable() bool { return true }

// A StatusError is the cause of the failure of a request whose response
// status code is outside the acceptable range.
type StatusError struct {
	Code     int
	Accepted StatusRange
}

func (err *StatusError) Error() string {
	return fmt.Sprintf("reqcache: response status code %d outside acceptable range %d-%d",
		err.Code, err.Accepted.Min, err.Accepted.Max)
}

// StatusCode returns the rejected status code.
func (err *StatusError) StatusCode() int {
	return err.Code
}

// A ContentTypeError is the cause of the failure of a request whose
// response content type is not accepted.
type ContentTypeError struct {
	ContentType string
	Accepted    []string
}

func (err *ContentTypeError) Error() string {
	return fmt.Sprintf("reqcache: response content type %q not in accepted types [%s]",
		err.ContentType, strings.Join(err.Accepted, ", "))
}

func urlErrorWrap(method, u string, err error) error {
	if _, ok := err.(*url.Error); ok {
		return err
	}

	return &url.Error{
		Op:  urlErrorOp(method),
		URL: u,
		Err: err,
	}
}

// urlErrorOp is lifted verbatim from net/http/client.go
func urlErrorOp(method string) string {
	if method == "" {
		return "Get"
	}
	return method[:1] + strings.ToLower(method[1:])
}
