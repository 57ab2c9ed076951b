// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package failure

import (
	"context"
	"errors"
	"syscall"
)

// A Category is the failure category of a particular error, as
// reported by function Categorize.
type Category int

const (
	// None indicates a nil error.
	None Category = iota
	// Timeout indicates a client-side timeout.
	//
	// Categorize returns Timeout if the error or any of its wrapped
	// causes has a Timeout() function that reports true.
	Timeout
	// ConnRefused indicates the remote host refused the connection, and
	// corresponds to the POSIX error code ECONNREFUSED.
	ConnRefused
	// ConnReset indicates the remote host returned an RST packet on a
	// previously active TCP connection, and corresponds to the POSIX
	// error code ECONNRESET.
	ConnReset
	// Unreachable indicates the network or host could not be reached.
	// This covers both the POSIX codes ENETUNREACH and EHOSTUNREACH and
	// errors with an Unreachable() function that reports true, such as
	// the error returned when connectivity monitoring reports the
	// network is down.
	Unreachable
	// Status indicates a response was received but was rejected by
	// validation, for example because its status code or content type
	// was not acceptable. Errors in this category have a StatusCode()
	// function.
	Status
	// Canceled indicates the request was canceled by the caller.
	Canceled
	// Other indicates any other non-nil error, including response
	// decoding errors.
	Other
	// categorySentinel provides the total number of categories.
	categorySentinel
)

var categoryNames = []string{
	"none",
	"timeout",
	"conn_refused",
	"conn_reset",
	"unreachable",
	"status",
	"canceled",
	"other",
}

// Categories returns all categories in declaration order.
func Categories() []Category {
	cs := make([]Category, 0, int(categorySentinel))
	for c := None; c < categorySentinel; c++ {
		cs = append(cs, c)
	}
	return cs
}

// String returns the lower-case name of the category, suitable for use
// as a metric label value.
func (c Category) String() string {
	if c < 0 || c >= categorySentinel {
		return "unknown"
	}
	return categoryNames[int(c)]
}

// Categorize returns the failure category of the given error. A nil
// error produces None. Every non-nil error produces a category other
// than None.
//
// In assessing the category, Categorize looks at wrapped cause errors
// contained within err, not just err itself. Cancellation is checked
// before timeouts, so a request canceled by its caller is never counted
// as a timeout even if the cancellation interrupted a dial.
func Categorize(err error) Category {
	if err == nil {
		return None
	}

	if errors.Is(err, context.Canceled) {
		return Canceled
	}

	var hasTimeout hasTimeout
	if errors.As(err, &hasTimeout) && hasTimeout.Timeout() {
		return Timeout
	}

	var hasUnreachable hasUnreachable
	if errors.As(err, &hasUnreachable) && hasUnreachable.Unreachable() {
		return Unreachable
	}

	var hasStatus hasStatusCode
	if errors.As(err, &hasStatus) {
		return Status
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNRESET:
			return ConnReset
		case syscall.ECONNREFUSED:
			return ConnRefused
		case syscall.ENETUNREACH, syscall.EHOSTUNREACH:
			return Unreachable
		}
	}

	return Other
}

type hasTimeout interface {
	Timeout() bool
}

type hasUnreachable interface {
	Unreachable() bool
}

type hasStatusCode interface {
	StatusCode() int
}
