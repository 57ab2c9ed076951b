// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package failure

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategorize(t *testing.T) {
	assert.Equal(t, None, Categorize(nil))
	assert.Equal(t, Other, Categorize(errors.New("foo")))
	assert.Equal(t, Other, Categorize(wrapper{}))
	assert.Equal(t, Other, Categorize(wrapper{errors.New("bar")}))
	assert.Equal(t, Timeout, Categorize(syscall.ETIMEDOUT))
	assert.Equal(t, Timeout, Categorize(timeout{}))
	assert.Equal(t, Timeout, Categorize(&url.Error{Err: syscall.ETIMEDOUT}))
	assert.Equal(t, Timeout, Categorize(wrapper{wrapper{timeout{}}}))
	assert.Equal(t, Timeout, Categorize(timeoutWrapper{true, syscall.ECONNRESET}))
	assert.Equal(t, ConnReset, Categorize(syscall.ECONNRESET))
	assert.Equal(t, ConnReset, Categorize(timeoutWrapper{false, syscall.ECONNRESET}))
	assert.Equal(t, ConnRefused, Categorize(syscall.ECONNREFUSED))
	assert.Equal(t, ConnRefused, Categorize(&url.Error{Err: wrapper{timeoutWrapper{false, syscall.ECONNREFUSED}}}))
	assert.Equal(t, Unreachable, Categorize(syscall.ENETUNREACH))
	assert.Equal(t, Unreachable, Categorize(wrapper{syscall.EHOSTUNREACH}))
	assert.Equal(t, Unreachable, Categorize(&url.Error{Err: unreachable{}}))
	assert.Equal(t, Status, Categorize(&url.Error{Err: status(404)}))
	assert.Equal(t, Canceled, Categorize(context.Canceled))
	assert.Equal(t, Canceled, Categorize(&url.Error{Err: fmt.Errorf("dial: %w", context.Canceled)}))
}

func TestCategory_String(t *testing.T) {
	cs := Categories()
	assert.Len(t, cs, len(categoryNames))
	for i, c := range cs {
		assert.Equal(t, categoryNames[i], c.String())
	}
	assert.Equal(t, "unknown", Category(-1).String())
	assert.Equal(t, "unknown", categorySentinel.String())
}

type timeout struct{}

func (err timeout) Error() string {
	return "timeout"
}

func (_ timeout) Timeout() bool {
	return true
}

type unreachable struct{}

func (err unreachable) Error() string {
	return "unreachable"
}

func (_ unreachable) Unreachable() bool {
	return true
}

type status int

func (s status) Error() string {
	return fmt.Sprintf("status %d", int(s))
}

func (s status) StatusCode() int {
	return int(s)
}

type wrapper struct {
	wrappedError error
}

func (err wrapper) Error() string {
	return fmt.Sprintf("wrapper - wraps %v", err.wrappedError)
}

func (err wrapper) Unwrap() error {
	return err.wrappedError
}

type timeoutWrapper struct {
	timeout      bool
	wrappedError error
}

func (err timeoutWrapper) Error() string {
	return fmt.Sprintf("timeoutWrapper - timeout %t, wraps %v", err.timeout, err.wrappedError)
}

func (err timeoutWrapper) Timeout() bool {
	return err.timeout
}

func (err timeoutWrapper) Unwrap() error {
	return err.wrappedError
}
