// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package timeout

import (
	"math"
	"mime/multipart"
	"testing"
	"time"

	"github.com/gogama/reqcache/request"
	"github.com/stretchr/testify/assert"
)

func TestDefault(t *testing.T) {
	a := DefaultPolicy.Timeout(&request.Config{})
	assert.Equal(t, 30*time.Second, a)
	b := DefaultPolicy.Timeout(&request.Config{DownloadPath: "/tmp/x"})
	assert.Equal(t, 30*time.Second, b)
}

func TestInfinite(t *testing.T) {
	a := Infinite.Timeout(&request.Config{})
	assert.Equal(t, time.Duration(math.MaxInt64), a)
	b := Infinite.Timeout(&request.Config{Upload: "body"})
	assert.Equal(t, time.Duration(math.MaxInt64), b)
}

func TestFixed(t *testing.T) {
	p := Fixed(33 * time.Hour)
	assert.Equal(t, 33*time.Hour, p.Timeout(&request.Config{}))
	assert.Equal(t, 33*time.Hour, p.Timeout(&request.Config{Method: "POST", Upload: []byte("x")}))
}

func TestTransfer(t *testing.T) {
	p := Transfer(5*time.Millisecond, 100*time.Millisecond)
	testCases := []struct {
		name   string
		config *request.Config
		want   time.Duration
	}{
		{"plain GET", request.NewConfig("GET", "x"), 5 * time.Millisecond},
		{"POST with params", &request.Config{Method: "POST", Params: map[string]any{"a": 1}}, 5 * time.Millisecond},
		{"download", &request.Config{DownloadPath: "/tmp/x"}, 100 * time.Millisecond},
		{"upload", &request.Config{Upload: "body"}, 100 * time.Millisecond},
		{"upload file", &request.Config{UploadFile: "/tmp/y"}, 100 * time.Millisecond},
		{"multipart", &request.Config{Multipart: func(*multipart.Writer) error { return nil }}, 100 * time.Millisecond},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			assert.Equal(t, testCase.want, p.Timeout(testCase.config))
		})
	}
}
