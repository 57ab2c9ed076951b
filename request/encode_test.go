// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"howett.net/plist"
)

func TestEncodeParams(t *testing.T) {
	params := map[string]any{
		"name":  "a b",
		"n":     3,
		"flag":  true,
		"tags":  []string{"x", "y"},
		"inner": map[string]any{"k": "v"},
	}
	testCases := []struct {
		name        string
		enc         ParamEncoding
		method      string
		query       string
		body        string
		contentType string
	}{
		{
			name:   "default GET",
			enc:    URLDefault,
			method: "GET",
			query:  "flag=1&inner%5Bk%5D=v&n=3&name=a+b&tags%5B%5D=x&tags%5B%5D=y",
		},
		{
			name:   "method dependent DELETE",
			enc:    URLMethodDependent,
			method: "DELETE",
			query:  "flag=1&inner%5Bk%5D=v&n=3&name=a+b&tags%5B%5D=x&tags%5B%5D=y",
		},
		{
			name:        "default POST",
			enc:         URLDefault,
			method:      "POST",
			body:        "flag=1&inner%5Bk%5D=v&n=3&name=a+b&tags%5B%5D=x&tags%5B%5D=y",
			contentType: formContentType,
		},
		{
			name:   "query string POST",
			enc:    URLQueryString,
			method: "POST",
			query:  "flag=1&inner%5Bk%5D=v&n=3&name=a+b&tags%5B%5D=x&tags%5B%5D=y",
		},
		{
			name:        "body GET",
			enc:         URLHTTPBody,
			method:      "GET",
			body:        "flag=1&inner%5Bk%5D=v&n=3&name=a+b&tags%5B%5D=x&tags%5B%5D=y",
			contentType: formContentType,
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			u, err := url.Parse("http://foo/bar")
			require.NoError(t, err)
			body, contentType, err := EncodeParams(testCase.enc, testCase.method, u, params)
			require.NoError(t, err)
			assert.Equal(t, testCase.query, u.RawQuery)
			assert.Equal(t, testCase.body, string(body))
			assert.Equal(t, testCase.contentType, contentType)
		})
	}

	t.Run("existing query kept", func(t *testing.T) {
		u, err := url.Parse("http://foo/bar?z=1")
		require.NoError(t, err)
		_, _, err = EncodeParams(URLQueryString, "GET", u, map[string]any{"a": "b"})
		require.NoError(t, err)
		assert.Equal(t, "z=1&a=b", u.RawQuery)
	})
	t.Run("empty params", func(t *testing.T) {
		u, err := url.Parse("http://foo/bar")
		require.NoError(t, err)
		body, contentType, err := EncodeParams(JSONDefault, "POST", u, nil)
		assert.NoError(t, err)
		assert.Nil(t, body)
		assert.Empty(t, contentType)
	})
	t.Run("JSON", func(t *testing.T) {
		u, _ := url.Parse("http://foo/bar")
		body, contentType, err := EncodeParams(JSONDefault, "POST", u, map[string]any{"a": 1})
		require.NoError(t, err)
		assert.Equal(t, `{"a":1}`, string(body))
		assert.Equal(t, jsonContentType, contentType)
		body, _, err = EncodeParams(JSONPretty, "POST", u, map[string]any{"a": 1})
		require.NoError(t, err)
		assert.Equal(t, "{\n  \"a\": 1\n}", string(body))
	})
	t.Run("JSON failure", func(t *testing.T) {
		u, _ := url.Parse("http://foo/bar")
		_, _, err := EncodeParams(JSONDefault, "POST", u, map[string]any{"ch": make(chan int)})
		assert.ErrorContains(t, err, "reqcache/request: json encoding:")
	})
	for _, enc := range []ParamEncoding{PlistXML, PlistBinary} {
		t.Run(enc.String(), func(t *testing.T) {
			u, _ := url.Parse("http://foo/bar")
			body, contentType, err := EncodeParams(enc, "POST", u, map[string]any{"a": "b"})
			require.NoError(t, err)
			assert.Equal(t, plistContentType, contentType)
			var decoded map[string]any
			_, err = plist.Unmarshal(body, &decoded)
			require.NoError(t, err)
			assert.Equal(t, "b", decoded["a"])
		})
	}
	t.Run("unknown encoding", func(t *testing.T) {
		u, _ := url.Parse("http://foo/bar")
		_, _, err := EncodeParams(ParamEncoding(42), "POST", u, map[string]any{"a": "b"})
		assert.EqualError(t, err, "reqcache/request: unknown parameter encoding 42")
		assert.Equal(t, "unknown", ParamEncoding(42).String())
	})
}
