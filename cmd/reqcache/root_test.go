// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cli struct {
	t      *testing.T
	config string
	hits   atomic.Int32
	srv    *httptest.Server
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	c := &cli{t: t}
	c.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.hits.Add(1)
		switch r.URL.Path {
		case "/doc":
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"name":"reqcache"}`)
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		default:
			_, _ = io.WriteString(w, r.URL.Path)
		}
	}))
	t.Cleanup(c.srv.Close)

	dir := t.TempDir()
	c.config = filepath.Join(dir, "reqcache.yaml")
	yaml := "baseURL: " + c.srv.URL + "\n" +
		"cache:\n  dir: " + filepath.Join(dir, "cache") + "\n" +
		"downloads:\n  tempDir: " + filepath.Join(dir, "tmp") + "\n" +
		"logging:\n  level: error\n"
	require.NoError(t, os.WriteFile(c.config, []byte(yaml), 0o644))
	return c
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--config", c.config, "--env-prefix", ""}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommand(t *testing.T) {
	t.Run("get", testCommandGet)
	t.Run("get cached", testCommandGetCached)
	t.Run("get status error", testCommandGetStatusError)
	t.Run("chain", testCommandChain)
	t.Run("chain failure", testCommandChainFailure)
	t.Run("batch", testCommandBatch)
	t.Run("cache", testCommandCache)
	t.Run("invalid flags", testCommandInvalidFlags)
}

func testCommandGet(t *testing.T) {
	c := newCLI(t)
	out, err := c.run("get", "doc", "--type", "json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"reqcache"}`, out)
}

func testCommandGetCached(t *testing.T) {
	c := newCLI(t)
	first, err := c.run("get", "hello", "--type", "string")
	require.NoError(t, err)
	second, err := c.run("get", "hello", "--type", "string")
	require.NoError(t, err)
	assert.Equal(t, "/hello", first)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, c.hits.Load())

	_, err = c.run("get", "hello", "--ignore-cache")
	require.NoError(t, err)
	assert.EqualValues(t, 2, c.hits.Load())
}

func testCommandGetStatusError(t *testing.T) {
	c := newCLI(t)
	_, err := c.run("get", "missing")
	assert.ErrorContains(t, err, "404")
}

func testCommandChain(t *testing.T) {
	c := newCLI(t)
	out, err := c.run("chain", "a", "b", "c", "--type", "string")
	require.NoError(t, err)
	assert.Equal(t, "/a/b/c", out)
}

func testCommandChainFailure(t *testing.T) {
	c := newCLI(t)
	out, err := c.run("chain", "a", "missing", "never", "--type", "string")
	assert.ErrorContains(t, err, "404")
	assert.Equal(t, "/a", out)
	assert.EqualValues(t, 2, c.hits.Load())
}

func testCommandBatch(t *testing.T) {
	c := newCLI(t)
	out, err := c.run("batch", "x", "y", "--type", "string")
	require.NoError(t, err)
	assert.Equal(t, "/x/y", out)

	_, err = c.run("batch", "x", "missing", "--no-cache")
	assert.ErrorContains(t, err, "404")
}

func testCommandCache(t *testing.T) {
	c := newCLI(t)
	_, err := c.run("get", "hello")
	require.NoError(t, err)

	out, err := c.run("cache", "path", "hello")
	require.NoError(t, err)
	p := strings.TrimSpace(out)
	assert.FileExists(t, p)

	out, err = c.run("cache", "size")
	require.NoError(t, err)
	assert.NotContains(t, out, "cache\t0\n")

	_, err = c.run("cache", "clear")
	require.NoError(t, err)
	assert.NoFileExists(t, p)
	out, err = c.run("cache", "size")
	require.NoError(t, err)
	assert.Equal(t, "cache\t0\ndownloads\t0\n", out)
}

func testCommandInvalidFlags(t *testing.T) {
	c := newCLI(t)
	_, err := c.run("get", "x", "--priority", "urgent")
	assert.ErrorContains(t, err, "invalid priority")
	_, err = c.run("get", "x", "-H", "no-colon")
	assert.ErrorContains(t, err, "invalid header")
	_, err = c.run("poll", "x", "--interval", "0s")
	assert.ErrorContains(t, err, "interval must be positive")
	assert.Zero(t, c.hits.Load())
}
