// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gogama/reqcache"
	"github.com/gogama/reqcache/request"
	"github.com/spf13/cobra"
)

// requestFlags are the per-request flags shared by get, chain, batch
// and poll.
type requestFlags struct {
	method       string
	responseType string
	maxAge       time.Duration
	cacheVersion int
	ignoreCache  bool
	noCache      bool
	useCDN       bool
	headers      []string
	params       []string
	priority     string
}

func (f *requestFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVarP(&f.method, "method", "X", http.MethodGet, "HTTP method")
	fl.StringVarP(&f.responseType, "type", "t", "default", "response type (default|json|string|data|plist)")
	fl.DurationVar(&f.maxAge, "max-age", request.DefaultCacheMaxAge, "cache max age, negative to skip the cache")
	fl.IntVar(&f.cacheVersion, "cache-version", 0, "cache version of the response")
	fl.BoolVar(&f.ignoreCache, "ignore-cache", false, "fetch from the network but still store the response")
	fl.BoolVar(&f.noCache, "no-cache", false, "do not store the response")
	fl.BoolVar(&f.useCDN, "cdn", false, "resolve paths against the CDN URL")
	fl.StringArrayVarP(&f.headers, "header", "H", nil, "request header as 'Name: value'")
	fl.StringArrayVarP(&f.params, "param", "p", nil, "request parameter as key=value")
	fl.StringVar(&f.priority, "priority", "normal", "request priority (low|normal|high)")
}

func (f *requestFlags) config(path string) (*request.Config, error) {
	c := request.NewConfig(strings.ToUpper(f.method), path)
	rt, err := request.ParseResponseType(f.responseType)
	if err != nil {
		return nil, err
	}
	c.ResponseType = rt
	c.CacheMaxAge = f.maxAge
	if f.noCache {
		c.CacheMaxAge = 0
	}
	c.CacheVersion = f.cacheVersion
	c.IgnoreCache = f.ignoreCache
	c.UseCDN = f.useCDN
	// The command exits right after the response, so write the cache
	// before notifying.
	c.WriteCacheAsync = false
	for _, h := range f.headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return nil, fmt.Errorf("invalid header %q", h)
		}
		c.Header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	for _, p := range f.params {
		key, value, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("invalid parameter %q", p)
		}
		if c.Params == nil {
			c.Params = map[string]any{}
		}
		c.Params[key] = value
	}
	switch strings.ToLower(f.priority) {
	case "low":
		c.Priority = request.PriorityOf(request.Low)
	case "normal":
		c.Priority = request.PriorityOf(request.Normal)
	case "high":
		c.Priority = request.PriorityOf(request.High)
	default:
		return nil, fmt.Errorf("invalid priority %q", f.priority)
	}
	return c, nil
}

func newGetCmd(a *app) *cobra.Command {
	var f requestFlags
	var download string
	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "Send one request and print the response",
		Long: `Send one request and print the response body.

A cached response is printed without network activity while it is
younger than --max-age.

Examples:
  # Fetch and decode a JSON document, caching it for five minutes
  reqcache get users/7 --type json --max-age 5m

  # Download a file, resuming a previous partial download
  reqcache get files/big.iso --download big.iso`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := f.config(args[0])
			if err != nil {
				return err
			}
			c.DownloadPath = download
			r := a.d.NewRequest(c)
			if err = startAndWait(cmd.Context(), r); err != nil {
				return err
			}
			return printResponse(cmd.OutOrStdout(), r)
		},
	}
	f.register(cmd)
	cmd.Flags().StringVarP(&download, "download", "o", "", "stream the response to this file")
	return cmd
}

// startAndWait starts r and waits for its notification. If ctx is done
// first, r is stopped.
func startAndWait(ctx context.Context, r *reqcache.Request) error {
	done := make(chan struct{})
	r.StartWith(func(*reqcache.Request) { close(done) }, func(*reqcache.Request) { close(done) })
	select {
	case <-done:
		return r.Err()
	case <-ctx.Done():
		r.Stop()
		return ctx.Err()
	}
}

func printResponse(w io.Writer, r *reqcache.Request) error {
	if p := r.DownloadedFile(); p != "" {
		_, err := fmt.Fprintln(w, p)
		return err
	}
	switch r.Config.ResponseType {
	case request.JSON, request.Plist:
		b, err := json.MarshalIndent(r.Object(), "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	case request.String:
		_, err := io.WriteString(w, r.Text())
		return err
	default:
		_, err := w.Write(r.Data())
		return err
	}
}

func logResult(logger *slog.Logger, r *reqcache.Request) {
	e := r.Execution()
	if e == nil {
		return
	}
	logger.Info("response",
		slog.String("request", r.String()),
		slog.Int("status", r.StatusCode()),
		slog.Bool("from_cache", r.FromCache()),
		slog.Int("bytes", len(r.Data())),
		slog.Duration("duration", e.Duration()))
}
