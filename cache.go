// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package reqcache

import (
	"errors"
	"log/slog"
	"net/url"

	"github.com/gogama/reqcache/cache"
	"github.com/gogama/reqcache/metrics"
	"github.com/gogama/reqcache/request"
)

var errNoCache = errors.New("reqcache: dispatcher has no cache")

// CacheIdentity returns the identity under which r's response is
// cached: the resolved scheme and host, the resolved path and query,
// the method, and the parameters left by the request's
// CacheParamFilter.
func (d *Dispatcher) CacheIdentity(r *Request) (cache.Identity, error) {
	raw, err := d.BuildURL(r)
	if err != nil {
		return cache.Identity{}, err
	}
	u, err := url.Parse(raw)
	if err != nil {
		return cache.Identity{}, err
	}
	host := u.Host
	if u.Scheme != "" {
		host = u.Scheme + "://" + u.Host
	}
	p := u.EscapedPath()
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	return cache.Identity{
		Host:   host,
		Path:   p,
		Method: r.Config.MethodOrDefault(),
		Params: r.Config.CacheParams(),
	}, nil
}

// CacheFilePath returns the path of the file holding r's cached
// response. It fails if the cache backend does not store files.
func (d *Dispatcher) CacheFilePath(r *Request) (string, error) {
	p, id, err := d.pather(r)
	if err != nil {
		return "", err
	}
	return p.CacheFilePath(id), nil
}

// MetadataPath returns the path of the metadata file of r's cached
// response. It fails if the cache backend does not store files.
func (d *Dispatcher) MetadataPath(r *Request) (string, error) {
	p, id, err := d.pather(r)
	if err != nil {
		return "", err
	}
	return p.MetadataPath(id), nil
}

func (d *Dispatcher) pather(r *Request) (cache.Pather, cache.Identity, error) {
	p, ok := d.Cache.(cache.Pather)
	if !ok {
		return nil, cache.Identity{}, errors.New("reqcache: cache backend does not store files")
	}
	id, err := d.CacheIdentity(r)
	return p, id, err
}

// RemoveCache removes r's cached response, or the whole cache if r is
// nil.
func (d *Dispatcher) RemoveCache(r *Request) error {
	if d.Cache == nil {
		return nil
	}
	if r == nil {
		return d.Cache.Clear()
	}
	id, err := d.CacheIdentity(r)
	if err != nil {
		return err
	}
	err = d.Cache.Remove(id)
	result := metrics.ResultRemoved
	if err != nil {
		result = metrics.ResultError
	}
	d.Metrics.ObserveCache(metrics.CacheRemove, result)
	return err
}

// CacheSize returns the number of bytes used by the response cache.
func (d *Dispatcher) CacheSize() (int64, error) {
	if d.Cache == nil {
		return 0, nil
	}
	return d.Cache.Size()
}

func (d *Dispatcher) expect(c *request.Config) cache.Expect {
	return cache.Expect{
		MaxAge:        c.CacheMaxAge,
		Version:       c.CacheVersion,
		SensitiveData: c.SensitiveData,
		AppVersion:    d.AppVersion,
	}
}

func (d *Dispatcher) cacheable(c *request.Config) bool {
	return d.Cache != nil && c != nil && !c.IgnoreCache && !c.IsDownload()
}

// loadCache runs the cache check for r and, on success, fills exec with
// the cached response.
func (d *Dispatcher) loadCache(r *Request, exec *request.Execution) error {
	if d.Cache == nil {
		return errNoCache
	}
	c := r.Config
	err := d.loadCacheInto(r, exec)
	if err != nil {
		label := metrics.ResultError
		if cerr, ok := cache.AsError(err); ok {
			label = cerr.Label()
		}
		d.Metrics.ObserveCache(metrics.CacheLoad, label)
		d.logger().Debug("cache not used",
			slog.String("request", r.String()),
			slog.String("reason", err.Error()))
		return err
	}
	d.Metrics.ObserveCache(metrics.CacheLoad, metrics.ResultHit)
	d.logger().Debug("cache hit", slog.String("request", r.String()), slog.String("type", c.ResponseType.String()))
	return nil
}

func (d *Dispatcher) loadCacheInto(r *Request, exec *request.Execution) error {
	c := r.Config
	if c.CacheMaxAge < 0 {
		return cache.InvalidCacheTime
	}
	id, err := d.CacheIdentity(r)
	if err != nil {
		return cache.InvalidMetadata
	}
	data, md, err := cache.Load(d.Cache, id, d.expect(c), d.now())
	if err != nil {
		return err
	}
	decoded, err := request.Decode(c.ResponseType, data, md.Charset)
	if err != nil {
		return cache.InvalidCacheData
	}
	exec.Body = data
	exec.Decoded = decoded
	exec.Charset = md.Charset
	exec.CacheStatusCode = md.StatusCode
	exec.FromCache = true
	return nil
}

// storable reports whether data, the response to c, may be written to
// the cache. Downloads, empty bodies, responses read from the cache and
// requests without a positive max age are never stored.
func storable(c *request.Config, fromCache bool, data []byte) bool {
	return !c.IsDownload() && !fromCache && c.CacheMaxAge > 0 && len(data) > 0
}

// saveCache stores the successful response of t if it is storable.
func (d *Dispatcher) saveCache(t *task) {
	c := t.r.Config
	exec := t.exec
	if d.Cache == nil || !storable(c, exec.FromCache, exec.Body) {
		return
	}
	id, err := d.CacheIdentity(t.r)
	if err != nil {
		return
	}
	md := cache.NewMetadata(d.expect(c), exec.Charset, exec.StatusCode(), d.now())
	if !c.WriteCacheAsync {
		d.store(t.r, id, exec.Body, md)
		return
	}
	d.writes.Add(1)
	go func() {
		defer d.writes.Done()
		d.store(t.r, id, exec.Body, md)
	}()
}

func (d *Dispatcher) store(r *Request, id cache.Identity, data []byte, md *cache.Metadata) error {
	err := d.Cache.Save(id, data, md)
	if err != nil {
		d.Metrics.ObserveCache(metrics.CacheSave, metrics.ResultError)
		d.logger().Warn("failed to save response to cache",
			slog.String("request", r.String()),
			slog.String("reason", err.Error()))
		return err
	}
	d.Metrics.ObserveCache(metrics.CacheSave, metrics.ResultStored)
	return nil
}
