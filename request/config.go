// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	urlpkg "net/url"
	"strings"
	"time"
)

// DefaultCacheMaxAge is the cache max age set by NewConfig.
const DefaultCacheMaxAge = 2 * time.Minute

const nilCtxMsg = "reqcache/request: nil context"

// A Priority is the scheduling priority of a request. When a dispatcher
// limits the number of concurrent requests, waiting requests are
// admitted in priority order.
type Priority int8

const (
	// Low is the lowest request priority.
	Low Priority = -4
	// Normal is the default request priority.
	Normal Priority = 0
	// High is the highest request priority.
	High Priority = 4
)

// PriorityOf returns a pointer to p, for use as Config.Priority.
func PriorityOf(p Priority) *Priority {
	return &p
}

// String returns the name of the priority.
func (p Priority) String() string {
	switch {
	case p < Normal:
		return "low"
	case p > Normal:
		return "high"
	default:
		return "normal"
	}
}

// A ResponseType tells the dispatcher how to decode a response body.
type ResponseType int8

const (
	// Default keeps the body as opaque bytes, and also decodes it as
	// text using the response charset.
	Default ResponseType = iota
	// JSON decodes the body as a JSON object.
	JSON
	// String decodes the body as text using the response charset.
	String
	// Data keeps the body as opaque bytes.
	Data
	// Plist decodes the body as a property list (XML or binary).
	Plist
)

var responseTypeNames = []string{"default", "json", "string", "data", "plist"}

// ParseResponseType parses the lower-case name of a response type.
func ParseResponseType(s string) (ResponseType, error) {
	for i, name := range responseTypeNames {
		if strings.EqualFold(s, name) {
			return ResponseType(i), nil
		}
	}
	return Default, fmt.Errorf("reqcache/request: unknown response type %q", s)
}

// String returns the lower-case name of the response type.
func (rt ResponseType) String() string {
	if rt < 0 || int(rt) >= len(responseTypeNames) {
		return "unknown"
	}
	return responseTypeNames[rt]
}

// Credentials are HTTP basic authentication credentials.
type Credentials struct {
	User     string
	Password string
}

// A Config describes one logical HTTP request: where it goes, what it
// sends, how its response is decoded, and how its response is cached.
//
// A Config should be treated as immutable once the request using it has
// been started. The cache identity of a request is derived from its
// resolved host, Path, Method and (filtered) Params, so two requests
// whose configs agree on those fields share a cache entry.
type Config struct {
	// Method specifies the HTTP method (GET, POST, PUT, etc.).
	// An empty string means GET.
	Method string

	// Path is the request path. It is resolved against BaseURL (or
	// CDNURL if UseCDN is set), falling back to the dispatcher's
	// global base URL. If Path is already an absolute URL with a scheme
	// and host, it is used unmodified.
	Path string

	// BaseURL optionally overrides the dispatcher's global base URL.
	BaseURL string

	// CDNURL optionally overrides the dispatcher's global CDN URL.
	CDNURL string

	// UseCDN selects the CDN URL instead of the base URL.
	UseCDN bool

	// Header contains extra request header fields.
	Header http.Header

	// Params contains the request parameters, encoded according to
	// Encoding.
	Params map[string]any

	// Encoding is the parameter encoding.
	Encoding ParamEncoding

	// ResponseType selects how the response body is decoded.
	ResponseType ResponseType

	// Priority is the request priority. If nil, the dispatcher does
	// not apply any priority to the request.
	Priority *Priority

	// Upload is an optional request body. It may be a string, []byte,
	// io.Reader or io.ReadCloser. It is sent instead of body-encoded
	// Params.
	Upload any

	// UploadFile optionally names a file whose contents are sent as the
	// request body. It takes precedence over Upload.
	UploadFile string

	// Multipart optionally builds a multipart/form-data request body.
	// It takes precedence over Upload and UploadFile.
	Multipart func(w *multipart.Writer) error

	// BasicAuth optionally sets HTTP basic authentication credentials.
	BasicAuth *Credentials

	// Timeout optionally overrides the dispatcher's timeout policy for
	// this request. Zero means no override.
	Timeout time.Duration

	// DownloadPath, if not empty, makes this request a resumable
	// download whose response body is written to this path (or, if the
	// path is an existing directory, to a file in it named after the
	// last element of the request URL). Download requests are never
	// cached.
	DownloadPath string

	// Custom optionally builds the entire HTTP request. When set, URL
	// building and parameter encoding are skipped.
	Custom func(ctx context.Context) (*http.Request, error)

	// IgnoreCache skips reading the response cache when the request
	// starts. The response is still written to the cache.
	IgnoreCache bool

	// CacheMaxAge is how long a cached response stays valid. A
	// negative value disables reading the cache. Responses are only
	// written to the cache when CacheMaxAge is positive.
	CacheMaxAge time.Duration

	// CacheVersion identifies the shape of cached responses. Changing
	// it invalidates responses cached under a different version.
	CacheVersion int

	// SensitiveData is an opaque fingerprint of external state the
	// response depends on. A cached response is only valid if it was
	// stored with byte-for-byte identical SensitiveData.
	SensitiveData []byte

	// WriteCacheAsync writes the response cache on a background
	// goroutine instead of before the completion hooks run.
	WriteCacheAsync bool

	// CacheParamFilter optionally removes volatile parameters (such as
	// timestamps) from Params before the cache identity is computed.
	CacheParamFilter func(params map[string]any) map[string]any
}

// NewConfig returns a new Config for the given method and path with the
// default cache policy: a two minute max age and asynchronous cache
// writes.
func NewConfig(method, path string) *Config {
	if method == "" {
		method = http.MethodGet
	}
	return &Config{
		Method:          method,
		Path:            path,
		Header:          make(http.Header),
		CacheMaxAge:     DefaultCacheMaxAge,
		WriteCacheAsync: true,
	}
}

// Clone returns a copy of c whose Header and Params maps may be
// modified without affecting c.
func (c *Config) Clone() *Config {
	c2 := new(Config)
	*c2 = *c
	c2.Header = c.Header.Clone()
	if c.Params != nil {
		c2.Params = make(map[string]any, len(c.Params))
		for k, v := range c.Params {
			c2.Params[k] = v
		}
	}
	return c2
}

// MethodOrDefault returns the request method, defaulting to GET.
func (c *Config) MethodOrDefault() string {
	if c.Method == "" {
		return http.MethodGet
	}
	return c.Method
}

// IsDownload reports whether the config describes a resumable download.
func (c *Config) IsDownload() bool {
	return c.DownloadPath != ""
}

// CacheParams returns the parameters that contribute to the cache
// identity, after CacheParamFilter has been applied.
func (c *Config) CacheParams() map[string]any {
	if c.Params == nil {
		return nil
	}
	if c.CacheParamFilter != nil {
		return c.CacheParamFilter(c.Params)
	}
	return c.Params
}

// Validate checks the config for errors which would prevent the request
// from being sent.
func (c *Config) Validate() error {
	if !validMethod(c.MethodOrDefault()) {
		return fmt.Errorf("reqcache/request: invalid method %q", c.Method)
	}
	if c.Custom == nil && c.Path == "" && c.BaseURL == "" && c.CDNURL == "" {
		return errors.New("reqcache/request: empty path")
	}
	if c.IsDownload() && c.MethodOrDefault() != http.MethodGet {
		return fmt.Errorf("reqcache/request: download requires GET, not %s", c.Method)
	}
	return nil
}

// SetBasicAuth sets the config's credentials to use HTTP Basic
// Authentication with the provided username and password.
//
// With HTTP Basic Authentication the provided username and password
// are not encrypted.
func (c *Config) SetBasicAuth(username, password string) {
	c.BasicAuth = &Credentials{User: username, Password: password}
}

// HTTPRequest creates the HTTP request described by the config, sent to
// URL u, with context ctx. Parameters are encoded into the URL query or
// the request body according to Encoding.
//
// If Custom is set, it alone builds the request and u is ignored.
func (c *Config) HTTPRequest(ctx context.Context, u *urlpkg.URL) (*http.Request, error) {
	if ctx == nil {
		return nil, errors.New(nilCtxMsg)
	}
	if c.Custom != nil {
		r, err := c.Custom(ctx)
		if err != nil {
			return nil, err
		}
		return r.WithContext(ctx), nil
	}

	method := c.MethodOrDefault()
	u2 := *u
	u2.Host = removeEmptyPort(u2.Host)

	body, contentType, err := c.encodeBody(method, &u2)
	if err != nil {
		return nil, err
	}

	var rdr io.Reader
	if len(body) > 0 {
		rdr = bytes.NewReader(body)
	}
	r, err := http.NewRequestWithContext(ctx, method, u2.String(), rdr)
	if err != nil {
		return nil, err
	}
	for k, vs := range c.Header {
		for _, v := range vs {
			r.Header.Add(k, v)
		}
	}
	if contentType != "" && r.Header.Get("Content-Type") == "" {
		r.Header.Set("Content-Type", contentType)
	}
	if c.BasicAuth != nil {
		r.Header.Set("Authorization", "Basic "+basicAuth(c.BasicAuth.User, c.BasicAuth.Password))
	}
	return r, nil
}

// basicAuth is lifted verbatim from net/http/client.go.
//
// See 2 (end of page 4) https://www.ietf.org/rfc/rfc2617.txt
// "To receive authorization, the client sends the userid and password,
// separated by a single colon (":") character, within a base64
// encoded string in the credentials."
// It is not meant to be urlencoded.
func basicAuth(username, password string) string {
	auth := username + ":" + password
	return base64.StdEncoding.EncodeToString([]byte(auth))
}

func validMethod(method string) bool {
	/*
	     Method         = "OPTIONS"                ; Section 9.2
	                    | "GET"                    ; Section 9.3
	                    | "HEAD"                   ; Section 9.4
	                    | "POST"                   ; Section 9.5
	                    | "PUT"                    ; Section 9.6
	                    | "DELETE"                 ; Section 9.7
	                    | "TRACE"                  ; Section 9.8
	                    | "CONNECT"                ; Section 9.9
	                    | extension-method
	   extension-method = token
	     token          = 1*<any CHAR except CTLs or separators>
	*/
	return method != "" && strings.IndexFunc(method, isNotToken) == -1
}

func isNotToken(r rune) bool {
	return !isTokenRune(r)
}

// isTokenRune classifies a rune as being valid for a token as defined
// in https://tools.ietf.org/html/rfc7230#section-3.2.6
func isTokenRune(r rune) bool {
	i := int(r)
	return i < len(isTokenTable) && isTokenTable[i]
}

var isTokenTable = func() [127]bool {
	var t [127]bool
	for _, r := range "!#$%&'*+-.^_`|~" {
		t[r] = true
	}
	for r := '0'; r <= '9'; r++ {
		t[r] = true
	}
	for r := 'A'; r <= 'Z'; r++ {
		t[r] = true
	}
	for r := 'a'; r <= 'z'; r++ {
		t[r] = true
	}
	return t
}()

// hasPort is lifted verbatim from net/http/http.go
//
// Given a string of the form "host", "host:port", or "[ipv6::address]:port",
// return true if the string includes a port.
func hasPort(s string) bool { return strings.LastIndex(s, ":") > strings.LastIndex(s, "]") }

// removeEmptyPort is lifted verbatim from net/http/http.go
//
// removeEmptyPort strips the empty port in ":port" to ""
// as mandated by RFC 3986 Section 6.2.3.
func removeEmptyPort(host string) string {
	if hasPort(host) {
		return strings.TrimSuffix(host, ":")
	}
	return host
}
