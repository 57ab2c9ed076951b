// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package cache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// An Identity is the part of a request that determines which cache
// entry it reads and writes.
type Identity struct {
	// Host is the resolved host of the request URL, including any
	// port.
	Host string
	// Path is the resolved request path.
	Path string
	// Method is the HTTP method. It is compared case-insensitively.
	Method string
	// Params are the request parameters, after any volatile parameters
	// have been filtered out.
	Params map[string]any
}

// String returns the description of the identity that Key digests.
func (id Identity) String() string {
	s := fmt.Sprintf("Host:%s, Url:%s, Method:%s", id.Host, id.Path, strings.ToUpper(id.Method))
	if len(id.Params) > 0 {
		s += ", Params:" + canonical(id.Params)
	}
	return s
}

// Key returns the hex MD5 digest of the identity. Identities with
// equal fields always have equal keys.
func (id Identity) Key() string {
	sum := md5.Sum([]byte(id.String()))
	return hex.EncodeToString(sum[:])
}

// canonical encodes params with sorted map keys. Values json cannot
// encode fall back to fmt, which also sorts map keys.
func canonical(params map[string]any) string {
	b, err := json.Marshal(params)
	if err != nil {
		return fmt.Sprintf("%#v", params)
	}
	return string(b)
}
