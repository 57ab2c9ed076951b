// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package cache

import "strconv"

// An Error explains why a cached entry could not be used. Cache errors
// are never fatal: a request whose cache check fails is sent to the
// network instead.
type Error int

const (
	// Expired means the entry is older than the max age, or was
	// created in the future.
	Expired Error = -1
	// VersionMismatch means the entry was stored under a different
	// cache version.
	VersionMismatch Error = -2
	// SensitiveDataMismatch means the entry was stored with a
	// different sensitive data fingerprint.
	SensitiveDataMismatch Error = -3
	// AppVersionMismatch means the entry was stored by a different
	// application version.
	AppVersionMismatch Error = -4
	// InvalidCacheTime means the request's max age is negative, which
	// disables the cache.
	InvalidCacheTime Error = -5
	// InvalidMetadata means the metadata record is missing or corrupt.
	InvalidMetadata Error = -6
	// InvalidCacheData means the cached bytes are missing or could not
	// be decoded.
	InvalidCacheData Error = -7
)

var errorNames = map[Error]string{
	Expired:               "expired",
	VersionMismatch:       "version mismatch",
	SensitiveDataMismatch: "sensitive data mismatch",
	AppVersionMismatch:    "app version mismatch",
	InvalidCacheTime:      "invalid cache time",
	InvalidMetadata:       "invalid metadata",
	InvalidCacheData:      "invalid cache data",
}

// Errors returns every cache error, in pipeline order.
func Errors() []Error {
	return []Error{
		InvalidCacheTime,
		InvalidMetadata,
		Expired,
		VersionMismatch,
		SensitiveDataMismatch,
		AppVersionMismatch,
		InvalidCacheData,
	}
}

// Code returns the integer code of the error.
func (err Error) Code() int {
	return int(err)
}

// Label returns a short snake_case name, suitable for a metric label.
func (err Error) Label() string {
	name, ok := errorNames[err]
	if !ok {
		return "unknown"
	}
	b := []byte(name)
	for i := range b {
		if b[i] == ' ' {
			b[i] = '_'
		}
	}
	return string(b)
}

func (err Error) Error() string {
	name, ok := errorNames[err]
	if !ok {
		return "reqcache/cache: unknown error " + strconv.Itoa(int(err))
	}
	return "reqcache/cache: " + name
}
