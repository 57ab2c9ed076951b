// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package cache

import (
	"errors"
	"time"
)

// A Backend persists cached bytes and their metadata.
//
// LoadMetadata and LoadData report a missing entry with an error that
// wraps fs.ErrNotExist. They do not validate the entry; that is the job
// of Load.
//
// Backends must be safe for concurrent use, including bulk operations
// (Clear and Size) running concurrently with Save. Two concurrent saves
// for the same identity may race; the last writer wins.
type Backend interface {
	LoadMetadata(id Identity) (*Metadata, error)
	LoadData(id Identity) ([]byte, error)
	Save(id Identity, data []byte, md *Metadata) error
	Remove(id Identity) error
	Clear() error
	Size() (int64, error)
}

// A Pather is a Backend that stores each entry as files, and can
// report their paths.
type Pather interface {
	CacheFilePath(id Identity) string
	MetadataPath(id Identity) string
}

// Load runs the cache check for identity id against the expectation x
// at time now. It returns the cached bytes and metadata, or an Error
// explaining why the entry cannot be used:
//
//  1. InvalidCacheTime if x.MaxAge is negative;
//  2. InvalidMetadata if the metadata is missing or corrupt;
//  3. the first Validate failure;
//  4. InvalidCacheData if the cached bytes are missing.
//
// The returned metadata is non-nil whenever it could be read, even if
// validation failed.
func Load(b Backend, id Identity, x Expect, now time.Time) ([]byte, *Metadata, error) {
	if x.MaxAge < 0 {
		return nil, nil, InvalidCacheTime
	}
	md, err := b.LoadMetadata(id)
	if err != nil || md == nil {
		return nil, nil, InvalidMetadata
	}
	if err = Validate(md, x, now); err != nil {
		return nil, md, err
	}
	data, err := b.LoadData(id)
	if err != nil {
		return nil, md, InvalidCacheData
	}
	return data, md, nil
}

// AsError returns the cache Error wrapped by err, if any.
func AsError(err error) (Error, bool) {
	var cerr Error
	if errors.As(err, &cerr) {
		return cerr, true
	}
	return 0, false
}
