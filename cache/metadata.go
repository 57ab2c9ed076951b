// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// FormatVersion is the metadata format written by this package.
// Metadata with an unknown format version is rejected as invalid.
const FormatVersion = 1

// Metadata is the record stored alongside cached bytes.
//
// Optional fields are pointers so that "absent" and "empty" can be told
// apart, which matters when comparing fingerprints.
type Metadata struct {
	FormatVersion int       `json:"formatVersion"`
	Version       int       `json:"version"`
	SensitiveData *[]byte   `json:"sensitiveData,omitempty"`
	Charset       string    `json:"charset,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	AppVersion    *string   `json:"appVersion,omitempty"`
	StatusCode    int       `json:"statusCode,omitempty"`
}

// Expect describes the request a cached entry is validated against.
type Expect struct {
	// MaxAge is how long an entry stays valid. A negative MaxAge
	// disables the cache.
	MaxAge time.Duration
	// Version is the current cache version.
	Version int
	// SensitiveData is the current fingerprint. Nil means absent.
	SensitiveData []byte
	// AppVersion is the current application version. The empty string
	// means absent.
	AppVersion string
}

// NewMetadata returns the metadata to store for a response fetched at
// now, for a request described by x.
func NewMetadata(x Expect, charset string, statusCode int, now time.Time) *Metadata {
	md := &Metadata{
		FormatVersion: FormatVersion,
		Version:       x.Version,
		Charset:       charset,
		CreatedAt:     now,
		StatusCode:    statusCode,
	}
	if x.SensitiveData != nil {
		b := append([]byte{}, x.SensitiveData...)
		md.SensitiveData = &b
	}
	if x.AppVersion != "" {
		v := x.AppVersion
		md.AppVersion = &v
	}
	return md
}

// Validate checks md against x at time now. The checks run in a fixed
// order and the first failing check's Error is returned:
//
// • Expired, unless the time elapsed since CreatedAt lies within
// [0, MaxAge] (both ends inclusive);
//
// • VersionMismatch, unless the stored version equals x.Version;
//
// • SensitiveDataMismatch, unless the stored fingerprint and
// x.SensitiveData are both absent, or both present with identical
// bytes;
//
// • AppVersionMismatch, under the same rule for the application
// version.
func Validate(md *Metadata, x Expect, now time.Time) error {
	if md == nil || md.FormatVersion < 1 || md.FormatVersion > FormatVersion {
		return InvalidMetadata
	}
	elapsed := now.Sub(md.CreatedAt)
	if elapsed < 0 || elapsed > x.MaxAge {
		return Expired
	}
	if md.Version != x.Version {
		return VersionMismatch
	}
	if (md.SensitiveData == nil) != (x.SensitiveData == nil) {
		return SensitiveDataMismatch
	}
	if md.SensitiveData != nil && !bytes.Equal(*md.SensitiveData, x.SensitiveData) {
		return SensitiveDataMismatch
	}
	if (md.AppVersion == nil) != (x.AppVersion == "") {
		return AppVersionMismatch
	}
	if md.AppVersion != nil && *md.AppVersion != x.AppVersion {
		return AppVersionMismatch
	}
	return nil
}

func encodeMetadata(md *Metadata) ([]byte, error) {
	if md == nil {
		return nil, fmt.Errorf("reqcache/cache: nil metadata")
	}
	return json.Marshal(md)
}

func decodeMetadata(b []byte) (*Metadata, error) {
	var md Metadata
	if err := json.Unmarshal(b, &md); err != nil {
		return nil, fmt.Errorf("reqcache/cache: corrupt metadata: %w", err)
	}
	return &md, nil
}
