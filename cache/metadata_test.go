// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var created = time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)

func TestNewMetadata(t *testing.T) {
	t.Run("absent optionals", func(t *testing.T) {
		md := NewMetadata(Expect{Version: 3}, "utf-8", 200, created)
		assert.Equal(t, FormatVersion, md.FormatVersion)
		assert.Equal(t, 3, md.Version)
		assert.Nil(t, md.SensitiveData)
		assert.Nil(t, md.AppVersion)
		assert.Equal(t, "utf-8", md.Charset)
		assert.Equal(t, 200, md.StatusCode)
		assert.Equal(t, created, md.CreatedAt)
	})
	t.Run("present optionals", func(t *testing.T) {
		fp := []byte("token-1")
		md := NewMetadata(Expect{SensitiveData: fp, AppVersion: "1.2.3"}, "", 200, created)
		require.NotNil(t, md.SensitiveData)
		assert.Equal(t, []byte("token-1"), *md.SensitiveData)
		fp[0] = 'X'
		assert.Equal(t, []byte("token-1"), *md.SensitiveData, "fingerprint must be copied")
		require.NotNil(t, md.AppVersion)
		assert.Equal(t, "1.2.3", *md.AppVersion)
	})
}

func TestMetadata_RoundTrip(t *testing.T) {
	empty := []byte{}
	md := NewMetadata(Expect{Version: 1, SensitiveData: empty, AppVersion: "2.0"}, "windows-1252", 203, created)
	b, err := encodeMetadata(md)
	require.NoError(t, err)
	md2, err := decodeMetadata(b)
	require.NoError(t, err)
	require.NotNil(t, md2.SensitiveData, "present but empty fingerprint must survive")
	assert.Empty(t, *md2.SensitiveData)
	assert.True(t, md.CreatedAt.Equal(md2.CreatedAt))
	assert.Equal(t, "windows-1252", md2.Charset)
	assert.Equal(t, 203, md2.StatusCode)

	_, err = decodeMetadata([]byte("{not json"))
	assert.Error(t, err)
	_, err = encodeMetadata(nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	const maxAge = 120 * time.Second
	fp := []byte("fp")
	av := "1.0"
	stored := func() *Metadata {
		b := append([]byte{}, fp...)
		v := av
		return &Metadata{
			FormatVersion: FormatVersion,
			Version:       1,
			SensitiveData: &b,
			CreatedAt:     created,
			AppVersion:    &v,
		}
	}
	expect := Expect{MaxAge: maxAge, Version: 1, SensitiveData: fp, AppVersion: av}

	testCases := []struct {
		name   string
		md     func() *Metadata
		x      Expect
		now    time.Time
		result error
	}{
		{"valid", stored, expect, created.Add(time.Minute), nil},
		{"valid at creation", stored, expect, created, nil},
		{"valid exactly at max age", stored, expect, created.Add(maxAge), nil},
		{"expired just after max age", stored, expect, created.Add(maxAge + time.Nanosecond), Expired},
		{"created in future", stored, expect, created.Add(-time.Second), Expired},
		{"zero max age", stored, Expect{Version: 1, SensitiveData: fp, AppVersion: av}, created.Add(time.Second), Expired},
		{"version mismatch", stored, Expect{MaxAge: maxAge, Version: 2, SensitiveData: fp, AppVersion: av}, created, VersionMismatch},
		{"fingerprint changed", stored, Expect{MaxAge: maxAge, Version: 1, SensitiveData: []byte("fq"), AppVersion: av}, created, SensitiveDataMismatch},
		{"fingerprint longer", stored, Expect{MaxAge: maxAge, Version: 1, SensitiveData: []byte("fp2"), AppVersion: av}, created, SensitiveDataMismatch},
		{"fingerprint now absent", stored, Expect{MaxAge: maxAge, Version: 1, AppVersion: av}, created, SensitiveDataMismatch},
		{"fingerprint now present", func() *Metadata {
			md := stored()
			md.SensitiveData = nil
			return md
		}, expect, created, SensitiveDataMismatch},
		{"fingerprint both absent", func() *Metadata {
			md := stored()
			md.SensitiveData = nil
			return md
		}, Expect{MaxAge: maxAge, Version: 1, AppVersion: av}, created, nil},
		{"app version changed", stored, Expect{MaxAge: maxAge, Version: 1, SensitiveData: fp, AppVersion: "1.1"}, created, AppVersionMismatch},
		{"app version now absent", stored, Expect{MaxAge: maxAge, Version: 1, SensitiveData: fp}, created, AppVersionMismatch},
		{"expiry checked before version", stored, Expect{MaxAge: maxAge, Version: 9}, created.Add(time.Hour), Expired},
		{"version checked before fingerprint", stored, Expect{MaxAge: maxAge, Version: 9}, created, VersionMismatch},
		{"fingerprint checked before app version", stored, Expect{MaxAge: maxAge, Version: 1}, created, SensitiveDataMismatch},
		{"unknown format", func() *Metadata {
			md := stored()
			md.FormatVersion = FormatVersion + 1
			return md
		}, expect, created, InvalidMetadata},
		{"nil metadata", func() *Metadata { return nil }, expect, created, InvalidMetadata},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			err := Validate(testCase.md(), testCase.x, testCase.now)
			if testCase.result == nil {
				assert.NoError(t, err)
			} else {
				assert.Equal(t, testCase.result, err)
			}
		})
	}
}

func TestError(t *testing.T) {
	codes := map[int]bool{}
	for _, err := range Errors() {
		assert.False(t, codes[err.Code()], "duplicate code %d", err.Code())
		codes[err.Code()] = true
		assert.Contains(t, err.Error(), "reqcache/cache: ")
		assert.NotContains(t, err.Label(), " ")
	}
	assert.Len(t, codes, 7)
	assert.Equal(t, -1, Expired.Code())
	assert.Equal(t, -3, SensitiveDataMismatch.Code())
	assert.Equal(t, "sensitive_data_mismatch", SensitiveDataMismatch.Label())
	assert.Equal(t, "reqcache/cache: unknown error 5", Error(5).Error())
	assert.Equal(t, "unknown", Error(5).Label())

	cerr, ok := AsError(VersionMismatch)
	assert.True(t, ok)
	assert.Equal(t, VersionMismatch, cerr)
	_, ok = AsError(nil)
	assert.False(t, ok)
}
