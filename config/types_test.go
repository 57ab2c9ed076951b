// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Validate(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(c *Config)
		errMsg string
	}{
		{name: "defaults", modify: func(*Config) {}},
		{
			name:   "bad base URL",
			modify: func(c *Config) { c.BaseURL = "not a url" },
			errMsg: `BaseURL fails "url"`,
		},
		{
			name:   "negative timeout",
			modify: func(c *Config) { c.Timeout = -time.Second },
			errMsg: `Timeout fails "gte=0"`,
		},
		{
			name:   "inverted status range",
			modify: func(c *Config) { c.StatusCodes = StatusCodes{Min: 300, Max: 200} },
			errMsg: `StatusCodes.Max fails "gtefield=Min"`,
		},
		{
			name:   "unknown backend",
			modify: func(c *Config) { c.Cache.Backend = "memory" },
			errMsg: `Cache.Backend fails "oneof=dir leveldb none"`,
		},
		{
			name:   "cache name with slash",
			modify: func(c *Config) { c.Cache.Name = "a/b" },
			errMsg: `Cache.Name fails "excludesall=/"`,
		},
		{
			name: "reachability without host",
			modify: func(c *Config) {
				c.Reachability.Enabled = true
				c.Reachability.Host = ""
			},
			errMsg: `Reachability.Host fails "required_if=Enabled true"`,
		},
		{
			name:   "reachability disabled without host",
			modify: func(c *Config) { c.Reachability.Host = "" },
		},
		{
			name:   "bad log level",
			modify: func(c *Config) { c.Logging.Level = "trace" },
			errMsg: `Logging.Level fails "oneof=debug info warn error"`,
		},
		{
			name: "metrics without address",
			modify: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Address = ""
			},
			errMsg: `Metrics.Address fails "required_if=Enabled true"`,
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			c := DefaultConfig()
			testCase.modify(&c)
			err := c.Validate()
			if testCase.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, "reqcache/config: invalid configuration")
			assert.ErrorContains(t, err, testCase.errMsg)
		})
	}
}
