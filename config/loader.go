// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package config loads reqcache settings from defaults, YAML files and
// environment variables, in increasing order of precedence.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the environment variable prefix of the reqcache
// command.
const DefaultEnvPrefix = "REQCACHE"

// Loader hydrates the configuration while respecting env > file >
// default precedence.
type Loader struct {
	envPrefix string
	files     []string
}

// NewLoader prepares a loader reading the given YAML files, in order,
// and then environment variables starting with envPrefix followed by an
// underscore. An empty envPrefix disables the environment.
//
// Double underscores in a variable name separate nested keys, so
// REQCACHE_CACHE__BACKEND sets cache.backend. Keys match
// case-insensitively and single underscores are ignored, so
// REQCACHE_BASE_URL sets baseURL. The acceptTypes value is split on
// commas.
func NewLoader(envPrefix string, files ...string) *Loader {
	return &Loader{
		envPrefix: envPrefix,
		files:     files,
	}
}

// Files returns the YAML files read by the loader.
func (l *Loader) Files() []string {
	return append([]string(nil), l.files...)
}

// Load assembles and validates the effective configuration.
func (l *Loader) Load(ctx context.Context) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(structToMap(DefaultConfig()), "."), nil); err != nil {
		return Config{}, fmt.Errorf("reqcache/config: load defaults: %w", err)
	}
	canonical := make(map[string]string)
	for _, key := range k.Keys() {
		canonical[strings.ToLower(key)] = key
	}
	canonical["accepttypes"] = "acceptTypes"

	for _, path := range l.files {
		if path == "" {
			continue
		}
		select {
		case <-ctx.Done():
			return Config{}, ctx.Err()
		default:
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("reqcache/config: file %s not found", path)
			}
			return Config{}, fmt.Errorf("reqcache/config: stat %s: %w", path, err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("reqcache/config: load file %s: %w", path, err)
		}
	}

	if l.envPrefix != "" {
		transform := func(s, v string) (string, any) {
			key := strings.TrimPrefix(s, l.envPrefix+"_")
			key = strings.ReplaceAll(key, "__", ".")
			key = strings.ToLower(strings.ReplaceAll(key, "_", ""))
			if mapped, ok := canonical[key]; ok {
				key = mapped
			}
			if key == "acceptTypes" {
				return key, splitList(v)
			}
			return key, v
		}
		if err := k.Load(env.ProviderWithValue(l.envPrefix+"_", ".", transform), nil); err != nil {
			return Config{}, fmt.Errorf("reqcache/config: load env: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("reqcache/config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// structToMap converts a Config into a map for the koanf confmap
// provider.
func structToMap(cfg Config) map[string]any {
	return map[string]any{
		"baseURL":         cfg.BaseURL,
		"cdnURL":          cfg.CDNURL,
		"timeout":         cfg.Timeout,
		"transferTimeout": cfg.TransferTimeout,
		"statusCodes": map[string]any{
			"min": cfg.StatusCodes.Min,
			"max": cfg.StatusCodes.Max,
		},
		"acceptTypes":   cfg.AcceptTypes,
		"appVersion":    cfg.AppVersion,
		"maxConcurrent": cfg.MaxConcurrent,
		"cache": map[string]any{
			"backend": cfg.Cache.Backend,
			"dir":     cfg.Cache.Dir,
			"name":    cfg.Cache.Name,
		},
		"downloads": map[string]any{
			"dir":     cfg.Downloads.Dir,
			"tempDir": cfg.Downloads.TempDir,
			"name":    cfg.Downloads.Name,
		},
		"reachability": map[string]any{
			"enabled":  cfg.Reachability.Enabled,
			"host":     cfg.Reachability.Host,
			"interval": cfg.Reachability.Interval,
		},
		"logging": map[string]any{
			"level":  cfg.Logging.Level,
			"format": cfg.Logging.Format,
		},
		"metrics": map[string]any{
			"enabled": cfg.Metrics.Enabled,
			"address": cfg.Metrics.Address,
		},
	}
}
