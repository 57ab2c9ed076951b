// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds the dispatcher-wide settings consumed by
// reqcache.NewDispatcher and the reqcache command.
type Config struct {
	BaseURL         string        `koanf:"baseURL" validate:"omitempty,url"`
	CDNURL          string        `koanf:"cdnURL" validate:"omitempty,url"`
	Timeout         time.Duration `koanf:"timeout" validate:"gte=0"`
	TransferTimeout time.Duration `koanf:"transferTimeout" validate:"gte=0"`
	StatusCodes     StatusCodes   `koanf:"statusCodes"`
	AcceptTypes     []string      `koanf:"acceptTypes"`
	AppVersion      string        `koanf:"appVersion"`
	MaxConcurrent   int           `koanf:"maxConcurrent" validate:"gte=0"`

	Cache        CacheConfig        `koanf:"cache"`
	Downloads    DownloadsConfig    `koanf:"downloads"`
	Reachability ReachabilityConfig `koanf:"reachability"`
	Logging      LoggingConfig      `koanf:"logging"`
	Metrics      MetricsConfig      `koanf:"metrics"`
}

// StatusCodes is the inclusive range of acceptable HTTP status codes.
type StatusCodes struct {
	Min int `koanf:"min" validate:"gte=100,lte=599"`
	Max int `koanf:"max" validate:"gte=100,lte=599,gtefield=Min"`
}

// CacheConfig selects the response cache backend and its location.
type CacheConfig struct {
	Backend string `koanf:"backend" validate:"oneof=dir leveldb none"`
	Dir     string `koanf:"dir"`
	Name    string `koanf:"name" validate:"required,excludesall=/"`
}

// DownloadsConfig locates downloaded files and partial downloads.
type DownloadsConfig struct {
	Dir     string `koanf:"dir"`
	TempDir string `koanf:"tempDir"`
	Name    string `koanf:"name" validate:"required,excludesall=/"`
}

// ReachabilityConfig controls connectivity monitoring.
type ReachabilityConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Host     string        `koanf:"host" validate:"required_if=Enabled true"`
	Interval time.Duration `koanf:"interval" validate:"gte=0"`
}

// LoggingConfig expresses log level and format.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `koanf:"format" validate:"omitempty,oneof=json text"`
}

// MetricsConfig controls the Prometheus endpoint of the reqcache
// command.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Address string `koanf:"address" validate:"required_if=Enabled true"`
}

// DefaultConfig returns the configuration used when nothing overrides
// it.
func DefaultConfig() Config {
	return Config{
		Timeout:         30 * time.Second,
		TransferTimeout: 10 * time.Minute,
		StatusCodes:     StatusCodes{Min: 200, Max: 299},
		Cache: CacheConfig{
			Backend: "dir",
			Name:    "reqcache",
		},
		Downloads: DownloadsConfig{
			Name: "downloads",
		},
		Reachability: ReachabilityConfig{
			Host:     "www.google.com:443",
			Interval: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Address: ":9090",
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("reqcache/config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s fails %q", strings.TrimPrefix(fe.Namespace(), "Config."), tagWithParam(fe)))
	}
	return fmt.Errorf("reqcache/config: invalid configuration: %s", strings.Join(msgs, "; "))
}

func tagWithParam(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}
