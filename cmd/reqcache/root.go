// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gogama/reqcache"
	"github.com/gogama/reqcache/config"
	"github.com/gogama/reqcache/internal/logging"
	"github.com/gogama/reqcache/metrics"
	"github.com/spf13/cobra"
)

// app holds the state shared by the subcommands of one invocation.
type app struct {
	configFiles []string
	envPrefix   string

	loader     *config.Loader
	cfg        config.Config
	logger     *slog.Logger
	rec        *metrics.Recorder
	d          *reqcache.Dispatcher
	metricsSrv *http.Server
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "reqcache",
		Short: "Send HTTP requests through a disk-cached dispatcher",
		Long: `reqcache sends HTTP requests through a dispatcher which caches
responses on disk, composes requests into chains and batches, and
resumes interrupted downloads.

Use "reqcache [command] --help" for more information about a command.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}
	root.PersistentFlags().StringArrayVar(&a.configFiles, "config", nil, "config file, may be repeated (later files win)")
	root.PersistentFlags().StringVar(&a.envPrefix, "env-prefix", config.DefaultEnvPrefix, "environment variable prefix, empty to disable")

	root.AddCommand(newGetCmd(a))
	root.AddCommand(newChainCmd(a))
	root.AddCommand(newBatchCmd(a))
	root.AddCommand(newPollCmd(a))
	root.AddCommand(newCacheCmd(a))
	root.CompletionOptions.DisableDefaultCmd = true
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	a.loader = config.NewLoader(a.envPrefix, a.configFiles...)
	cfg, err := a.loader.Load(cmd.Context())
	if err != nil {
		return err
	}
	return a.apply(cmd, cfg)
}

// apply builds the logger, metrics and dispatcher for cfg.
func (a *app) apply(cmd *cobra.Command, cfg config.Config) error {
	logger, err := logging.New(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if cfg.Metrics.Enabled && a.rec == nil {
		a.rec = metrics.NewRecorder(nil)
		if err = a.serveMetrics(cfg.Metrics.Address, logger); err != nil {
			return err
		}
	}
	d, err := reqcache.NewDispatcher(cfg, logger, a.rec)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	a.d = d
	return nil
}

func (a *app) serveMetrics(addr string, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.rec.Handler())
	a.metricsSrv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.metricsSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", slog.String("reason", err.Error()))
		}
	}()
	logger.Info("serving metrics", slog.String("address", ln.Addr().String()))
	return nil
}

func (a *app) close() error {
	var errs []error
	if a.d != nil {
		errs = append(errs, a.d.Close())
		a.d = nil
	}
	if a.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		errs = append(errs, a.metricsSrv.Shutdown(ctx))
		a.metricsSrv = nil
	}
	return errors.Join(errs...)
}
