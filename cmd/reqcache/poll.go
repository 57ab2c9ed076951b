// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gogama/reqcache/config"
	"github.com/spf13/cobra"
)

func newPollCmd(a *app) *cobra.Command {
	var f requestFlags
	var interval time.Duration
	var watch bool
	cmd := &cobra.Command{
		Use:   "poll <path>",
		Short: "Send a request repeatedly until interrupted",
		Long: `Start a request every --interval until interrupted, logging each
response. Starts within the cache max age are served from the cache.

With --watch, the config files are watched and the dispatcher is
rebuilt whenever they change.

Example:
  reqcache poll status --interval 10s --max-age 30s --config reqcache.yaml --watch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				return errors.New("interval must be positive")
			}
			c, err := f.config(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			changes := make(chan config.Config, 1)
			if watch {
				w, err := a.loader.Watch(ctx, func(cfg config.Config) {
					select {
					case changes <- cfg:
					default:
						<-changes
						changes <- cfg
					}
				}, func(err error) {
					a.logger.Warn("config reload failed", slog.String("reason", err.Error()))
				})
				if err != nil {
					return err
				}
				defer w.Stop()
			}

			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				r := a.d.NewRequest(c)
				if err := startAndWait(ctx, r); err != nil && ctx.Err() == nil {
					a.logger.Warn("request failed", slog.String("request", r.String()), slog.String("reason", err.Error()))
				} else {
					logResult(a.logger, r)
				}
				select {
				case <-ctx.Done():
					return nil
				case cfg := <-changes:
					if err := a.d.Close(); err != nil {
						a.logger.Warn("closing dispatcher", slog.String("reason", err.Error()))
					}
					if err := a.apply(cmd, cfg); err != nil {
						return err
					}
					a.logger.Info("config reloaded")
				case <-ticker.C:
				}
			}
		},
	}
	f.register(cmd)
	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "time between starts")
	cmd.Flags().BoolVar(&watch, "watch", false, "rebuild the dispatcher when config files change")
	return cmd
}
