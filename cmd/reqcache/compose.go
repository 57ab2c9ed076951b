// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/gogama/reqcache"
	"github.com/spf13/cobra"
)

func newChainCmd(a *app) *cobra.Command {
	var f requestFlags
	cmd := &cobra.Command{
		Use:   "chain <path>...",
		Short: "Send requests one after another",
		Long: `Send requests one after another, each only once the previous one
succeeded. The first failure stops the chain.

Example:
  reqcache chain login profile settings --type json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.d.NewChain()
			out := cmd.OutOrStdout()
			for _, p := range args {
				cfg, err := f.config(p)
				if err != nil {
					return err
				}
				c.Add(a.d.NewRequest(cfg), func(_ *reqcache.Chain, r *reqcache.Request) {
					logResult(a.logger, r)
					_ = printResponse(out, r)
				})
			}
			done := make(chan struct{})
			c.StartWith(func(*reqcache.Chain) { close(done) }, func(*reqcache.Chain) { close(done) })
			if err := wait(cmd.Context(), done, c.Stop); err != nil {
				return err
			}
			if r := c.FailedRequest(); r != nil {
				return fmt.Errorf("%s: %w", r, r.Err())
			}
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func newBatchCmd(a *app) *cobra.Command {
	var f requestFlags
	cmd := &cobra.Command{
		Use:   "batch <path>...",
		Short: "Send requests concurrently",
		Long: `Send requests concurrently and print every response once all of
them succeeded. The first failure stops the others.

Example:
  reqcache batch users/1 users/2 users/3 --type json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reqs := make([]*reqcache.Request, 0, len(args))
			for _, p := range args {
				cfg, err := f.config(p)
				if err != nil {
					return err
				}
				reqs = append(reqs, a.d.NewRequest(cfg))
			}
			b := a.d.NewBatch(reqs...)
			done := make(chan struct{})
			b.StartWith(func(*reqcache.Batch) { close(done) }, func(*reqcache.Batch) { close(done) })
			if err := wait(cmd.Context(), done, b.Stop); err != nil {
				return err
			}
			if r := b.FailedRequest(); r != nil {
				return fmt.Errorf("%s: %w", r, r.Err())
			}
			return printAll(cmd.OutOrStdout(), a, reqs)
		},
	}
	f.register(cmd)
	return cmd
}

func printAll(w io.Writer, a *app, reqs []*reqcache.Request) error {
	for _, r := range reqs {
		logResult(a.logger, r)
		if err := printResponse(w, r); err != nil {
			return err
		}
	}
	return nil
}

func wait(ctx context.Context, done <-chan struct{}, stop func()) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		stop()
		return ctx.Err()
	}
}
