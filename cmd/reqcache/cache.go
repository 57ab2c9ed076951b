// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCacheCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the response cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "size",
		Short: "Print the bytes used by cached responses and partial downloads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cached, err := a.d.CacheSize()
			if err != nil {
				return err
			}
			partial, err := a.d.DownloadSize()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "cache\t%d\ndownloads\t%d\n", cached, partial)
			return err
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached response and partial download",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return a.d.RemoveAll()
		},
	})
	var f requestFlags
	pathCmd := &cobra.Command{
		Use:   "path <path>",
		Short: "Print where the response of a request is cached",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := f.config(args[0])
			if err != nil {
				return err
			}
			p, err := a.d.CacheFilePath(a.d.NewRequest(c))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), p)
			return err
		},
	}
	f.register(pathCmd)
	cmd.AddCommand(pathCmd)
	return cmd
}
