// SPDX-License-Identifier: MIT
package cmd

import (
	"beatsync/internal/cache"

	"github.com/spf13/cobra"
)

func newCacheCommand(opts *options) *cobra.Command {
	var cachePath string

	// open resolves the cache file from the config unless --cache-path is set.
	open := func(cmd *cobra.Command) (*cache.Cache, string, error) {
		cfg, err := loadConfig(cmd, opts)
		if err != nil {
			return nil, "", err
		}
		path := cfg.Cache.Path
		if cmd.Flags().Changed("cache-path") {
			path = cachePath
		}
		c, err := cache.Open(path)
		return c, path, err
	}

	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or prune the BPM cache",
		Args:  cobra.NoArgs,
	}
	cacheCmd.PersistentFlags().StringVar(&cachePath, "cache-path", "", "SQLite cache file (overrides cache.path)")

	cacheCmd.AddCommand(
		&cobra.Command{
			Use:   "info",
			Short: "Show where the cache lives and how many tracks it holds",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				c, path, err := open(cmd)
				if err != nil {
					return err
				}
				defer c.Close()
				n, err := c.Len()
				if err != nil {
					return err
				}
				printf(cmd, "%s: %d tracks\n", path, n)
				return nil
			},
		},
		&cobra.Command{
			Use:   "prune",
			Short: "Remove entries for files that no longer exist",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				c, path, err := open(cmd)
				if err != nil {
					return err
				}
				defer c.Close()
				removed, err := c.Cleanup()
				if err != nil {
					return err
				}
				printf(cmd, "%s: removed %d stale entries\n", path, removed)
				return nil
			},
		},
	)
	return cacheCmd
}
