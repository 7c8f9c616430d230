// SPDX-License-Identifier: MIT
package cmd

import (
	"strings"

	"beatsync/internal/analysis"
	"beatsync/internal/cache"
	"beatsync/internal/source"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newAnalyzeCommand(opts *options) *cobra.Command {
	var (
		noCache   bool
		cachePath string
		showBeats bool
	)

	registry := source.DefaultRegistry()
	analyzeCmd := &cobra.Command{
		Use:   "analyze <file>...",
		Short: "Detect the tempo of audio files (" + strings.Join(registry.Formats(), ", ") + ")",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("cache-path") {
				cfg.Cache.Path = cachePath
			}

			var c *cache.Cache
			if cfg.Cache.Enabled && !noCache {
				c, err = cache.Open(cfg.Cache.Path)
				if err != nil {
					return err
				}
				defer c.Close()
			}

			analyzer := analysis.NewFileAnalyzer(cfg.BeatConfigAt, registry, c)
			analyzer.SetBeatTimes(showBeats)
			for _, path := range args {
				res, err := analyzer.AnalyzeFile(cmd.Context(), path)
				if err != nil {
					return err
				}

				cached := ""
				if res.Cached {
					cached = " (cached)"
				}
				printf(cmd, "%s: %d BPM, %d beats, %.1fs%s\n", res.Path, res.BPM, res.Beats, res.Duration, cached)
				if showBeats {
					for _, at := range res.BeatTimes {
						printf(cmd, "  %9.3f\n", at)
					}
				}
			}
			return nil
		},
	}

	flags := analyzeCmd.Flags()
	flags.BoolVar(&noCache, "no-cache", false, "Do not read or write the BPM cache")
	flags.StringVar(&cachePath, "cache-path", "", "SQLite cache file (overrides cache.path)")
	flags.BoolVar(&showBeats, "beats", false, "Print the time of every detected beat")
	return analyzeCmd
}

func newConfigCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}
