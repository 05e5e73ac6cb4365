package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ContentCurator/internal/app"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the URL and content cache",
	}

	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCachePurgeCommand(ctx))

	return cacheCmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache entry counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := app.OpenCache(cfg, ctx.logger(cmd))
			if err != nil {
				return err
			}

			stats := store.Stats()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Directory: %s\n", cfg.Cache.Dir)
			fmt.Fprintf(out, "URLs:      %d (%d within %s)\n", stats.URLs, stats.ValidURLs, cfg.Cache.URLMaxAge)
			fmt.Fprintf(out, "Contents:  %d (%d within %s)\n", stats.Contents, stats.ValidContent, cfg.Cache.ContentMaxAge)
			if store.Degraded() {
				fmt.Fprintln(out, "Warning: a cache file could not be read; running on an empty map")
			}
			return nil
		},
	}
}

func newCachePurgeCommand(ctx *commandContext) *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove cache entries older than --max-age",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if maxAge <= 0 {
				maxAge = cfg.Cache.ContentMaxAge
			}
			store, err := app.OpenCache(cfg, ctx.logger(cmd))
			if err != nil {
				return err
			}

			stats, err := store.PurgeExpired(maxAge)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d URLs and %d content entries older than %s\n",
				stats.URLsRemoved, stats.ContentRemoved, maxAge)
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "Maximum entry age (defaults to the content max age)")
	return cmd
}

func newMaintainCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "maintain",
		Short: "Purge the cache periodically until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return app.Maintain(cmd.Context(), cfg, ctx.logger(cmd))
		},
	}
}
