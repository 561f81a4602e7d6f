package handlers

import (
	"fmt"
	"os"
	"time"

	"ainews/internal/cache"
	"ainews/internal/config"
	"ainews/internal/logger"

	"github.com/spf13/cobra"
)

// NewCacheCmd creates the cache management command
func NewCacheCmd() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the article and news cache",
		Long:  `Inspect and clean the date-partitioned JSON cache of articles and news items.`,
	}

	// Add subcommands
	cacheCmd.AddCommand(newCacheStatsCmd())
	cacheCmd.AddCommand(newCacheCleanCmd())

	return cacheCmd
}

func newCacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		Long:  `Display partition and record counts for the article and news caches.`,
		Run: func(cmd *cobra.Command, args []string) {
			if err := runCacheStats(); err != nil {
				logger.Error("Failed to get cache stats", err)
				os.Exit(1)
			}
		},
	}
}

func newCacheCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove cache partitions older than the retention windows",
		Long: `Delete article partitions older than the dedup retention window and news
partitions older than the merge lookback window.`,
		Run: func(cmd *cobra.Command, args []string) {
			if err := runCacheClean(); err != nil {
				logger.Error("Failed to clean cache", err)
				os.Exit(1)
			}
		},
	}
}

func runCacheStats() error {
	fmt.Println("📊 Cache Statistics")
	fmt.Println("==================")

	cfg := config.Get()
	store, err := cache.NewStore(cfg.Cache.Dir)
	if err != nil {
		return fmt.Errorf("failed to initialize cache store: %w", err)
	}

	stats, err := store.CollectStats()
	if err != nil {
		return fmt.Errorf("failed to collect cache statistics: %w", err)
	}

	fmt.Printf("📁 Cache directory: %s\n", store.Dir())
	fmt.Printf("📄 Article partitions: %d (%d articles)\n", stats.ArticleFiles, stats.Articles)
	fmt.Printf("📰 News partitions: %d (%d news items)\n", stats.NewsFiles, stats.News)
	fmt.Printf("💾 Cache size: %.2f MB\n", float64(stats.SizeBytes)/1024/1024)

	return nil
}

func runCacheClean() error {
	fmt.Println("🗑️  Cleaning cache...")

	cfg := config.Get()
	store, err := cache.NewStore(cfg.Cache.Dir)
	if err != nil {
		return fmt.Errorf("failed to initialize cache store: %w", err)
	}

	removed, err := store.Clean(time.Now().UTC(), cfg.Steps.Dedup.RetentionDays, cfg.Steps.Merge.LookbackDays)
	if err != nil {
		return fmt.Errorf("failed to clean cache: %w", err)
	}

	fmt.Printf("✅ Removed %d expired partition(s)\n", removed)
	return nil
}
