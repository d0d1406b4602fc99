/*
Copyright © 2025 Your Name

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package handlers

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"daybrief/internal/cache"
	"daybrief/internal/config"
	"daybrief/internal/logger"
)

// NewCacheCmd creates the article cache management command
func NewCacheCmd() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the rolling article cache",
		Long:  `Inspect and clean the date-partitioned article cache that stores fetched articles with their embedding vectors.`,
	}

	cacheCmd.AddCommand(newCacheStatsCmd())
	cacheCmd.AddCommand(newCacheEvictCmd())

	return cacheCmd
}

func newCacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cached article counts per day",
		Run: func(cmd *cobra.Command, args []string) {
			if err := runCacheStats(); err != nil {
				logger.Error("Failed to get cache stats", err, nil)
				os.Exit(1)
			}
		},
	}
}

func newCacheEvictCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "evict",
		Short: "Remove partitions older than the retention horizon",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.Get()
			cache.New(cfg.Cache.Directory, cache.WithRetention(cfg.Cache.RetentionDays)).Evict()
			fmt.Println("✅ Old cache partitions removed")
		},
	}
}

func runCacheStats() error {
	cfg := config.Get()

	fmt.Println("📊 Article Cache")
	fmt.Println("================")

	articlesDir := filepath.Join(cfg.Cache.Directory, "articles")
	entries, err := os.ReadDir(articlesDir)
	if os.IsNotExist(err) {
		fmt.Println("Cache is empty.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read cache directory: %w", err)
	}

	var totalBytes int64
	partitions := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		partitions++
		totalBytes += info.Size()
		fmt.Printf("📄 %s  %.1f KB\n", entry.Name(), float64(info.Size())/1024)
	}

	fmt.Printf("\n%d partitions, %.2f MB, retention %d days\n",
		partitions, float64(totalBytes)/1024/1024, cfg.Cache.RetentionDays)
	return nil
}
