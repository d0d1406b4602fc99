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
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"daybrief/internal/citations"
	"daybrief/internal/config"
	"daybrief/internal/core"
	"daybrief/internal/logger"
)

// NewCitationsCmd creates the citation analysis command
func NewCitationsCmd() *cobra.Command {
	citationsCmd := &cobra.Command{
		Use:   "citations",
		Short: "Analyze citations among recent arXiv papers",
		Long: `Collect recent papers from the configured arXiv categories, resolve
their reference lists through the citation cache, and print the most-cited
papers. With --from-cache the analysis reruns over the SQLite cache alone,
with no fresh paper collection.`,
		Run: func(cmd *cobra.Command, args []string) {
			days, _ := cmd.Flags().GetInt("days")
			topN, _ := cmd.Flags().GetInt("top")
			minCites, _ := cmd.Flags().GetInt("min-citations")
			fromCache, _ := cmd.Flags().GetBool("from-cache")
			if err := runCitations(cmd.Context(), days, topN, minCites, fromCache); err != nil {
				logger.Error("Citation analysis failed", err, nil)
				os.Exit(1)
			}
		},
	}

	citationsCmd.Flags().Int("days", 7, "How many days of papers to analyze")
	citationsCmd.Flags().Int("top", 10, "How many papers to show")
	citationsCmd.Flags().Int("min-citations", 0, "Minimum in-degree to qualify (0 uses the configured default)")
	citationsCmd.Flags().Bool("from-cache", false, "Rebuild the ranking from the SQLite cache without fetching papers")
	return citationsCmd
}

func runCitations(ctx context.Context, days, topN, minCites int, fromCache bool) error {
	cfg := config.Get()
	if minCites <= 0 {
		minCites = cfg.Citations.MinCitations
	}

	store, err := citations.NewStore(cfg.Citations.DBPath)
	if err != nil {
		return fmt.Errorf("opening citation store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close citation store", err, nil)
		}
	}()

	analyzer := citations.NewAnalyzer(
		store,
		citations.NewArxivClient(),
		citations.NewReferenceClient(
			citations.WithReferenceTimeout(time.Duration(cfg.Citations.TimeoutSecs)*time.Second),
			citations.WithReferenceDelay(time.Duration(cfg.Citations.DelayMillis)*time.Millisecond),
		),
		citations.WithMaxAge(time.Duration(cfg.Citations.MaxAgeDays)*24*time.Hour),
	)

	var result core.CitationResult
	if fromCache {
		fmt.Println("🔎 Rebuilding citation ranking from cache...")
		result = analyzer.AnalyzeFromCache(ctx, topN, minCites)
	} else {
		fmt.Printf("🔎 Analyzing citations over the last %d days...\n", days)
		result = analyzer.Analyze(ctx, days, topN, minCites, cfg.Research.ResearchCategories)
	}

	printCitationResult(result)
	return nil
}

func printCitationResult(result core.CitationResult) {
	if len(result.Papers) == 0 {
		fmt.Println("No papers met the citation threshold.")
		if result.Error != "" {
			fmt.Printf("⚠️  %s\n", result.Error)
		}
		return
	}

	fmt.Printf("\n📚 Most-cited papers (min %d citations)\n", result.Params.MinCitations)
	fmt.Println("=======================================")
	for i, p := range result.Papers {
		title := p.Title
		if title == "" {
			title = p.ArxivID
		}
		fmt.Printf("%2d. %s\n", i+1, title)
		fmt.Printf("    %s  •  %d citations\n", p.URL, p.CitationCount)
	}
	if result.Error != "" {
		fmt.Printf("\n⚠️  Degraded: %s\n", result.Error)
	}
}
