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

	"daybrief/internal/cache"
	"daybrief/internal/citations"
	"daybrief/internal/config"
	"daybrief/internal/embed"
	"daybrief/internal/fetch"
	"daybrief/internal/llm"
	"daybrief/internal/logger"
	"daybrief/internal/pipeline"
	"daybrief/internal/rank"
	"daybrief/internal/render"
	"daybrief/internal/sections"
)

// NewBriefCmd creates the briefing generation command
func NewBriefCmd() *cobra.Command {
	briefCmd := &cobra.Command{
		Use:   "brief",
		Short: "Generate today's briefing",
		Long: `Fetch all configured sources, cluster and categorize the articles,
run the citation analysis, and write the Markdown briefing to the output
directory. Sources or LLM backends that fail shrink the briefing instead of
failing it.`,
		Run: func(cmd *cobra.Command, args []string) {
			output, _ := cmd.Flags().GetString("output")
			stdout, _ := cmd.Flags().GetBool("stdout")
			if err := runBrief(cmd.Context(), output, stdout); err != nil {
				logger.Error("Failed to generate briefing", err, nil)
				os.Exit(1)
			}
		},
	}

	briefCmd.Flags().StringP("output", "o", "briefings", "Output directory for the briefing file")
	briefCmd.Flags().Bool("stdout", false, "Print the briefing instead of writing a file")
	return briefCmd
}

func runBrief(ctx context.Context, outputDir string, stdout bool) error {
	cfg := config.Get()
	briefing, cleanup, err := buildBriefing(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	fmt.Println("📰 Building today's briefing...")
	start := time.Now()

	news := briefing.News(ctx)
	tech := briefing.TechNews(ctx)
	research := briefing.Research(ctx)

	doc := render.RenderMarkdown(render.Briefing{
		News:      news,
		TechNews:  tech,
		Research:  research.Corpus,
		Citations: research.Citations,
	})

	logger.Info("briefing built", map[string]interface{}{
		"elapsed":    time.Since(start).String(),
		"continuing": len(news.Continuing),
		"new":        len(news.New),
		"dormant":    len(news.Dormant),
	})

	if stdout {
		fmt.Print(doc)
		return nil
	}

	path, err := render.WriteBriefingToFile(doc, outputDir, news.GeneratedAt)
	if err != nil {
		return err
	}
	fmt.Printf("✅ Briefing written to %s\n", path)
	return nil
}

// buildBriefing wires the full stack from configuration. The returned cleanup
// closes the citation store.
func buildBriefing(cfg *config.Config) (*sections.Briefing, func(), error) {
	articleCache := cache.New(cfg.Cache.Directory, cache.WithRetention(cfg.Cache.RetentionDays))

	// A missing LLM key degrades the run: no embeddings, positional ranking.
	var (
		embedder pipeline.Embedder
		ranker   pipeline.Ranker
	)
	if client, err := llm.NewClient(); err != nil {
		logger.Warn("LLM unavailable, briefing will degrade", map[string]interface{}{"error": err.Error()})
	} else {
		embedder = embed.New(client)
		ranker = rank.New(client)
	}

	p, err := pipeline.New(fetch.NewClient(), articleCache, embedder, ranker)
	if err != nil {
		return nil, nil, err
	}

	store, err := citations.NewStore(cfg.Citations.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening citation store: %w", err)
	}
	analyzer := citations.NewAnalyzer(
		store,
		citations.NewArxivClient(),
		citations.NewReferenceClient(
			citations.WithReferenceTimeout(time.Duration(cfg.Citations.TimeoutSecs)*time.Second),
			citations.WithReferenceDelay(time.Duration(cfg.Citations.DelayMillis)*time.Millisecond),
		),
		citations.WithMaxAge(time.Duration(cfg.Citations.MaxAgeDays)*24*time.Hour),
	)

	cleanup := func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close citation store", err, nil)
		}
	}
	return sections.New(p, analyzer, cfg), cleanup, nil
}
