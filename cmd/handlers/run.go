package handlers

import (
	"context"
	"fmt"
	"os"
	"time"

	"ainews/internal/cache"
	"ainews/internal/config"
	"ainews/internal/llm"
	"ainews/internal/logger"
	"ainews/internal/pipeline"

	"github.com/spf13/cobra"
)

// NewRunCmd creates the command that executes the full digest pipeline
func NewRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full digest pipeline for today",
		Long: `Execute every pipeline step in order: ingest feeds, deduplicate against
the article cache, cluster articles into news items, merge with recent
days, score and select the top items, and write the Markdown digest.`,
		Run: func(cmd *cobra.Command, args []string) {
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			if err := runPipeline(cmd.Context(), dryRun); err != nil {
				logger.Error("Pipeline run failed", err)
				os.Exit(1)
			}
		},
	}

	runCmd.Flags().Bool("dry-run", false, "Run every step except writing the digest file")
	return runCmd
}

func runPipeline(ctx context.Context, dryRun bool) error {
	cfg := config.Get()
	if dryRun {
		cfg.Steps.Render.Enabled = false
	}

	store, err := cache.NewStore(cfg.Cache.Dir)
	if err != nil {
		return fmt.Errorf("failed to initialize cache store: %w", err)
	}

	gen, err := llm.NewClient(llm.Options{
		Model:       cfg.Gemini.Model,
		Temperature: cfg.Gemini.Temperature,
		Timeout:     cfg.GeminiTimeout(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize Gemini client: %w", err)
	}

	report, err := pipeline.New(cfg, store, gen).Run(ctx, time.Now().UTC())
	printReport(report)
	if err != nil {
		return err
	}
	return nil
}

func printReport(report pipeline.RunReport) {
	fmt.Println("📰 Pipeline Run Report")
	fmt.Println("======================")
	fmt.Printf("Run ID: %s\n\n", report.RunID)

	for _, step := range report.Steps {
		if step.Skipped {
			fmt.Printf("  %-8s skipped (disabled)\n", step.Name)
			continue
		}
		line := fmt.Sprintf("  %-8s %d → %d in %s", step.Name, step.InputCount, step.OutputCount, step.Elapsed.Round(time.Millisecond))
		if step.Duplicates > 0 {
			line += fmt.Sprintf(", %d duplicate(s)", step.Duplicates)
		}
		if step.APICalls > 0 {
			line += fmt.Sprintf(", %d API call(s)", step.APICalls)
		}
		if step.APIFailures > 0 {
			line += fmt.Sprintf(", %d failure(s)", step.APIFailures)
		}
		if step.FallbackUsed {
			line += ", fallback used"
		}
		fmt.Println(line)
	}

	if len(report.Distribution) > 0 {
		fmt.Println("\n📊 Category distribution:")
		for category, count := range report.Distribution {
			fmt.Printf("  %-20s %d\n", category, count)
		}
	}
	if len(report.TopNews) > 0 {
		fmt.Printf("\n🏆 Top %d news item(s):\n", len(report.TopNews))
		for i, item := range report.TopNews {
			fmt.Printf("  %2d. [%.1f] %s\n", i+1, item.ImportanceScore, item.Cluster.Title)
		}
	}
	if report.DigestPath != "" {
		fmt.Printf("\n✅ Digest written to %s\n", report.DigestPath)
	}
}
