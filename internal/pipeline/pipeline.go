// Package pipeline runs the daily digest steps in strict order: ingest,
// exact dedup, clustering, cross-day merge, selection, render. Each step
// persists its output to the cache store before the next step runs.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"ainews/internal/cache"
	"ainews/internal/cluster"
	"ainews/internal/config"
	"ainews/internal/core"
	"ainews/internal/dedup"
	"ainews/internal/ingest"
	"ainews/internal/llm"
	"ainews/internal/logger"
	"ainews/internal/merge"
	"ainews/internal/render"
	"ainews/internal/selection"

	"github.com/google/uuid"
)

// Step names used in reports and error messages.
const (
	StepIngest  = "ingest"
	StepDedup   = "dedup"
	StepCluster = "cluster"
	StepMerge   = "merge"
	StepSelect  = "select"
	StepRender  = "render"
)

// StepReport summarizes one step for the run report. A skipped (disabled)
// step is distinguishable from one that ran and found nothing.
type StepReport struct {
	Name         string        `json:"name"`
	Skipped      bool          `json:"skipped"`
	Elapsed      time.Duration `json:"elapsed"`
	InputCount   int           `json:"input_count"`
	OutputCount  int           `json:"output_count"`
	Duplicates   int           `json:"duplicates,omitempty"`
	DedupRate    float64       `json:"dedup_rate,omitempty"`
	APICalls     int           `json:"api_calls"`
	APIFailures  int           `json:"api_failures"`
	FallbackUsed bool          `json:"fallback_used"`
}

// RunReport is the statistics surface of one pipeline run.
type RunReport struct {
	RunID        string                `json:"run_id"`
	StartedAt    time.Time             `json:"started_at"`
	FinishedAt   time.Time             `json:"finished_at"`
	Steps        []StepReport          `json:"steps"`
	Distribution map[core.Category]int `json:"category_distribution,omitempty"`
	TopNews      []core.RankedNews     `json:"top_news"`
	DigestPath   string                `json:"digest_path,omitempty"`
}

// Pipeline wires the steps together around one cache store handle and one
// LLM generator.
type Pipeline struct {
	cfg      *config.Config
	store    *cache.Store
	gen      llm.Generator
	ingestor *ingest.Ingestor
}

// New assembles a pipeline from configuration.
func New(cfg *config.Config, store *cache.Store, gen llm.Generator) *Pipeline {
	return &Pipeline{
		cfg:   cfg,
		store: store,
		gen:   gen,
		ingestor: ingest.New(ingest.Config{
			UserAgent:     cfg.Feeds.UserAgent,
			Timeout:       cfg.FeedTimeout(),
			MaxPerFeed:    cfg.Feeds.MaxPerFeed,
			MaxConcurrent: cfg.Feeds.MaxConcurrent,
		}),
	}
}

// Run executes the pipeline for the given reference time. A failing step
// aborts the run; the returned error names the step. The report carries
// whatever statistics were accumulated up to the failure.
func (p *Pipeline) Run(ctx context.Context, now time.Time) (RunReport, error) {
	report := RunReport{
		RunID:     uuid.NewString(),
		StartedAt: now,
	}
	logger.Info("Pipeline run starting", "run_id", report.RunID)

	articles, err := p.runIngest(ctx, &report)
	if err != nil {
		return report, fmt.Errorf("step %s: %w", StepIngest, err)
	}

	articles, err = p.runDedup(now, &report, articles)
	if err != nil {
		return report, fmt.Errorf("step %s: %w", StepDedup, err)
	}

	clusters, err := p.runCluster(ctx, &report, articles)
	if err != nil {
		return report, fmt.Errorf("step %s: %w", StepCluster, err)
	}

	clusters, err = p.runMerge(ctx, now, &report, clusters)
	if err != nil {
		return report, fmt.Errorf("step %s: %w", StepMerge, err)
	}

	topNews, err := p.runSelect(ctx, &report, clusters)
	if err != nil {
		return report, fmt.Errorf("step %s: %w", StepSelect, err)
	}
	report.TopNews = topNews

	if err := p.runRender(now, &report, topNews); err != nil {
		return report, fmt.Errorf("step %s: %w", StepRender, err)
	}

	report.FinishedAt = time.Now().UTC()
	logger.Info("Pipeline run finished",
		"run_id", report.RunID,
		"elapsed", report.FinishedAt.Sub(report.StartedAt).String(),
		"top_news", len(report.TopNews),
	)
	return report, nil
}

func (p *Pipeline) runIngest(ctx context.Context, report *RunReport) ([]core.Article, error) {
	step := StepReport{Name: StepIngest}
	if !p.cfg.Steps.Ingest.Enabled {
		step.Skipped = true
		report.Steps = append(report.Steps, step)
		logger.Info("Ingest step disabled, skipping")
		return nil, nil
	}

	start := time.Now()
	feeds, err := ingest.LoadFeeds(p.cfg.Feeds.File)
	if err != nil {
		return nil, err
	}
	result, err := p.ingestor.Run(ctx, feeds)
	step.Elapsed = time.Since(start)
	if err != nil {
		report.Steps = append(report.Steps, step)
		return nil, err
	}
	step.InputCount = result.Stats.TotalArticlesRaw
	step.OutputCount = result.Stats.ArticlesAfterFilter
	report.Steps = append(report.Steps, step)
	return result.Articles, nil
}

func (p *Pipeline) runDedup(now time.Time, report *RunReport, articles []core.Article) ([]core.Article, error) {
	step := StepReport{Name: StepDedup, InputCount: len(articles)}
	if !p.cfg.Steps.Dedup.Enabled {
		step.Skipped = true
		report.Steps = append(report.Steps, step)
		logger.Info("Dedup step disabled, passing articles through")
		return articles, nil
	}

	start := time.Now()
	result, err := dedup.New(p.store, p.cfg.Steps.Dedup.RetentionDays).Run(now, articles)
	step.Elapsed = time.Since(start)
	if err != nil {
		report.Steps = append(report.Steps, step)
		return nil, err
	}
	step.OutputCount = result.Stats.UniqueArticles
	step.Duplicates = result.Stats.DuplicatesFound
	step.DedupRate = result.Stats.DeduplicationRate
	report.Steps = append(report.Steps, step)
	return result.Unique, nil
}

func (p *Pipeline) runCluster(ctx context.Context, report *RunReport, articles []core.Article) ([]core.NewsCluster, error) {
	step := StepReport{Name: StepCluster, InputCount: len(articles)}
	if !p.cfg.Steps.Cluster.Enabled {
		step.Skipped = true
		report.Steps = append(report.Steps, step)
		logger.Info("Cluster step disabled, skipping")
		return nil, nil
	}

	orch := cluster.New(p.gen, cluster.Config{
		MaxClusters:         p.cfg.Steps.Cluster.MaxClusters,
		FallbackToSingleton: p.cfg.Steps.Cluster.FallbackToSingleton,
		Retry:               p.retryPolicy(p.cfg.Steps.Cluster.RetryAttempts),
	})
	start := time.Now()
	result, err := orch.Run(ctx, articles)
	step.Elapsed = time.Since(start)
	step.APICalls = result.Stats.APICalls
	step.APIFailures = result.Stats.APIFailures
	step.FallbackUsed = result.Stats.FallbackUsed
	step.OutputCount = result.Stats.TotalClusters
	report.Steps = append(report.Steps, step)
	if err != nil {
		return nil, err
	}
	return result.Clusters, nil
}

func (p *Pipeline) runMerge(ctx context.Context, now time.Time, report *RunReport, clusters []core.NewsCluster) ([]core.NewsCluster, error) {
	step := StepReport{Name: StepMerge, InputCount: len(clusters)}
	if !p.cfg.Steps.Merge.Enabled {
		step.Skipped = true
		report.Steps = append(report.Steps, step)
		logger.Info("Merge step disabled, passing clusters through")
		return clusters, nil
	}

	engine := merge.New(p.gen, p.store, merge.Config{
		LookbackDays:        p.cfg.Steps.Merge.LookbackDays,
		SimilarityThreshold: p.cfg.Steps.Merge.SimilarityThreshold,
		FallbackToNoMerge:   p.cfg.Steps.Merge.FallbackToNoMerge,
		Retry:               p.retryPolicy(p.cfg.Steps.Merge.RetryAttempts),
	})
	start := time.Now()
	result, err := engine.Run(ctx, now, clusters)
	step.Elapsed = time.Since(start)
	step.APICalls = result.Stats.APICalls
	step.APIFailures = result.Stats.APIFailures
	step.FallbackUsed = result.Stats.FallbackUsed
	step.OutputCount = result.Stats.NewsAfterDedup
	step.Duplicates = result.Stats.DuplicatesFound
	report.Steps = append(report.Steps, step)
	if err != nil {
		return nil, err
	}
	return result.News, nil
}

func (p *Pipeline) runSelect(ctx context.Context, report *RunReport, clusters []core.NewsCluster) ([]core.RankedNews, error) {
	step := StepReport{Name: StepSelect, InputCount: len(clusters)}
	if !p.cfg.Steps.Select.Enabled {
		step.Skipped = true
		report.Steps = append(report.Steps, step)
		logger.Info("Select step disabled, skipping")
		return nil, nil
	}

	sel := selection.New(p.gen, selection.Config{
		TargetCount:        p.cfg.Steps.Select.TargetCount,
		MinScore:           p.cfg.Steps.Select.MinScore,
		FallbackToDefaults: p.cfg.Steps.Select.FallbackToDefaults,
		Retry:              p.retryPolicy(p.cfg.Steps.Select.RetryAttempts),
	})
	start := time.Now()
	result, err := sel.Run(ctx, clusters)
	step.Elapsed = time.Since(start)
	step.APICalls = result.Stats.APICalls
	step.APIFailures = result.Stats.APIFailures
	step.FallbackUsed = result.Stats.FallbackUsed
	step.OutputCount = len(result.TopNews)
	report.Steps = append(report.Steps, step)
	if err != nil {
		return nil, err
	}
	report.Distribution = result.Distribution
	return result.TopNews, nil
}

func (p *Pipeline) runRender(now time.Time, report *RunReport, news []core.RankedNews) error {
	step := StepReport{Name: StepRender, InputCount: len(news)}
	if !p.cfg.Steps.Render.Enabled {
		step.Skipped = true
		report.Steps = append(report.Steps, step)
		logger.Info("Render step disabled, skipping")
		return nil
	}

	start := time.Now()
	path, err := render.WriteDigest(p.cfg.Output.Dir, news, now)
	step.Elapsed = time.Since(start)
	if err != nil {
		report.Steps = append(report.Steps, step)
		return err
	}
	step.OutputCount = 1
	report.Steps = append(report.Steps, step)
	report.DigestPath = path
	return nil
}

func (p *Pipeline) retryPolicy(attempts int) llm.RetryPolicy {
	policy := llm.DefaultRetryPolicy()
	if attempts > 0 {
		policy.Attempts = attempts
	}
	return policy
}
