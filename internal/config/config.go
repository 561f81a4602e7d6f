// Package config loads application configuration from file, environment and
// defaults using viper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Cache  Cache  `mapstructure:"cache"`
	Output Output `mapstructure:"output"`
	Feeds  Feeds  `mapstructure:"feeds"`
	Gemini Gemini `mapstructure:"gemini"`
	Steps  Steps  `mapstructure:"steps"`
}

// Cache holds cache store configuration.
type Cache struct {
	Dir string `mapstructure:"dir"`
}

// Output holds digest output configuration.
type Output struct {
	Dir string `mapstructure:"dir"`
}

// Feeds holds feed list configuration.
type Feeds struct {
	File          string `mapstructure:"file"`
	UserAgent     string `mapstructure:"user_agent"`
	Timeout       string `mapstructure:"timeout"`
	MaxPerFeed    int    `mapstructure:"max_per_feed"`
	MaxConcurrent int    `mapstructure:"max_concurrent"`
}

// Gemini holds LLM client configuration.
type Gemini struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Timeout     string  `mapstructure:"timeout"`
	Temperature float64 `mapstructure:"temperature"`
}

// Steps holds per-step pipeline configuration.
type Steps struct {
	Ingest  IngestStep  `mapstructure:"ingest"`
	Dedup   DedupStep   `mapstructure:"dedup"`
	Cluster ClusterStep `mapstructure:"cluster"`
	Merge   MergeStep   `mapstructure:"merge"`
	Select  SelectStep  `mapstructure:"select"`
	Render  RenderStep  `mapstructure:"render"`
}

// IngestStep configures RSS ingestion.
type IngestStep struct {
	Enabled bool `mapstructure:"enabled"`
}

// DedupStep configures exact article deduplication.
type DedupStep struct {
	Enabled       bool `mapstructure:"enabled"`
	RetentionDays int  `mapstructure:"retention_days"`
}

// ClusterStep configures LLM clustering.
type ClusterStep struct {
	Enabled             bool `mapstructure:"enabled"`
	MaxClusters         int  `mapstructure:"max_clusters"`
	RetryAttempts       int  `mapstructure:"retry_attempts"`
	FallbackToSingleton bool `mapstructure:"fallback_to_singleton"`
}

// MergeStep configures cross-day news deduplication.
type MergeStep struct {
	Enabled             bool    `mapstructure:"enabled"`
	LookbackDays        int     `mapstructure:"lookback_days"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	RetryAttempts       int     `mapstructure:"retry_attempts"`
	FallbackToNoMerge   bool    `mapstructure:"fallback_to_no_merge"`
}

// SelectStep configures categorization, scoring and selection.
type SelectStep struct {
	Enabled            bool    `mapstructure:"enabled"`
	TargetCount        int     `mapstructure:"target_count"`
	MinScore           float64 `mapstructure:"min_score"`
	RetryAttempts      int     `mapstructure:"retry_attempts"`
	FallbackToDefaults bool    `mapstructure:"fallback_to_defaults"`
}

// RenderStep configures digest rendering.
type RenderStep struct {
	Enabled bool `mapstructure:"enabled"`
}

var globalConfig *Config

// Load reads configuration from the given file (or the default search path
// when empty), layered over environment variables and built-in defaults.
func Load(configFile string) (*Config, error) {
	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".ainews")
		viper.SetConfigType("yaml")
	}

	setDefaults()

	// The Gemini key commonly lives in the environment rather than the file.
	_ = viper.BindEnv("gemini.api_key", "GEMINI_API_KEY", "GOOGLE_GEMINI_API_KEY", "GOOGLE_AI_API_KEY")

	viper.SetEnvPrefix("AINEWS")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary.
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

func setDefaults() {
	viper.SetDefault("cache.dir", "cache")
	viper.SetDefault("output.dir", "digest")

	viper.SetDefault("feeds.file", "feeds.yaml")
	viper.SetDefault("feeds.user_agent", "ainews/1.0")
	viper.SetDefault("feeds.timeout", "30s")
	viper.SetDefault("feeds.max_per_feed", 50)
	viper.SetDefault("feeds.max_concurrent", 5)

	viper.SetDefault("gemini.model", "gemini-2.5-flash-lite")
	viper.SetDefault("gemini.timeout", "30s")
	viper.SetDefault("gemini.temperature", 0.3)

	viper.SetDefault("steps.ingest.enabled", true)
	viper.SetDefault("steps.dedup.enabled", true)
	viper.SetDefault("steps.dedup.retention_days", 10)
	viper.SetDefault("steps.cluster.enabled", true)
	viper.SetDefault("steps.cluster.max_clusters", 20)
	viper.SetDefault("steps.cluster.retry_attempts", 3)
	viper.SetDefault("steps.cluster.fallback_to_singleton", true)
	viper.SetDefault("steps.merge.enabled", true)
	viper.SetDefault("steps.merge.lookback_days", 3)
	viper.SetDefault("steps.merge.similarity_threshold", 0.85)
	viper.SetDefault("steps.merge.retry_attempts", 3)
	viper.SetDefault("steps.merge.fallback_to_no_merge", true)
	viper.SetDefault("steps.select.enabled", true)
	viper.SetDefault("steps.select.target_count", 10)
	viper.SetDefault("steps.select.min_score", 0.0)
	viper.SetDefault("steps.select.retry_attempts", 3)
	viper.SetDefault("steps.select.fallback_to_defaults", true)
	viper.SetDefault("steps.render.enabled", true)
}

func validate(c *Config) error {
	if c.Steps.Dedup.RetentionDays < 1 {
		return fmt.Errorf("steps.dedup.retention_days must be at least 1, got %d", c.Steps.Dedup.RetentionDays)
	}
	if c.Steps.Merge.LookbackDays < 1 {
		return fmt.Errorf("steps.merge.lookback_days must be at least 1, got %d", c.Steps.Merge.LookbackDays)
	}
	if c.Steps.Select.TargetCount < 1 {
		return fmt.Errorf("steps.select.target_count must be at least 1, got %d", c.Steps.Select.TargetCount)
	}
	if t := c.Steps.Merge.SimilarityThreshold; t < 0.0 || t > 1.0 {
		return fmt.Errorf("steps.merge.similarity_threshold must be in [0, 1], got %g", t)
	}
	if _, err := time.ParseDuration(c.Gemini.Timeout); err != nil {
		return fmt.Errorf("gemini.timeout is not a valid duration: %w", err)
	}
	if _, err := time.ParseDuration(c.Feeds.Timeout); err != nil {
		return fmt.Errorf("feeds.timeout is not a valid duration: %w", err)
	}
	return nil
}

// GeminiTimeout returns the parsed LLM call timeout.
func (c *Config) GeminiTimeout() time.Duration {
	d, err := time.ParseDuration(c.Gemini.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// FeedTimeout returns the parsed per-feed fetch timeout.
func (c *Config) FeedTimeout() time.Duration {
	d, err := time.ParseDuration(c.Feeds.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}
