// Package config loads and validates application configuration from the
// config file, environment variables, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"daybrief/internal/core"
)

// Config holds all application configuration.
type Config struct {
	App        App        `mapstructure:"app"`
	AI         AI         `mapstructure:"ai"`
	Sources    []Source   `mapstructure:"sources"`
	Content    Content    `mapstructure:"content_preferences"`
	Research   Research   `mapstructure:"research_preferences"`
	Clustering Clustering `mapstructure:"clustering"`
	Citations  Citations  `mapstructure:"citations"`
	Cache      Cache      `mapstructure:"cache"`

	// Passthrough preferences consumed by callers, not the core.
	FocusAreas       []string `mapstructure:"focus_areas"`
	ExcludeTopics    []string `mapstructure:"exclude_topics"`
	PreferredSources []string `mapstructure:"preferred_sources"`
}

// App holds general application configuration.
type App struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
	DataDir  string `mapstructure:"data_dir"`
}

// AI holds LLM backend configuration.
type AI struct {
	OpenAI OpenAIConfig `mapstructure:"openai"`
}

// OpenAIConfig holds OpenAI API configuration.
type OpenAIConfig struct {
	APIKey              string `mapstructure:"api_key"`
	Model               string `mapstructure:"model"`
	BaseURL             string `mapstructure:"base_url"`
	EmbeddingModel      string `mapstructure:"embedding_model"`
	EmbeddingDimensions int    `mapstructure:"embedding_dimensions"`
}

// Source is one configured information stream.
type Source struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
	Type string `mapstructure:"type"` // rss | scrape | tldr | hn-daily
}

// Content holds content shaping preferences.
type Content struct {
	MinArticleAgeHours    int  `mapstructure:"min_article_age_hours"`
	MaxArticlesPerSection int  `mapstructure:"max_articles_per_section"`
	HybridResearchRanking bool `mapstructure:"hybrid_research_ranking"`
}

// Research holds research-section preferences.
type Research struct {
	MaxResearchPapers  int      `mapstructure:"max_research_papers"`
	ResearchCategories []string `mapstructure:"research_categories"`
}

// Clustering holds clustering tunables. The threshold and eps step were fixed
// magic numbers upstream; they are exposed here instead.
type Clustering struct {
	Algorithm  string  `mapstructure:"algorithm"` // "threshold" | "dbscan"
	Threshold  float64 `mapstructure:"threshold"`
	EpsStep    float64 `mapstructure:"eps_step"`
	CorpusDays int     `mapstructure:"corpus_days"`
	TodayDays  int     `mapstructure:"today_days"`
}

// Citations holds citation analyzer configuration.
type Citations struct {
	DBPath       string `mapstructure:"db_path"`
	MaxAgeDays   int    `mapstructure:"max_age_days"`
	TimeoutSecs  int    `mapstructure:"timeout_seconds"`
	DelayMillis  int    `mapstructure:"delay_ms"`
	MinCitations int    `mapstructure:"min_citations"`
}

// Cache holds article cache configuration.
type Cache struct {
	Directory     string `mapstructure:"directory"`
	RetentionDays int    `mapstructure:"retention_days"`
}

var globalConfig *Config

// Load loads the configuration from the config file, environment, and
// defaults. Config errors are fatal before any I/O starts.
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".daybrief")
		viper.SetConfigType("yaml")
	}

	setDefaults()

	_ = viper.BindEnv("ai.openai.api_key", "OPENAI_API_KEY")
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

// Reset clears the cached global config. Intended for tests.
func Reset() {
	globalConfig = nil
	viper.Reset()
}

func setDefaults() {
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.log_level", "info")
	viper.SetDefault("app.data_dir", ".daybrief")

	viper.SetDefault("ai.openai.model", "gpt-4o-mini")
	viper.SetDefault("ai.openai.embedding_model", "text-embedding-3-small")
	viper.SetDefault("ai.openai.embedding_dimensions", 256)

	viper.SetDefault("content_preferences.min_article_age_hours", 0)
	viper.SetDefault("content_preferences.hybrid_research_ranking", false)

	viper.SetDefault("research_preferences.max_research_papers", 10)

	viper.SetDefault("clustering.algorithm", "threshold")
	viper.SetDefault("clustering.threshold", 0.575)
	viper.SetDefault("clustering.eps_step", 0.01)
	viper.SetDefault("clustering.corpus_days", 3)
	viper.SetDefault("clustering.today_days", 1)

	viper.SetDefault("citations.db_path", ".daybrief/citations.db")
	viper.SetDefault("citations.max_age_days", 30)
	viper.SetDefault("citations.timeout_seconds", 30)
	viper.SetDefault("citations.delay_ms", 500)
	viper.SetDefault("citations.min_citations", 2)

	viper.SetDefault("cache.directory", ".daybrief")
	viper.SetDefault("cache.retention_days", 7)
}

// validate rejects configurations the pipeline could not run with.
func validate(config *Config) error {
	for i, src := range config.Sources {
		switch core.SourceType(src.Type) {
		case core.SourceRSS, core.SourceScrape:
			if src.URL == "" {
				return fmt.Errorf("source %q (index %d): type %q requires a url", src.Name, i, src.Type)
			}
		case core.SourceTLDR, core.SourceHNDaily:
			// URL optional; constructed from today's date.
		default:
			return fmt.Errorf("source %q (index %d): unknown type %q", src.Name, i, src.Type)
		}
		if src.Name == "" {
			return fmt.Errorf("source at index %d has no name", i)
		}
	}

	if config.Clustering.Threshold <= 0 || config.Clustering.Threshold >= 1 {
		return fmt.Errorf("clustering.threshold must be in (0, 1), got %v", config.Clustering.Threshold)
	}
	if config.Cache.RetentionDays <= 0 {
		return fmt.Errorf("cache.retention_days must be positive, got %d", config.Cache.RetentionDays)
	}
	return nil
}

// CoreSources converts configured sources into core source records.
func (c *Config) CoreSources() []core.Source {
	sources := make([]core.Source, 0, len(c.Sources))
	for _, src := range c.Sources {
		sources = append(sources, core.Source{
			Name: src.Name,
			URL:  src.URL,
			Type: core.SourceType(src.Type),
		})
	}
	return sources
}

// DefaultNewsSources is the hard-coded fallback when no sources are configured.
func DefaultNewsSources() []core.Source {
	return []core.Source{
		{Name: "Ars Technica", URL: "https://feeds.arstechnica.com/arstechnica/index", Type: core.SourceRSS},
		{Name: "The Verge", URL: "https://www.theverge.com/rss/index.xml", Type: core.SourceRSS},
		{Name: "TLDR", Type: core.SourceTLDR},
		{Name: "HN Daily", Type: core.SourceHNDaily},
	}
}

// DefaultResearchSources is the hard-coded fallback for the research section.
func DefaultResearchSources() []core.Source {
	return []core.Source{
		{Name: "arXiv cs.AI", URL: "https://rss.arxiv.org/rss/cs.AI", Type: core.SourceRSS},
		{Name: "arXiv cs.CL", URL: "https://rss.arxiv.org/rss/cs.CL", Type: core.SourceRSS},
	}
}
