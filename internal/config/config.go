package config

import (
	"fmt"
	"time"

	"github.com/dshills/litsearch/pkg/types"
)

// Config is the complete engine configuration.
type Config struct {
	Log       LogConfig       `koanf:"log"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	Index     IndexConfig     `koanf:"index"`
	Search    SearchConfig    `koanf:"search"`
	Sources   SourcesConfig   `koanf:"sources"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

// LogConfig controls the shared logger.
type LogConfig struct {
	Level string `koanf:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `koanf:"json"`
}

// EmbeddingConfig selects and tunes the query embedding provider.
type EmbeddingConfig struct {
	Provider      string        `koanf:"provider"        validate:"oneof=local openai jina langchain"`
	APIKey        string        `koanf:"api_key"`
	BaseURL       string        `koanf:"base_url"        validate:"omitempty,url"`
	Model         string        `koanf:"model"`
	Dimension     int           `koanf:"dimension"       validate:"gte=0"`
	Timeout       time.Duration `koanf:"timeout"         validate:"gt=0"`
	MaxRetries    int           `koanf:"max_retries"     validate:"gte=0,lte=10"`
	MaxInputRunes int           `koanf:"max_input_runes" validate:"gte=0"`
	CacheSize     int           `koanf:"cache_size"      validate:"gte=0"`
	CachePath     string        `koanf:"cache_path"`
}

// IndexConfig locates the corpus index.
type IndexConfig struct {
	Backend string `koanf:"backend" validate:"oneof=sqlite badger"`
	Path    string `koanf:"path"`
}

// SearchConfig holds query-wide tuning.
type SearchConfig struct {
	QueryTimeout  time.Duration `koanf:"query_timeout"  validate:"gt=0"`
	SourceTimeout time.Duration `koanf:"source_timeout" validate:"gt=0"`
	DefaultLimit  int           `koanf:"default_limit"  validate:"gte=1,lte=100"`
	MinScore      float64       `koanf:"min_score"      validate:"gte=0,lte=1"`
	FloorSlack    float64       `koanf:"floor_slack"    validate:"gt=0,lte=1"`
	Overfetch     int           `koanf:"overfetch"      validate:"gte=1,lte=10"`
	DedupeByText  bool          `koanf:"dedupe_by_text"`
}

// SourceConfig tunes one corpus.
type SourceConfig struct {
	Enabled     bool    `koanf:"enabled"`
	ScaleMin    float64 `koanf:"scale_min"`
	ScaleMax    float64 `koanf:"scale_max"`
	IndexFloor  float64 `koanf:"index_floor"   validate:"gte=0,lte=1"`
	DedupeByRef bool    `koanf:"dedupe_by_ref"`
}

// HasScale reports whether a native score range is configured.
func (s SourceConfig) HasScale() bool {
	return s.ScaleMin != 0 || s.ScaleMax != 0
}

// SourcesConfig holds per-corpus settings.
type SourcesConfig struct {
	BookPage   SourceConfig `koanf:"book_page"`
	Reflection SourceConfig `koanf:"reflection"`
	Step       SourceConfig `koanf:"step"`
	Article    SourceConfig `koanf:"article"`
}

// ByType returns the settings of every corpus keyed by source type.
func (s SourcesConfig) ByType() map[types.SourceType]SourceConfig {
	return map[types.SourceType]SourceConfig{
		types.SourceBookPage:   s.BookPage,
		types.SourceReflection: s.Reflection,
		types.SourceStep:       s.Step,
		types.SourceArticle:    s.Article,
	}
}

// Enabled returns the enabled sources in canonical order.
func (s SourcesConfig) Enabled() []types.SourceType {
	byType := s.ByType()
	var out []types.SourceType
	for _, src := range types.AllSourceTypes() {
		if byType[src].Enabled {
			out = append(out, src)
		}
	}
	return out
}

// MetricsConfig controls metric collection.
type MetricsConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Textfile string `koanf:"textfile"` // When set, metrics are dumped here on shutdown
}

// Default returns the built-in configuration.
func Default() *Config {
	source := SourceConfig{Enabled: true, DedupeByRef: true}
	article := source
	article.DedupeByRef = false

	return &Config{
		Log: LogConfig{Level: "info"},
		Embedding: EmbeddingConfig{
			Provider:      "local",
			Timeout:       30 * time.Second,
			MaxRetries:    3,
			MaxInputRunes: 8000,
			CacheSize:     1000,
		},
		Index: IndexConfig{
			Backend: "sqlite",
			Path:    "litsearch.db",
		},
		Search: SearchConfig{
			QueryTimeout:  10 * time.Second,
			SourceTimeout: 3 * time.Second,
			DefaultLimit:  types.DefaultLimit,
			MinScore:      types.DefaultMinScore,
			FloorSlack:    0.95,
			Overfetch:     2,
			DedupeByText:  true,
		},
		Sources: SourcesConfig{
			BookPage:   source,
			Reflection: source,
			Step:       source,
			Article:    article,
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// validateCustom performs checks that struct tags cannot express.
func validateCustom(cfg *Config) error {
	for src, sc := range cfg.Sources.ByType() {
		if sc.HasScale() && sc.ScaleMax <= sc.ScaleMin {
			return fmt.Errorf("sources.%s: scale_max must be greater than scale_min", configKey(src))
		}
	}
	if len(cfg.Sources.Enabled()) == 0 {
		return fmt.Errorf("at least one source must be enabled")
	}
	if cfg.Search.SourceTimeout > cfg.Search.QueryTimeout {
		return fmt.Errorf("search.source_timeout must not exceed search.query_timeout")
	}
	return nil
}

func configKey(src types.SourceType) string {
	switch src {
	case types.SourceBookPage:
		return "book_page"
	default:
		return string(src)
	}
}
