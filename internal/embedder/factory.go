package embedder

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Config holds embedder configuration
type Config struct {
	Provider      string
	APIKey        string
	BaseURL       string
	Model         string
	Dimension     int
	Timeout       time.Duration
	MaxRetries    int
	MaxInputRunes int
	CacheSize     int
	CachePath     string // bbolt file; empty keeps the cache in memory only
}

// New creates an embedder with explicit configuration.
// An empty APIKey falls back to OPENAI_API_KEY / JINA_API_KEY.
func New(cfg Config, logger *log.Logger) (Embedder, error) {
	if logger == nil {
		logger = log.Default()
	}

	cache, err := newCache(cfg, logger)
	if err != nil {
		return nil, err
	}

	opts := []ProviderOption{
		WithBaseURL(cfg.BaseURL),
		WithModel(cfg.Model),
		WithDimension(cfg.Dimension),
		WithMaxInputRunes(cfg.MaxInputRunes),
		WithLogger(logger),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}
	if cfg.MaxRetries > 0 {
		retry := DefaultRetryConfig()
		retry.MaxRetries = cfg.MaxRetries
		opts = append(opts, WithRetryConfig(retry))
	}

	var emb Embedder
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderJina:
		emb, err = NewJinaProvider(cfg.APIKey, cache, opts...)
	case ProviderOpenAI:
		emb, err = NewOpenAIProvider(cfg.APIKey, cache, opts...)
	case ProviderLangChain:
		emb, err = NewLangChainProvider(cfg.APIKey, cache, opts...)
	case ProviderLocal, "":
		emb, err = NewLocalProvider(cache, opts...)
	default:
		err = fmt.Errorf("%w: unknown provider %s", ErrUnsupportedProvider, cfg.Provider)
	}
	if err != nil {
		_ = closeCache(cache)
		return nil, err
	}
	return emb, nil
}

func newCache(cfg Config, logger *log.Logger) (VectorCache, error) {
	if cfg.CachePath != "" {
		return NewBoltCache(cfg.CachePath, cfg.CacheSize, logger)
	}
	if cfg.CacheSize > 0 {
		return NewCache(cfg.CacheSize), nil
	}
	return nil, nil
}
