package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dshills/litsearch/internal/aggregator"
	"github.com/dshills/litsearch/internal/citation"
	"github.com/dshills/litsearch/internal/config"
	"github.com/dshills/litsearch/internal/embedder"
	"github.com/dshills/litsearch/internal/metrics"
	"github.com/dshills/litsearch/internal/ranking"
	"github.com/dshills/litsearch/internal/searcher"
	"github.com/dshills/litsearch/internal/storage"
	"github.com/dshills/litsearch/pkg/types"
)

// SearchOptions tunes one search. A zero Limit or nil MinScore takes the
// configured default.
type SearchOptions struct {
	Limit       int
	MinScore    *float64
	SourceTypes []types.SourceType
}

// Engine owns the index, the embedder and the aggregator built from one
// configuration. It is safe for concurrent use.
type Engine struct {
	cfg        *config.Config
	store      storage.Storage
	embedder   embedder.Embedder
	aggregator *aggregator.Aggregator
	metrics    *metrics.Metrics
	logger     *log.Logger

	ownsStore    bool
	ownsEmbedder bool
}

// Option configures an Engine
type Option func(*options)

type options struct {
	logger   *log.Logger
	store    storage.Storage
	embedder embedder.Embedder
	registry *prometheus.Registry
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithStorage uses an already open index instead of opening cfg.Index.
// The caller keeps ownership and closes it.
func WithStorage(store storage.Storage) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithEmbedder uses emb instead of building one from cfg.Embedding.
// The caller keeps ownership and closes it.
func WithEmbedder(emb embedder.Embedder) Option {
	return func(o *options) {
		o.embedder = emb
	}
}

// WithRegistry registers metrics on reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// New builds an Engine from cfg. A nil cfg uses config.Default().
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = log.Default()
	}

	e := &Engine{cfg: cfg, logger: o.logger}

	if cfg.Metrics.Enabled {
		m, err := metrics.New(o.registry)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize metrics: %w", err)
		}
		e.metrics = m
	}

	e.store = o.store
	if e.store == nil {
		store, err := storage.Open(cfg.Index.Backend, cfg.Index.Path, o.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open index: %w", err)
		}
		e.store, e.ownsStore = store, true
	}

	e.embedder = o.embedder
	if e.embedder == nil {
		emb, err := embedder.New(embedderConfig(cfg.Embedding), o.logger)
		if err != nil {
			_ = e.closeOwned()
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
		e.embedder, e.ownsEmbedder = emb, true
	}

	agg, err := aggregator.New(e.embedder, e.buildSearchers(),
		aggregator.WithNormalizer(buildNormalizer(cfg)),
		aggregator.WithDedup(buildDedup(cfg)),
		aggregator.WithQueryTimeout(cfg.Search.QueryTimeout),
		aggregator.WithSourceTimeout(cfg.Search.SourceTimeout),
		aggregator.WithMetrics(e.metrics),
		aggregator.WithLogger(o.logger),
	)
	if err != nil {
		_ = e.closeOwned()
		return nil, fmt.Errorf("failed to initialize aggregator: %w", err)
	}
	e.aggregator = agg

	o.logger.Debug("engine ready",
		"backend", cfg.Index.Backend,
		"provider", e.embedder.Provider(),
		"model", e.embedder.Model(),
		"sources", agg.Sources())
	return e, nil
}

func embedderConfig(c config.EmbeddingConfig) embedder.Config {
	return embedder.Config{
		Provider:      c.Provider,
		APIKey:        c.APIKey,
		BaseURL:       c.BaseURL,
		Model:         c.Model,
		Dimension:     c.Dimension,
		Timeout:       c.Timeout,
		MaxRetries:    c.MaxRetries,
		MaxInputRunes: c.MaxInputRunes,
		CacheSize:     c.CacheSize,
		CachePath:     c.CachePath,
	}
}

func (e *Engine) buildSearchers() []searcher.SourceSearcher {
	byType := e.cfg.Sources.ByType()
	var out []searcher.SourceSearcher
	for _, src := range e.cfg.Sources.Enabled() {
		s, err := searcher.New(src, e.store,
			searcher.WithIndexFloor(byType[src].IndexFloor),
			searcher.WithOverfetch(e.cfg.Search.Overfetch),
			searcher.WithLogger(e.logger.With("source", string(src))),
		)
		if err != nil {
			// Enabled only yields known sources.
			e.logger.Error("skipping source", "source", src, "error", err)
			continue
		}
		out = append(out, s)
	}
	return out
}

func buildNormalizer(cfg *config.Config) *ranking.Normalizer {
	scales := make(map[types.SourceType]ranking.Scale)
	for src, sc := range cfg.Sources.ByType() {
		if sc.HasScale() {
			scales[src] = ranking.Scale{Min: sc.ScaleMin, Max: sc.ScaleMax}
		}
	}
	return ranking.NewNormalizer(scales, ranking.WithFloorSlack(cfg.Search.FloorSlack))
}

func buildDedup(cfg *config.Config) ranking.DedupOptions {
	byRef := make(map[types.SourceType]bool)
	for src, sc := range cfg.Sources.ByType() {
		byRef[src] = sc.DedupeByRef
	}
	return ranking.DedupOptions{ByRef: byRef, ByText: cfg.Search.DedupeByText}
}

func (e *Engine) query(text string, opts SearchOptions) types.SearchQuery {
	q := types.SearchQuery{
		Text:        text,
		Limit:       opts.Limit,
		MinScore:    opts.MinScore,
		SourceTypes: opts.SourceTypes,
	}
	if q.Limit == 0 {
		q.Limit = e.cfg.Search.DefaultLimit
	}
	if q.MinScore == nil {
		q.MinScore = types.ScoreFloor(e.cfg.Search.MinScore)
	}
	return q
}

// SearchCombinedSources searches every enabled corpus, or opts.SourceTypes.
func (e *Engine) SearchCombinedSources(ctx context.Context, text string, opts SearchOptions) (*aggregator.Response, error) {
	return e.aggregator.SearchCombinedSources(ctx, e.query(text, opts))
}

// Search runs a fully specified query, e.g. one carrying a precomputed embedding.
func (e *Engine) Search(ctx context.Context, q types.SearchQuery) (*aggregator.Response, error) {
	if q.Limit == 0 {
		q.Limit = e.cfg.Search.DefaultLimit
	}
	if q.MinScore == nil {
		q.MinScore = types.ScoreFloor(e.cfg.Search.MinScore)
	}
	return e.aggregator.SearchCombinedSources(ctx, q)
}

// SearchBigBookPages searches only the Big Book page index. opts.SourceTypes is ignored.
func (e *Engine) SearchBigBookPages(ctx context.Context, text string, opts SearchOptions) (*aggregator.Response, error) {
	q := e.query(text, opts)
	return e.aggregator.SearchBigBookPages(ctx, q.Text, q.Limit, q.Floor())
}

// FormatCitations renders results as citations.
func (e *Engine) FormatCitations(results []types.ScoredChunk) []types.Citation {
	return citation.FormatCitations(results)
}

// RenderContext renders results as numbered context blocks for an answer generator.
func (e *Engine) RenderContext(results []types.ScoredChunk) string {
	return citation.RenderContext(citation.FormatCitations(results), results)
}

// Embed embeds text with the configured provider.
func (e *Engine) Embed(ctx context.Context, text string) (*embedder.Embedding, error) {
	emb, err := e.embedder.Embed(ctx, text)
	outcome := metrics.OutcomeOK
	switch {
	case errors.Is(err, types.ErrProviderRejected):
		outcome = metrics.OutcomeRejected
	case errors.Is(err, types.ErrProviderUnavailable):
		outcome = metrics.OutcomeUnavailable
	case err != nil:
		outcome = metrics.OutcomeError
	}
	e.metrics.ObserveEmbedding(e.embedder.Provider(), outcome)
	return emb, err
}

// Store returns the index. Writes are only meant for fixtures.
func (e *Engine) Store() storage.Storage {
	return e.store
}

// Embedder returns the query embedder.
func (e *Engine) Embedder() embedder.Embedder {
	return e.embedder
}

// Metrics returns the metrics collectors, nil when disabled.
func (e *Engine) Metrics() *metrics.Metrics {
	return e.metrics
}

// Close dumps metrics when configured and releases owned resources.
func (e *Engine) Close() error {
	var errs []error
	if path := e.cfg.Metrics.Textfile; path != "" {
		if err := e.metrics.WriteTextfile(path); err != nil {
			errs = append(errs, fmt.Errorf("failed to write metrics: %w", err))
		}
	}
	if err := e.closeOwned(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (e *Engine) closeOwned() error {
	var errs []error
	if e.ownsEmbedder && e.embedder != nil {
		if err := e.embedder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close embedder: %w", err))
		}
	}
	if e.ownsStore && e.store != nil {
		if err := e.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close index: %w", err))
		}
	}
	return errors.Join(errs...)
}
