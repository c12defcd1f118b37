package aggregator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dshills/litsearch/internal/embedder"
	"github.com/dshills/litsearch/internal/metrics"
	"github.com/dshills/litsearch/internal/ranking"
	"github.com/dshills/litsearch/internal/searcher"
	"github.com/dshills/litsearch/pkg/types"
)

const (
	DefaultQueryTimeout  = 10 * time.Second
	DefaultSourceTimeout = 3 * time.Second
)

var (
	// ErrNoSearchers is returned by New when no source searcher is supplied.
	ErrNoSearchers = errors.New("no source searchers configured")

	// ErrNoEmbedder is returned when a query carries no embedding and no embedder is configured.
	ErrNoEmbedder = fmt.Errorf("%w: query has no embedding and no embedder is configured", types.ErrInvalidInput)
)

// QueryEmbedder embeds query text. *embedder.Embedder implementations satisfy it.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) (*embedder.Embedding, error)
	Provider() string
}

// Aggregator fans a query out to every selected source, then merges, normalizes,
// deduplicates and ranks the answers. It is safe for concurrent use.
type Aggregator struct {
	embedder      QueryEmbedder
	searchers     map[types.SourceType]searcher.SourceSearcher
	enabled       []types.SourceType
	normalizer    *ranking.Normalizer
	dedup         ranking.DedupOptions
	queryTimeout  time.Duration
	sourceTimeout time.Duration
	metrics       *metrics.Metrics
	logger        *log.Logger
}

// Option configures an Aggregator
type Option func(*Aggregator)

// WithNormalizer sets the per-source score normalizer.
func WithNormalizer(n *ranking.Normalizer) Option {
	return func(a *Aggregator) {
		if n != nil {
			a.normalizer = n
		}
	}
}

// WithDedup sets the duplicate detection policy.
func WithDedup(opts ranking.DedupOptions) Option {
	return func(a *Aggregator) {
		a.dedup = opts
	}
}

// WithQueryTimeout bounds one combined search, embedding included.
func WithQueryTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.queryTimeout = d
		}
	}
}

// WithSourceTimeout bounds each per-source call.
func WithSourceTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.sourceTimeout = d
		}
	}
}

// WithMetrics records outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Aggregator) {
		a.metrics = m
	}
}

// WithLogger sets the logger
func WithLogger(logger *log.Logger) Option {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New creates an aggregator over searchers. emb may be nil when every query
// carries its own embedding. A later searcher for the same source replaces an
// earlier one.
func New(emb QueryEmbedder, searchers []searcher.SourceSearcher, opts ...Option) (*Aggregator, error) {
	a := &Aggregator{
		embedder:      emb,
		searchers:     make(map[types.SourceType]searcher.SourceSearcher, len(searchers)),
		normalizer:    ranking.NewNormalizer(nil),
		dedup:         DefaultDedup(),
		queryTimeout:  DefaultQueryTimeout,
		sourceTimeout: DefaultSourceTimeout,
		logger:        log.Default(),
	}
	for _, s := range searchers {
		if s == nil {
			continue
		}
		if !s.Source().Valid() {
			return nil, fmt.Errorf("%w: searcher for unknown source %q", types.ErrInvalidInput, s.Source())
		}
		a.searchers[s.Source()] = s
	}
	if len(a.searchers) == 0 {
		return nil, ErrNoSearchers
	}
	for _, src := range types.AllSourceTypes() {
		if _, ok := a.searchers[src]; ok {
			a.enabled = append(a.enabled, src)
		}
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// DefaultDedup deduplicates by reference for books, reflections and steps, and
// by normalized text across all sources.
func DefaultDedup() ranking.DedupOptions {
	return ranking.DedupOptions{
		ByRef: map[types.SourceType]bool{
			types.SourceBookPage:   true,
			types.SourceReflection: true,
			types.SourceStep:       true,
		},
		ByText: true,
	}
}

// Sources returns the enabled sources in canonical order.
func (a *Aggregator) Sources() []types.SourceType {
	return slices.Clone(a.enabled)
}

// SearchCombinedSources embeds the query once and searches every selected source
// concurrently. Failed or timed-out sources are dropped and reported in the
// response; if every selected source fails the error wraps
// types.ErrAllSourcesUnavailable. A query with no matches returns an empty
// result set and no error.
func (a *Aggregator) SearchCombinedSources(ctx context.Context, q types.SearchQuery) (*Response, error) {
	q = q.Normalize()
	if err := q.Validate(); err != nil {
		a.metrics.ObserveSearch(metrics.OutcomeError, 0)
		return nil, err
	}

	selected := a.selectSources(q)
	if len(selected) == 0 {
		a.metrics.ObserveSearch(metrics.OutcomeError, 0)
		return nil, fmt.Errorf("%w: no enabled source matches %v", types.ErrInvalidInput, q.SourceTypes)
	}
	return a.run(ctx, q, selected, false)
}

// SearchSource runs the combined pipeline against a single source. A failure of
// that source returns an error wrapping types.ErrSourceUnavailable.
func (a *Aggregator) SearchSource(ctx context.Context, source types.SourceType, q types.SearchQuery) (*Response, error) {
	q.SourceTypes = []types.SourceType{source}
	q = q.Normalize()
	if err := q.Validate(); err != nil {
		a.metrics.ObserveSearch(metrics.OutcomeError, 0)
		return nil, err
	}
	if _, ok := a.searchers[source]; !ok {
		a.metrics.ObserveSearch(metrics.OutcomeError, 0)
		return nil, fmt.Errorf("%w: source %s is not enabled", types.ErrInvalidInput, source)
	}
	return a.run(ctx, q, []types.SourceType{source}, true)
}

// SearchBigBookPages searches only the Big Book page index.
func (a *Aggregator) SearchBigBookPages(ctx context.Context, text string, limit int, minScore float64) (*Response, error) {
	return a.SearchSource(ctx, types.SourceBookPage, types.SearchQuery{
		Text:     text,
		Limit:    limit,
		MinScore: types.ScoreFloor(minScore),
	})
}

func (a *Aggregator) selectSources(q types.SearchQuery) []types.SourceType {
	selected := make([]types.SourceType, 0, len(a.enabled))
	for _, src := range a.enabled {
		if q.Includes(src) {
			selected = append(selected, src)
		}
	}
	return selected
}

// run executes a validated query against the selected sources.
func (a *Aggregator) run(ctx context.Context, q types.SearchQuery, selected []types.SourceType, single bool) (*Response, error) {
	start := time.Now()
	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, a.queryTimeout)
	defer cancel()

	vector, provider, err := a.embed(ctx, q)
	if err != nil {
		a.metrics.ObserveSearch(metrics.OutcomeError, 0)
		if parentErr := parent.Err(); parentErr != nil {
			return nil, parentErr
		}
		return nil, err
	}

	outcomes := a.fanOut(ctx, vector, q, selected)

	if err := parent.Err(); err != nil {
		a.metrics.ObserveSearch(metrics.OutcomeCanceled, 0)
		return nil, err
	}

	resp := &Response{
		SourcesQueried:    slices.Clone(selected),
		SourcesResponded:  make([]types.SourceType, 0, len(selected)),
		FailedSources:     make(map[types.SourceType]string),
		EmbeddingProvider: provider,
	}
	var (
		merged []types.ScoredChunk
		causes []error
	)
	for _, o := range outcomes {
		if o.err != nil {
			resp.FailedSources[o.source] = o.err.Error()
			causes = append(causes, o.err)
			a.logger.Warn("source dropped", "source", o.source, "elapsed", o.elapsed, "error", o.err)
			continue
		}
		resp.SourcesResponded = append(resp.SourcesResponded, o.source)
		for _, r := range o.results {
			r.SourceType = o.source
			r.NormalizedScore = a.normalizer.Normalize(r.RawScore, o.source)
			merged = append(merged, r)
		}
	}

	if len(resp.SourcesResponded) == 0 {
		a.metrics.ObserveSearch(metrics.OutcomeUnavailable, 0)
		if single {
			return nil, causes[0]
		}
		return nil, errors.Join(append([]error{types.ErrAllSourcesUnavailable}, causes...)...)
	}

	resp.Results = ranking.Rank(merged, q.Floor(), q.Limit, a.dedup)
	resp.Duration = time.Since(start)

	outcome := metrics.OutcomeOK
	switch {
	case resp.Partial():
		outcome = metrics.OutcomePartial
	case len(resp.Results) == 0:
		outcome = metrics.OutcomeEmpty
	}
	a.metrics.ObserveSearch(outcome, len(resp.Results))
	a.logger.Debug("combined search",
		"sources", len(selected),
		"failed", len(resp.FailedSources),
		"candidates", len(merged),
		"returned", len(resp.Results),
		"duration", resp.Duration)
	return resp, nil
}

func (a *Aggregator) embed(ctx context.Context, q types.SearchQuery) ([]float32, string, error) {
	if len(q.Embedding) > 0 {
		return q.Embedding, "", nil
	}
	if a.embedder == nil {
		return nil, "", ErrNoEmbedder
	}

	provider := a.embedder.Provider()
	emb, err := a.embedder.Embed(ctx, q.Text)
	if err != nil {
		a.metrics.ObserveEmbedding(provider, embeddingOutcome(err))
		return nil, provider, fmt.Errorf("failed to embed query: %w", err)
	}
	if emb == nil || len(emb.Vector) == 0 {
		a.metrics.ObserveEmbedding(provider, metrics.OutcomeError)
		return nil, provider, fmt.Errorf("%w: empty query embedding", types.ErrProviderUnavailable)
	}
	a.metrics.ObserveEmbedding(provider, metrics.OutcomeOK)
	return emb.Vector, provider, nil
}

func embeddingOutcome(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return metrics.OutcomeCanceled
	case errors.Is(err, types.ErrProviderRejected):
		return metrics.OutcomeRejected
	case errors.Is(err, types.ErrProviderUnavailable):
		return metrics.OutcomeUnavailable
	default:
		return metrics.OutcomeError
	}
}
