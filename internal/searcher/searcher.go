package searcher

import (
	"context"
	"fmt"
	"sort"

	"github.com/charmbracelet/log"

	"github.com/dshills/litsearch/internal/storage"
	"github.com/dshills/litsearch/pkg/types"
)

const (
	// DefaultOverfetch multiplies the requested limit when querying the index so
	// that candidates dropped by mapping still leave Limit results.
	DefaultOverfetch = 2
	// DefaultIndexFloor is the raw cosine similarity below which the index never returns rows.
	DefaultIndexFloor = 0.0
)

// ErrEmptyVector is returned when Search is called without a query vector
var ErrEmptyVector = fmt.Errorf("%w: query vector is empty", types.ErrInvalidInput)

// Options bounds one per-source search
type Options struct {
	Limit    int     // Maximum results to return
	MinScore float64 // Raw similarity floor, on the source's native scale
}

// SourceSearcher runs a similarity search against one corpus.
// Implementations must be safe for concurrent use.
type SourceSearcher interface {
	// Source returns the corpus this searcher covers
	Source() types.SourceType

	// Search returns up to opts.Limit chunks with raw score >= opts.MinScore,
	// sorted by raw score descending. Failures wrap types.ErrSourceUnavailable.
	Search(ctx context.Context, vector []float32, opts Options) ([]types.ScoredChunk, error)
}

// PassageMapper converts a stored passage into a chunk with a canonical SourceRef.
type PassageMapper func(p *storage.Passage) types.ContentChunk

// IndexSearcher holds the search logic shared by every corpus: query the index,
// map passages, order and truncate. Corpus adapters only supply the mapper.
type IndexSearcher struct {
	source    types.SourceType
	store     storage.Storage
	mapper    PassageMapper
	floor     float64
	overfetch int
	logger    *log.Logger
}

// Option configures an IndexSearcher
type Option func(*IndexSearcher)

// WithIndexFloor sets a raw similarity floor applied on top of Options.MinScore.
func WithIndexFloor(floor float64) Option {
	return func(s *IndexSearcher) {
		s.floor = floor
	}
}

// WithOverfetch sets the limit multiplier used when querying the index.
func WithOverfetch(n int) Option {
	return func(s *IndexSearcher) {
		if n > 0 {
			s.overfetch = n
		}
	}
}

// WithLogger sets the searcher logger. Default is log.Default().
func WithLogger(logger *log.Logger) Option {
	return func(s *IndexSearcher) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewIndexSearcher creates a searcher for source backed by store.
// A nil mapper keeps stored refs verbatim.
func NewIndexSearcher(source types.SourceType, store storage.Storage, mapper PassageMapper, opts ...Option) *IndexSearcher {
	if mapper == nil {
		mapper = func(p *storage.Passage) types.ContentChunk { return p.ToChunk() }
	}
	s := &IndexSearcher{
		source:    source,
		store:     store,
		mapper:    mapper,
		floor:     DefaultIndexFloor,
		overfetch: DefaultOverfetch,
		logger:    log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("source", string(source))
	return s
}

func (s *IndexSearcher) Source() types.SourceType {
	return s.source
}

// Floor returns the configured index floor.
func (s *IndexSearcher) Floor() float64 {
	return s.floor
}

func (s *IndexSearcher) Search(ctx context.Context, vector []float32, opts Options) ([]types.ScoredChunk, error) {
	if len(vector) == 0 {
		return nil, ErrEmptyVector
	}
	if opts.Limit <= 0 {
		return []types.ScoredChunk{}, nil
	}

	minScore := opts.MinScore
	if s.floor > minScore {
		minScore = s.floor
	}

	rows, err := s.store.SearchVector(ctx, s.source, vector, opts.Limit*s.overfetch, minScore)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %s: %w", types.ErrSourceUnavailable, s.source, ctxErr)
		}
		return nil, fmt.Errorf("%w: %s: %w", types.ErrSourceUnavailable, s.source, err)
	}

	results := make([]types.ScoredChunk, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if row.Passage == nil || row.Passage.SourceType != s.source {
			continue
		}
		if row.SimilarityScore < minScore {
			continue
		}
		chunk := s.mapper(row.Passage)
		chunk.SourceType = s.source
		if _, dup := seen[chunk.ID]; dup {
			continue
		}
		seen[chunk.ID] = struct{}{}
		results = append(results, types.ScoredChunk{
			ContentChunk: chunk,
			RawScore:     row.SimilarityScore,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return types.RawLess(results[i], results[j])
	})
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}

	s.logger.Debug("source search", "candidates", len(rows), "returned", len(results), "min_score", minScore)
	return results, nil
}

