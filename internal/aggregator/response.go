package aggregator

import (
	"time"

	"github.com/dshills/litsearch/pkg/types"
)

// Response is the ranked result of one search plus degradation diagnostics.
type Response struct {
	Results           []types.ScoredChunk         // Ranked, deduplicated, never nil
	SourcesQueried    []types.SourceType          // Selected sources, canonical order
	SourcesResponded  []types.SourceType          // Sources that answered, possibly with no matches
	FailedSources     map[types.SourceType]string // Dropped sources and the reason
	EmbeddingProvider string                      // Empty when the caller supplied the embedding
	Duration          time.Duration
}

// Partial reports whether at least one selected source was dropped.
func (r *Response) Partial() bool {
	return len(r.FailedSources) > 0
}
