package ranking

import (
	"sort"

	"github.com/dshills/litsearch/pkg/types"
)

// Less is the result ordering: normalized score descending, SourceRef natural
// order, source canonical order, then ID.
func Less(a, b types.ScoredChunk) bool {
	return types.RankLess(a, b)
}

// Sort orders results in place.
func Sort(results []types.ScoredChunk) {
	sort.SliceStable(results, func(i, j int) bool {
		return types.RankLess(results[i], results[j])
	})
}

// FilterMinScore drops results whose normalized score is below minScore.
func FilterMinScore(results []types.ScoredChunk, minScore float64) []types.ScoredChunk {
	out := make([]types.ScoredChunk, 0, len(results))
	for _, r := range results {
		if r.NormalizedScore >= minScore {
			out = append(out, r)
		}
	}
	return out
}

// Rank filters, sorts, deduplicates and truncates normalized results. The input
// slice is not modified. The result is never nil.
func Rank(results []types.ScoredChunk, minScore float64, limit int, dedup DedupOptions) []types.ScoredChunk {
	kept := FilterMinScore(results, minScore)
	Sort(kept)
	kept = Deduplicate(kept, dedup)
	if limit >= 0 && len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}
