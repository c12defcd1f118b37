package types

import (
	"fmt"
	"math"
	"strings"
)

const (
	DefaultMinScore = 0.65
	DefaultLimit    = 10
	MaxLimit        = 100
)

// SearchQuery is immutable for the duration of one retrieval.
type SearchQuery struct {
	Text string

	// Embedding is the query vector. When set by the caller the embedding step is skipped.
	Embedding []float32

	// MinScore is the floor applied to normalized scores. Nil means
	// DefaultMinScore; an explicit zero keeps every match.
	MinScore *float64

	// Limit bounds the number of results. Zero means DefaultLimit.
	Limit int

	// SourceTypes restricts the search to a subset of corpora. Empty means all enabled.
	SourceTypes []SourceType
}

// ScoreFloor returns a pointer to v for SearchQuery.MinScore.
func ScoreFloor(v float64) *float64 {
	return &v
}

// Floor returns the effective minimum normalized score.
func (q SearchQuery) Floor() float64 {
	if q.MinScore == nil {
		return DefaultMinScore
	}
	return *q.MinScore
}

// Normalize returns a copy of q with defaults applied and the text trimmed.
func (q SearchQuery) Normalize() SearchQuery {
	q.Text = strings.TrimSpace(q.Text)
	if q.MinScore == nil {
		q.MinScore = ScoreFloor(DefaultMinScore)
	}
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	if len(q.SourceTypes) > 0 {
		seen := make(map[SourceType]bool, len(q.SourceTypes))
		sources := make([]SourceType, 0, len(q.SourceTypes))
		for _, s := range q.SourceTypes {
			if !seen[s] {
				seen[s] = true
				sources = append(sources, s)
			}
		}
		q.SourceTypes = sources
	}
	return q
}

// Validate checks a normalized query.
func (q SearchQuery) Validate() error {
	if q.Text == "" && len(q.Embedding) == 0 {
		return fmt.Errorf("%w: query text cannot be empty", ErrInvalidInput)
	}
	if floor := q.Floor(); math.IsNaN(floor) || floor < 0 || floor > 1 {
		return fmt.Errorf("%w: min score %v outside [0,1]", ErrInvalidInput, floor)
	}
	if q.Limit < 0 {
		return fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidInput, q.Limit)
	}
	for _, s := range q.SourceTypes {
		if !s.Valid() {
			return fmt.Errorf("%w: unknown source type %q", ErrInvalidInput, s)
		}
	}
	return nil
}

// Includes reports whether the query targets source s.
func (q SearchQuery) Includes(s SourceType) bool {
	if len(q.SourceTypes) == 0 {
		return true
	}
	for _, t := range q.SourceTypes {
		if t == s {
			return true
		}
	}
	return false
}
