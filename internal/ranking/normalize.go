package ranking

import (
	"math"

	"github.com/dshills/litsearch/pkg/types"
)

// DefaultFloorSlack lowers the raw floor pushed to each index so that scores just
// under the threshold still reach normalization.
const DefaultFloorSlack = 0.95

// Scale is the native score range of one source. Raw scores are mapped linearly
// from [Min, Max] onto [0, 1].
type Scale struct {
	Min float64
	Max float64
}

// valid reports whether the scale defines a non-empty range.
func (s Scale) valid() bool {
	return !math.IsNaN(s.Min) && !math.IsNaN(s.Max) && s.Max > s.Min
}

// Normalizer maps raw per-source scores onto a common [0, 1] scale.
// It is immutable after construction and safe for concurrent use.
type Normalizer struct {
	scales map[types.SourceType]Scale
	slack  float64
}

// NormalizerOption configures a Normalizer
type NormalizerOption func(*Normalizer)

// WithFloorSlack sets the factor applied to raw floors. Values outside (0, 1] are ignored.
func WithFloorSlack(slack float64) NormalizerOption {
	return func(n *Normalizer) {
		if slack > 0 && slack <= 1 {
			n.slack = slack
		}
	}
}

// NewNormalizer creates a normalizer. Sources without a valid scale are treated as
// already on [0, 1] and only clamped.
func NewNormalizer(scales map[types.SourceType]Scale, opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{
		scales: make(map[types.SourceType]Scale, len(scales)),
		slack:  DefaultFloorSlack,
	}
	for src, sc := range scales {
		if sc.valid() {
			n.scales[src] = sc
		}
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize maps raw on source's scale to [0, 1]. NaN maps to 0.
func (n *Normalizer) Normalize(raw float64, source types.SourceType) float64 {
	if math.IsNaN(raw) {
		return 0
	}
	if sc, ok := n.scales[source]; ok {
		raw = (raw - sc.Min) / (sc.Max - sc.Min)
	}
	return clamp01(raw)
}

// RawFloor returns the raw score on source's scale that normalizes to minScore,
// lowered by the configured slack.
func (n *Normalizer) RawFloor(source types.SourceType, minScore float64) float64 {
	minScore = clamp01(minScore)
	floor := minScore
	if sc, ok := n.scales[source]; ok {
		floor = sc.Min + minScore*(sc.Max-sc.Min)
	}
	if floor > 0 {
		floor *= n.slack
	}
	return floor
}

// Apply sets NormalizedScore on every result in place.
func (n *Normalizer) Apply(results []types.ScoredChunk) {
	for i := range results {
		results[i].NormalizedScore = n.Normalize(results[i].RawScore, results[i].SourceType)
	}
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
