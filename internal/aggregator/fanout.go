package aggregator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/litsearch/internal/metrics"
	"github.com/dshills/litsearch/internal/searcher"
	"github.com/dshills/litsearch/pkg/types"
)

// sourceOutcome is the answer of one source, successful or not.
type sourceOutcome struct {
	source  types.SourceType
	results []types.ScoredChunk
	err     error
	elapsed time.Duration
}

type searchReply struct {
	results []types.ScoredChunk
	err     error
}

// fanOut queries every selected source concurrently and returns one outcome per
// source in selection order. It never fails; failures are carried in outcomes.
func (a *Aggregator) fanOut(ctx context.Context, vector []float32, q types.SearchQuery, selected []types.SourceType) []sourceOutcome {
	outcomes := make([]sourceOutcome, len(selected))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range selected {
		g.Go(func() error {
			outcomes[i] = a.searchOne(gctx, src, vector, q)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// searchOne runs one searcher under the per-source timeout. A searcher that does
// not return when its context expires is abandoned; its reply lands in a
// buffered channel nobody reads.
func (a *Aggregator) searchOne(ctx context.Context, src types.SourceType, vector []float32, q types.SearchQuery) sourceOutcome {
	start := time.Now()
	s := a.searchers[src]

	ctx, cancel := context.WithTimeout(ctx, a.sourceTimeout)
	defer cancel()

	opts := searcher.Options{
		Limit:    q.Limit,
		MinScore: a.normalizer.RawFloor(src, q.Floor()),
	}

	replies := make(chan searchReply, 1)
	go func() {
		results, err := s.Search(ctx, vector, opts)
		replies <- searchReply{results: results, err: err}
	}()

	out := sourceOutcome{source: src}
	select {
	case r := <-replies:
		out.results, out.err = r.results, r.err
		if out.err != nil && !errors.Is(out.err, types.ErrSourceUnavailable) {
			out.err = fmt.Errorf("%w: %s: %w", types.ErrSourceUnavailable, src, out.err)
		}
	case <-ctx.Done():
		out.err = fmt.Errorf("%w: %s: %w", types.ErrSourceUnavailable, src, ctx.Err())
	}
	out.elapsed = time.Since(start)

	a.metrics.ObserveSource(string(src), sourceOutcomeLabel(out), out.elapsed)
	return out
}

func sourceOutcomeLabel(o sourceOutcome) string {
	switch {
	case o.err == nil && len(o.results) == 0:
		return metrics.OutcomeEmpty
	case o.err == nil:
		return metrics.OutcomeOK
	case errors.Is(o.err, context.DeadlineExceeded):
		return metrics.OutcomeTimeout
	case errors.Is(o.err, context.Canceled):
		return metrics.OutcomeCanceled
	default:
		return metrics.OutcomeError
	}
}
