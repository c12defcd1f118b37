// Package engine wires the index, embedder, searchers and aggregator from a
// config.Config and exposes the search and citation surface used by callers.
//
//	e, err := engine.New(cfg, engine.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer e.Close()
//
//	resp, err := e.SearchCombinedSources(ctx, "resentment", engine.SearchOptions{})
//	citations := e.FormatCitations(resp.Results)
package engine
