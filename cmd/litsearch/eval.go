package main

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/urfave/cli/v2"

	"github.com/dshills/litsearch/internal/engine"
)

type evalResult struct {
	query    string
	results  int
	top      string
	failed   int
	duration time.Duration
	err      error
}

func evalCommand() *cli.Command {
	return &cli.Command{
		Name:  "eval",
		Usage: "Run one search per line of a file concurrently and report result counts and source health",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "File with one query per line; blank lines and # comments are skipped",
				Required: true,
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "Concurrent queries",
				Value:   runtime.NumCPU(),
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum results per query (default from config)",
			},
			&cli.Float64Flag{
				Name:  "min-score",
				Usage: "Minimum normalized score (default from config)",
			},
		},
		Action: func(c *cli.Context) (err error) {
			queries, err := readQueries(c.String("file"))
			if err != nil {
				return err
			}
			if len(queries) == 0 {
				return fmt.Errorf("no queries in %s", c.String("file"))
			}

			e, logger, err := openEngine(c)
			if err != nil {
				return err
			}
			defer closeEngine(e, &err)

			workers := c.Int("workers")
			if workers <= 0 {
				workers = 1
			}
			pool, err := ants.NewPool(workers)
			if err != nil {
				return fmt.Errorf("failed to create worker pool: %w", err)
			}
			defer pool.Release()

			opts := searchOptions(c)
			results := make([]evalResult, len(queries))
			var wg sync.WaitGroup
			start := time.Now()
			for i, q := range queries {
				wg.Add(1)
				submitErr := pool.Submit(func() {
					defer wg.Done()
					results[i] = runEval(c, e, q, opts)
				})
				if submitErr != nil {
					wg.Done()
					results[i] = evalResult{query: q, err: submitErr}
				}
			}
			wg.Wait()
			logger.Debug("eval finished", "queries", len(queries), "workers", workers, "duration", time.Since(start))

			printEval(c, results, time.Since(start))
			return nil
		},
	}
}

func runEval(c *cli.Context, e *engine.Engine, query string, opts engine.SearchOptions) evalResult {
	start := time.Now()
	resp, err := e.SearchCombinedSources(c.Context, query, opts)
	r := evalResult{query: query, duration: time.Since(start), err: err}
	if err != nil {
		return r
	}
	r.results = len(resp.Results)
	r.failed = len(resp.FailedSources)
	if len(resp.Results) > 0 {
		r.top = e.FormatCitations(resp.Results[:1])[0].Label
	}
	return r
}

func readQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open query file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var queries []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		queries = append(queries, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read query file: %w", err)
	}
	return queries, nil
}

func printEval(c *cli.Context, results []evalResult, total time.Duration) {
	out := c.App.Writer
	var errored, partial, empty int
	for _, r := range results {
		switch {
		case r.err != nil:
			errored++
			fmt.Fprintf(out, "ERR   %-40q %v\n", r.query, r.err)
			continue
		case r.failed > 0:
			partial++
		}
		if r.results == 0 {
			empty++
		}
		fmt.Fprintf(out, "%-5d %-40q top=%q failed_sources=%d %s\n",
			r.results, r.query, r.top, r.failed, r.duration.Round(time.Millisecond))
	}
	fmt.Fprintf(out, "\n%d queries, %d errors, %d partial, %d empty in %s\n",
		len(results), errored, partial, empty, total.Round(time.Millisecond))
}
