package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/dshills/litsearch/internal/aggregator"
	"github.com/dshills/litsearch/internal/engine"
	"github.com/dshills/litsearch/pkg/types"
)

func limitFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:    "limit",
			Aliases: []string{"n"},
			Usage:   "Maximum number of results (default from config)",
		},
		&cli.Float64Flag{
			Name:  "min-score",
			Usage: "Minimum normalized score in [0,1] (default from config)",
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Print citations as JSON",
		},
		&cli.BoolFlag{
			Name:  "context",
			Usage: "Print the numbered context block for an answer generator",
		},
	}
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search every enabled corpus",
		ArgsUsage: "QUERY",
		Flags: append(limitFlags(), &cli.StringSliceFlag{
			Name:    "source",
			Aliases: []string{"s"},
			Usage:   "Restrict to a corpus (book-page, reflection, step, article); repeatable",
		}),
		Action: func(c *cli.Context) (err error) {
			query, opts, err := searchArgs(c)
			if err != nil {
				return err
			}
			for _, name := range c.StringSlice("source") {
				src, perr := types.ParseSourceType(name)
				if perr != nil {
					return perr
				}
				opts.SourceTypes = append(opts.SourceTypes, src)
			}

			e, _, err := openEngine(c)
			if err != nil {
				return err
			}
			defer closeEngine(e, &err)

			resp, err := e.SearchCombinedSources(c.Context, query, opts)
			if err != nil {
				return err
			}
			return printResponse(c, e, resp)
		},
	}
}

func bookCommand() *cli.Command {
	return &cli.Command{
		Name:      "book",
		Usage:     "Search only the Big Book pages",
		ArgsUsage: "QUERY",
		Flags:     limitFlags(),
		Action: func(c *cli.Context) (err error) {
			query, opts, err := searchArgs(c)
			if err != nil {
				return err
			}

			e, _, err := openEngine(c)
			if err != nil {
				return err
			}
			defer closeEngine(e, &err)

			resp, err := e.SearchBigBookPages(c.Context, query, opts)
			if err != nil {
				return err
			}
			return printResponse(c, e, resp)
		},
	}
}

func searchArgs(c *cli.Context) (string, engine.SearchOptions, error) {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return "", engine.SearchOptions{}, fmt.Errorf("query is required")
	}
	return query, searchOptions(c), nil
}

func searchOptions(c *cli.Context) engine.SearchOptions {
	opts := engine.SearchOptions{Limit: c.Int("limit")}
	if c.IsSet("min-score") {
		opts.MinScore = types.ScoreFloor(c.Float64("min-score"))
	}
	return opts
}

type jsonResponse struct {
	Citations        []types.Citation            `json:"citations"`
	SourcesQueried   []types.SourceType          `json:"sources_queried"`
	SourcesResponded []types.SourceType          `json:"sources_responded"`
	FailedSources    map[types.SourceType]string `json:"failed_sources,omitempty"`
	DurationMS       int64                       `json:"duration_ms"`
}

func printResponse(c *cli.Context, e *engine.Engine, resp *aggregator.Response) error {
	out := c.App.Writer
	citations := e.FormatCitations(resp.Results)

	if c.Bool("json") {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(jsonResponse{
			Citations:        citations,
			SourcesQueried:   resp.SourcesQueried,
			SourcesResponded: resp.SourcesResponded,
			FailedSources:    resp.FailedSources,
			DurationMS:       resp.Duration.Milliseconds(),
		})
	}

	if c.Bool("context") {
		fmt.Fprintln(out, e.RenderContext(resp.Results))
		return nil
	}

	printCitations(out, citations)
	printFailures(c.App.ErrWriter, resp.FailedSources)
	return nil
}

func printCitations(out io.Writer, citations []types.Citation) {
	if len(citations) == 0 {
		fmt.Fprintln(out, "No matching passages.")
		return
	}
	for i, cit := range citations {
		fmt.Fprintf(out, "%d. %s (%s)", i+1, cit.Label, cit.ScorePercentage)
		if cit.Link != "" {
			fmt.Fprintf(out, "  %s", cit.Link)
		}
		fmt.Fprintln(out)
		if cit.Reference != "" {
			fmt.Fprintf(out, "   %s\n", cit.Reference)
		}
		fmt.Fprintf(out, "   %q\n", cit.Snippet)
	}
}

func printFailures(out io.Writer, failed map[types.SourceType]string) {
	sources := make([]types.SourceType, 0, len(failed))
	for src := range failed {
		sources = append(sources, src)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })
	for _, src := range sources {
		fmt.Fprintf(out, "warning: %s unavailable: %s\n", src, failed[src])
	}
}
