package main

import (
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/dshills/litsearch/internal/storage"
)

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Print per-corpus passage and embedding counts",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print status as JSON",
			},
		},
		Action: func(c *cli.Context) (err error) {
			e, _, err := openEngine(c)
			if err != nil {
				return err
			}
			defer closeEngine(e, &err)

			st, err := e.Status(c.Context)
			if err != nil {
				return err
			}

			out := c.App.Writer
			if c.Bool("json") {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}

			fmt.Fprintf(out, "Backend:    %s (schema %s)\n", st.Backend, st.SchemaVersion)
			fmt.Fprintf(out, "Build Mode: %s, Driver: %s\n", storage.BuildMode, storage.DriverName)
			fmt.Fprintf(out, "Embedding:  %s/%s (%d dims)\n", st.Provider, st.Model, st.Dimension)
			fmt.Fprintf(out, "Index Size: %.2f MB\n", st.IndexSizeMB)
			fmt.Fprintf(out, "Enabled:    %v\n", st.EnabledSources)
			for _, s := range st.Sources {
				fmt.Fprintf(out, "  %-12s passages=%d embeddings=%d\n", s.Source, s.PassagesCount, s.EmbeddingsCount)
			}
			fmt.Fprintf(out, "Healthy:    db=%v embeddings=%v\n", st.Health.DatabaseAccessible, st.Health.EmbeddingsAvailable)
			return nil
		},
	}
}
