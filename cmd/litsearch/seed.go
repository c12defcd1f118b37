package main

import (
	"fmt"
	"runtime"

	"github.com/urfave/cli/v2"

	"github.com/dshills/litsearch/internal/fixture"
)

func seedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Load a fixture file of passages into the index for local debugging",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "YAML fixture file",
				Required: true,
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "Concurrent embed/store workers",
				Value:   runtime.NumCPU(),
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Re-embed passages whose text is unchanged",
			},
		},
		Action: func(c *cli.Context) (err error) {
			records, err := fixture.ReadFile(c.String("file"))
			if err != nil {
				return err
			}

			e, logger, err := openEngine(c)
			if err != nil {
				return err
			}
			defer closeEngine(e, &err)

			stats, err := fixture.New(e.Store(), e.Embedder(), logger).Load(c.Context, records, &fixture.Config{
				Workers: c.Int("workers"),
				Force:   c.Bool("force"),
			})
			if err != nil {
				return err
			}

			out := c.App.Writer
			fmt.Fprintf(out, "Loaded %d, skipped %d, failed %d in %s\n",
				stats.Loaded, stats.Skipped, stats.Failed, stats.Duration)
			for _, msg := range stats.ErrorMessages {
				fmt.Fprintf(c.App.ErrWriter, "  %s\n", msg)
			}
			return nil
		},
	}
}
