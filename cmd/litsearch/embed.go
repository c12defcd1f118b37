package main

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"
)

func embedCommand() *cli.Command {
	return &cli.Command{
		Name:      "embed",
		Usage:     "Embed text with the configured provider and print the vector summary",
		ArgsUsage: "TEXT",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "show",
				Usage: "Number of leading vector components to print",
				Value: 5,
			},
		},
		Action: func(c *cli.Context) (err error) {
			text := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if text == "" {
				return fmt.Errorf("text is required")
			}

			e, _, err := openEngine(c)
			if err != nil {
				return err
			}
			defer closeEngine(e, &err)

			emb, err := e.Embed(c.Context, text)
			if err != nil {
				return err
			}

			out := c.App.Writer
			fmt.Fprintf(out, "Provider:  %s\n", emb.Provider)
			fmt.Fprintf(out, "Model:     %s\n", emb.Model)
			fmt.Fprintf(out, "Dimension: %d\n", emb.Dimension)
			show := min(c.Int("show"), len(emb.Vector))
			if show > 0 {
				fmt.Fprintf(out, "Vector:    %v ...\n", emb.Vector[:show])
			}
			return nil
		},
	}
}
