package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "indexer",
		Usage: "Follow a Nimiq node and mirror its chain into Postgres",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Catch up with the node and keep following its tip",
				Flags:  runFlags(),
				Action: run,
			},
		},
		// The bare binary runs the indexer as well.
		Flags:  runFlags(),
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
