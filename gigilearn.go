package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/hearthside/gigi-learning/cmd"
)

const version = "0.1.0"

func main() {
	app := &cli.App{
		Name:    "gigilearn",
		Usage:   "Learning and evaluation pipeline for the Gigi after-hours agent",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
			},
		},
		Commands: []*cli.Command{
			cmd.RunCommand(),
			cmd.EvaluateCommand(),
			cmd.StatsCommand(),
			cmd.ServeCommand(),
			cmd.WorkerCommand(),
			cmd.ConfigCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
