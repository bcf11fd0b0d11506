package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// RunCommand returns the default pipeline command: shadow learning, then
// evaluation.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the learning and evaluation pipeline once",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "learning-only",
				Usage: "Run only the shadow-learning pass",
			},
			&cli.BoolFlag{
				Name:  "eval-only",
				Usage: "Run only the evaluation pass",
			},
		},
		Action: runPipeline,
	}
}

func runPipeline(c *cli.Context) error {
	if c.Bool("learning-only") && c.Bool("eval-only") {
		return fmt.Errorf("--learning-only and --eval-only are mutually exclusive")
	}

	a, err := buildApp(c.Context, c)
	if err != nil {
		return err
	}
	defer a.Close()

	if c.Bool("learning-only") {
		return summarize(a.learning.Run(c.Context))
	}
	if c.Bool("eval-only") {
		return summarize(a.eval.Run(c.Context))
	}
	return summarize(a.learning.Run(c.Context), a.eval.Run(c.Context))
}
