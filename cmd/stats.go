package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// StatsCommand returns the stats-only command.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Print learning and evaluation statistics",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Emit machine-readable JSON",
			},
		},
		Action: runStats,
	}
}

func runStats(c *cli.Context) error {
	a, err := buildApp(c.Context, c)
	if err != nil {
		return err
	}
	defer a.Close()

	learning := a.reporter.GetLearningStats(c.Context)
	evaluation := a.reporter.GetEvaluationStats(c.Context)

	if c.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"learning":   learning,
			"evaluation": evaluation,
		})
	}

	fmt.Println("Shadow learning")
	fmt.Printf("  drafts: %d total, %d paired, %d processed\n", learning.TotalDrafts, learning.Paired, learning.Processed)
	fmt.Printf("  corrections: %d created, %d active, avg difference %.2f\n",
		learning.CorrectionsCreated, learning.ActiveLearningMemory, learning.AvgDifferenceScore)
	for _, mem := range learning.RecentCorrections {
		fmt.Printf("    [%.2f] %s\n", mem.Confidence, mem.Content)
	}

	fmt.Println("Evaluations (7d)")
	for ch, windows := range evaluation.ByChannel {
		fmt.Printf("  %-16s count=%d avg=%.2f flagged=%d\n", ch, windows.SevenDays.Count, windows.SevenDays.AvgScore, windows.SevenDays.Flagged)
	}
	return nil
}
