package cmd

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hearthside/gigi-learning/internal/store"
)

// EvaluateCommand returns the on-demand evaluation command. It uses the
// stronger judge tier and bypasses the scheduled run's batch caps.
func EvaluateCommand() *cli.Command {
	return &cli.Command{
		Name:  "evaluate",
		Usage: "Evaluate one conversation or one channel/day on demand",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "conversation",
				Usage: "Evaluate every unevaluated turn of this conversation",
			},
			&cli.StringFlag{
				Name:  "channel",
				Usage: "Evaluate one channel (voice, sms, chat-group, direct-message)",
			},
			&cli.StringFlag{
				Name:  "date",
				Usage: "Day to evaluate with --channel, as YYYY-MM-DD (default: today)",
			},
		},
		Action: runEvaluate,
	}
}

func runEvaluate(c *cli.Context) error {
	conversation := c.String("conversation")
	channel := c.String("channel")
	if (conversation == "") == (channel == "") {
		return fmt.Errorf("exactly one of --conversation or --channel is required")
	}

	a, err := buildApp(c.Context, c)
	if err != nil {
		return err
	}
	defer a.Close()

	if conversation != "" {
		return summarize(a.eval.EvaluateConversation(c.Context, conversation))
	}

	day := time.Now()
	if raw := c.String("date"); raw != "" {
		day, err = time.Parse("2006-01-02", raw)
		if err != nil {
			return fmt.Errorf("invalid --date %q, want YYYY-MM-DD", raw)
		}
	}
	return summarize(a.eval.EvaluateChannel(c.Context, store.Channel(channel), day))
}
