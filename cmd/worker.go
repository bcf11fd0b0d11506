package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/hearthside/gigi-learning/internal/jobqueue"
)

// WorkerCommand returns the scheduled-pipeline worker command.
func WorkerCommand() *cli.Command {
	return &cli.Command{
		Name:   "worker",
		Usage:  "Run the scheduled learning and evaluation jobs",
		Action: runWorker,
	}
}

func runWorker(c *cli.Context) error {
	a, err := buildApp(c.Context, c)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.Database.URL == "" {
		return fmt.Errorf("the worker requires database.url to be configured")
	}

	queue, err := jobqueue.New(a.cfg.Database.URL, a.learning, a.eval, jobqueue.Options{
		LearningInterval: time.Duration(a.cfg.Queue.LearningIntervalMinutes) * time.Minute,
		EvalInterval:     time.Duration(a.cfg.Queue.EvalIntervalHours) * time.Hour,
	})
	if err != nil {
		return err
	}

	if err := queue.Start(c.Context); err != nil {
		return err
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	sig := <-stop
	log.Info().Str("signal", sig.String()).Msg("Stopping worker")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return queue.Stop(ctx)
}
