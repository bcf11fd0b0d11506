package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/hearthside/gigi-learning/internal/api"
)

// ServeCommand returns the dashboard API server command.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Serve the dashboard statistics API",
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	a, err := buildApp(c.Context, c)
	if err != nil {
		return err
	}
	defer a.Close()

	server := api.NewServer(a.reporter, a.cfg.Server.Port)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(ctx)
	}
}
