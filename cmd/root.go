// Package cmd holds the CLI commands and the shared bootstrap that wires
// the store, judge, and drivers together from configuration.
package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/hearthside/gigi-learning/internal/config"
	"github.com/hearthside/gigi-learning/internal/judge"
	"github.com/hearthside/gigi-learning/internal/memory"
	"github.com/hearthside/gigi-learning/internal/pairing"
	"github.com/hearthside/gigi-learning/internal/pipeline"
	"github.com/hearthside/gigi-learning/internal/reporting"
	"github.com/hearthside/gigi-learning/internal/retry"
	"github.com/hearthside/gigi-learning/internal/store"
	"github.com/hearthside/gigi-learning/internal/transport"
)

// app bundles everything a command needs.
type app struct {
	cfg      *config.Config
	store    store.Store
	db       *sql.DB
	messages transport.MessageLog
	judge    *judge.Judge
	memory   *memory.Manager
	learning *pipeline.LearningRunner
	eval     *pipeline.EvalRunner
	reporter *reporting.Reporter
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.Logging.Level)
	return cfg, nil
}

func setupLogging(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

// buildApp wires the full pipeline. A missing judge credential fails here,
// before any batch is attempted.
func buildApp(ctx context.Context, c *cli.Context) (*app, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &app{cfg: cfg}

	if cfg.Database.URL != "" {
		db, err := sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		// The database may still be coming up when we are; retry the
		// initial connection before giving up.
		if err := retry.Do(ctx, retry.DefaultConfig(), func() error {
			return db.PingContext(ctx)
		}); err != nil {
			db.Close()
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		pg := store.NewPostgresStore(db)
		if err := pg.InitSchema(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("initializing schema: %w", err)
		}
		a.db = db
		a.store = pg
		a.messages = transport.NewSQLMessageLog(db)
		log.Debug().Msg("Using PostgreSQL store")
	} else {
		a.store = store.NewInMemoryStore()
		a.messages = transport.NullMessageLog{}
		log.Warn().Msg("No database configured, using in-memory store; nothing will persist")
	}

	batchClient, err := newConnector(ctx, cfg, cfg.Judge.Model)
	if err != nil {
		return nil, fmt.Errorf("creating judge connector: %w", err)
	}
	var strongClient judge.Client
	if cfg.Judge.StrongModel != "" && cfg.Judge.StrongModel != cfg.Judge.Model {
		strongClient, err = newConnector(ctx, cfg, cfg.Judge.StrongModel)
		if err != nil {
			return nil, fmt.Errorf("creating strong judge connector: %w", err)
		}
	}
	a.judge = judge.New(batchClient, strongClient, cfg.Judge.RateLimit, time.Duration(cfg.Judge.TimeoutSeconds)*time.Second)

	a.memory = memory.NewManager(a.store)
	pairer := pairing.NewEngine(a.store, a.messages)
	a.learning = pipeline.NewLearningRunner(pairer, a.judge, a.store, a.memory)
	a.eval = pipeline.NewEvalRunner(a.judge, a.store, a.messages, a.memory)
	a.reporter = reporting.NewReporter(a.store)
	return a, nil
}

func newConnector(ctx context.Context, cfg *config.Config, model string) (*judge.Connector, error) {
	return judge.NewConnector(ctx, judge.ConnectorOptions{
		Provider: judge.Provider(cfg.Judge.Provider),
		APIKey:   cfg.Judge.APIKey,
		BaseURL:  cfg.Judge.BaseURL,
		ModelConfig: judge.ModelConfig{
			Model:       model,
			Temperature: cfg.Judge.Temperature,
			MaxTokens:   cfg.Judge.MaxTokens,
		},
	})
}

// summarize prints a run summary and converts a non-empty error list into
// a non-zero exit.
func summarize(summaries ...pipeline.RunSummary) error {
	failed := false
	for _, s := range summaries {
		log.Info().
			Str("mode", s.Mode).
			Int("drafts_paired", s.DraftsPaired).
			Int("drafts_analyzed", s.DraftsAnalyzed).
			Int("turns_evaluated", s.TurnsEvaluated).
			Int("flagged", s.Flagged).
			Int("corrections", s.CorrectionsCreated).
			Strs("errors", s.Errors).
			Msg("Run summary")
		if s.Failed() {
			failed = true
		}
	}
	if failed {
		return cli.Exit("run finished with errors", 1)
	}
	return nil
}
