// Package jobqueue schedules the pipeline drivers on a River-backed job
// queue: a periodic shadow-learning job and a periodic evaluation job,
// plus ad-hoc inserts for on-demand runs.
package jobqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/zerolog/log"

	"github.com/hearthside/gigi-learning/internal/pipeline"
)

const maxWorkers = 2

// LearningRunArgs triggers one shadow-learning pass.
type LearningRunArgs struct{}

func (LearningRunArgs) Kind() string { return "learning_run" }

// EvalRunArgs triggers one evaluation pass.
type EvalRunArgs struct{}

func (EvalRunArgs) Kind() string { return "eval_run" }

// LearningWorker runs the shadow-learning driver.
type LearningWorker struct {
	river.WorkerDefaults[LearningRunArgs]
	runner *pipeline.LearningRunner
}

func (w *LearningWorker) Work(ctx context.Context, job *river.Job[LearningRunArgs]) error {
	summary := w.runner.Run(ctx)
	if summary.Failed() {
		return fmt.Errorf("learning run finished with %d errors: %s", len(summary.Errors), summary.Errors[0])
	}
	return nil
}

// EvalWorker runs the evaluation driver.
type EvalWorker struct {
	river.WorkerDefaults[EvalRunArgs]
	runner *pipeline.EvalRunner
}

func (w *EvalWorker) Work(ctx context.Context, job *river.Job[EvalRunArgs]) error {
	summary := w.runner.Run(ctx)
	if summary.Failed() {
		return fmt.Errorf("evaluation run finished with %d errors: %s", len(summary.Errors), summary.Errors[0])
	}
	return nil
}

// Options configures the queue's schedule.
type Options struct {
	LearningInterval time.Duration
	EvalInterval     time.Duration
}

// JobQueue manages the River client and its connection pool.
type JobQueue struct {
	client *river.Client[pgx.Tx]
	pool   *pgxpool.Pool
}

// New builds the queue: its own pgx pool, the two workers, and the
// periodic schedule.
func New(databaseURL string, learning *pipeline.LearningRunner, eval *pipeline.EvalRunner, opts Options) (*JobQueue, error) {
	if opts.LearningInterval <= 0 {
		opts.LearningInterval = 30 * time.Minute
	}
	if opts.EvalInterval <= 0 {
		opts.EvalInterval = 24 * time.Hour
	}

	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &LearningWorker{runner: learning})
	river.AddWorker(workers, &EvalWorker{runner: eval})

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: maxWorkers},
		},
		Workers: workers,
		PeriodicJobs: []*river.PeriodicJob{
			river.NewPeriodicJob(
				river.PeriodicInterval(opts.LearningInterval),
				func() (river.JobArgs, *river.InsertOpts) { return LearningRunArgs{}, nil },
				&river.PeriodicJobOpts{RunOnStart: true},
			),
			river.NewPeriodicJob(
				river.PeriodicInterval(opts.EvalInterval),
				func() (river.JobArgs, *river.InsertOpts) { return EvalRunArgs{}, nil },
				nil,
			),
		},
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	return &JobQueue{client: client, pool: pool}, nil
}

// Start begins processing jobs.
func (jq *JobQueue) Start(ctx context.Context) error {
	log.Info().Msg("Starting job queue workers")
	return jq.client.Start(ctx)
}

// Stop drains workers and closes the pool.
func (jq *JobQueue) Stop(ctx context.Context) error {
	err := jq.client.Stop(ctx)
	jq.pool.Close()
	return err
}

// EnqueueLearningRun inserts an ad-hoc shadow-learning job.
func (jq *JobQueue) EnqueueLearningRun(ctx context.Context) error {
	_, err := jq.client.Insert(ctx, LearningRunArgs{}, nil)
	if err != nil {
		return fmt.Errorf("failed to queue learning run: %w", err)
	}
	return nil
}

// EnqueueEvalRun inserts an ad-hoc evaluation job.
func (jq *JobQueue) EnqueueEvalRun(ctx context.Context) error {
	_, err := jq.client.Insert(ctx, EvalRunArgs{}, nil)
	if err != nil {
		return fmt.Errorf("failed to queue evaluation run: %w", err)
	}
	return nil
}
