// Package judge invokes the external scoring model: it builds channel-aware
// rubric and comparator prompts, calls the configured LLM, and parses the
// raw output into typed results. Parse failures surface as per-item error
// results, never as panics or batch aborts.
package judge

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"golang.org/x/time/rate"

	"github.com/hearthside/gigi-learning/internal/store"
)

// Tier selects which judge model handles a request.
type Tier string

const (
	// TierBatch is the cheaper model used by scheduled runs.
	TierBatch Tier = "batch"
	// TierStrong is the stronger model used for on-demand evaluations.
	TierStrong Tier = "strong"
)

// Client is the minimal LLM surface the judge needs. *Connector satisfies
// it; tests substitute a canned fake.
type Client interface {
	Call(ctx context.Context, input string, options ...llms.CallOption) (string, error)
	Model() string
}

// Result is the outcome of one rubric invocation: either a criterion-score
// map or an error string, never both.
type Result struct {
	Scores map[string]store.CriterionScore
	Model  string
	Err    string
}

func (r Result) OK() bool { return r.Err == "" }

// Judge fronts the two model tiers behind a shared rate limit.
type Judge struct {
	batch   Client
	strong  Client
	limiter *rate.Limiter
	timeout time.Duration
}

// New builds a Judge. strong may be nil, in which case the batch client
// serves both tiers.
func New(batch, strong Client, requestsPerSecond float64, timeout time.Duration) *Judge {
	if strong == nil {
		strong = batch
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Judge{
		batch:   batch,
		strong:  strong,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		timeout: timeout,
	}
}

func (j *Judge) client(tier Tier) Client {
	if tier == TierStrong {
		return j.strong
	}
	return j.batch
}

// invoke makes exactly one model call. Failures surface to the caller and
// the turn is picked up again on the next scheduled cycle.
func (j *Judge) invoke(ctx context.Context, tier Tier, prompt string) (string, error) {
	if err := j.limiter.Wait(ctx); err != nil {
		return "", err
	}
	callCtx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()
	return j.client(tier).Call(callCtx, prompt)
}

// EvaluateResponse scores one conversational turn against the channel's
// rubric. Judge failures come back as an error Result so batch callers can
// record them per item.
func (j *Judge) EvaluateResponse(ctx context.Context, channel store.Channel, userMessage, agentResponse string, tier Tier) Result {
	prompt := buildRubricPrompt(channel, userMessage, agentResponse)
	model := j.client(tier).Model()

	raw, err := j.invoke(ctx, tier, prompt)
	if err != nil {
		log.Warn().Err(err).Str("channel", string(channel)).Str("tier", string(tier)).Msg("Judge invocation failed")
		return Result{Model: model, Err: fmt.Sprintf("judge invocation failed: %v", err)}
	}

	scores, err := parseScores(raw)
	if err != nil {
		log.Warn().Err(err).Str("channel", string(channel)).Msg("Judge output unparseable")
		return Result{Model: model, Err: fmt.Sprintf("judge output unparseable: %v", err)}
	}
	return Result{Scores: scores, Model: model}
}

// CompareDraft asks the batch-tier judge how Gigi's draft differs from the
// staff reply that actually went out.
func (j *Judge) CompareDraft(ctx context.Context, channel store.Channel, inbound, draft, actualReply string) (*store.DiffAnalysis, error) {
	prompt := buildComparatorPrompt(channel, inbound, draft, actualReply)

	raw, err := j.invoke(ctx, TierBatch, prompt)
	if err != nil {
		return nil, fmt.Errorf("comparator invocation failed: %w", err)
	}
	analysis, err := parseDiff(raw)
	if err != nil {
		return nil, fmt.Errorf("comparator output unparseable: %w", err)
	}
	return analysis, nil
}
