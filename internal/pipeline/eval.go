package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hearthside/gigi-learning/internal/judge"
	"github.com/hearthside/gigi-learning/internal/memory"
	"github.com/hearthside/gigi-learning/internal/scoring"
	"github.com/hearthside/gigi-learning/internal/store"
	"github.com/hearthside/gigi-learning/internal/transport"
)

const (
	// evalWindow is the scheduled run's lookback over the conversation log.
	evalWindow = 24 * time.Hour
	// evalCap bounds turns judged per scheduled run.
	evalCap = 100
)

// EvalRunner drives the rubric-evaluation pass over recent conversations.
type EvalRunner struct {
	judge    *judge.Judge
	store    store.Store
	messages transport.MessageLog
	memory   *memory.Manager
	now      func() time.Time
}

func NewEvalRunner(j *judge.Judge, s store.Store, messages transport.MessageLog, m *memory.Manager) *EvalRunner {
	return &EvalRunner{judge: j, store: s, messages: messages, memory: m, now: time.Now}
}

// SetClock overrides the runner clock in tests.
func (r *EvalRunner) SetClock(now func() time.Time) { r.now = now }

// Run evaluates unevaluated turns from the last 24 hours with the
// batch-tier judge.
func (r *EvalRunner) Run(ctx context.Context) RunSummary {
	filter := transport.TurnFilter{Since: r.now().Add(-evalWindow), Limit: evalCap}
	return r.run(ctx, "evaluation", filter, judge.TierBatch)
}

// EvaluateConversation evaluates every unevaluated turn of one
// conversation with the strong-tier judge.
func (r *EvalRunner) EvaluateConversation(ctx context.Context, conversationRef string) RunSummary {
	filter := transport.TurnFilter{ConversationRef: conversationRef}
	return r.run(ctx, "evaluate-conversation", filter, judge.TierStrong)
}

// EvaluateChannel evaluates all unevaluated turns on one channel for one
// calendar day.
func (r *EvalRunner) EvaluateChannel(ctx context.Context, channel store.Channel, day time.Time) RunSummary {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	filter := transport.TurnFilter{Channel: channel, Since: start, Until: start.AddDate(0, 0, 1)}
	return r.run(ctx, "evaluate-channel", filter, judge.TierStrong)
}

func (r *EvalRunner) run(ctx context.Context, mode string, filter transport.TurnFilter, tier judge.Tier) RunSummary {
	summary := RunSummary{Mode: mode, StartedAt: r.now(), Errors: []string{}}

	// Evaluated turns are excluded store-side so the fetch cap counts only
	// turns still to judge; the in-loop check below guards the race.
	filter.ExcludeEvaluated = true
	turns, err := r.messages.FetchConversationTurns(ctx, filter)
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("fetching conversation turns: %v", err))
		summary.FinishedAt = r.now()
		return summary
	}

	refNames, err := r.store.ReferenceNames(ctx, "")
	if err != nil {
		// Grounding is a bonus signal; evaluation proceeds without it.
		log.Warn().Err(err).Msg("Reference-name fetch failed, skipping grounding checks")
		refNames = nil
	}

	for _, turn := range turns {
		if err := ctx.Err(); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("run cancelled: %v", err))
			break
		}
		done, err := r.store.IsEvaluated(ctx, turn.ConversationRef, turn.TurnRef)
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("turn %s/%s: %v", turn.ConversationRef, turn.TurnRef, err))
			continue
		}
		if done {
			summary.TurnsSkipped++
			continue
		}
		if err := r.evaluateTurn(ctx, turn, tier, refNames, &summary); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("turn %s/%s: %v", turn.ConversationRef, turn.TurnRef, err))
		}
	}

	summary.FinishedAt = r.now()
	log.Info().
		Str("mode", mode).
		Int("evaluated", summary.TurnsEvaluated).
		Int("skipped", summary.TurnsSkipped).
		Int("flagged", summary.Flagged).
		Int("errors", len(summary.Errors)).
		Msg("Evaluation run finished")
	return summary
}

func (r *EvalRunner) evaluateTurn(ctx context.Context, turn transport.ConversationTurn, tier judge.Tier, refNames []string, summary *RunSummary) error {
	result := r.judge.EvaluateResponse(ctx, turn.Channel, turn.UserMessage, turn.AgentResponse, tier)
	if !result.OK() {
		return errors.New(result.Err)
	}

	overall := scoring.OverallScore(result.Scores, turn.Channel)
	record := &store.EvaluationRecord{
		ID:              uuid.NewString(),
		ConversationRef: turn.ConversationRef,
		TurnRef:         turn.TurnRef,
		Channel:         turn.Channel,
		UserMessage:     turn.UserMessage,
		AgentResponse:   turn.AgentResponse,
		Scores:          result.Scores,
		OverallScore:    overall,
		LatencySeconds:  turn.LatencySeconds,
		JudgeModel:      result.Model,
	}
	record.Flagged, record.FlagReason = scoring.Flagged(overall, record.SafetyScore(), scoring.FlagThreshold)
	record.RefsChecked, record.RefsVerified = groundingCheck(turn.AgentResponse, refNames)
	if record.RefsChecked > 0 {
		ratio := float64(record.RefsVerified) / float64(record.RefsChecked)
		record.GroundingRatio = &ratio
	}

	// Routed before the insert so the record carries the memory reference
	// from birth; evaluation records are never updated afterwards.
	var routeErr error
	if record.Flagged {
		record.CorrectionMemory, routeErr = r.routeCorrection(ctx, record)
	}

	if err := r.store.CreateEvaluation(ctx, record); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// Lost a race against a concurrent run; the other writer won.
			summary.TurnsSkipped++
			return nil
		}
		return fmt.Errorf("persisting evaluation: %w", err)
	}
	summary.TurnsEvaluated++

	if record.Flagged {
		summary.Flagged++
	}
	if routeErr != nil {
		return fmt.Errorf("routing correction: %w", routeErr)
	}
	return nil
}

// routeCorrection turns a flagged evaluation's worst criterion into a
// correction-memory candidate, returning the memory id it landed in.
func (r *EvalRunner) routeCorrection(ctx context.Context, record *store.EvaluationRecord) (string, error) {
	name, cs, ok := worstCriterion(record.Scores)
	if !ok || cs.Evidence == "" {
		return "", nil
	}
	candidate := fmt.Sprintf("On %s, avoid this: %s (%s)", record.Channel, cs.Evidence, cs.Reasoning)
	id, err := r.memory.CreateOrReinforce(ctx, candidate, categoryHintFor(name), memory.Origin{
		Source:       store.SourceEvaluation,
		EvaluationID: record.ID,
	})
	if err != nil {
		return "", err
	}
	if id != "" {
		log.Debug().Str("evaluation_id", record.ID).Str("memory_id", id).Str("criterion", name).Msg("Flagged evaluation routed to correction memory")
	}
	return id, nil
}

func worstCriterion(scores map[string]store.CriterionScore) (string, store.CriterionScore, bool) {
	var worstName string
	var worst store.CriterionScore
	found := false
	for name, cs := range scores {
		if !found || cs.Score < worst.Score || (cs.Score == worst.Score && name < worstName) {
			worstName, worst, found = name, cs, true
		}
	}
	return worstName, worst, found
}

func categoryHintFor(criterion string) string {
	switch criterion {
	case store.CriterionTone:
		return "tone"
	case store.CriterionToolSelection:
		return "action"
	default:
		return "content"
	}
}
