// Package pipeline holds the two scheduled drivers: the shadow-learning
// pass (pairing, draft-vs-reply comparison, correction extraction) and the
// evaluation pass (rubric judging, flagging, correction extraction). Both
// accumulate per-item errors into the run summary instead of aborting.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hearthside/gigi-learning/internal/judge"
	"github.com/hearthside/gigi-learning/internal/memory"
	"github.com/hearthside/gigi-learning/internal/pairing"
	"github.com/hearthside/gigi-learning/internal/store"
)

const (
	// analysisCap bounds how many paired drafts one run compares.
	analysisCap = 30
	// minCorrectionScore is the difference score below which the draft is
	// close enough that no correction is worth keeping.
	minCorrectionScore = 3
)

// LearningRunner drives the shadow-learning pass.
type LearningRunner struct {
	pairer *pairing.Engine
	judge  *judge.Judge
	store  store.DraftStore
	memory *memory.Manager
	now    func() time.Time
}

func NewLearningRunner(pairer *pairing.Engine, j *judge.Judge, s store.DraftStore, m *memory.Manager) *LearningRunner {
	return &LearningRunner{pairer: pairer, judge: j, store: s, memory: m, now: time.Now}
}

// Run pairs pending drafts, then compares paired-but-unprocessed drafts
// against the staff reply that went out, turning meaningful gaps into
// correction memories.
func (r *LearningRunner) Run(ctx context.Context) RunSummary {
	summary := RunSummary{Mode: "learning", StartedAt: r.now(), Errors: []string{}}

	paired, err := r.pairer.PairPendingDrafts(ctx)
	if err != nil {
		// Pairing aborts as a unit; the analysis half still runs on
		// drafts paired in earlier cycles.
		summary.Errors = append(summary.Errors, fmt.Sprintf("pairing: %v", err))
	}
	summary.DraftsPaired = len(paired)

	pending, err := r.store.ListPairedUnprocessed(ctx, analysisCap)
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("listing paired drafts: %v", err))
		summary.FinishedAt = r.now()
		return summary
	}

	for _, draft := range pending {
		if err := ctx.Err(); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("run cancelled: %v", err))
			break
		}
		if err := r.analyzeDraft(ctx, draft, &summary); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("draft %s: %v", draft.ID, err))
		}
	}

	summary.FinishedAt = r.now()
	log.Info().
		Int("paired", summary.DraftsPaired).
		Int("analyzed", summary.DraftsAnalyzed).
		Int("corrections", summary.CorrectionsCreated).
		Int("errors", len(summary.Errors)).
		Msg("Shadow-learning run finished")
	return summary
}

func (r *LearningRunner) analyzeDraft(ctx context.Context, draft *store.DraftRecord, summary *RunSummary) error {
	analysis, err := r.judge.CompareDraft(ctx, draft.Channel, draft.InboundText, draft.DraftText, draft.ActualReply)
	if err != nil {
		return err
	}

	memoryID := ""
	if wantCorrection(analysis) {
		memoryID, err = r.memory.CreateOrReinforce(ctx, analysis.Correction, analysis.DifferenceType, memory.Origin{
			Source:          store.SourceShadowLearning,
			DraftID:         draft.ID,
			DifferenceScore: analysis.DifferenceScore,
			DifferenceType:  analysis.DifferenceType,
		})
		if err != nil {
			// The analysis itself still gets persisted below.
			summary.Errors = append(summary.Errors, fmt.Sprintf("draft %s correction: %v", draft.ID, err))
			memoryID = ""
		} else if memoryID != "" {
			summary.CorrectionsCreated++
		}
	}

	if err := r.store.SetAnalysis(ctx, draft.ID, analysis, memoryID); err != nil {
		return fmt.Errorf("persisting analysis: %w", err)
	}
	summary.DraftsAnalyzed++
	return nil
}

// wantCorrection filters out gaps not worth learning from: the draft was
// better than the staff reply, or the two were close enough.
func wantCorrection(a *store.DiffAnalysis) bool {
	return !a.GigiWasBetter && a.DifferenceScore >= minCorrectionScore
}
