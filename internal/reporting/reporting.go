// Package reporting aggregates pipeline statistics for the dashboard. All
// getters degrade to empty structures on store errors so the dashboard
// renders rather than erroring.
package reporting

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hearthside/gigi-learning/internal/store"
)

const recentCorrectionsLimit = 10

// LearningStats summarizes the shadow-learning pipeline.
type LearningStats struct {
	TotalDrafts          int                       `json:"total_drafts"`
	Paired               int                       `json:"paired"`
	Processed            int                       `json:"processed"`
	CorrectionsCreated   int                       `json:"corrections_created"`
	AvgDifferenceScore   float64                   `json:"avg_difference_score"`
	ActiveLearningMemory int                       `json:"active_learning_memories"`
	RecentCorrections    []*store.CorrectionMemory `json:"recent_corrections"`
}

// ChannelWindows holds one channel's stats over the standard windows.
type ChannelWindows struct {
	Today      store.WindowStats `json:"today"`
	SevenDays  store.WindowStats `json:"7d"`
	ThirtyDays store.WindowStats `json:"30d"`
}

// EvaluationStats summarizes the evaluation pipeline for the dashboard.
type EvaluationStats struct {
	ByChannel   map[store.Channel]ChannelWindows `json:"by_channel"`
	Trends      []store.TrendPoint               `json:"trends"`
	SMSLearning LearningStats                    `json:"sms_learning"`
}

type Reporter struct {
	store store.Store
	now   func() time.Time
}

func NewReporter(s store.Store) *Reporter {
	return &Reporter{store: s, now: time.Now}
}

// SetClock overrides the reporter clock in tests.
func (r *Reporter) SetClock(now func() time.Time) { r.now = now }

// GetLearningStats returns the shadow-learning totals. Store errors are
// logged and yield the zero struct.
func (r *Reporter) GetLearningStats(ctx context.Context) LearningStats {
	stats := LearningStats{RecentCorrections: []*store.CorrectionMemory{}}

	draftStats, err := r.store.DraftStats(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Draft stats unavailable")
		return stats
	}
	stats.TotalDrafts = draftStats.TotalDrafts
	stats.Paired = draftStats.Paired
	stats.Processed = draftStats.Processed
	stats.CorrectionsCreated = draftStats.CorrectionsCreated
	stats.AvgDifferenceScore = draftStats.AvgDifferenceScore

	if n, err := r.store.CountActiveCorrections(ctx); err != nil {
		log.Warn().Err(err).Msg("Active correction count unavailable")
	} else {
		stats.ActiveLearningMemory = n
	}

	if recent, err := r.store.ListActiveCorrections(ctx, recentCorrectionsLimit); err != nil {
		log.Warn().Err(err).Msg("Recent corrections unavailable")
	} else {
		stats.RecentCorrections = recent
	}
	return stats
}

// GetEvaluationStats returns per-channel windowed stats plus the daily
// trend line. Per-channel store errors leave that cell empty.
func (r *Reporter) GetEvaluationStats(ctx context.Context) EvaluationStats {
	now := r.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	stats := EvaluationStats{
		ByChannel: make(map[store.Channel]ChannelWindows),
		Trends:    []store.TrendPoint{},
	}
	for _, ch := range []store.Channel{store.ChannelVoice, store.ChannelSMS, store.ChannelGroup, store.ChannelDM} {
		stats.ByChannel[ch] = ChannelWindows{
			Today:      r.windowStats(ctx, ch, today),
			SevenDays:  r.windowStats(ctx, ch, now.AddDate(0, 0, -7)),
			ThirtyDays: r.windowStats(ctx, ch, now.AddDate(0, 0, -30)),
		}
	}

	if trend, err := r.store.Trend(ctx, 30); err != nil {
		log.Warn().Err(err).Msg("Evaluation trend unavailable")
	} else {
		stats.Trends = trend
	}

	stats.SMSLearning = r.GetLearningStats(ctx)
	return stats
}

func (r *Reporter) windowStats(ctx context.Context, ch store.Channel, since time.Time) store.WindowStats {
	st, err := r.store.WindowStats(ctx, ch, since)
	if err != nil {
		log.Warn().Err(err).Str("channel", string(ch)).Msg("Window stats unavailable")
		return store.WindowStats{}
	}
	return st
}

// GetFlaggedResponses lists flagged evaluations, most recent first,
// optionally narrowed to one channel.
func (r *Reporter) GetFlaggedResponses(ctx context.Context, limit int, channel store.Channel) []*store.EvaluationRecord {
	if limit <= 0 {
		limit = 20
	}
	flagged, err := r.store.ListFlagged(ctx, limit, channel)
	if err != nil {
		log.Warn().Err(err).Msg("Flagged evaluations unavailable")
		return []*store.EvaluationRecord{}
	}
	return flagged
}
