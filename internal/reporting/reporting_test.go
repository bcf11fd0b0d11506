package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthside/gigi-learning/internal/store"
)

// brokenStore fails every call, for the degradation paths.
type brokenStore struct {
	store.Store
}

var errDown = errors.New("store down")

func (brokenStore) DraftStats(ctx context.Context) (store.DraftStats, error) {
	return store.DraftStats{}, errDown
}

func (brokenStore) CountActiveCorrections(ctx context.Context) (int, error) { return 0, errDown }

func (brokenStore) ListActiveCorrections(ctx context.Context, limit int) ([]*store.CorrectionMemory, error) {
	return nil, errDown
}

func (brokenStore) WindowStats(ctx context.Context, ch store.Channel, since time.Time) (store.WindowStats, error) {
	return store.WindowStats{}, errDown
}

func (brokenStore) Trend(ctx context.Context, days int) ([]store.TrendPoint, error) {
	return nil, errDown
}

func (brokenStore) ListFlagged(ctx context.Context, limit int, ch store.Channel) ([]*store.EvaluationRecord, error) {
	return nil, errDown
}

func seedPipeline(t *testing.T, s *store.InMemoryStore, now time.Time) {
	t.Helper()
	ctx := context.Background()

	d := &store.DraftRecord{FromNumber: "5035551234", Channel: store.ChannelSMS, DraftText: "draft", DraftedAt: now.Add(-2 * time.Hour)}
	require.NoError(t, s.CreateDraft(ctx, d))
	replyAt := now.Add(-time.Hour)
	require.NoError(t, s.MarkPaired(ctx, d.ID, "reply", &replyAt, store.ReplyByStaff))

	mem := &store.CorrectionMemory{Kind: "correction", Content: "Keep replies short", Confidence: 0.8, Category: store.CategoryCommunication, Status: store.MemoryActive}
	require.NoError(t, s.CreateMemory(ctx, mem))
	require.NoError(t, s.SetAnalysis(ctx, d.ID, &store.DiffAnalysis{DifferenceScore: 6, DifferenceType: "tone"}, mem.ID))

	for i, tc := range []struct {
		score   float64
		flagged bool
	}{
		{4.2, false},
		{1.8, true},
	} {
		e := &store.EvaluationRecord{
			ConversationRef: "conv",
			TurnRef:         string(rune('a' + i)),
			Channel:         store.ChannelSMS,
			OverallScore:    tc.score,
			Flagged:         tc.flagged,
			EvaluatedAt:     now.Add(-time.Duration(i+1) * time.Hour),
		}
		require.NoError(t, s.CreateEvaluation(ctx, e))
	}
}

func TestGetLearningStats(t *testing.T) {
	now := time.Date(2026, 2, 10, 15, 0, 0, 0, time.UTC)
	s := store.NewInMemoryStore()
	s.SetClock(func() time.Time { return now })
	seedPipeline(t, s, now)

	r := NewReporter(s)
	r.SetClock(func() time.Time { return now })

	stats := r.GetLearningStats(context.Background())
	assert.Equal(t, 1, stats.TotalDrafts)
	assert.Equal(t, 1, stats.Paired)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 1, stats.CorrectionsCreated)
	assert.Equal(t, 6.0, stats.AvgDifferenceScore)
	assert.Equal(t, 1, stats.ActiveLearningMemory)
	require.Len(t, stats.RecentCorrections, 1)
	assert.Equal(t, "Keep replies short", stats.RecentCorrections[0].Content)
}

func TestGetEvaluationStats(t *testing.T) {
	now := time.Date(2026, 2, 10, 15, 0, 0, 0, time.UTC)
	s := store.NewInMemoryStore()
	s.SetClock(func() time.Time { return now })
	seedPipeline(t, s, now)

	r := NewReporter(s)
	r.SetClock(func() time.Time { return now })

	stats := r.GetEvaluationStats(context.Background())
	require.Contains(t, stats.ByChannel, store.ChannelSMS)
	sms := stats.ByChannel[store.ChannelSMS]
	assert.Equal(t, 2, sms.Today.Count)
	assert.Equal(t, 3.0, sms.Today.AvgScore)
	assert.Equal(t, 1, sms.Today.Flagged)
	assert.Equal(t, 2, sms.SevenDays.Count)

	voice := stats.ByChannel[store.ChannelVoice]
	assert.Equal(t, 0, voice.Today.Count)

	require.Len(t, stats.Trends, 1)
	assert.Equal(t, "2026-02-10", stats.Trends[0].Day)

	assert.Equal(t, 1, stats.SMSLearning.TotalDrafts)
}

func TestGetFlaggedResponses(t *testing.T) {
	now := time.Date(2026, 2, 10, 15, 0, 0, 0, time.UTC)
	s := store.NewInMemoryStore()
	seedPipeline(t, s, now)

	r := NewReporter(s)
	flagged := r.GetFlaggedResponses(context.Background(), 10, "")
	require.Len(t, flagged, 1)
	assert.Equal(t, 1.8, flagged[0].OverallScore)

	assert.Empty(t, r.GetFlaggedResponses(context.Background(), 10, store.ChannelVoice))
}

func TestStatsDegradeOnStoreErrors(t *testing.T) {
	r := NewReporter(brokenStore{})
	ctx := context.Background()

	learning := r.GetLearningStats(ctx)
	assert.Equal(t, 0, learning.TotalDrafts)
	assert.NotNil(t, learning.RecentCorrections)
	assert.Empty(t, learning.RecentCorrections)

	evalStats := r.GetEvaluationStats(ctx)
	assert.Len(t, evalStats.ByChannel, 4)
	assert.Equal(t, store.WindowStats{}, evalStats.ByChannel[store.ChannelSMS].Today)
	assert.NotNil(t, evalStats.Trends)
	assert.Empty(t, evalStats.Trends)

	assert.Empty(t, r.GetFlaggedResponses(ctx, 5, ""))
}
