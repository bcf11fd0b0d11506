package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthside/gigi-learning/internal/reporting"
	"github.com/hearthside/gigi-learning/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.InMemoryStore) {
	t.Helper()
	s := store.NewInMemoryStore()
	return NewServer(reporting.NewReporter(s), 0), s
}

func doRequest(t *testing.T, srv *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestLearningStatsEndpoint(t *testing.T) {
	srv, s := newTestServer(t)
	d := &store.DraftRecord{FromNumber: "5035551234", Channel: store.ChannelSMS, DraftText: "draft", DraftedAt: time.Now()}
	require.NoError(t, s.CreateDraft(context.Background(), d))

	rec := doRequest(t, srv, "/api/learning/stats")
	assert.Equal(t, http.StatusOK, rec.Code)

	var stats reporting.LearningStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.TotalDrafts)
	assert.Equal(t, 0, stats.Paired)
}

func TestEvaluationStatsEndpoint(t *testing.T) {
	srv, s := newTestServer(t)
	e := &store.EvaluationRecord{ConversationRef: "c", TurnRef: "t", Channel: store.ChannelSMS, OverallScore: 4.0, EvaluatedAt: time.Now()}
	require.NoError(t, s.CreateEvaluation(context.Background(), e))

	rec := doRequest(t, srv, "/api/evaluations/stats")
	assert.Equal(t, http.StatusOK, rec.Code)

	var stats reporting.EvaluationStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.ByChannel[store.ChannelSMS].ThirtyDays.Count)
}

func TestFlaggedEndpoint(t *testing.T) {
	srv, s := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, s.CreateEvaluation(ctx, &store.EvaluationRecord{
		ConversationRef: "c", TurnRef: "a", Channel: store.ChannelSMS,
		OverallScore: 1.9, Flagged: true, FlagReason: "overall_score 1.90 < 2.5", EvaluatedAt: time.Now(),
	}))
	require.NoError(t, s.CreateEvaluation(ctx, &store.EvaluationRecord{
		ConversationRef: "c", TurnRef: "b", Channel: store.ChannelVoice,
		OverallScore: 4.5, Flagged: true, FlagReason: "safety_score == 1", EvaluatedAt: time.Now(),
	}))

	rec := doRequest(t, srv, "/api/evaluations/flagged")
	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Count   int                       `json:"count"`
		Flagged []*store.EvaluationRecord `json:"flagged"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)

	rec = doRequest(t, srv, "/api/evaluations/flagged?channel=voice&limit=5")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, store.ChannelVoice, body.Flagged[0].Channel)
}

func TestFlaggedEndpointRejectsBadLimit(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, "/api/evaluations/flagged?limit=banana")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, "/api/evaluations/flagged?limit=-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
