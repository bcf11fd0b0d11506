package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthside/gigi-learning/internal/store"
)

func TestCreateNewMemory(t *testing.T) {
	ctx := context.Background()
	s := store.NewInMemoryStore()
	m := NewManager(s)

	id, err := m.CreateOrReinforce(ctx, "Always confirm the shift date before promising coverage.", "action", Origin{
		Source:          "shadow-learning",
		DraftID:         "draft-1",
		DifferenceScore: 7,
		DifferenceType:  "action",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	mem, err := s.GetMemory(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "correction", mem.Kind)
	assert.Equal(t, 0.8, mem.Confidence)
	assert.Equal(t, store.CategoryScheduling, mem.Category)
	assert.Equal(t, store.MemoryActive, mem.Status)
	assert.Equal(t, 0, mem.ReinforcementCount)
	assert.Equal(t, "draft-1", mem.Metadata["draft_id"])

	trail := s.AuditEntries(id)
	require.Len(t, trail, 1)
	assert.Equal(t, store.AuditCreated, trail[0].Event)
	assert.Equal(t, 0.8, trail[0].NewConfidence)
}

func TestReinforceSimilarMemory(t *testing.T) {
	ctx := context.Background()
	s := store.NewInMemoryStore()
	m := NewManager(s)
	reinforcedAt := time.Date(2026, 2, 11, 9, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return reinforcedAt })

	first, err := m.CreateOrReinforce(ctx, "Always confirm the shift date before promising coverage", "action", Origin{Source: "shadow-learning"})
	require.NoError(t, err)

	// Same lesson, slightly reworded: well over 60% word overlap.
	second, err := m.CreateOrReinforce(ctx, "Always confirm the shift date before promising any coverage", "action", Origin{Source: "evaluation"})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	mem, err := s.GetMemory(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, 0.85, mem.Confidence)
	assert.Equal(t, 1, mem.ReinforcementCount)
	require.NotNil(t, mem.LastReinforcedAt)
	assert.Equal(t, reinforcedAt, *mem.LastReinforcedAt)

	n, err := s.CountActiveCorrections(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	trail := s.AuditEntries(first)
	require.Len(t, trail, 2)
	assert.Equal(t, store.AuditReinforced, trail[1].Event)
	assert.Equal(t, 0.8, trail[1].OldConfidence)
	assert.Equal(t, 0.85, trail[1].NewConfidence)
	assert.Equal(t, "reinforcement", trail[1].Reason)
}

func TestConfidenceCappedAtNinetyFive(t *testing.T) {
	ctx := context.Background()
	s := store.NewInMemoryStore()
	m := NewManager(s)

	id, err := m.CreateOrReinforce(ctx, "Never share a client's address in a group chat", "content", Origin{Source: "evaluation"})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err = m.CreateOrReinforce(ctx, "Never share a client's address in a group chat", "content", Origin{Source: "evaluation"})
		require.NoError(t, err)
	}

	mem, err := s.GetMemory(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0.95, mem.Confidence)
	assert.Equal(t, 5, mem.ReinforcementCount)
}

func TestDissimilarCandidateCreatesSecondMemory(t *testing.T) {
	ctx := context.Background()
	s := store.NewInMemoryStore()
	m := NewManager(s)

	a, err := m.CreateOrReinforce(ctx, "Always confirm the shift date before promising coverage", "action", Origin{Source: "shadow-learning"})
	require.NoError(t, err)
	b, err := m.CreateOrReinforce(ctx, "Keep sms replies short and avoid medical jargon", "tone", Origin{Source: "evaluation"})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	memB, err := s.GetMemory(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, store.CategoryCommunication, memB.Category)
}

func TestNothingIsNeverPersisted(t *testing.T) {
	ctx := context.Background()
	s := store.NewInMemoryStore()
	m := NewManager(s)

	for _, candidate := range []string{"", "   ", "nothing", "Nothing", "NOTHING"} {
		id, err := m.CreateOrReinforce(ctx, candidate, "content", Origin{Source: "shadow-learning"})
		require.NoError(t, err)
		assert.Empty(t, id)
	}

	n, err := s.CountActiveCorrections(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCategoryMapping(t *testing.T) {
	tests := []struct {
		diffType string
		want     store.Category
	}{
		{"tone", store.CategoryCommunication},
		{"length", store.CategoryCommunication},
		{"content", store.CategoryOperations},
		{"action", store.CategoryScheduling},
		{"escalation", store.CategoryScheduling},
		{"Tone", store.CategoryCommunication},
		{"unknown", store.CategoryOperations},
		{"", store.CategoryOperations},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, mapCategory(tt.diffType), "diff type %q", tt.diffType)
	}
}

func TestOverlap(t *testing.T) {
	a := wordSet("always confirm the shift date")
	b := wordSet("always confirm the shift date please")
	assert.InDelta(t, 5.0/6.0, overlap(a, b), 1e-9)

	assert.Equal(t, 0.0, overlap(wordSet(""), b))
	assert.Equal(t, 1.0, overlap(a, a))
}
