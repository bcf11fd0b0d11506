// Package memory manages the durable correction store. Candidate
// corrections from either pipeline are deduplicated against recent active
// memories by word overlap; a near-duplicate reinforces the existing memory
// instead of creating a new row.
package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hearthside/gigi-learning/internal/store"
)

const (
	// similarityThreshold is the word-overlap ratio above which a candidate
	// reinforces an existing memory instead of creating a new one.
	similarityThreshold = 0.6

	initialConfidence = 0.8
	confidenceStep    = 0.05
	confidenceCap     = 0.95

	dedupSearchLimit = 20
)

// Origin records where a correction candidate came from.
type Origin struct {
	Source          string // shadow-learning or evaluation
	DraftID         string
	EvaluationID    string
	DifferenceScore int
	DifferenceType  string
}

type Manager struct {
	store store.MemoryStore
	now   func() time.Time
}

func NewManager(s store.MemoryStore) *Manager {
	return &Manager{store: s, now: time.Now}
}

// SetClock overrides the manager clock in tests.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// CreateOrReinforce persists a correction candidate, either by reinforcing
// the most similar recent active memory or by inserting a new one. Returns
// the memory id. Empty or "nothing" candidates are discarded without
// touching the store.
func (m *Manager) CreateOrReinforce(ctx context.Context, candidate string, categoryHint string, origin Origin) (string, error) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" || strings.EqualFold(candidate, "nothing") {
		return "", nil
	}

	existing, err := m.store.ListActiveCorrections(ctx, dedupSearchLimit)
	if err != nil {
		return "", fmt.Errorf("listing active corrections: %w", err)
	}

	candidateWords := wordSet(candidate)
	var best *store.CorrectionMemory
	bestScore := similarityThreshold
	for _, mem := range existing {
		score := overlap(candidateWords, wordSet(mem.Content))
		if score > bestScore {
			best = mem
			bestScore = score
		}
	}

	if best != nil {
		return m.reinforce(ctx, best, bestScore)
	}
	return m.create(ctx, candidate, categoryHint, origin)
}

func (m *Manager) reinforce(ctx context.Context, mem *store.CorrectionMemory, similarity float64) (string, error) {
	oldConfidence := mem.Confidence
	mem.Confidence = oldConfidence + confidenceStep
	if mem.Confidence > confidenceCap {
		mem.Confidence = confidenceCap
	}
	mem.ReinforcementCount++
	reinforcedAt := m.now()
	mem.LastReinforcedAt = &reinforcedAt

	if err := m.store.UpdateMemory(ctx, mem); err != nil {
		return "", fmt.Errorf("reinforcing memory %s: %w", mem.ID, err)
	}
	if err := m.store.AppendAudit(ctx, &store.AuditLogEntry{
		MemoryID:      mem.ID,
		Event:         store.AuditReinforced,
		OldConfidence: oldConfidence,
		NewConfidence: mem.Confidence,
		Reason:        "reinforcement",
	}); err != nil {
		return "", fmt.Errorf("auditing reinforcement of %s: %w", mem.ID, err)
	}

	log.Debug().
		Str("memory_id", mem.ID).
		Float64("similarity", similarity).
		Float64("confidence", mem.Confidence).
		Int("reinforcements", mem.ReinforcementCount).
		Msg("Reinforced existing correction memory")
	return mem.ID, nil
}

func (m *Manager) create(ctx context.Context, candidate, categoryHint string, origin Origin) (string, error) {
	meta := map[string]interface{}{
		"source_type": origin.Source,
	}
	if origin.DraftID != "" {
		meta["draft_id"] = origin.DraftID
	}
	if origin.EvaluationID != "" {
		meta["evaluation_id"] = origin.EvaluationID
	}
	if origin.DifferenceScore > 0 {
		meta["difference_score"] = origin.DifferenceScore
	}
	if origin.DifferenceType != "" {
		meta["difference_type"] = origin.DifferenceType
	}

	mem := &store.CorrectionMemory{
		Kind:       "correction",
		Content:    candidate,
		Confidence: initialConfidence,
		Source:     "correction",
		Category:   mapCategory(categoryHint),
		Status:     store.MemoryActive,
		Metadata:   meta,
	}
	if err := m.store.CreateMemory(ctx, mem); err != nil {
		return "", fmt.Errorf("creating correction memory: %w", err)
	}
	if err := m.store.AppendAudit(ctx, &store.AuditLogEntry{
		MemoryID:      mem.ID,
		Event:         store.AuditCreated,
		OldConfidence: 0,
		NewConfidence: mem.Confidence,
		Reason:        "created from " + origin.Source,
	}); err != nil {
		return "", fmt.Errorf("auditing creation of %s: %w", mem.ID, err)
	}

	log.Debug().
		Str("memory_id", mem.ID).
		Str("category", string(mem.Category)).
		Str("source", origin.Source).
		Msg("Created new correction memory")
	return mem.ID, nil
}

// mapCategory translates a difference type into a memory category.
func mapCategory(diffType string) store.Category {
	switch strings.ToLower(strings.TrimSpace(diffType)) {
	case "tone", "length":
		return store.CategoryCommunication
	case "content":
		return store.CategoryOperations
	case "action", "escalation":
		return store.CategoryScheduling
	default:
		return store.CategoryOperations
	}
}

func wordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?;:\"'()")
		if w != "" {
			set[w] = true
		}
	}
	return set
}

// overlap computes |A∩B| / max(|A|,|B|).
func overlap(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for w := range a {
		if b[w] {
			shared++
		}
	}
	denom := len(a)
	if len(b) > denom {
		denom = len(b)
	}
	return float64(shared) / float64(denom)
}
