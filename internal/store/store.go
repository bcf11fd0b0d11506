package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already evaluated")
)

// TrendPoint is one day of evaluation volume for dashboard trend lines.
type TrendPoint struct {
	Day      string  `json:"day"` // YYYY-MM-DD
	Count    int     `json:"count"`
	AvgScore float64 `json:"avg_score"`
	Flagged  int     `json:"flagged"`
}

// WindowStats aggregates evaluations over a time window for one channel.
type WindowStats struct {
	Count    int     `json:"count"`
	AvgScore float64 `json:"avg_score"`
	Flagged  int     `json:"flagged"`
}

// DraftStats summarizes the shadow-learning funnel.
type DraftStats struct {
	TotalDrafts        int     `json:"total_drafts"`
	Paired             int     `json:"paired"`
	Processed          int     `json:"processed"`
	CorrectionsCreated int     `json:"corrections_created"`
	AvgDifferenceScore float64 `json:"avg_difference_score"`
}

// DraftStore owns DraftRecord persistence. The pairing engine and the
// shadow-learning driver are its only mutating callers.
type DraftStore interface {
	CreateDraft(ctx context.Context, d *DraftRecord) error
	GetDraft(ctx context.Context, id string) (*DraftRecord, error)
	// ListUnpaired returns unpaired drafts created on/after since, oldest
	// first, capped at limit.
	ListUnpaired(ctx context.Context, since time.Time, limit int) ([]*DraftRecord, error)
	// MarkPaired records the staff reply (or the no-reply ageout when by is
	// ReplyByNoReply) and flips paired. Persisted immediately per draft.
	MarkPaired(ctx context.Context, id string, reply string, replyAt *time.Time, by ReplyBy) error
	// ListPairedUnprocessed returns staff-paired drafts not yet analyzed,
	// oldest first, capped at limit.
	ListPairedUnprocessed(ctx context.Context, limit int) ([]*DraftRecord, error)
	// SetAnalysis stores the comparator verdict and marks the draft
	// processed; memoryID may be empty when no correction was created.
	SetAnalysis(ctx context.Context, id string, analysis *DiffAnalysis, memoryID string) error
	DraftStats(ctx context.Context) (DraftStats, error)
}

// EvaluationStore owns EvaluationRecord persistence. Records are immutable
// once created; the (conversation, turn) pair is unique.
type EvaluationStore interface {
	// CreateEvaluation returns ErrDuplicate when the turn is already scored.
	CreateEvaluation(ctx context.Context, e *EvaluationRecord) error
	IsEvaluated(ctx context.Context, conversationRef, turnRef string) (bool, error)
	// ListFlagged returns flagged evaluations most-recent-first; channel
	// filters when non-empty.
	ListFlagged(ctx context.Context, limit int, channel Channel) ([]*EvaluationRecord, error)
	WindowStats(ctx context.Context, channel Channel, since time.Time) (WindowStats, error)
	Trend(ctx context.Context, days int) ([]TrendPoint, error)
}

// MemoryStore owns the correction ledger and its audit trail. Memories are
// never hard-deleted.
type MemoryStore interface {
	CreateMemory(ctx context.Context, m *CorrectionMemory) error
	UpdateMemory(ctx context.Context, m *CorrectionMemory) error
	GetMemory(ctx context.Context, id string) (*CorrectionMemory, error)
	// ListActiveCorrections returns active correction memories most-recent
	// first, capped at limit.
	ListActiveCorrections(ctx context.Context, limit int) ([]*CorrectionMemory, error)
	CountActiveCorrections(ctx context.Context) (int, error)
	AppendAudit(ctx context.Context, entry *AuditLogEntry) error
}

// Store is the full event-store accessor handed to the pipeline.
type Store interface {
	DraftStore
	EvaluationStore
	MemoryStore
	// ReferenceNames lists cached reference-entity names for grounding
	// checks. A missing cache table yields an empty list, not an error.
	ReferenceNames(ctx context.Context, category string) ([]string, error)
}
