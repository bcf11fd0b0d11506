package store

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a threadsafe in-memory store for tests and local runs.
type InMemoryStore struct {
	mu       sync.RWMutex
	drafts   map[string]*DraftRecord
	evals    map[string]*EvaluationRecord
	evalKeys map[string]bool // conversationRef|turnRef
	memories map[string]*CorrectionMemory
	audits   []*AuditLogEntry
	refNames map[string][]string
	now      func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		drafts:   make(map[string]*DraftRecord),
		evals:    make(map[string]*EvaluationRecord),
		evalKeys: make(map[string]bool),
		memories: make(map[string]*CorrectionMemory),
		refNames: make(map[string][]string),
		now:      time.Now,
	}
}

// SetClock overrides the store clock in tests.
func (s *InMemoryStore) SetClock(now func() time.Time) { s.now = now }

// SetReferenceNames seeds the grounding cache in tests.
func (s *InMemoryStore) SetReferenceNames(category string, names []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refNames[category] = append([]string(nil), names...)
}

func (s *InMemoryStore) CreateDraft(ctx context.Context, d *DraftRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.CreatedAt = s.now()
	d.UpdatedAt = d.CreatedAt
	s.drafts[d.ID] = cloneDraft(d)
	return nil
}

func (s *InMemoryStore) GetDraft(ctx context.Context, id string) (*DraftRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.drafts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneDraft(d), nil
}

func (s *InMemoryStore) ListUnpaired(ctx context.Context, since time.Time, limit int) ([]*DraftRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*DraftRecord, 0)
	for _, d := range s.drafts {
		if d.Paired || d.DraftedAt.Before(since) {
			continue
		}
		out = append(out, cloneDraft(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DraftedAt.Before(out[j].DraftedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) MarkPaired(ctx context.Context, id string, reply string, replyAt *time.Time, by ReplyBy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[id]
	if !ok {
		return ErrNotFound
	}
	d.Paired = true
	d.ActualReply = reply
	d.ActualReplyAt = replyAt
	d.ActualReplyBy = by
	d.UpdatedAt = s.now()
	return nil
}

func (s *InMemoryStore) ListPairedUnprocessed(ctx context.Context, limit int) ([]*DraftRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*DraftRecord, 0)
	for _, d := range s.drafts {
		if !d.Paired || d.Processed || d.ActualReplyBy != ReplyByStaff {
			continue
		}
		out = append(out, cloneDraft(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DraftedAt.Before(out[j].DraftedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) SetAnalysis(ctx context.Context, id string, analysis *DiffAnalysis, memoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[id]
	if !ok {
		return ErrNotFound
	}
	d.Analysis = cloneAnalysis(analysis)
	d.Processed = true
	d.CorrectionMemory = memoryID
	d.UpdatedAt = s.now()
	return nil
}

func (s *InMemoryStore) DraftStats(ctx context.Context) (DraftStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var st DraftStats
	var diffSum, diffN int
	for _, d := range s.drafts {
		st.TotalDrafts++
		if d.Paired {
			st.Paired++
		}
		if d.Processed {
			st.Processed++
		}
		if d.CorrectionMemory != "" {
			st.CorrectionsCreated++
		}
		if d.Analysis != nil {
			diffSum += d.Analysis.DifferenceScore
			diffN++
		}
	}
	if diffN > 0 {
		st.AvgDifferenceScore = round2(float64(diffSum) / float64(diffN))
	}
	return st, nil
}

func (s *InMemoryStore) CreateEvaluation(ctx context.Context, e *EvaluationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := e.ConversationRef + "|" + e.TurnRef
	if s.evalKeys[key] {
		return ErrDuplicate
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.EvaluatedAt.IsZero() {
		e.EvaluatedAt = s.now()
	}
	s.evalKeys[key] = true
	s.evals[e.ID] = cloneEval(e)
	return nil
}

func (s *InMemoryStore) IsEvaluated(ctx context.Context, conversationRef, turnRef string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.evalKeys[conversationRef+"|"+turnRef], nil
}

func (s *InMemoryStore) ListFlagged(ctx context.Context, limit int, channel Channel) ([]*EvaluationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*EvaluationRecord, 0)
	for _, e := range s.evals {
		if !e.Flagged {
			continue
		}
		if channel != "" && e.Channel != channel {
			continue
		}
		out = append(out, cloneEval(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EvaluatedAt.After(out[j].EvaluatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) WindowStats(ctx context.Context, channel Channel, since time.Time) (WindowStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var st WindowStats
	var sum float64
	for _, e := range s.evals {
		if e.Channel != channel || e.EvaluatedAt.Before(since) {
			continue
		}
		st.Count++
		sum += e.OverallScore
		if e.Flagged {
			st.Flagged++
		}
	}
	if st.Count > 0 {
		st.AvgScore = round2(sum / float64(st.Count))
	}
	return st, nil
}

func (s *InMemoryStore) Trend(ctx context.Context, days int) ([]TrendPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byDay := make(map[string]*TrendPoint)
	sums := make(map[string]float64)
	cutoff := s.now().AddDate(0, 0, -days)
	for _, e := range s.evals {
		if e.EvaluatedAt.Before(cutoff) {
			continue
		}
		day := e.EvaluatedAt.Format("2006-01-02")
		tp, ok := byDay[day]
		if !ok {
			tp = &TrendPoint{Day: day}
			byDay[day] = tp
		}
		tp.Count++
		sums[day] += e.OverallScore
		if e.Flagged {
			tp.Flagged++
		}
	}
	out := make([]TrendPoint, 0, len(byDay))
	for day, tp := range byDay {
		tp.AvgScore = round2(sums[day] / float64(tp.Count))
		out = append(out, *tp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out, nil
}

func (s *InMemoryStore) CreateMemory(ctx context.Context, m *CorrectionMemory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = s.now()
	m.UpdatedAt = m.CreatedAt
	s.memories[m.ID] = cloneMemory(m)
	return nil
}

func (s *InMemoryStore) UpdateMemory(ctx context.Context, m *CorrectionMemory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.memories[m.ID]
	if !ok {
		return ErrNotFound
	}
	m.CreatedAt = old.CreatedAt
	m.UpdatedAt = s.now()
	s.memories[m.ID] = cloneMemory(m)
	return nil
}

func (s *InMemoryStore) GetMemory(ctx context.Context, id string) (*CorrectionMemory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memories[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneMemory(m), nil
}

func (s *InMemoryStore) ListActiveCorrections(ctx context.Context, limit int) ([]*CorrectionMemory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*CorrectionMemory, 0)
	for _, m := range s.memories {
		if m.Status != MemoryActive || m.Kind != "correction" {
			continue
		}
		out = append(out, cloneMemory(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) CountActiveCorrections(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.memories {
		if m.Status == MemoryActive && m.Kind == "correction" {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) AppendAudit(ctx context.Context, entry *AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.CreatedAt = s.now()
	cp := *entry
	s.audits = append(s.audits, &cp)
	return nil
}

// AuditEntries returns the audit trail for a memory, oldest first. Test helper.
func (s *InMemoryStore) AuditEntries(memoryID string) []*AuditLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*AuditLogEntry, 0)
	for _, a := range s.audits {
		if a.MemoryID == memoryID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out
}

// Evaluations returns all stored evaluations. Test helper.
func (s *InMemoryStore) Evaluations() []*EvaluationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*EvaluationRecord, 0, len(s.evals))
	for _, e := range s.evals {
		out = append(out, cloneEval(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EvaluatedAt.Before(out[j].EvaluatedAt) })
	return out
}

func (s *InMemoryStore) ReferenceNames(ctx context.Context, category string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.refNames[strings.ToLower(category)]...), nil
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func cloneDraft(d *DraftRecord) *DraftRecord {
	if d == nil {
		return nil
	}
	cp := *d
	cp.Analysis = cloneAnalysis(d.Analysis)
	if d.ActualReplyAt != nil {
		t := *d.ActualReplyAt
		cp.ActualReplyAt = &t
	}
	return &cp
}

func cloneAnalysis(a *DiffAnalysis) *DiffAnalysis {
	if a == nil {
		return nil
	}
	cp := *a
	return &cp
}

func cloneEval(e *EvaluationRecord) *EvaluationRecord {
	if e == nil {
		return nil
	}
	cp := *e
	if e.Scores != nil {
		cp.Scores = make(map[string]CriterionScore, len(e.Scores))
		for k, v := range e.Scores {
			cp.Scores[k] = v
		}
	}
	if e.GroundingRatio != nil {
		r := *e.GroundingRatio
		cp.GroundingRatio = &r
	}
	return &cp
}

func cloneMemory(m *CorrectionMemory) *CorrectionMemory {
	if m == nil {
		return nil
	}
	cp := *m
	if m.LastReinforcedAt != nil {
		t := *m.LastReinforcedAt
		cp.LastReinforcedAt = &t
	}
	if m.Metadata != nil {
		cp.Metadata = make(map[string]interface{}, len(m.Metadata))
		for k, v := range m.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
