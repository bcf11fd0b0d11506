package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/lib/pq"
)

// PostgresStore backs the pipeline with PostgreSQL. It is the production
// implementation of Store; the uniqueness constraint on
// (conversation_ref, turn_ref) is the correctness-critical lock for
// concurrent evaluation runs.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

// InitSchema creates the pipeline tables if they do not exist.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS draft_records (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			from_number TEXT NOT NULL,
			from_name TEXT NOT NULL DEFAULT '',
			channel TEXT NOT NULL,
			inbound_text TEXT NOT NULL,
			draft_text TEXT NOT NULL,
			inbound_at TIMESTAMPTZ NOT NULL,
			drafted_at TIMESTAMPTZ NOT NULL,
			paired BOOLEAN NOT NULL DEFAULT FALSE,
			actual_reply TEXT,
			actual_reply_at TIMESTAMPTZ,
			actual_reply_by TEXT,
			processed BOOLEAN NOT NULL DEFAULT FALSE,
			analysis JSONB,
			correction_memory_id UUID,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_draft_records_pending ON draft_records (drafted_at) WHERE NOT paired;`,
		`CREATE TABLE IF NOT EXISTS evaluation_records (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			conversation_ref TEXT NOT NULL,
			turn_ref TEXT NOT NULL,
			channel TEXT NOT NULL,
			user_message TEXT NOT NULL,
			agent_response TEXT NOT NULL,
			scores JSONB NOT NULL,
			overall_score NUMERIC(4,2) NOT NULL,
			latency_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
			judge_model TEXT NOT NULL DEFAULT '',
			flagged BOOLEAN NOT NULL DEFAULT FALSE,
			flag_reason TEXT,
			refs_checked INT NOT NULL DEFAULT 0,
			refs_verified INT NOT NULL DEFAULT 0,
			grounding_ratio DOUBLE PRECISION,
			correction_memory_id UUID,
			evaluated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (conversation_ref, turn_ref)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_evaluation_records_channel_time ON evaluation_records (channel, evaluated_at);`,
		`CREATE TABLE IF NOT EXISTS correction_memories (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			kind TEXT NOT NULL DEFAULT 'correction',
			content TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			source TEXT NOT NULL DEFAULT 'correction',
			category TEXT NOT NULL,
			impact_level TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'active',
			reinforcement_count INT NOT NULL DEFAULT 0,
			last_reinforced_at TIMESTAMPTZ,
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS memory_audit_log (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			memory_id UUID NOT NULL,
			event TEXT NOT NULL,
			old_confidence DOUBLE PRECISION NOT NULL,
			new_confidence DOUBLE PRECISION NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) CreateDraft(ctx context.Context, d *DraftRecord) error {
	return s.db.QueryRowContext(ctx, `
        INSERT INTO draft_records (from_number, from_name, channel, inbound_text, draft_text, inbound_at, drafted_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at, updated_at
    `, d.FromNumber, d.FromName, string(d.Channel), d.InboundText, d.DraftText, d.InboundAt, d.DraftedAt).
		Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
}

const draftColumns = `id, from_number, from_name, channel, inbound_text, draft_text, inbound_at, drafted_at,
        paired, coalesce(actual_reply,''), actual_reply_at, coalesce(actual_reply_by,''), processed, analysis,
        coalesce(correction_memory_id::text,''), created_at, updated_at`

func (s *PostgresStore) GetDraft(ctx context.Context, id string) (*DraftRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+draftColumns+` FROM draft_records WHERE id=$1`, id)
	return scanDraft(row)
}

func (s *PostgresStore) ListUnpaired(ctx context.Context, since time.Time, limit int) ([]*DraftRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT `+draftColumns+` FROM draft_records
        WHERE NOT paired AND drafted_at >= $1
        ORDER BY drafted_at ASC LIMIT $2
    `, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDrafts(rows)
}

func (s *PostgresStore) MarkPaired(ctx context.Context, id string, reply string, replyAt *time.Time, by ReplyBy) error {
	res, err := s.db.ExecContext(ctx, `
        UPDATE draft_records
        SET paired=TRUE, actual_reply=$1, actual_reply_at=$2, actual_reply_by=$3, updated_at=now()
        WHERE id=$4 AND NOT paired
    `, nullIfEmpty(reply), replyAt, string(by), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListPairedUnprocessed(ctx context.Context, limit int) ([]*DraftRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT `+draftColumns+` FROM draft_records
        WHERE paired AND NOT processed AND actual_reply_by = 'staff'
        ORDER BY drafted_at ASC LIMIT $1
    `, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDrafts(rows)
}

func (s *PostgresStore) SetAnalysis(ctx context.Context, id string, analysis *DiffAnalysis, memoryID string) error {
	aJSON, err := marshalAnalysis(analysis)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
        UPDATE draft_records
        SET analysis=$1, processed=TRUE, correction_memory_id=$2, updated_at=now()
        WHERE id=$3
    `, aJSON, nullIfEmpty(memoryID), id)
	return err
}

func (s *PostgresStore) DraftStats(ctx context.Context) (DraftStats, error) {
	var st DraftStats
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE paired),
               COUNT(*) FILTER (WHERE processed),
               COUNT(*) FILTER (WHERE correction_memory_id IS NOT NULL),
               AVG((analysis->>'difference_score')::numeric)
        FROM draft_records
    `).Scan(&st.TotalDrafts, &st.Paired, &st.Processed, &st.CorrectionsCreated, &avg)
	if err != nil {
		return DraftStats{}, err
	}
	if avg.Valid {
		st.AvgDifferenceScore = round2(avg.Float64)
	}
	return st, nil
}

func (s *PostgresStore) CreateEvaluation(ctx context.Context, e *EvaluationRecord) error {
	scoresJSON, err := json.Marshal(e.Scores)
	if err != nil {
		return err
	}
	err = s.db.QueryRowContext(ctx, `
        INSERT INTO evaluation_records (id, conversation_ref, turn_ref, channel, user_message, agent_response,
            scores, overall_score, latency_seconds, judge_model, flagged, flag_reason,
            refs_checked, refs_verified, grounding_ratio, correction_memory_id, evaluated_at)
        VALUES (coalesce(nullif($1,'')::uuid, gen_random_uuid()),$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,nullif($16,'')::uuid,coalesce($17, now()))
        RETURNING id, evaluated_at
    `, e.ID, e.ConversationRef, e.TurnRef, string(e.Channel), e.UserMessage, e.AgentResponse,
		scoresJSON, e.OverallScore, e.LatencySeconds, e.JudgeModel, e.Flagged, nullIfEmpty(e.FlagReason),
		e.RefsChecked, e.RefsVerified, e.GroundingRatio, e.CorrectionMemory, nullIfZeroTime(e.EvaluatedAt)).
		Scan(&e.ID, &e.EvaluatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *PostgresStore) IsEvaluated(ctx context.Context, conversationRef, turnRef string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
        SELECT EXISTS (SELECT 1 FROM evaluation_records WHERE conversation_ref=$1 AND turn_ref=$2)
    `, conversationRef, turnRef).Scan(&exists)
	return exists, err
}

const evalColumns = `id, conversation_ref, turn_ref, channel, user_message, agent_response, scores,
        overall_score, latency_seconds, judge_model, flagged, coalesce(flag_reason,''),
        refs_checked, refs_verified, grounding_ratio, coalesce(correction_memory_id::text,''), evaluated_at`

func (s *PostgresStore) ListFlagged(ctx context.Context, limit int, channel Channel) ([]*EvaluationRecord, error) {
	q := `SELECT ` + evalColumns + ` FROM evaluation_records WHERE flagged`
	args := []interface{}{}
	if channel != "" {
		q += ` AND channel=$1 ORDER BY evaluated_at DESC LIMIT $2`
		args = append(args, string(channel), limit)
	} else {
		q += ` ORDER BY evaluated_at DESC LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*EvaluationRecord, 0)
	for rows.Next() {
		e, err := scanEval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) WindowStats(ctx context.Context, channel Channel, since time.Time) (WindowStats, error) {
	var st WindowStats
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
        SELECT COUNT(*), AVG(overall_score), COUNT(*) FILTER (WHERE flagged)
        FROM evaluation_records WHERE channel=$1 AND evaluated_at >= $2
    `, string(channel), since).Scan(&st.Count, &avg, &st.Flagged)
	if err != nil {
		return WindowStats{}, err
	}
	if avg.Valid {
		st.AvgScore = round2(avg.Float64)
	}
	return st, nil
}

func (s *PostgresStore) Trend(ctx context.Context, days int) ([]TrendPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT to_char(evaluated_at::date, 'YYYY-MM-DD'), COUNT(*), AVG(overall_score), COUNT(*) FILTER (WHERE flagged)
        FROM evaluation_records
        WHERE evaluated_at >= now() - ($1 || ' days')::interval
        GROUP BY evaluated_at::date ORDER BY evaluated_at::date
    `, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]TrendPoint, 0)
	for rows.Next() {
		var tp TrendPoint
		var avg sql.NullFloat64
		if err := rows.Scan(&tp.Day, &tp.Count, &avg, &tp.Flagged); err != nil {
			return nil, err
		}
		if avg.Valid {
			tp.AvgScore = round2(avg.Float64)
		}
		out = append(out, tp)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateMemory(ctx context.Context, m *CorrectionMemory) error {
	metaJSON, err := marshalMeta(m.Metadata)
	if err != nil {
		return err
	}
	return s.db.QueryRowContext(ctx, `
        INSERT INTO correction_memories (kind, content, confidence, source, category, impact_level, status,
            reinforcement_count, last_reinforced_at, metadata)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING id, created_at, updated_at
    `, m.Kind, m.Content, m.Confidence, m.Source, string(m.Category), m.ImpactLevel, string(m.Status),
		m.ReinforcementCount, m.LastReinforcedAt, metaJSON).
		Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
}

func (s *PostgresStore) UpdateMemory(ctx context.Context, m *CorrectionMemory) error {
	metaJSON, err := marshalMeta(m.Metadata)
	if err != nil {
		return err
	}
	var updatedAt time.Time
	err = s.db.QueryRowContext(ctx, `
        UPDATE correction_memories
        SET content=$1, confidence=$2, category=$3, impact_level=$4, status=$5,
            reinforcement_count=$6, last_reinforced_at=$7, metadata=$8, updated_at=now()
        WHERE id=$9
        RETURNING updated_at
    `, m.Content, m.Confidence, string(m.Category), m.ImpactLevel, string(m.Status),
		m.ReinforcementCount, m.LastReinforcedAt, metaJSON, m.ID).Scan(&updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	m.UpdatedAt = updatedAt
	return nil
}

const memoryColumns = `id, kind, content, confidence, source, category, impact_level, status,
        reinforcement_count, last_reinforced_at, metadata, created_at, updated_at`

func (s *PostgresStore) GetMemory(ctx context.Context, id string) (*CorrectionMemory, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM correction_memories WHERE id=$1`, id)
	return scanMemory(row)
}

func (s *PostgresStore) ListActiveCorrections(ctx context.Context, limit int) ([]*CorrectionMemory, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT `+memoryColumns+` FROM correction_memories
        WHERE status='active' AND kind='correction'
        ORDER BY updated_at DESC LIMIT $1
    `, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*CorrectionMemory, 0)
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountActiveCorrections(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
        SELECT COUNT(*) FROM correction_memories WHERE status='active' AND kind='correction'
    `).Scan(&n)
	return n, err
}

func (s *PostgresStore) AppendAudit(ctx context.Context, entry *AuditLogEntry) error {
	return s.db.QueryRowContext(ctx, `
        INSERT INTO memory_audit_log (memory_id, event, old_confidence, new_confidence, reason)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at
    `, entry.MemoryID, string(entry.Event), entry.OldConfidence, entry.NewConfidence, entry.Reason).
		Scan(&entry.ID, &entry.CreatedAt)
}

// ReferenceNames reads the cached reference-entity names used by grounding
// checks. The cache table is owned by the care-management sync and may be
// entirely absent; that case degrades to an empty list.
func (s *PostgresStore) ReferenceNames(ctx context.Context, category string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT name FROM reference_entities WHERE ($1 = '' OR category = $1)
    `, strings.ToLower(category))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "42P01" { // undefined_table
			return nil, nil
		}
		return nil, err
	}
	defer rows.Close()
	out := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func scanDraft(scanner interface{ Scan(dest ...any) error }) (*DraftRecord, error) {
	var d DraftRecord
	var channel, replyBy string
	var replyAt sql.NullTime
	var aJSON []byte
	err := scanner.Scan(&d.ID, &d.FromNumber, &d.FromName, &channel, &d.InboundText, &d.DraftText,
		&d.InboundAt, &d.DraftedAt, &d.Paired, &d.ActualReply, &replyAt, &replyBy, &d.Processed,
		&aJSON, &d.CorrectionMemory, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	d.Channel = Channel(channel)
	d.ActualReplyBy = ReplyBy(replyBy)
	if replyAt.Valid {
		t := replyAt.Time
		d.ActualReplyAt = &t
	}
	if len(aJSON) > 0 {
		var a DiffAnalysis
		if err := json.Unmarshal(aJSON, &a); err == nil {
			d.Analysis = &a
		}
	}
	return &d, nil
}

func scanDrafts(rows *sql.Rows) ([]*DraftRecord, error) {
	out := make([]*DraftRecord, 0)
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanEval(scanner interface{ Scan(dest ...any) error }) (*EvaluationRecord, error) {
	var e EvaluationRecord
	var channel string
	var scoresJSON []byte
	var ratio sql.NullFloat64
	err := scanner.Scan(&e.ID, &e.ConversationRef, &e.TurnRef, &channel, &e.UserMessage, &e.AgentResponse,
		&scoresJSON, &e.OverallScore, &e.LatencySeconds, &e.JudgeModel, &e.Flagged, &e.FlagReason,
		&e.RefsChecked, &e.RefsVerified, &ratio, &e.CorrectionMemory, &e.EvaluatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	e.Channel = Channel(channel)
	if len(scoresJSON) > 0 {
		_ = json.Unmarshal(scoresJSON, &e.Scores)
	}
	if ratio.Valid {
		r := ratio.Float64
		e.GroundingRatio = &r
	}
	return &e, nil
}

func scanMemory(scanner interface{ Scan(dest ...any) error }) (*CorrectionMemory, error) {
	var m CorrectionMemory
	var category, status string
	var reinforcedAt sql.NullTime
	var metaJSON []byte
	err := scanner.Scan(&m.ID, &m.Kind, &m.Content, &m.Confidence, &m.Source, &category, &m.ImpactLevel,
		&status, &m.ReinforcementCount, &reinforcedAt, &metaJSON, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	m.Category = Category(category)
	m.Status = MemoryStatus(status)
	if reinforcedAt.Valid {
		t := reinforcedAt.Time
		m.LastReinforcedAt = &t
	}
	if len(metaJSON) > 0 {
		_ = json.Unmarshal(metaJSON, &m.Metadata)
	}
	return &m, nil
}

func marshalMeta(meta map[string]interface{}) ([]byte, error) {
	if meta == nil {
		return nil, nil
	}
	return json.Marshal(meta)
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullIfZeroTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
