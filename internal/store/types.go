package store

import (
	"encoding/json"
	"time"
)

// Channel identifies the communication surface a turn occurred on.
type Channel string

const (
	ChannelVoice Channel = "voice"
	ChannelSMS   Channel = "sms"
	ChannelGroup Channel = "chat-group"
	ChannelDM    Channel = "direct-message"
)

// ReplyBy records who (if anyone) actually answered an inbound message.
type ReplyBy string

const (
	ReplyByUnset   ReplyBy = ""
	ReplyByStaff   ReplyBy = "staff"
	ReplyByNoReply ReplyBy = "no_reply"
)

// DiffAnalysis is the comparator's verdict on a draft vs. the staff reply.
type DiffAnalysis struct {
	DifferenceScore int    `json:"difference_score"` // 1..10
	DifferenceType  string `json:"difference_type"`  // tone | length | content | action | escalation
	GigiWasBetter   bool   `json:"gigi_was_better"`
	Correction      string `json:"correction"`
	Reasoning       string `json:"reasoning,omitempty"`
}

// DraftRecord is one agent-authored draft for an inbound message, retained so
// it can later be paired with whatever a human actually sent.
type DraftRecord struct {
	ID               string        `json:"id"`
	FromNumber       string        `json:"from_number"`
	FromName         string        `json:"from_name"`
	Channel          Channel       `json:"channel"`
	InboundText      string        `json:"inbound_text"`
	DraftText        string        `json:"draft_text"`
	InboundAt        time.Time     `json:"inbound_at"`
	DraftedAt        time.Time     `json:"drafted_at"`
	Paired           bool          `json:"paired"`
	ActualReply      string        `json:"actual_reply,omitempty"`
	ActualReplyAt    *time.Time    `json:"actual_reply_at,omitempty"`
	ActualReplyBy    ReplyBy       `json:"actual_reply_by,omitempty"`
	Processed        bool          `json:"processed"`
	Analysis         *DiffAnalysis `json:"analysis,omitempty"`
	CorrectionMemory string        `json:"correction_memory_id,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// CriterionScore is one rubric dimension as returned by the judge.
type CriterionScore struct {
	Score     int    `json:"score"` // 1..5
	Evidence  string `json:"evidence,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`
}

// Rubric criteria names. The weight rows in the scoring package key off these.
const (
	CriterionAccuracy      = "accuracy"
	CriterionHelpfulness   = "helpfulness"
	CriterionTone          = "tone"
	CriterionToolSelection = "tool_selection"
	CriterionSafety        = "safety"
)

// EvaluationRecord is one judge-scored conversational turn. Created once after
// a successful judge invocation, immutable thereafter.
type EvaluationRecord struct {
	ID              string                    `json:"id"`
	ConversationRef string                    `json:"conversation_ref"`
	TurnRef         string                    `json:"turn_ref"`
	Channel         Channel                   `json:"channel"`
	UserMessage     string                    `json:"user_message"`
	AgentResponse   string                    `json:"agent_response"`
	Scores          map[string]CriterionScore `json:"scores"`
	OverallScore    float64                   `json:"overall_score"` // 0..5, 2dp
	LatencySeconds  float64                   `json:"latency_seconds"`
	JudgeModel      string                    `json:"judge_model"`
	Flagged         bool                      `json:"flagged"`
	FlagReason      string                    `json:"flag_reason,omitempty"`
	RefsChecked     int                       `json:"refs_checked"`
	RefsVerified    int                       `json:"refs_verified"`
	GroundingRatio  *float64                  `json:"grounding_ratio,omitempty"`
	// CorrectionMemory references the memory a flagged evaluation's worst
	// criterion was routed to. Set before the record is persisted.
	CorrectionMemory string    `json:"correction_memory_id,omitempty"`
	EvaluatedAt      time.Time `json:"evaluated_at"`
}

// SafetyScore returns the safety criterion score, or 0 when absent.
func (e *EvaluationRecord) SafetyScore() int {
	if s, ok := e.Scores[CriterionSafety]; ok {
		return s.Score
	}
	return 0
}

// MemoryStatus is the curation state of a correction memory.
type MemoryStatus string

const (
	MemoryActive  MemoryStatus = "active"
	MemoryRetired MemoryStatus = "retired"
)

// Category buckets a correction by the part of the operation it touches.
type Category string

const (
	CategoryCommunication Category = "communication"
	CategoryOperations    Category = "operations"
	CategoryScheduling    Category = "scheduling"
)

// Source subsystems that feed the correction ledger.
const (
	SourceShadowLearning = "shadow-learning"
	SourceEvaluation     = "evaluation"
)

// CorrectionMemory is a durable, reusable lesson distilled from an observed
// gap between what the agent drafted and what it should have said.
type CorrectionMemory struct {
	ID                 string                 `json:"id"`
	Kind               string                 `json:"kind"`   // always "correction"
	Content            string                 `json:"content"`
	Confidence         float64                `json:"confidence"` // 0..1, capped at 0.95
	Source             string                 `json:"source"`     // always "correction"
	Category           Category               `json:"category"`
	ImpactLevel        string                 `json:"impact_level"`
	Status             MemoryStatus           `json:"status"`
	ReinforcementCount int                    `json:"reinforcement_count"`
	LastReinforcedAt   *time.Time             `json:"last_reinforced_at,omitempty"`
	Metadata           map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt          time.Time              `json:"created_at"`
	UpdatedAt          time.Time              `json:"updated_at"`
}

// AuditEventType distinguishes ledger events on a correction memory.
type AuditEventType string

const (
	AuditCreated    AuditEventType = "created"
	AuditReinforced AuditEventType = "reinforced"
)

// AuditLogEntry records one creation or reinforcement event on a memory.
type AuditLogEntry struct {
	ID            string         `json:"id"`
	MemoryID      string         `json:"memory_id"`
	Event         AuditEventType `json:"event"`
	OldConfidence float64        `json:"old_confidence"`
	NewConfidence float64        `json:"new_confidence"`
	Reason        string         `json:"reason"`
	CreatedAt     time.Time      `json:"created_at"`
}

func marshalAnalysis(a *DiffAnalysis) ([]byte, error) {
	if a == nil {
		return nil, nil
	}
	return json.Marshal(a)
}
