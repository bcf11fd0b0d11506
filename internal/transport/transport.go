// Package transport defines the read-only interfaces to the messaging
// system: the outbound message log consumed by pairing and the
// conversation log consumed by the evaluation driver.
package transport

import (
	"context"
	"time"

	"github.com/hearthside/gigi-learning/internal/store"
)

// OutboundMessage is one message a human or Gigi sent out on a channel.
type OutboundMessage struct {
	ID     string        `json:"id"`
	To     string        `json:"to"`
	Text   string        `json:"text"`
	SentAt time.Time     `json:"sent_at"`
	Chan   store.Channel `json:"channel"`
}

// ConversationTurn is one user→agent exchange from the conversation log.
type ConversationTurn struct {
	ConversationRef string        `json:"conversation_ref"`
	TurnRef         string        `json:"turn_ref"`
	Channel         store.Channel `json:"channel"`
	UserMessage     string        `json:"user_message"`
	AgentResponse   string        `json:"agent_response"`
	UserAt          time.Time     `json:"user_at"`
	AgentAt         time.Time     `json:"agent_at"`
	LatencySeconds  float64       `json:"latency_seconds"`
}

// TurnFilter constrains a conversation-log fetch. When ExcludeEvaluated is
// set, turns that already have an evaluation record are filtered out before
// Limit applies, so the cap counts only work still to do.
type TurnFilter struct {
	Channel          store.Channel
	Since            time.Time
	Until            time.Time
	ConversationRef  string
	Limit            int
	ExcludeEvaluated bool
}

// NullMessageLog is an empty message log, used when no messaging backend
// is configured.
type NullMessageLog struct{}

func (NullMessageLog) FetchOutboundMessages(ctx context.Context, channel store.Channel, since time.Time) ([]OutboundMessage, error) {
	return nil, nil
}

func (NullMessageLog) FetchConversationTurns(ctx context.Context, filter TurnFilter) ([]ConversationTurn, error) {
	return nil, nil
}

// MessageLog is the messaging system's read surface.
type MessageLog interface {
	// FetchOutboundMessages returns every outbound message on a channel
	// sent on or after since.
	FetchOutboundMessages(ctx context.Context, channel store.Channel, since time.Time) ([]OutboundMessage, error)
	// FetchConversationTurns returns user→agent turn pairs matching the
	// filter, oldest first.
	FetchConversationTurns(ctx context.Context, filter TurnFilter) ([]ConversationTurn, error)
}
