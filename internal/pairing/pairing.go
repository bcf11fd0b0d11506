// Package pairing matches agent drafts with the human reply that actually
// went out on the same channel, within a bounded time window.
package pairing

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hearthside/gigi-learning/internal/store"
	"github.com/hearthside/gigi-learning/internal/transport"
)

const (
	// lookback bounds which pending drafts a run considers.
	lookback = 7 * 24 * time.Hour
	// batchCap bounds drafts handled per run.
	batchCap = 50
	// matchWindow is how long after a draft an outbound message still
	// counts as the reply to it.
	matchWindow = 60 * time.Minute
	// ageoutAfter is how long a draft waits for a reply before it is
	// closed out as needing none.
	ageoutAfter = 2 * time.Hour
)

type Engine struct {
	store    store.DraftStore
	messages transport.MessageLog
	now      func() time.Time
}

func NewEngine(s store.DraftStore, messages transport.MessageLog) *Engine {
	return &Engine{store: s, messages: messages, now: time.Now}
}

// SetClock overrides the engine clock in tests.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// PairPendingDrafts pairs unpaired drafts from the last 7 days against the
// outbound message log. Each pairing is persisted immediately; a failed
// message fetch aborts the whole run so it can be retried as a unit.
// Returns the drafts paired with a staff reply this run.
func (e *Engine) PairPendingDrafts(ctx context.Context) ([]*store.DraftRecord, error) {
	now := e.now()
	pending, err := e.store.ListUnpaired(ctx, now.Add(-lookback), batchCap)
	if err != nil {
		return nil, fmt.Errorf("listing unpaired drafts: %w", err)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	// One bulk fetch per channel covering the whole batch, anchored at the
	// batch's earliest draft.
	byChannel := make(map[store.Channel][]transport.OutboundMessage)
	for _, ch := range channelsOf(pending) {
		earliest := earliestDraftOn(pending, ch)
		messages, err := e.messages.FetchOutboundMessages(ctx, ch, earliest)
		if err != nil {
			log.Error().Err(err).Str("channel", string(ch)).Msg("Outbound message fetch failed, aborting pairing run")
			return nil, fmt.Errorf("fetching outbound messages for %s: %w", ch, err)
		}
		byChannel[ch] = messages
	}

	var paired []*store.DraftRecord
	for _, draft := range pending {
		match := findReply(draft, byChannel[draft.Channel])
		switch {
		case match != nil:
			sentAt := match.SentAt
			if err := e.store.MarkPaired(ctx, draft.ID, match.Text, &sentAt, store.ReplyByStaff); err != nil {
				return paired, fmt.Errorf("pairing draft %s: %w", draft.ID, err)
			}
			draft.Paired = true
			draft.ActualReply = match.Text
			draft.ActualReplyAt = &sentAt
			draft.ActualReplyBy = store.ReplyByStaff
			paired = append(paired, draft)
			log.Debug().
				Str("draft_id", draft.ID).
				Str("channel", string(draft.Channel)).
				Dur("reply_lag", match.SentAt.Sub(draft.DraftedAt)).
				Msg("Paired draft with staff reply")
		case now.Sub(draft.DraftedAt) > ageoutAfter:
			if err := e.store.MarkPaired(ctx, draft.ID, "", nil, store.ReplyByNoReply); err != nil {
				return paired, fmt.Errorf("aging out draft %s: %w", draft.ID, err)
			}
			log.Debug().Str("draft_id", draft.ID).Msg("Draft aged out with no reply")
		}
	}
	return paired, nil
}

// findReply returns the earliest outbound message to the draft's sender
// within the match window, or nil.
func findReply(draft *store.DraftRecord, messages []transport.OutboundMessage) *transport.OutboundMessage {
	target := normalizePhone(draft.FromNumber)
	if target == "" {
		return nil
	}
	windowEnd := draft.DraftedAt.Add(matchWindow)

	var best *transport.OutboundMessage
	for i := range messages {
		m := &messages[i]
		if normalizePhone(m.To) != target {
			continue
		}
		if m.SentAt.Before(draft.DraftedAt) || m.SentAt.After(windowEnd) {
			continue
		}
		if best == nil || m.SentAt.Before(best.SentAt) {
			best = m
		}
	}
	return best
}

// normalizePhone reduces an address to its last 10 digits, so +1 country
// codes and formatting differences don't break matching.
func normalizePhone(s string) string {
	digits := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			digits = append(digits, s[i])
		}
	}
	if len(digits) > 10 {
		digits = digits[len(digits)-10:]
	}
	return string(digits)
}

func channelsOf(drafts []*store.DraftRecord) []store.Channel {
	seen := make(map[store.Channel]bool)
	var out []store.Channel
	for _, d := range drafts {
		if !seen[d.Channel] {
			seen[d.Channel] = true
			out = append(out, d.Channel)
		}
	}
	return out
}

func earliestDraftOn(drafts []*store.DraftRecord, ch store.Channel) time.Time {
	var earliest time.Time
	for _, d := range drafts {
		if d.Channel != ch {
			continue
		}
		if earliest.IsZero() || d.DraftedAt.Before(earliest) {
			earliest = d.DraftedAt
		}
	}
	return earliest
}
