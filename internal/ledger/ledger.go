// Package ledger keeps per-user, per-conversation unread counters.
//
// Counts are maintained incrementally: every delivered message bumps the
// counter of each recipient and an explicit read resets it. The aggregate
// badge number (conversations with unread messages) is always derived from
// the same per-conversation map, never stored separately.
package ledger

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/PaulBabatuyi/pawchat/internal/data"
	"github.com/PaulBabatuyi/pawchat/internal/normalize"
)

// Backend stores the counters and read markers. Increment must be atomic
// per (user, conversation); Reset sets the count to zero and moves the read
// marker forward to at, reporting whether anything changed.
type Backend interface {
	Increment(ctx context.Context, userID, conversationID string) (int64, error)
	Reset(ctx context.Context, userID, conversationID string, at time.Time) (bool, error)
	Counts(ctx context.Context, userID string) (map[string]int64, error)
}

// Participants resolves conversation membership.
type Participants interface {
	GetConversation(ctx context.Context, conversationID string) (*data.Conversation, error)
}

// Snapshot is the unread state pushed to clients.
type Snapshot struct {
	AggregateCount  int              `json:"aggregateCount"`
	PerConversation map[string]int64 `json:"perConversation"`
}

// Ledger applies delivery and read events to a Backend.
type Ledger struct {
	backend Backend
	convs   Participants
	logger  *zap.Logger
	now     func() time.Time
}

// New returns a Ledger. A nil logger disables logging.
func New(backend Backend, convs Participants, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		backend: backend,
		convs:   convs,
		logger:  logger.With(zap.String("component", "ledger")),
		now:     time.Now,
	}
}

// RecordDelivery increments the unread count of every recipient other than
// the sender. Recipients that are not participants are skipped. It returns
// the users whose counters moved.
func (l *Ledger) RecordDelivery(ctx context.Context, conversationID, senderID string, recipients []string) ([]string, error) {
	conv, err := l.convs.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	convID := conv.ID.Hex()
	senderID = normalize.ID(senderID)

	affected := make([]string, 0, len(recipients))
	for _, r := range recipients {
		r = normalize.ID(r)
		if r == senderID {
			continue
		}
		if !conv.HasParticipant(r) {
			l.logger.Debug("skipping delivery to non-participant",
				zap.String("conversation_id", convID),
				zap.String("user_id", r))
			continue
		}
		if _, err := l.backend.Increment(ctx, r, convID); err != nil {
			return affected, err
		}
		affected = append(affected, r)
	}
	return affected, nil
}

// MarkRead resets the user's counter for the conversation and records the
// read time. Non-participants are ignored. The second of two consecutive
// calls reports false.
func (l *Ledger) MarkRead(ctx context.Context, userID, conversationID string) (bool, error) {
	conv, err := l.convs.GetConversation(ctx, conversationID)
	if err != nil {
		return false, err
	}
	userID = normalize.ID(userID)
	if !conv.HasParticipant(userID) {
		return false, nil
	}
	return l.backend.Reset(ctx, userID, conv.ID.Hex(), l.now().UTC())
}

// Counts returns conversationID → unread count for the user.
func (l *Ledger) Counts(ctx context.Context, userID string) (map[string]int64, error) {
	return l.backend.Counts(ctx, normalize.ID(userID))
}

// Snapshot returns the per-conversation counts and the aggregate derived
// from them.
func (l *Ledger) Snapshot(ctx context.Context, userID string) (Snapshot, error) {
	counts, err := l.Counts(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}
	if counts == nil {
		counts = map[string]int64{}
	}
	return Snapshot{AggregateCount: aggregate(counts), PerConversation: counts}, nil
}

func aggregate(counts map[string]int64) int {
	n := 0
	for _, c := range counts {
		if c > 0 {
			n++
		}
	}
	return n
}
