package data

import (
	"context"
	"time"

	"github.com/PaulBabatuyi/pawchat/internal/normalize"
)

const (
	// MaxMessageBytes caps the stored (escaped) message text.
	MaxMessageBytes = 4 << 10
	// PreviewLength is the rune length of Conversation.LastMessagePreview.
	PreviewLength = 120
)

// ConversationStore persists conversations and their messages.
// ConversationsStore (MongoDB) and MemoryStore implement it.
type ConversationStore interface {
	FindOrCreateConversation(ctx context.Context, userA, userB, listingID string) (*Conversation, error)
	GetConversation(ctx context.Context, conversationID string) (*Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]*Conversation, error)
	AppendMessage(ctx context.Context, conversationID, senderID, text string) (*Message, error)
	ListMessages(ctx context.Context, conversationID, requesterID string) ([]*Message, error)
}

// UserLookup resolves display info for user ids. Unknown ids are absent
// from the returned map.
type UserLookup interface {
	LookupUsers(ctx context.Context, ids []string) (map[string]UserSummary, error)
}

// prepareText validates and normalizes message text before it is stored.
func prepareText(text string) (string, error) {
	body := normalize.MessageText(text)
	if body == "" {
		return "", ErrEmptyMessage
	}
	if len(body) > MaxMessageBytes {
		return "", ErrMessageTooLong
	}
	return body, nil
}

// pairParticipants validates a find-or-create request and returns the
// sorted participant pair and its key.
func pairParticipants(userA, userB string) ([]string, string, error) {
	a, b := normalize.ID(userA), normalize.ID(userB)
	if a == "" || b == "" || a == b {
		return nil, "", ErrInvalidParticipant
	}
	if b < a {
		a, b = b, a
	}
	return []string{a, b}, normalize.PairKey(a, b), nil
}

// storeTime drops precision MongoDB would not keep anyway, so values read
// back compare equal to the ones returned on write.
func storeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
