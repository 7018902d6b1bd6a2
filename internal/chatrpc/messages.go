package chatrpc

import (
	"time"

	"github.com/PaulBabatuyi/pawchat/internal/ledger"
)

// RegisterRequest creates an account.
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName,omitempty"`
}

// GetEmail lets the rate limiter key the request by account.
func (r *RegisterRequest) GetEmail() string { return r.Email }

// LoginRequest exchanges credentials for a token.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *LoginRequest) GetEmail() string { return r.Email }

// AuthResponse carries an issued token.
type AuthResponse struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// OpenConversationRequest finds or creates the conversation with a participant.
type OpenConversationRequest struct {
	ParticipantID string `json:"participantId"`
	ListingID     string `json:"listingId,omitempty"`
}

// ConversationRequest names a conversation.
type ConversationRequest struct {
	ConversationID string `json:"conversationId"`
}

// MarkReadResponse reports whether anything changed and the new unread state.
type MarkReadResponse struct {
	Changed bool            `json:"changed"`
	Unread  ledger.Snapshot `json:"unread"`
}

// SendMessageRequest posts a message outside a live stream.
type SendMessageRequest struct {
	ConversationID string `json:"conversationId"`
	Text           string `json:"text"`
}

// ListConversationsRequest has no fields; the caller comes from the token.
type ListConversationsRequest struct{}
