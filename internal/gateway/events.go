package gateway

import (
	"encoding/json"
	"fmt"
	"time"
)

// Client to server events.
const (
	EventRegister          = "register"
	EventJoinConversation  = "joinConversation"
	EventLeaveConversation = "leaveConversation"
	EventSendMessage       = "sendMessage"
	EventMarkRead          = "markRead"
	EventPing              = "ping"
)

// Server to client events.
const (
	EventRegistered      = "registered"
	EventMessageReceived = "messageReceived"
	EventUnreadSnapshot  = "unreadSnapshot"
	EventSeenByOther     = "seenByOther"
	EventAck             = "ack"
	EventError           = "error"
	EventPong            = "pong"
)

// Frame is the envelope of every live event. Ref is a client supplied
// correlation id echoed on the ack or error that answers the frame.
type Frame struct {
	Type string          `json:"type"`
	Ref  string          `json:"ref,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewFrame encodes payload into a frame. A nil payload leaves Data empty.
func NewFrame(typ, ref string, payload any) (*Frame, error) {
	f := &Frame{Type: typ, Ref: ref}
	if payload == nil {
		return f, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	f.Data = raw
	return f, nil
}

// Decode unmarshals the frame payload into v.
func (f *Frame) Decode(v any) error {
	if len(f.Data) == 0 {
		return fmt.Errorf("%w: %s has no data", ErrBadRequest, f.Type)
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}

// RegisterPayload identifies the connection. Token is for clients that
// cannot authenticate the handshake; UserID is only a cross check.
type RegisterPayload struct {
	Token  string `json:"token,omitempty"`
	UserID string `json:"userId,omitempty"`
}

// ConversationPayload names a conversation (join, leave, markRead).
type ConversationPayload struct {
	ConversationID string `json:"conversationId"`
}

// SendMessagePayload is the body of sendMessage.
type SendMessagePayload struct {
	ConversationID string `json:"conversationId"`
	Text           string `json:"text"`
}

// RegisteredPayload confirms the identity bound to the connection.
type RegisteredPayload struct {
	UserID string `json:"userId"`
}

// SeenByOtherPayload tells a participant the other side read the conversation.
type SeenByOtherPayload struct {
	ConversationID string    `json:"conversationId"`
	UserID         string    `json:"userId"`
	At             time.Time `json:"at"`
}

// MarkReadResult acknowledges markRead.
type MarkReadResult struct {
	ConversationID string `json:"conversationId"`
	Changed        bool   `json:"changed"`
}

// ErrorPayload is the body of an error frame.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
