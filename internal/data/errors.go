package data

import "errors"

// Errors returned by the stores. Transports map them with errors.Is.
var (
	ErrUnauthorized         = errors.New("unauthorized")
	ErrNotAParticipant      = errors.New("not a participant of this conversation")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrEmptyMessage         = errors.New("message text is empty")
	ErrMessageTooLong       = errors.New("message text is too long")
	ErrInvalidParticipant   = errors.New("a conversation needs two distinct participants")
	ErrUserNotFound         = errors.New("user not found")
	ErrUserExists           = errors.New("user already exists")
	ErrInvalidAccount       = errors.New("a valid email and a password of at least 8 characters are required")
)
