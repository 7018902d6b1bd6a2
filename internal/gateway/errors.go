package gateway

import (
	"errors"

	"github.com/PaulBabatuyi/pawchat/internal/auth"
	"github.com/PaulBabatuyi/pawchat/internal/data"
)

var (
	// ErrConnectionLost means a live connection failed to accept a frame.
	ErrConnectionLost = errors.New("connection lost")
	// ErrRateLimited means the connection exceeded its send rate.
	ErrRateLimited = errors.New("rate limited")
	// ErrBadRequest marks a frame that could not be decoded.
	ErrBadRequest = errors.New("malformed request")
	// ErrShuttingDown closes every session when the server stops.
	ErrShuttingDown = errors.New("server shutting down")

	errSlowConsumer        = errors.New("outbound queue full")
	errRegistrationTimeout = errors.New("registration timed out")
)

// Wire error codes carried in error frames.
const (
	CodeUnauthorized         = "Unauthorized"
	CodeNotAParticipant      = "NotAParticipant"
	CodeConversationNotFound = "ConversationNotFound"
	CodeEmptyMessage         = "EmptyMessage"
	CodeMessageTooLong       = "MessageTooLong"
	CodeInvalidParticipant   = "InvalidParticipant"
	CodeUserNotFound         = "UserNotFound"
	CodeUserExists           = "UserExists"
	CodeInvalidAccount       = "InvalidAccount"
	CodeRateLimited          = "RateLimited"
	CodeConnectionLost       = "ConnectionLost"
	CodeBadRequest           = "BadRequest"
	CodeShuttingDown         = "ShuttingDown"
	CodeInternal             = "Internal"
)

var errorCodes = []struct {
	err  error
	code string
}{
	{data.ErrUnauthorized, CodeUnauthorized},
	{auth.ErrInvalidToken, CodeUnauthorized},
	{data.ErrNotAParticipant, CodeNotAParticipant},
	{data.ErrConversationNotFound, CodeConversationNotFound},
	{data.ErrEmptyMessage, CodeEmptyMessage},
	{data.ErrMessageTooLong, CodeMessageTooLong},
	{data.ErrInvalidParticipant, CodeInvalidParticipant},
	{data.ErrUserNotFound, CodeUserNotFound},
	{data.ErrUserExists, CodeUserExists},
	{data.ErrInvalidAccount, CodeInvalidAccount},
	{ErrRateLimited, CodeRateLimited},
	{ErrConnectionLost, CodeConnectionLost},
	{ErrBadRequest, CodeBadRequest},
	{ErrShuttingDown, CodeShuttingDown},
}

// ErrorCode maps an error to its wire code. Unknown errors are Internal.
func ErrorCode(err error) string {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return CodeInternal
}

// publicMessage hides internal error details from clients.
func publicMessage(err error) string {
	if ErrorCode(err) == CodeInternal {
		return "internal error"
	}
	return err.Error()
}
