package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PaulBabatuyi/pawchat/internal/data"
	"github.com/PaulBabatuyi/pawchat/internal/gateway"
)

var errMissingToken = fmt.Errorf("%w: missing bearer token", data.ErrUnauthorized)

var statusByCode = map[string]int{
	gateway.CodeUnauthorized:         http.StatusUnauthorized,
	gateway.CodeNotAParticipant:      http.StatusForbidden,
	gateway.CodeConversationNotFound: http.StatusNotFound,
	gateway.CodeUserNotFound:         http.StatusNotFound,
	gateway.CodeEmptyMessage:         http.StatusBadRequest,
	gateway.CodeMessageTooLong:       http.StatusBadRequest,
	gateway.CodeInvalidParticipant:   http.StatusBadRequest,
	gateway.CodeInvalidAccount:       http.StatusBadRequest,
	gateway.CodeBadRequest:           http.StatusBadRequest,
	gateway.CodeUserExists:           http.StatusConflict,
	gateway.CodeRateLimited:          http.StatusTooManyRequests,
	gateway.CodeShuttingDown:         http.StatusServiceUnavailable,
}

// HTTPStatus maps an error to its response status.
func HTTPStatus(err error) int {
	if s, ok := statusByCode[gateway.ErrorCode(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func abortWithError(c *gin.Context, err error) {
	code := gateway.ErrorCode(err)
	msg := err.Error()
	if code == gateway.CodeInternal {
		_ = c.Error(err)
		msg = "internal error"
	}
	c.AbortWithStatusJSON(HTTPStatus(err), gateway.ErrorPayload{Code: code, Message: msg})
}

func badRequest(err error) error {
	if errors.Is(err, gateway.ErrBadRequest) {
		return err
	}
	return fmt.Errorf("%w: %v", gateway.ErrBadRequest, err)
}
