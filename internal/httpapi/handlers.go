package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/PaulBabatuyi/pawchat/internal/auth"
	"github.com/PaulBabatuyi/pawchat/internal/gateway"
	"github.com/PaulBabatuyi/pawchat/internal/ledger"
)

type registerRequest struct {
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password" binding:"required"`
	DisplayName string `json:"displayName"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type openConversationRequest struct {
	ParticipantID string `json:"participantId" binding:"required"`
	ListingID     string `json:"listingId"`
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

type markReadResponse struct {
	Changed bool            `json:"changed"`
	Unread  ledger.Snapshot `json:"unread"`
}

func (a *API) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, badRequest(err))
		return
	}
	res, err := a.Chat.Register(c.Request.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (a *API) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, badRequest(err))
		return
	}
	res, err := a.Chat.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *API) listConversations(c *gin.Context) {
	views, err := a.Chat.ListConversations(c.Request.Context(), userID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": views})
}

func (a *API) openConversation(c *gin.Context) {
	var req openConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, badRequest(err))
		return
	}
	view, err := a.Chat.Open(c.Request.Context(), userID(c), req.ParticipantID, req.ListingID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (a *API) history(c *gin.Context) {
	msgs, err := a.Chat.History(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// sendMessage takes the same path as a live sendMessage, so room members and
// unread counters see it immediately.
func (a *API) sendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, badRequest(err))
		return
	}
	msg, err := a.Gateway.Send(c.Request.Context(), userID(c), c.Param("id"), req.Text)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (a *API) markRead(c *gin.Context) {
	ctx := c.Request.Context()
	changed, err := a.Gateway.MarkRead(ctx, userID(c), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	snap, err := a.Chat.Unread(ctx, userID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, markReadResponse{Changed: changed, Unread: snap})
}

func (a *API) unread(c *gin.Context) {
	snap, err := a.Chat.Unread(c.Request.Context(), userID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// serveWS upgrades to a live connection. A token in the Authorization header
// or the access_token query parameter binds the identity at the handshake;
// without one the client must send a token in its register frame.
func (a *API) serveWS(c *gin.Context) {
	var verified string
	token := auth.BearerToken(c.GetHeader("Authorization"))
	if token == "" {
		token = c.Query("access_token")
	}
	if token != "" {
		claims, err := a.Verifier.VerifyToken(token)
		if err != nil {
			abortWithError(c, err)
			return
		}
		verified = claims.UserID
	}

	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader already replied
		a.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	err = a.Gateway.Serve(c.Request.Context(), gateway.NewWSTransport(conn, a.WS), verified)
	if err != nil {
		a.logger.Debug("websocket closed", zap.String("user_id", verified), zap.Error(err))
	}
}
