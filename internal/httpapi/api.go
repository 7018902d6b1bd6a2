// Package httpapi exposes the chat core over REST and the websocket upgrade.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/PaulBabatuyi/pawchat/internal/auth"
	"github.com/PaulBabatuyi/pawchat/internal/chat"
	"github.com/PaulBabatuyi/pawchat/internal/gateway"
	"github.com/PaulBabatuyi/pawchat/internal/middleware"
)

const claimsKey = "claims"

// Deps are the collaborators of the HTTP surface.
type Deps struct {
	Chat     *chat.Service
	Gateway  *gateway.Gateway
	Verifier gateway.TokenVerifier
	// AuthLimiter throttles register and login. Nil disables throttling.
	AuthLimiter *middleware.LimiterStore
	WS          gateway.WSConfig
	// Health reports backing store health for /healthz. Nil means healthy.
	Health func(ctx context.Context) error
	Logger *zap.Logger
	// CheckOrigin validates websocket origins. Nil accepts every origin.
	CheckOrigin func(r *http.Request) bool
}

// API holds the handlers.
type API struct {
	Deps
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// New returns an API.
func New(d Deps) *API {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	checkOrigin := d.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &API{
		Deps:   d,
		logger: d.Logger.With(zap.String("component", "http")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 << 10,
			WriteBufferSize: 4 << 10,
			CheckOrigin:     checkOrigin,
		},
	}
}

// Router builds the gin engine with every route mounted.
func (a *API) Router() *gin.Engine {
	r := gin.New()
	r.Use(a.requestLogger(), gin.Recovery())

	r.GET("/healthz", a.healthz)

	v1 := r.Group("/api/v1")

	authRoutes := v1.Group("/auth")
	if a.AuthLimiter != nil {
		authRoutes.Use(middleware.RateLimitGin(a.AuthLimiter, middleware.ClientIPKey))
	}
	authRoutes.POST("/register", a.register)
	authRoutes.POST("/login", a.login)

	v1.GET("/ws", a.serveWS)

	secured := v1.Group("", a.requireAuth())
	secured.GET("/conversations", a.listConversations)
	secured.POST("/conversations", a.openConversation)
	secured.GET("/conversations/:id/messages", a.history)
	secured.POST("/conversations/:id/messages", a.sendMessage)
	secured.POST("/conversations/:id/read", a.markRead)
	secured.GET("/unread", a.unread)

	return r
}

// requireAuth verifies the bearer token and stores the claims in both the
// gin and the request context.
func (a *API) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			abortWithError(c, errMissingToken)
			return
		}
		claims, err := a.Verifier.VerifyToken(token)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Set(claimsKey, claims)
		c.Request = c.Request.WithContext(auth.NewContext(c.Request.Context(), claims))
		c.Next()
	}
}

func userID(c *gin.Context) string {
	if claims, ok := auth.FromContext(c.Request.Context()); ok {
		return claims.UserID
	}
	return ""
}

func (a *API) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			a.logger.Error("request", fields...)
		default:
			a.logger.Debug("request", fields...)
		}
	}
}

func (a *API) healthz(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if a.Gateway != nil {
		body["connections"] = a.Gateway.Registry().Count()
	}
	if a.Health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := a.Health(ctx); err != nil {
			a.logger.Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, body)
}
