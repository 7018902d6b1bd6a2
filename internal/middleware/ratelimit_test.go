package middleware

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

type dummy struct{ email string }

func (d dummy) GetEmail() string { return d.email }

func TestLimiterStore_AllowAndCleanup(t *testing.T) {
	// allow 5 events immediately then the 6th should be rejected
	s := NewLimiterStore(5, 5, time.Hour)
	defer s.Stop()

	key := "test@example.com"
	for i := 0; i < 5; i++ {
		if !s.Allow(key) {
			t.Fatalf("expected allow at iteration %d", i)
		}
	}
	if s.Allow(key) {
		t.Fatalf("expected limiter to block after burst consumed")
	}

	s.sweep(time.Now().Add(time.Minute))
	s.mu.Lock()
	_, ok := s.clients[key]
	s.mu.Unlock()
	assert.False(t, ok, "idle entry should be swept")

	// fresh limiter after the sweep
	assert.True(t, s.Allow(key))
}

func TestLimiterStore_StopTwice(t *testing.T) {
	s := NewLimiterStore(1, 1, time.Hour)
	s.Stop()
	assert.NotPanics(t, s.Stop)
}

func TestRateLimitUnaryInterceptor(t *testing.T) {
	s := NewLimiterStore(1, 1, time.Hour)
	defer s.Stop()

	const method = "/pawchat.v1.ChatService/Login"
	ic := RateLimitUnaryInterceptor(s, map[string]bool{method: true})
	info := &grpc.UnaryServerInfo{FullMethod: method}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) { return "ok", nil }

	ctx := peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 1}})

	res, err := ic(ctx, dummy{email: "A@example.com"}, info, handler)
	require.NoError(t, err)
	assert.Equal(t, "ok", res)

	// same account, different case: same key
	_, err = ic(ctx, dummy{email: "a@example.com"}, info, handler)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))

	// a different account still passes
	_, err = ic(ctx, dummy{email: "b@example.com"}, info, handler)
	require.NoError(t, err)

	// unlimited methods are never throttled
	other := &grpc.UnaryServerInfo{FullMethod: "/pawchat.v1.ChatService/MarkRead"}
	for i := 0; i < 3; i++ {
		_, err = ic(ctx, dummy{email: "a@example.com"}, other, handler)
		require.NoError(t, err)
	}
}

func TestRateLimitGin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := NewLimiterStore(1, 2, time.Hour)
	defer s.Stop()

	r := gin.New()
	r.POST("/login", RateLimitGin(s, nil), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	codesSeen := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		r.ServeHTTP(w, req)
		codesSeen = append(codesSeen, w.Code)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codesSeen)
}
