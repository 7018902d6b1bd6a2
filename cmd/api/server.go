package main

import (
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"github.com/PaulBabatuyi/pawchat/internal/auth"
	"github.com/PaulBabatuyi/pawchat/internal/chat"
	"github.com/PaulBabatuyi/pawchat/internal/chatrpc"
	"github.com/PaulBabatuyi/pawchat/internal/config"
	"github.com/PaulBabatuyi/pawchat/internal/gateway"
	"github.com/PaulBabatuyi/pawchat/internal/middleware"
)

// Server implements the chat service on top of the chat service layer and
// the live gateway.
type Server struct {
	chatrpc.UnimplementedChatServiceServer

	chat    *chat.Service
	gateway *gateway.Gateway
	logger  *zap.Logger
}

// newServer returns a ready-to-use Server.
func newServer(svc *chat.Service, gw *gateway.Gateway, logger *zap.Logger) *Server {
	return &Server{chat: svc, gateway: gw, logger: logger.With(zap.String("component", "grpc"))}
}

// registerService registers the ChatService and the standard health service
// on s. The returned health server is flipped to NOT_SERVING on shutdown.
func registerService(s *grpc.Server, srv *Server) *health.Server {
	chatrpc.RegisterChatServiceServer(s, srv)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(chatrpc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return hs
}

// newGRPCServer assembles transport security, keepalive and the interceptor
// chains: logging, then rate limiting, then authentication.
func newGRPCServer(cfg config.ServerConfig, jwt *auth.JWTManager, limiter *middleware.LimiterStore, logger *zap.Logger) (*grpc.Server, error) {
	var opts []grpc.ServerOption

	if cfg.TLSCert != "" && cfg.TLSKey != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			return nil, err
		}
		opts = append(opts, grpc.Creds(creds))
	}

	opts = append(opts,
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    2 * time.Minute,
			Timeout: 20 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             30 * time.Second,
			PermitWithoutStream: true,
		}),
	)

	unary := []grpc.UnaryServerInterceptor{loggingUnaryInterceptor(logger)}
	if limiter != nil {
		unary = append(unary, middleware.RateLimitUnaryInterceptor(limiter, chatrpc.PublicMethods))
	}
	unary = append(unary, authUnaryInterceptor(jwt))

	opts = append(opts,
		grpc.ChainUnaryInterceptor(unary...),
		grpc.ChainStreamInterceptor(loggingStreamInterceptor(logger), authStreamInterceptor(jwt)),
	)
	return grpc.NewServer(opts...), nil
}
