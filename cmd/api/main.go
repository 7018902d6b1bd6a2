package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"github.com/PaulBabatuyi/pawchat/internal/auth"
	"github.com/PaulBabatuyi/pawchat/internal/chat"
	"github.com/PaulBabatuyi/pawchat/internal/config"
	"github.com/PaulBabatuyi/pawchat/internal/data"
	"github.com/PaulBabatuyi/pawchat/internal/db"
	"github.com/PaulBabatuyi/pawchat/internal/gateway"
	"github.com/PaulBabatuyi/pawchat/internal/httpapi"
	"github.com/PaulBabatuyi/pawchat/internal/ledger"
	"github.com/PaulBabatuyi/pawchat/internal/logging"
	"github.com/PaulBabatuyi/pawchat/internal/middleware"
	"github.com/PaulBabatuyi/pawchat/internal/registry"
)

func main() {
	configPath := flag.String("config", os.Getenv("PAWCHAT_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited", zap.Error(err))
		os.Exit(1)
	}
}

// app is the fully wired server.
type app struct {
	grpc    *grpc.Server
	health  *health.Server
	http    http.Handler
	gateway *gateway.Gateway
	closers []func(context.Context) error
}

// close releases backing connections in reverse order of creation.
func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i](ctx)
	}
}

// stores are the persistence dependencies chosen by configuration.
type stores struct {
	convs   data.ConversationStore
	users   chat.UserStore
	backend ledger.Backend
	checks  []func(context.Context) error
	closers []func(context.Context) error
}

func (s *stores) health(ctx context.Context) error {
	for _, check := range s.checks {
		if err := check(ctx); err != nil {
			return err
		}
	}
	return nil
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	st := &stores{}

	var dbClient *db.Client
	if cfg.Mongo.URI != "" {
		var err error
		dbClient, err = db.New(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, fmt.Errorf("connect to mongo: %w", err)
		}
		st.closers = append(st.closers, dbClient.Close)
		st.checks = append(st.checks, dbClient.Ping)

		if err := dbClient.CreateIndexes(ctx); err != nil {
			return st, fmt.Errorf("create indexes: %w", err)
		}
		msgs := data.NewMessagesStore(dbClient.MessagesCollection())
		st.convs = data.NewConversationsStore(dbClient.ConversationsCollection(), msgs)
		st.users = data.NewUsersStore(dbClient.UsersCollection())
	} else {
		logger.Warn("no mongo uri configured; conversations and accounts are kept in memory")
		st.convs = data.NewMemoryStore(nil)
		st.users = data.NewMemoryUsers()
	}

	switch cfg.Ledger.Backend {
	case config.LedgerMongo:
		if dbClient == nil {
			return st, errors.New("mongo ledger backend requires a mongo uri")
		}
		st.backend = ledger.NewMongoBackend(dbClient.ReadMarkersCollection())
	case config.LedgerRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		st.closers = append(st.closers, func(context.Context) error { return rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			return st, fmt.Errorf("connect to redis: %w", err)
		}
		st.checks = append(st.checks, func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		st.backend = ledger.NewRedisBackend(rdb, cfg.Redis.Prefix)
	default:
		st.backend = ledger.NewMemoryBackend()
	}

	logger.Info("stores ready",
		zap.Bool("mongo", dbClient != nil),
		zap.String("ledger", cfg.Ledger.Backend))
	return st, nil
}

func newJWTManager(cfg config.AuthConfig) (*auth.JWTManager, error) {
	if cfg.JWTKeys == "" {
		return auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL), nil
	}
	keys, err := auth.ParseKeys(cfg.JWTKeys)
	if err != nil {
		return nil, err
	}
	return auth.NewJWTManagerFromKeys(keys, cfg.JWTActiveKid, cfg.TokenTTL), nil
}

// buildApp wires every component. limiter may be nil to disable throttling.
func buildApp(ctx context.Context, cfg *config.Config, limiter *middleware.LimiterStore, logger *zap.Logger) (*app, error) {
	jwtMgr, err := newJWTManager(cfg.Auth)
	if err != nil {
		return nil, err
	}

	st, err := openStores(ctx, cfg, logger)
	if st != nil && err != nil {
		(&app{closers: st.closers}).close(ctx)
	}
	if err != nil {
		return nil, err
	}

	led := ledger.New(st.backend, st.convs, logger)
	reg := registry.New()
	gw := gateway.New(st.convs, led, reg, jwtMgr, gateway.Options{
		RegistrationTimeout: cfg.Gateway.RegistrationTimeout,
		OutboundBuffer:      cfg.Gateway.OutboundBuffer,
		SendRate:            cfg.Gateway.SendRate,
		SendBurst:           cfg.Gateway.SendBurst,
		FlushTimeout:        cfg.Gateway.WriteTimeout,
		Logger:              logger,
	})
	svc := chat.NewService(st.convs, st.users, led, jwtMgr, logger).WithPresence(reg)

	grpcServer, err := newGRPCServer(cfg.Server, jwtMgr, limiter, logger)
	if err != nil {
		(&app{closers: st.closers}).close(ctx)
		return nil, fmt.Errorf("grpc server: %w", err)
	}
	hs := registerService(grpcServer, newServer(svc, gw, logger))

	api := httpapi.New(httpapi.Deps{
		Chat:        svc,
		Gateway:     gw,
		Verifier:    jwtMgr,
		AuthLimiter: limiter,
		WS: gateway.WSConfig{
			ReadLimit:    cfg.Gateway.ReadLimit,
			WriteTimeout: cfg.Gateway.WriteTimeout,
			PongWait:     cfg.Gateway.PongWait,
		},
		Health: st.health,
		Logger: logger,
	})

	return &app{
		grpc:    grpcServer,
		health:  hs,
		http:    api.Router(),
		gateway: gw,
		closers: st.closers,
	}, nil
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	limiter := middleware.NewLimiterStore(cfg.Auth.RateLimitRPM, cfg.Auth.RateBurst, time.Minute)
	defer limiter.Stop()

	a, err := buildApp(ctx, cfg, limiter, logger)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	grpcLis, err := net.Listen("tcp", ":"+cfg.Server.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	httpSrv := &http.Server{
		Addr:              ":" + cfg.Server.HTTPPort,
		Handler:           a.http,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("grpc server listening", zap.String("addr", grpcLis.Addr().String()))
		if err := a.grpc.Serve(grpcLis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	go func() {
		logger.Info("http server listening", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errCh:
		logger.Error("server failed, shutting down", zap.Error(err))
	}

	a.health.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are invisible to http.Server.Shutdown.
	if serr := a.gateway.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("live connections did not drain", zap.Error(serr))
	}
	if serr := httpSrv.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("http shutdown", zap.Error(serr))
	}

	stopped := make(chan struct{})
	go func() {
		a.grpc.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		logger.Warn("grpc graceful stop timed out; forcing")
		a.grpc.Stop()
	}
	return err
}
