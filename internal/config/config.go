// Package config loads server configuration from an optional YAML file and
// the environment. Environment variables override file values.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Ledger backends.
const (
	LedgerMongo  = "mongo"
	LedgerRedis  = "redis"
	LedgerMemory = "memory"
)

// Config is the complete server configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Mongo   MongoConfig   `yaml:"mongo"`
	Redis   RedisConfig   `yaml:"redis"`
	Auth    AuthConfig    `yaml:"auth"`
	Gateway GatewayConfig `yaml:"gateway"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds listener configuration.
type ServerConfig struct {
	GRPCPort   string `yaml:"grpc_port"`
	HTTPPort   string `yaml:"http_port"`
	TLSCert    string `yaml:"tls_cert"`
	TLSKey     string `yaml:"tls_key"`
	RequireTLS bool   `yaml:"require_tls"`

	ShutdownTimeout    time.Duration `yaml:"-"`
	ShutdownTimeoutRaw string        `yaml:"shutdown_timeout"`
}

// MongoConfig selects the document store. An empty URI runs on in-memory stores.
type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// RedisConfig is used by the redis ledger backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// AuthConfig holds token and login throttling settings.
type AuthConfig struct {
	JWTSecret    string `yaml:"jwt_secret"`
	JWTKeys      string `yaml:"jwt_keys"` // kid:secret,kid2:secret2
	JWTActiveKid string `yaml:"jwt_active_kid"`
	RateLimitRPM int    `yaml:"rate_limit_rpm"`
	RateBurst    int    `yaml:"rate_burst"`

	TokenTTL    time.Duration `yaml:"-"`
	TokenTTLRaw string        `yaml:"token_ttl"`
}

// GatewayConfig tunes live connections.
type GatewayConfig struct {
	OutboundBuffer int     `yaml:"outbound_buffer"`
	ReadLimit      int64   `yaml:"read_limit"`
	SendRate       float64 `yaml:"send_rate"` // messages per second per connection
	SendBurst      int     `yaml:"send_burst"`

	RegistrationTimeout time.Duration `yaml:"-"`
	WriteTimeout        time.Duration `yaml:"-"`
	PongWait            time.Duration `yaml:"-"`

	RegistrationTimeoutRaw string `yaml:"registration_timeout"`
	WriteTimeoutRaw        string `yaml:"write_timeout"`
	PongWaitRaw            string `yaml:"pong_wait"`
}

// LedgerConfig selects where unread counters live.
type LedgerConfig struct {
	Backend string `yaml:"backend"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			GRPCPort:        "50051",
			HTTPPort:        "8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Mongo: MongoConfig{Database: "pawchat"},
		Redis: RedisConfig{Prefix: "pawchat"},
		Auth: AuthConfig{
			RateLimitRPM: 10,
			RateBurst:    3,
			TokenTTL:     24 * time.Hour,
		},
		Gateway: GatewayConfig{
			OutboundBuffer:      64,
			ReadLimit:           8 << 10,
			SendRate:            5,
			SendBurst:           10,
			RegistrationTimeout: 10 * time.Second,
			WriteTimeout:        10 * time.Second,
			PongWait:            60 * time.Second,
		},
		Ledger:  LedgerConfig{Backend: LedgerMongo},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Load reads the optional YAML file at path (skipped when empty), applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal([]byte(expandEnvVars(string(raw))), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
		if err := parseDurations(cfg); err != nil {
			return nil, fmt.Errorf("parsing durations: %w", err)
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	if cfg.Mongo.URI == "" && cfg.Ledger.Backend == LedgerMongo {
		cfg.Ledger.Backend = LedgerMemory
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} with the variable's value, or "" when unset.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeoutRaw, &cfg.Server.ShutdownTimeout},
		{"auth.token_ttl", cfg.Auth.TokenTTLRaw, &cfg.Auth.TokenTTL},
		{"gateway.registration_timeout", cfg.Gateway.RegistrationTimeoutRaw, &cfg.Gateway.RegistrationTimeout},
		{"gateway.write_timeout", cfg.Gateway.WriteTimeoutRaw, &cfg.Gateway.WriteTimeout},
		{"gateway.pong_wait", cfg.Gateway.PongWaitRaw, &cfg.Gateway.PongWait},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}

// applyEnv layers the deployment environment variables over cfg.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("MONGODB_URI", &cfg.Mongo.URI)
	str("MONGODB_DATABASE", &cfg.Mongo.Database)
	str("JWT_SECRET", &cfg.Auth.JWTSecret)
	str("JWT_KEYS", &cfg.Auth.JWTKeys)
	str("JWT_ACTIVE_KID", &cfg.Auth.JWTActiveKid)
	str("PORT", &cfg.Server.GRPCPort)
	str("HTTP_PORT", &cfg.Server.HTTPPort)
	str("TLS_CERT", &cfg.Server.TLSCert)
	str("TLS_KEY", &cfg.Server.TLSKey)
	str("REDIS_ADDR", &cfg.Redis.Addr)
	str("REDIS_PASSWORD", &cfg.Redis.Password)
	str("LEDGER_BACKEND", &cfg.Ledger.Backend)
	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_FORMAT", &cfg.Logging.Format)

	if v, ok := lookup("REQUIRE_TLS"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("REQUIRE_TLS: %w", err)
		}
		cfg.Server.RequireTLS = b
	}
	if v, ok := lookup("RATE_LIMIT_RPM"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("RATE_LIMIT_RPM must be a positive integer, got %q", v)
		}
		cfg.Auth.RateLimitRPM = n
	}
	cfg.Ledger.Backend = strings.ToLower(strings.TrimSpace(cfg.Ledger.Backend))
	return nil
}

// Validate checks that the configuration is complete and consistent.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" && c.Auth.JWTKeys == "" {
		return errors.New("either auth.jwt_secret (JWT_SECRET) or auth.jwt_keys (JWT_KEYS) must be set")
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return errors.New("server.tls_cert and server.tls_key must be set together")
	}
	if c.Server.RequireTLS && c.Server.TLSCert == "" {
		return errors.New("REQUIRE_TLS is true but TLS_CERT/TLS_KEY are not configured")
	}

	switch c.Ledger.Backend {
	case LedgerMongo:
		if c.Mongo.URI == "" {
			return errors.New("ledger backend mongo requires mongo.uri")
		}
	case LedgerRedis:
		if c.Redis.Addr == "" {
			return errors.New("ledger backend redis requires redis.addr")
		}
	case LedgerMemory:
	default:
		return fmt.Errorf("unknown ledger backend %q", c.Ledger.Backend)
	}

	if c.Gateway.OutboundBuffer <= 0 {
		return errors.New("gateway.outbound_buffer must be positive")
	}
	if c.Gateway.RegistrationTimeout <= 0 {
		return errors.New("gateway.registration_timeout must be positive")
	}
	if c.Gateway.SendRate <= 0 || c.Gateway.SendBurst <= 0 {
		return errors.New("gateway.send_rate and gateway.send_burst must be positive")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("auth.token_ttl must be positive")
	}
	return nil
}
