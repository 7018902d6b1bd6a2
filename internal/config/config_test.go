package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_File(t *testing.T) {
	t.Setenv("TEST_PAWCHAT_SECRET", "from-env")
	for _, k := range []string{"JWT_SECRET", "PORT", "HTTP_PORT", "LEDGER_BACKEND", "LOG_LEVEL", "LOG_FORMAT"} {
		t.Setenv(k, "")
	}

	path := writeConfig(t, `
server:
  grpc_port: "6000"
  http_port: "6001"
  shutdown_timeout: 3s
mongo:
  uri: mongodb://localhost:27017
auth:
  jwt_secret: ${TEST_PAWCHAT_SECRET}
  token_ttl: 1h
gateway:
  registration_timeout: 2s
  outbound_buffer: 8
ledger:
  backend: mongo
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "6000", cfg.Server.GRPCPort)
	assert.Equal(t, "6001", cfg.Server.HTTPPort)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 2*time.Second, cfg.Gateway.RegistrationTimeout)
	assert.Equal(t, 8, cfg.Gateway.OutboundBuffer)
	// untouched values keep their defaults
	assert.Equal(t, 10*time.Second, cfg.Gateway.WriteTimeout)
	assert.Equal(t, "pawchat", cfg.Mongo.Database)
	assert.Equal(t, LedgerMongo, cfg.Ledger.Backend)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
auth:
  jwt_secret: file-secret
server:
  grpc_port: "6000"
`)
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("PORT", "7000")
	t.Setenv("RATE_LIMIT_RPM", "30")
	t.Setenv("LEDGER_BACKEND", "Memory")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "7000", cfg.Server.GRPCPort)
	assert.Equal(t, 30, cfg.Auth.RateLimitRPM)
	assert.Equal(t, LedgerMemory, cfg.Ledger.Backend)
}

func TestLoad_NoMongoFallsBackToMemoryLedger(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("MONGODB_URI", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, LedgerMemory, cfg.Ledger.Backend)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("bad duration", func(t *testing.T) {
		path := writeConfig(t, "gateway:\n  pong_wait: soon\n")
		_, err := Load(path)
		assert.ErrorContains(t, err, "gateway.pong_wait")
	})

	t.Run("bad rpm", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "s")
		t.Setenv("RATE_LIMIT_RPM", "-1")
		_, err := Load("")
		assert.ErrorContains(t, err, "RATE_LIMIT_RPM")
	})

	t.Run("bad require tls", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "s")
		t.Setenv("REQUIRE_TLS", "maybe")
		_, err := Load("")
		assert.ErrorContains(t, err, "REQUIRE_TLS")
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := Default()
		c.Auth.JWTSecret = "s"
		c.Mongo.URI = "mongodb://localhost"
		return c
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(c *Config){
		"no secret":          func(c *Config) { c.Auth.JWTSecret = "" },
		"tls half set":       func(c *Config) { c.Server.TLSCert = "cert.pem" },
		"tls required":       func(c *Config) { c.Server.RequireTLS = true },
		"unknown ledger":     func(c *Config) { c.Ledger.Backend = "etcd" },
		"redis without addr": func(c *Config) { c.Ledger.Backend = LedgerRedis },
		"mongo without uri":  func(c *Config) { c.Mongo.URI = "" },
		"zero buffer":        func(c *Config) { c.Gateway.OutboundBuffer = 0 },
		"zero grace":         func(c *Config) { c.Gateway.RegistrationTimeout = 0 },
		"zero send rate":     func(c *Config) { c.Gateway.SendRate = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
