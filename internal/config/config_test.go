package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SENDGATE_CONFIG_PATH", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "http", cfg.Transport.Mode)
	require.True(t, cfg.Auth.Enabled)
	require.Equal(t, 5, cfg.Session.MaxReconnectAttempts)
	require.Equal(t, 5*time.Second, cfg.Session.ReconnectBase)
	require.Equal(t, 60*time.Second, cfg.Session.ReconnectMax)
	require.Equal(t, 2*time.Second, cfg.Dispatch.ReconnectGrace)
	require.Equal(t, "sqlite", cfg.WhatsApp.StoreDriver)
	require.Empty(t, cfg.Redis.Addr)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	err := os.WriteFile(path, []byte(`
server:
  port: 9090
transport:
  mode: stdio
session:
  max_reconnect_attempts: 3
  reconnect_base: 2s
dispatch:
  send_rate_per_sec: 5
redis:
  addr: localhost:6379
  ttl: 1h
`), 0o644)
	require.NoError(t, err)

	t.Setenv("SENDGATE_CONFIG_PATH", path)
	t.Setenv("SENDGATE_SERVER_PORT", "7070")
	t.Setenv("SENDGATE_SESSION_RECONNECT_MAX", "30s")
	t.Setenv("SENDGATE_AUTH_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, "stdio", cfg.Transport.Mode)
	require.False(t, cfg.Auth.Enabled)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
	require.Equal(t, time.Hour, cfg.Redis.TTL)

	sess := cfg.SessionRegistry()
	require.Equal(t, 3, sess.Backoff.MaxAttempts)
	require.Equal(t, 2*time.Second, sess.Backoff.InitialDelay)
	require.Equal(t, 30*time.Second, sess.Backoff.MaxDelay)

	disp := cfg.Dispatcher()
	require.Equal(t, 5, disp.RatePerSecond)
	require.Equal(t, 2*time.Second, disp.ReconnectGrace)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"port", "SENDGATE_SERVER_PORT", "eighty"},
		{"duration", "SENDGATE_DISPATCH_RECONNECT_GRACE", "soon"},
		{"bool", "SENDGATE_AUTH_ENABLED", "maybe"},
		{"transport", "SENDGATE_TRANSPORT_MODE", "carrier-pigeon"},
		{"driver", "SENDGATE_WHATSAPP_STORE_DRIVER", "mysql"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestValidatePostgresNeedsDSN(t *testing.T) {
	cfg := Default()
	cfg.WhatsApp.StoreDriver = "postgres"
	require.Error(t, cfg.Validate())

	cfg.WhatsApp.StoreDSN = "postgres://localhost/sendgate"
	require.NoError(t, cfg.Validate())
}
