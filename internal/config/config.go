package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rpggio/sendgate/internal/domain/dispatch"
	"github.com/rpggio/sendgate/internal/domain/session"
	"gopkg.in/yaml.v3"
)

// Config defines server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	DB        DBConfig        `yaml:"db"`
	Log       LogConfig       `yaml:"log"`
	Auth      AuthConfig      `yaml:"auth"`
	Transport TransportConfig `yaml:"transport"`
	Session   SessionConfig   `yaml:"session"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Redis     RedisConfig     `yaml:"redis"`
	WhatsApp  WhatsAppConfig  `yaml:"whatsapp"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DBConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Path  string `yaml:"path"`
}

type AuthConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TransportConfig selects how the MCP tools are served: "http" or "stdio".
type TransportConfig struct {
	Mode string `yaml:"mode"`
}

type SessionConfig struct {
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	ReconnectBase        time.Duration `yaml:"reconnect_base"`
	ReconnectMax         time.Duration `yaml:"reconnect_max"`
	StartupJitterMin     time.Duration `yaml:"startup_jitter_min"`
	StartupJitterMax     time.Duration `yaml:"startup_jitter_max"`
	PairingPollAttempts  int           `yaml:"pairing_poll_attempts"`
	PairingPollInterval  time.Duration `yaml:"pairing_poll_interval"`
	QRWait               time.Duration `yaml:"qr_wait"`
}

type DispatchConfig struct {
	ReconnectGrace time.Duration `yaml:"reconnect_grace"`
	SendRatePerSec int           `yaml:"send_rate_per_sec"`
}

// RedisConfig configures the sent-message cache. An empty Addr disables it.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type WhatsAppConfig struct {
	StoreDriver     string `yaml:"store_driver"`
	StoreDSN        string `yaml:"store_dsn"`
	PairDisplayName string `yaml:"pair_display_name"`
}

// Default returns the built-in configuration.
func Default() Config {
	sess := session.DefaultConfig()
	disp := dispatch.DefaultConfig()
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		DB: DBConfig{
			Path: "sendgate.db",
		},
		Log: LogConfig{
			Level: "info",
		},
		Auth: AuthConfig{
			Enabled: true,
		},
		Transport: TransportConfig{
			Mode: "http",
		},
		Session: SessionConfig{
			MaxReconnectAttempts: sess.Backoff.MaxAttempts,
			ReconnectBase:        sess.Backoff.InitialDelay,
			ReconnectMax:         sess.Backoff.MaxDelay,
			StartupJitterMin:     sess.StartupJitterMin,
			StartupJitterMax:     sess.StartupJitterMax,
			PairingPollAttempts:  sess.PairingPollAttempts,
			PairingPollInterval:  sess.PairingPollInterval,
			QRWait:               sess.ArtifactWait,
		},
		Dispatch: DispatchConfig{
			ReconnectGrace: disp.ReconnectGrace,
			SendRatePerSec: disp.RatePerSecond,
		},
		Redis: RedisConfig{
			TTL: 24 * time.Hour,
		},
		WhatsApp: WhatsAppConfig{
			StoreDriver: "sqlite",
		},
	}
}

// Load reads configuration from an optional YAML file and environment variables.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("SENDGATE_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	switch c.Transport.Mode {
	case "http", "stdio":
	default:
		return fmt.Errorf("invalid transport mode %q: want http or stdio", c.Transport.Mode)
	}
	switch c.WhatsApp.StoreDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid whatsapp store driver %q: want sqlite or postgres", c.WhatsApp.StoreDriver)
	}
	if c.WhatsApp.StoreDriver == "postgres" && c.WhatsApp.StoreDSN == "" {
		return fmt.Errorf("whatsapp store_dsn is required for postgres")
	}
	if c.Session.MaxReconnectAttempts < 0 {
		return fmt.Errorf("session max_reconnect_attempts must not be negative")
	}
	if c.Session.StartupJitterMax < c.Session.StartupJitterMin {
		return fmt.Errorf("session startup_jitter_max must not be below startup_jitter_min")
	}
	if c.Dispatch.SendRatePerSec < 0 {
		return fmt.Errorf("dispatch send_rate_per_sec must not be negative")
	}
	return nil
}

// SessionRegistry converts the session section into registry settings.
func (c Config) SessionRegistry() session.Config {
	cfg := session.DefaultConfig()
	cfg.Backoff = session.BackoffConfig{
		MaxAttempts:  c.Session.MaxReconnectAttempts,
		InitialDelay: c.Session.ReconnectBase,
		MaxDelay:     c.Session.ReconnectMax,
	}
	cfg.StartupJitterMin = c.Session.StartupJitterMin
	cfg.StartupJitterMax = c.Session.StartupJitterMax
	cfg.PairingPollAttempts = c.Session.PairingPollAttempts
	cfg.PairingPollInterval = c.Session.PairingPollInterval
	cfg.ArtifactWait = c.Session.QRWait
	return cfg
}

// Dispatcher converts the dispatch section into dispatcher settings.
func (c Config) Dispatcher() dispatch.Config {
	return dispatch.Config{
		ReconnectGrace: c.Dispatch.ReconnectGrace,
		RatePerSecond:  c.Dispatch.SendRatePerSec,
	}
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Server.Host, "SENDGATE_SERVER_HOST")
	setString(&cfg.DB.Path, "SENDGATE_DB_PATH")
	setString(&cfg.Log.Level, "SENDGATE_LOG_LEVEL")
	setString(&cfg.Log.Path, "SENDGATE_LOG_PATH")
	setString(&cfg.Transport.Mode, "SENDGATE_TRANSPORT_MODE")
	setString(&cfg.Redis.Addr, "SENDGATE_REDIS_ADDR")
	setString(&cfg.Redis.Password, "SENDGATE_REDIS_PASSWORD")
	setString(&cfg.WhatsApp.StoreDriver, "SENDGATE_WHATSAPP_STORE_DRIVER")
	setString(&cfg.WhatsApp.StoreDSN, "SENDGATE_WHATSAPP_STORE_DSN")
	setString(&cfg.WhatsApp.PairDisplayName, "SENDGATE_WHATSAPP_PAIR_DISPLAY_NAME")

	ints := []struct {
		dst *int
		key string
	}{
		{&cfg.Server.Port, "SENDGATE_SERVER_PORT"},
		{&cfg.Session.MaxReconnectAttempts, "SENDGATE_SESSION_MAX_RECONNECT_ATTEMPTS"},
		{&cfg.Session.PairingPollAttempts, "SENDGATE_SESSION_PAIRING_POLL_ATTEMPTS"},
		{&cfg.Dispatch.SendRatePerSec, "SENDGATE_DISPATCH_SEND_RATE_PER_SEC"},
		{&cfg.Redis.DB, "SENDGATE_REDIS_DB"},
	}
	for _, e := range ints {
		if err := setInt(e.dst, e.key); err != nil {
			return err
		}
	}

	durations := []struct {
		dst *time.Duration
		key string
	}{
		{&cfg.Session.ReconnectBase, "SENDGATE_SESSION_RECONNECT_BASE"},
		{&cfg.Session.ReconnectMax, "SENDGATE_SESSION_RECONNECT_MAX"},
		{&cfg.Session.StartupJitterMin, "SENDGATE_SESSION_STARTUP_JITTER_MIN"},
		{&cfg.Session.StartupJitterMax, "SENDGATE_SESSION_STARTUP_JITTER_MAX"},
		{&cfg.Session.PairingPollInterval, "SENDGATE_SESSION_PAIRING_POLL_INTERVAL"},
		{&cfg.Session.QRWait, "SENDGATE_SESSION_QR_WAIT"},
		{&cfg.Dispatch.ReconnectGrace, "SENDGATE_DISPATCH_RECONNECT_GRACE"},
		{&cfg.Redis.TTL, "SENDGATE_REDIS_TTL"},
	}
	for _, e := range durations {
		if err := setDuration(e.dst, e.key); err != nil {
			return err
		}
	}

	if v := os.Getenv("SENDGATE_AUTH_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SENDGATE_AUTH_ENABLED: %w", err)
		}
		cfg.Auth.Enabled = enabled
	}

	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
