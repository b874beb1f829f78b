package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "REMINDR_"

// Config holds all remindr configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Log       LogConfig
	Scheduler SchedulerConfig
	Dispatch  DispatchConfig
	Push      PushConfig
	// DefaultTimezone applies to reminders created without a timezone.
	DefaultTimezone string
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	Path string
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type SchedulerConfig struct {
	TickInterval time.Duration
}

type DispatchConfig struct {
	Timeout     time.Duration
	Concurrency int
	MaxAttempts int
}

type PushConfig struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string
}

// Enabled reports whether both VAPID keys are configured.
func (p PushConfig) Enabled() bool {
	return p.VAPIDPublicKey != "" && p.VAPIDPrivateKey != ""
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server:    ServerConfig{Port: "8080"},
		Database:  DatabaseConfig{Path: "remindr.db"},
		Log:       LogConfig{Level: "info", Format: "text"},
		Scheduler: SchedulerConfig{TickInterval: 60 * time.Second},
		Dispatch: DispatchConfig{
			Timeout:     10 * time.Second,
			Concurrency: 4,
			MaxAttempts: 3,
		},
		Push:            PushConfig{Subscriber: "mailto:reminders@localhost"},
		DefaultTimezone: "UTC",
	}
}

// Load reads REMINDR_* variables over the defaults. Malformed values keep
// their default and are reported together in the returned error.
func Load() (Config, error) {
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	var bad []string

	str := func(key string, dst *string) {
		if v, ok := lookup(envPrefix + key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	dur := func(key string, dst *time.Duration) {
		v, ok := lookup(envPrefix + key)
		if !ok || v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			bad = append(bad, envPrefix+key)
			return
		}
		*dst = d
	}
	num := func(key string, dst *int) {
		v, ok := lookup(envPrefix + key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			bad = append(bad, envPrefix+key)
			return
		}
		*dst = n
	}

	str("PORT", &cfg.Server.Port)
	str("DB_PATH", &cfg.Database.Path)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	dur("TICK_INTERVAL", &cfg.Scheduler.TickInterval)
	dur("DISPATCH_TIMEOUT", &cfg.Dispatch.Timeout)
	num("DISPATCH_CONCURRENCY", &cfg.Dispatch.Concurrency)
	num("DISPATCH_MAX_ATTEMPTS", &cfg.Dispatch.MaxAttempts)
	str("DEFAULT_TIMEZONE", &cfg.DefaultTimezone)
	str("VAPID_PUBLIC_KEY", &cfg.Push.VAPIDPublicKey)
	str("VAPID_PRIVATE_KEY", &cfg.Push.VAPIDPrivateKey)
	str("VAPID_SUBSCRIBER", &cfg.Push.Subscriber)

	if _, err := time.LoadLocation(cfg.DefaultTimezone); err != nil {
		bad = append(bad, envPrefix+"DEFAULT_TIMEZONE")
		cfg.DefaultTimezone = Default().DefaultTimezone
	}

	if len(bad) > 0 {
		return cfg, fmt.Errorf("invalid config values, using defaults: %s", strings.Join(bad, ", "))
	}
	return cfg, nil
}

// ListenAddr returns the address the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return ":" + c.Server.Port
}
