// Package config holds the runtime settings of the relay with their defaults
// and environment overrides.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the server configuration.
type Config struct {
	Addr           string
	AllowedOrigins []string

	JWTSecret   string
	DatabaseURL string // empty selects the in-memory store

	RedisAddr     string // empty selects the in-memory presence store
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	OnlineTTL    time.Duration
	TypingTTL    time.Duration
	PingInterval time.Duration

	RateLimit     float64 // frames per second per connection, 0 disables
	RateBurst     int
	MaxFrameBytes int64

	LogLevel  string
	LogFormat string
}

// Default returns a Config populated with default values for all settings.
func Default() Config {
	return Config{
		Addr:           ":8080",
		AllowedOrigins: []string{"*"},
		RedisPrefix:    "kephaschat:",
		OnlineTTL:      5 * time.Minute,
		TypingTTL:      5 * time.Second,
		PingInterval:   30 * time.Second,
		RateLimit:      100,
		RateBurst:      200,
		MaxFrameBytes:  64 * 1024,
		LogLevel:       "info",
		LogFormat:      "json",
	}
}

// FromEnv returns the defaults overridden by KEPHASCHAT_* environment
// variables. Values that fail to parse keep their default.
func FromEnv() Config {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) Config {
	cfg := Default()

	get := func(name string) (string, bool) {
		v, ok := lookup("KEPHASCHAT_" + name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("ADDR"); ok {
		cfg.Addr = v
	}
	if v, ok := get("ALLOWED_ORIGINS"); ok {
		cfg.AllowedOrigins = parseList(v)
	}
	if v, ok := get("JWT_SECRET"); ok {
		cfg.JWTSecret = v
	}
	if v, ok := get("DATABASE_URL"); ok {
		cfg.DatabaseURL = v
	}
	if v, ok := get("REDIS_ADDR"); ok {
		cfg.RedisAddr = v
	}
	if v, ok := get("REDIS_PASSWORD"); ok {
		cfg.RedisPassword = v
	}
	if v, ok := get("REDIS_DB"); ok {
		cfg.RedisDB = parseNonNegativeInt(v, cfg.RedisDB)
	}
	if v, ok := get("REDIS_PREFIX"); ok {
		cfg.RedisPrefix = v
	}
	if v, ok := get("ONLINE_TTL"); ok {
		cfg.OnlineTTL = parseDuration(v, cfg.OnlineTTL)
	}
	if v, ok := get("TYPING_TTL"); ok {
		cfg.TypingTTL = parseDuration(v, cfg.TypingTTL)
	}
	if v, ok := get("PING_INTERVAL"); ok {
		cfg.PingInterval = parseDuration(v, cfg.PingInterval)
	}
	if v, ok := get("RATE_LIMIT"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.RateLimit = f
		}
	}
	if v, ok := get("RATE_BURST"); ok {
		cfg.RateBurst = parsePositiveInt(v, cfg.RateBurst)
	}
	if v, ok := get("MAX_FRAME_BYTES"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.MaxFrameBytes = n
		}
	}
	if v, ok := get("LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := get("LOG_FORMAT"); ok {
		cfg.LogFormat = v
	}

	return cfg
}

// Validate reports settings the server cannot start without.
func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr must be set"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt secret must be set (KEPHASCHAT_JWT_SECRET)"))
	}
	if c.OnlineTTL <= 0 {
		errs = append(errs, errors.New("online ttl must be positive"))
	}
	if c.TypingTTL <= 0 {
		errs = append(errs, errors.New("typing ttl must be positive"))
	}
	if c.PingInterval <= 0 {
		errs = append(errs, errors.New("ping interval must be positive"))
	}
	if c.OnlineTTL <= c.PingInterval {
		errs = append(errs, errors.New("online ttl must exceed the ping interval or markers expire while users are online"))
	}
	return errors.Join(errs...)
}

func parseList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseDuration accepts Go durations ("30s") or bare seconds ("30").
func parseDuration(v string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return def
}

func parsePositiveInt(v string, def int) int {
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return n
	}
	return def
}

func parseNonNegativeInt(v string, def int) int {
	if n, err := strconv.Atoi(v); err == nil && n >= 0 {
		return n
	}
	return def
}
