package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAddr            = ":8080"
	defaultShutdownTimeout = 10 * time.Second
	defaultRemoteTimeout   = 250 * time.Millisecond
	defaultWindow          = 15 * time.Minute
	defaultMaxRequests     = 100
	defaultMessage         = "Too many requests, please try again later."
	minSweepInterval       = time.Second
)

// Config is the process configuration read once at startup.
type Config struct {
	Server    Server
	Redis     RedisConfig
	RateLimit RateLimit
	Log       Log

	// Warnings lists values that were present but invalid and replaced by
	// defaults. main logs them once the logger exists.
	Warnings []string
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
	AdminToken      string
}

// RedisConfig configures the shared remote window store. An empty URL means
// no remote store; the limiter then stays on its local backend.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RateLimit holds the initial limiter settings. Window, MaxRequests and Message
// can be changed at runtime through the admin API.
type RateLimit struct {
	Disabled      bool
	Window        time.Duration
	MaxRequests   int
	Message       string
	RemoteTimeout time.Duration
	SweepInterval time.Duration
}

type Log struct {
	Level  string
	Format string
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	return load(os.Getenv)
}

func load(getenv func(string) string) Config {
	l := loader{getenv: getenv}

	cfg := Config{
		Server: Server{
			Addr:            l.str("GATEKEEPER_ADDR", defaultAddr),
			ShutdownTimeout: l.duration("SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
			AdminToken:      getenv("ADMIN_TOKEN"),
		},
		Redis: RedisConfig{
			URL:          strings.TrimSpace(getenv("REDIS_URL")),
			PoolSize:     l.integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: l.integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  l.duration("REDIS_DIAL_TIMEOUT", 2*time.Second),
			ReadTimeout:  l.duration("REDIS_READ_TIMEOUT", 500*time.Millisecond),
			WriteTimeout: l.duration("REDIS_WRITE_TIMEOUT", 500*time.Millisecond),
		},
		RateLimit: RateLimit{
			Disabled:      l.boolean("RATE_LIMIT_DISABLED", false),
			Window:        l.duration("RATE_LIMIT_WINDOW", defaultWindow),
			MaxRequests:   l.integer("RATE_LIMIT_MAX_REQUESTS", defaultMaxRequests),
			Message:       l.str("RATE_LIMIT_MESSAGE", defaultMessage),
			RemoteTimeout: l.duration("RATE_LIMIT_REMOTE_TIMEOUT", defaultRemoteTimeout),
		},
		Log: Log{
			Level:  strings.ToLower(l.str("LOG_LEVEL", "info")),
			Format: strings.ToLower(l.str("LOG_FORMAT", "json")),
		},
	}

	// Defaults to a third of the window, never under a second.
	cfg.RateLimit.SweepInterval = l.duration("RATE_LIMIT_SWEEP_INTERVAL",
		max(cfg.RateLimit.Window/3, minSweepInterval))

	cfg.Warnings = l.warnings
	return cfg
}

type loader struct {
	getenv   func(string) string
	warnings []string
}

func (l *loader) str(key, def string) string {
	if v := strings.TrimSpace(l.getenv(key)); v != "" {
		return v
	}
	return def
}

// duration accepts Go duration strings ("15m") or a bare number of milliseconds.
func (l *loader) duration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(l.getenv(key))
	if raw == "" {
		return def
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	} else if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	l.warn(key, raw, def)
	return def
}

func (l *loader) integer(key string, def int) int {
	raw := strings.TrimSpace(l.getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		l.warn(key, raw, def)
		return def
	}
	return n
}

func (l *loader) boolean(key string, def bool) bool {
	raw := strings.TrimSpace(l.getenv(key))
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		l.warn(key, raw, def)
		return def
	}
	return b
}

func (l *loader) warn(key, raw string, def any) {
	l.warnings = append(l.warnings, fmt.Sprintf("invalid %s=%q, using default %v", key, raw, def))
}
