// Package config holds the live, runtime-updatable rate limit settings.
package config

import (
	"sync"
	"time"

	"gatekeeper/internal/ratelimit/models"
)

const (
	DefaultWindow      = 15 * time.Minute
	DefaultMaxRequests = 100
	DefaultMessage     = "Too many requests, please try again later."
)

// Config is a snapshot of the limiter settings.
type Config struct {
	Window      time.Duration
	MaxRequests int
	Message     string
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Window:      DefaultWindow,
		MaxRequests: DefaultMaxRequests,
		Message:     DefaultMessage,
	}
}

// Limits returns the part of the snapshot the window stores need.
func (c Config) Limits() models.Limits {
	return models.Limits{
		MaxRequests: c.MaxRequests,
		Window:      c.Window,
	}
}

// Update is a partial change. Nil fields are left unchanged.
type Update struct {
	Window      *time.Duration
	MaxRequests *int
	Message     *string
}

// Holder is the single shared, mutable copy of Config.
// It is injected into the limiter rather than kept as package state, so tests can
// run independent instances side by side.
type Holder struct {
	mu  sync.RWMutex
	cfg Config
}

// NewHolder seeds a Holder. Non-positive or empty fields in initial fall back to
// their defaults.
func NewHolder(initial Config) *Holder {
	cfg := DefaultConfig()
	cfg = apply(cfg, Update{
		Window:      &initial.Window,
		MaxRequests: &initial.MaxRequests,
		Message:     &initial.Message,
	})
	return &Holder{cfg: cfg}
}

// Get returns a copy of the current settings.
func (h *Holder) Get() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// Update applies the present fields of u and returns the resulting settings.
//
// A zero or negative Window or MaxRequests, and an empty Message, are ignored for
// that field; the remaining fields of the same update still apply.
func (h *Holder) Update(u Update) Config {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cfg = apply(h.cfg, u)
	return h.cfg
}

func apply(cfg Config, u Update) Config {
	if u.Window != nil && *u.Window > 0 {
		cfg.Window = *u.Window
	}
	if u.MaxRequests != nil && *u.MaxRequests > 0 {
		cfg.MaxRequests = *u.MaxRequests
	}
	if u.Message != nil && *u.Message != "" {
		cfg.Message = *u.Message
	}
	return cfg
}
