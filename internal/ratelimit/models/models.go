package models

import (
	"time"
)

// Backend names the window store that produced a decision.
type Backend string

const (
	// BackendLocal is the in-process window store.
	BackendLocal Backend = "local"
	// BackendRemote is the shared Redis window store.
	BackendRemote Backend = "remote"
)

// String returns the string representation.
func (b Backend) String() string {
	return string(b)
}

// Limits is the per-request snapshot of the limiter settings handed to a store.
type Limits struct {
	MaxRequests int
	Window      time.Duration
}

// WindowRecord is one client's current fixed counting window.
// ResetAt is fixed when the window opens and only replaced on rollover.
type WindowRecord struct {
	Count   int
	ResetAt time.Time
}

// NewWindowRecord opens a window at now holding its first request.
func NewWindowRecord(now time.Time, window time.Duration) *WindowRecord {
	return &WindowRecord{
		Count:   1,
		ResetAt: now.Add(window),
	}
}

// IsExpired reports whether the window has rolled over at now.
// A request landing exactly on ResetAt still belongs to the old window.
func (w *WindowRecord) IsExpired(now time.Time) bool {
	return now.After(w.ResetAt)
}

// Decision represents the outcome of a rate limit check.
type Decision struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when not allowed
	Message    string    `json:"message,omitempty"`     // rejection message, only set when not allowed
	Backend    Backend   `json:"backend"`
}

// ResetUnix is ResetAt in Unix seconds, rounded up to the next whole second.
func (d *Decision) ResetUnix() int64 {
	ms := d.ResetAt.UnixMilli()
	secs := ms / 1000
	if ms%1000 > 0 {
		secs++
	}
	return secs
}

// RetryAfterSeconds is the whole number of seconds until resetAt, rounded up and
// never negative.
func RetryAfterSeconds(now, resetAt time.Time) int {
	ms := resetAt.Sub(now).Milliseconds()
	if ms <= 0 {
		return 0
	}
	return int((ms + 999) / 1000)
}
