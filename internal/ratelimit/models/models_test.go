package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDecisionResetUnix(t *testing.T) {
	base := time.UnixMilli(1_700_000_000_000)

	tests := []struct {
		name    string
		resetAt time.Time
		want    int64
	}{
		{name: "whole second is unchanged", resetAt: base, want: 1_700_000_000},
		{name: "one millisecond rounds up", resetAt: base.Add(time.Millisecond), want: 1_700_000_001},
		{name: "sub-second remainder rounds up", resetAt: base.Add(999 * time.Millisecond), want: 1_700_000_001},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Decision{ResetAt: tt.resetAt}
			assert.Equal(t, tt.want, d.ResetUnix())
		})
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	now := time.UnixMilli(0)

	assert.Equal(t, 1, RetryAfterSeconds(now, now.Add(800*time.Millisecond)))
	assert.Equal(t, 1, RetryAfterSeconds(now, now.Add(time.Second)))
	assert.Equal(t, 2, RetryAfterSeconds(now, now.Add(1001*time.Millisecond)))
	assert.Equal(t, 0, RetryAfterSeconds(now, now), "reset at now means retry immediately")
	assert.Equal(t, 0, RetryAfterSeconds(now, now.Add(-time.Second)), "never negative")
}

func TestWindowRecordExpiry(t *testing.T) {
	start := time.UnixMilli(0)
	rec := NewWindowRecord(start, time.Second)

	assert.Equal(t, 1, rec.Count)
	assert.Equal(t, start.Add(time.Second), rec.ResetAt)
	assert.False(t, rec.IsExpired(start.Add(time.Second)), "boundary instant belongs to the old window")
	assert.True(t, rec.IsExpired(start.Add(time.Second+time.Millisecond)))
}

func TestNewWindowKey(t *testing.T) {
	assert.Equal(t, WindowKey("ratelimit:1.2.3.4"), NewWindowKey("1.2.3.4"))
	assert.Equal(t, WindowKey("ratelimit:2001:db8::1"), NewWindowKey("2001:db8::1"))
	assert.NotEqual(t, NewWindowKey("2001:db8::1"), NewWindowKey("2001_db8__1"))
	assert.Equal(t, "ratelimit:unknown", NewWindowKey("unknown").String())
}
