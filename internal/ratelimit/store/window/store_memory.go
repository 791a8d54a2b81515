package window

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"gatekeeper/internal/ratelimit/metrics"
	"gatekeeper/internal/ratelimit/models"
	"gatekeeper/pkg/requestcontext"
)

const (
	defaultShards        = 32
	defaultSweepInterval = time.Minute
)

// InMemoryWindowStore implements WindowStore with per-process fixed windows.
// State is not shared across replicas; it is the failover store when the remote
// store is unavailable and the only store when none is registered.
//
// Keys are spread over independently locked shards so that checks for unrelated
// clients rarely contend, while a check for one key is a single critical section.
type InMemoryWindowStore struct {
	shards        []*shard
	sweepInterval time.Duration
	clock         func() time.Time
	logger        *slog.Logger
	metrics       *metrics.Metrics

	lifecycle sync.Mutex
	stop      chan struct{}
	done      chan struct{}
}

type shard struct {
	mu      sync.Mutex
	windows map[string]*models.WindowRecord
}

type Option func(*InMemoryWindowStore)

// WithShards sets the number of lock shards (default 32).
func WithShards(n int) Option {
	return func(s *InMemoryWindowStore) {
		if n > 0 {
			s.shards = newShards(n)
		}
	}
}

// WithSweepInterval sets how often expired windows are evicted (default 1m).
func WithSweepInterval(d time.Duration) Option {
	return func(s *InMemoryWindowStore) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

// WithClock replaces the sweeper's time source.
func WithClock(clock func() time.Time) Option {
	return func(s *InMemoryWindowStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *InMemoryWindowStore) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *InMemoryWindowStore) {
		s.metrics = m
	}
}

// New creates an empty store. The sweeper is not running until Start is called.
func New(opts ...Option) *InMemoryWindowStore {
	s := &InMemoryWindowStore{
		shards:        newShards(defaultShards),
		sweepInterval: defaultSweepInterval,
		clock:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newShards(n int) []*shard {
	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = &shard{windows: make(map[string]*models.WindowRecord)}
	}
	return shards
}

func (s *InMemoryWindowStore) shardFor(key string) *shard {
	return s.shards[xxhash.Sum64String(key)%uint64(len(s.shards))]
}

// Check records one request for key under the fixed-window algorithm.
//
// A missing or expired window is replaced by a fresh one holding this request.
// Otherwise the count is incremented even when the request is rejected; rejected
// requests never extend or reset the window.
func (s *InMemoryWindowStore) Check(ctx context.Context, key string, limits models.Limits) (*models.Decision, error) {
	now := requestcontext.Now(ctx)
	sh := s.shardFor(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, exists := sh.windows[key]
	if !exists || rec.IsExpired(now) {
		rec = models.NewWindowRecord(now, limits.Window)
		sh.windows[key] = rec
		return &models.Decision{
			Allowed:   true,
			Limit:     limits.MaxRequests,
			Remaining: limits.MaxRequests - 1,
			ResetAt:   rec.ResetAt,
			Backend:   models.BackendLocal,
		}, nil
	}

	rec.Count++
	return &models.Decision{
		Allowed:   rec.Count <= limits.MaxRequests,
		Limit:     limits.MaxRequests,
		Remaining: max(0, limits.MaxRequests-rec.Count),
		ResetAt:   rec.ResetAt,
		Backend:   models.BackendLocal,
	}, nil
}

// Reset clears the window for a key.
func (s *InMemoryWindowStore) Reset(ctx context.Context, key string) error {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.windows, key)
	return nil
}

// Len returns the number of windows held, including expired ones not yet swept.
func (s *InMemoryWindowStore) Len() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		total += len(sh.windows)
		sh.mu.Unlock()
	}
	return total
}

// Sweep evicts every window whose reset time is before now and returns how many
// were removed. Shards are locked one at a time.
func (s *InMemoryWindowStore) Sweep(now time.Time) int {
	removed, remaining := 0, 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key, rec := range sh.windows {
			if rec.IsExpired(now) {
				delete(sh.windows, key)
				removed++
			}
		}
		remaining += len(sh.windows)
		sh.mu.Unlock()
	}

	if s.metrics != nil {
		s.metrics.AddSweptWindows(removed)
		s.metrics.SetLocalWindows(remaining)
	}
	if s.logger != nil && removed > 0 {
		s.logger.Debug("swept expired rate limit windows", "removed", removed, "remaining", remaining)
	}
	return removed
}

// Start launches the background sweeper. Calling Start on a running store is a no-op.
func (s *InMemoryWindowStore) Start() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.sweepLoop(s.sweepInterval, s.stop, s.done)
}

// Stop halts the sweeper and waits for it to exit. Safe to call more than once.
func (s *InMemoryWindowStore) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
	s.stop = nil
	s.done = nil
}

func (s *InMemoryWindowStore) sweepLoop(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep(s.clock())
		case <-stop:
			return
		}
	}
}
