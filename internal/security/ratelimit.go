package security

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Default rate limit triple applied when a RateLimitConfig field is zero.
const (
	DefaultRequestsPerMinute = 60
	DefaultRequestsPerHour   = 1000
	DefaultBurstSize         = 10
)

// RateLimitConfig configures a RateLimiter.
type RateLimitConfig struct {
	// RequestsPerMinute sets both the bucket refill rate (rpm/60 tokens per
	// second) and the one-minute sliding-window ceiling.
	RequestsPerMinute int

	// RequestsPerHour sets the one-hour sliding-window ceiling.
	RequestsPerHour int

	// BurstSize is the token bucket capacity.
	BurstSize int
}

func (c RateLimitConfig) withDefaults() RateLimitConfig {
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if c.RequestsPerHour <= 0 {
		c.RequestsPerHour = DefaultRequestsPerHour
	}
	if c.BurstSize <= 0 {
		c.BurstSize = DefaultBurstSize
	}
	return c
}

// categoryDefaults selects limit triples by operation weight class.
var categoryDefaults = map[string]RateLimitConfig{
	"file":    {RequestsPerMinute: 120, RequestsPerHour: 2000, BurstSize: 20},
	"network": {RequestsPerMinute: 30, RequestsPerHour: 500, BurstSize: 5},
	"compute": {RequestsPerMinute: 10, RequestsPerHour: 100, BurstSize: 3},
}

// QuotaState is the mutable per-(identity, resource) record: the token
// bucket plus the time-ordered queue of accepted-request timestamps. It is
// owned exclusively by the limiter that created it and must only be touched
// under that limiter's mutex.
type QuotaState struct {
	Bucket *rate.Limiter
	Events []time.Time
}

// Store holds per-key quota state. The in-process map implementation is the
// default; a distributed implementation can be supplied at construction
// with WithStore. Implementations need not be goroutine safe: the limiter
// serializes all access under its own mutex.
type Store interface {
	Load(key string) (*QuotaState, bool)
	Save(key string, state *QuotaState)
	Delete(key string)
}

// memoryStore is the in-process Store.
type memoryStore struct {
	states map[string]*QuotaState
}

func newMemoryStore() *memoryStore {
	return &memoryStore{states: make(map[string]*QuotaState)}
}

func (m *memoryStore) Load(key string) (*QuotaState, bool) {
	st, ok := m.states[key]
	return st, ok
}

func (m *memoryStore) Save(key string, state *QuotaState) {
	m.states[key] = state
}

func (m *memoryStore) Delete(key string) {
	delete(m.states, key)
}

// Quota is a read-only snapshot of one key's remaining allowance.
type Quota struct {
	Tokens          float64
	MinuteRemaining int
	HourRemaining   int
}

// RateLimiter bounds request frequency per (identity, resource) pair with a
// hybrid scheme: a token bucket for burst control and two sliding windows
// (one minute, one hour) for sustained-rate control. State is created
// lazily per key and lives until Reset.
//
// All state access is serialized under one mutex per limiter instance.
// Different identities are fully isolated: exhausting one identity's quota
// never affects another's.
type RateLimiter struct {
	mu    sync.Mutex
	cfg   RateLimitConfig
	store Store
	now   func() time.Time
}

// RateLimiterOption configures optional RateLimiter features.
type RateLimiterOption func(*RateLimiter)

// WithStore replaces the in-process quota store.
func WithStore(store Store) RateLimiterOption {
	return func(rl *RateLimiter) {
		rl.store = store
	}
}

// NewRateLimiter creates a RateLimiter. Zero config fields take the
// package defaults.
func NewRateLimiter(cfg RateLimitConfig, opts ...RateLimiterOption) *RateLimiter {
	rl := &RateLimiter{
		cfg:   cfg.withDefaults(),
		store: newMemoryStore(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

// NewRateLimiterForCategory creates a RateLimiter with the default triple
// for the given category label ("file", "network", "compute"). Unknown
// categories get the package defaults.
func NewRateLimiterForCategory(category string) *RateLimiter {
	return NewRateLimiter(categoryDefaults[category])
}

// Check reports whether one request of the given cost is allowed for
// (identity, resource) and, on denial, how long until a retry may succeed.
//
// The token bucket is consulted first (lazy refill from elapsed wall-clock
// time, capped at burst capacity), then the sliding windows. A token
// consumed by the bucket is not refunded when a window denies the request;
// the asymmetry is deliberate and keeps a window-throttled caller from
// also accumulating burst allowance.
func (rl *RateLimiter) Check(identity, resource string, cost int) (bool, time.Duration) {
	if cost <= 0 {
		cost = 1
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	st := rl.state(identity, resource)

	// Burst control.
	reservation := st.Bucket.ReserveN(now, cost)
	if !reservation.OK() {
		// Cost exceeds capacity: never satisfiable.
		return false, rate.InfDuration
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		rl.warnDenied(identity, resource, "burst", delay)
		return false, delay
	}

	// Sustained-rate control.
	st.Events = pruneBefore(st.Events, now.Add(-time.Hour))

	minuteCutoff := now.Add(-time.Minute)
	minuteCount := countSince(st.Events, minuteCutoff)
	if minuteCount >= rl.cfg.RequestsPerMinute {
		retry := oldestSince(st.Events, minuteCutoff).Add(time.Minute).Sub(now)
		rl.warnDenied(identity, resource, "minute_window", retry)
		return false, retry
	}
	if len(st.Events) >= rl.cfg.RequestsPerHour {
		retry := st.Events[0].Add(time.Hour).Sub(now)
		rl.warnDenied(identity, resource, "hour_window", retry)
		return false, retry
	}

	st.Events = append(st.Events, now)
	return true, 0
}

// Reset clears bucket and window state for (identity, resource), restoring
// full capacity on next use.
func (rl *RateLimiter) Reset(identity, resource string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.store.Delete(quotaKey(identity, resource))
}

// RemainingQuota returns a read-only snapshot of the key's allowance
// without consuming anything.
func (rl *RateLimiter) RemainingQuota(identity, resource string) Quota {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	st, ok := rl.store.Load(quotaKey(identity, resource))
	if !ok {
		return Quota{
			Tokens:          float64(rl.cfg.BurstSize),
			MinuteRemaining: rl.cfg.RequestsPerMinute,
			HourRemaining:   rl.cfg.RequestsPerHour,
		}
	}

	hourCount := countSince(st.Events, now.Add(-time.Hour))
	minuteCount := countSince(st.Events, now.Add(-time.Minute))
	return Quota{
		Tokens:          st.Bucket.TokensAt(now),
		MinuteRemaining: max(0, rl.cfg.RequestsPerMinute-minuteCount),
		HourRemaining:   max(0, rl.cfg.RequestsPerHour-hourCount),
	}
}

// Allow is the raising form of Check: it returns a *RateLimitError carrying
// the retry-after duration instead of a tuple.
func (rl *RateLimiter) Allow(identity, resource string, cost int) error {
	allowed, retryAfter := rl.Check(identity, resource, cost)
	if !allowed {
		return &RateLimitError{
			Identity:   identity,
			Resource:   resource,
			RetryAfter: retryAfter,
		}
	}
	return nil
}

// KeyFunc derives a rate-limit identity from a handler input.
type KeyFunc[T any] func(input T) string

// Guard wraps next so every invocation is charged against rl for the given
// resource. The identity comes from key; a nil key falls back to the
// input's string form. Denials surface as *RateLimitError without invoking
// next.
func Guard[In, Out any](
	rl *RateLimiter,
	resource string,
	key KeyFunc[In],
	next func(context.Context, In) (Out, error),
) func(context.Context, In) (Out, error) {
	return func(ctx context.Context, input In) (Out, error) {
		identity := fmt.Sprint(input)
		if key != nil {
			identity = key(input)
		}
		if err := rl.Allow(identity, resource, 1); err != nil {
			var zero Out
			return zero, err
		}
		return next(ctx, input)
	}
}

// state loads or lazily creates the QuotaState for a key. Caller holds the
// mutex.
func (rl *RateLimiter) state(identity, resource string) *QuotaState {
	key := quotaKey(identity, resource)
	if st, ok := rl.store.Load(key); ok {
		return st
	}
	st := &QuotaState{
		Bucket: rate.NewLimiter(
			rate.Limit(float64(rl.cfg.RequestsPerMinute)/60.0),
			rl.cfg.BurstSize,
		),
	}
	rl.store.Save(key, st)
	return st
}

func (rl *RateLimiter) warnDenied(identity, resource, limit string, retry time.Duration) {
	slog.Warn("rate limit exceeded",
		"identity", identity,
		"resource", resource,
		"limit", limit,
		"retry_after", retry,
		"security_event", "rate_limit_denied")
}

func quotaKey(identity, resource string) string {
	return identity + "\x1f" + resource
}

// pruneBefore drops events older than cutoff. Events are time ordered, so
// this is a prefix cut.
func pruneBefore(events []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(events) && !events[i].After(cutoff) {
		i++
	}
	return events[i:]
}

// countSince counts events strictly after cutoff.
func countSince(events []time.Time, cutoff time.Time) int {
	n := 0
	for i := len(events) - 1; i >= 0; i-- {
		if !events[i].After(cutoff) {
			break
		}
		n++
	}
	return n
}

// oldestSince returns the oldest event strictly after cutoff. Callers only
// use it when at least one such event exists.
func oldestSince(events []time.Time, cutoff time.Time) time.Time {
	for _, ev := range events {
		if ev.After(cutoff) {
			return ev
		}
	}
	return cutoff
}
