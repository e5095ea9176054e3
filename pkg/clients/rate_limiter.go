package clients

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ajitpratap0/freightsync/pkg/errors"
)

// RateLimitPolicy is a carrier's declared admission policy.
type RateLimitPolicy struct {
	// MaxRequests admitted within any trailing Window
	MaxRequests int `json:"max_requests" yaml:"max_requests"`
	// Window is the trailing interval the sliding counter covers
	Window time.Duration `json:"window" yaml:"window"`
	// MaxBurst caps back-to-back calls when > 0. Burst capacity refills at
	// MaxRequests/Window; zero leaves only the sliding window.
	MaxBurst int `json:"max_burst" yaml:"max_burst"`
}

// RateLimiter defines admission control for one connection. It never queues:
// a rejected call fails with a rate_limit error carrying a retry_after hint
// and the caller decides whether to retry.
type RateLimiter interface {
	// CheckLimit admits one call or returns a rate_limit error
	CheckLimit() error

	// Remaining returns how many calls the sliding window would admit now
	// without recording anything
	Remaining() int

	// GetStats returns rate limiter statistics
	GetStats() RateLimiterStats
}

// RateLimiterStats describes a limiter's policy and current state.
type RateLimiterStats struct {
	MaxRequests     int           `json:"max_requests"`
	Window          time.Duration `json:"window"`
	MaxBurst        int           `json:"max_burst"`
	InWindow        int           `json:"in_window"`
	Remaining       int           `json:"remaining"`
	AllowedRequests int64         `json:"allowed_requests"`
	BlockedRequests int64         `json:"blocked_requests"`
	ResetAt         time.Time     `json:"reset_at,omitempty"`
}

// RateLimiterOption configures a SlidingWindowRateLimiter.
type RateLimiterOption func(*SlidingWindowRateLimiter)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) RateLimiterOption {
	return func(l *SlidingWindowRateLimiter) {
		l.now = now
	}
}

// SlidingWindowRateLimiter keeps the timestamps of admitted calls and admits a
// new call while fewer than MaxRequests fall inside the trailing window. When
// the policy has a MaxBurst, a token bucket is consulted as a second tier and
// a call must pass both.
type SlidingWindowRateLimiter struct {
	policy     RateLimitPolicy
	timestamps []time.Time
	burst      *rate.Limiter
	now        func() time.Time

	allowedRequests int64
	blockedRequests int64

	mu sync.Mutex
}

// NewSlidingWindowRateLimiter creates a limiter for policy. A non-positive
// MaxRequests or Window yields a limiter that admits everything.
func NewSlidingWindowRateLimiter(policy RateLimitPolicy, opts ...RateLimiterOption) *SlidingWindowRateLimiter {
	l := &SlidingWindowRateLimiter{
		policy: policy,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	if policy.MaxBurst > 0 && policy.MaxRequests > 0 && policy.Window > 0 {
		refill := rate.Limit(float64(policy.MaxRequests) / policy.Window.Seconds())
		l.burst = rate.NewLimiter(refill, policy.MaxBurst)
	}
	if policy.MaxRequests > 0 {
		l.timestamps = make([]time.Time, 0, policy.MaxRequests)
	}
	return l
}

func (l *SlidingWindowRateLimiter) unlimited() bool {
	return l.policy.MaxRequests <= 0 || l.policy.Window <= 0
}

// CheckLimit admits one call or fails with "rate limit exceeded, retry after Ns".
func (l *SlidingWindowRateLimiter) CheckLimit() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.unlimited() {
		l.allowedRequests++
		return nil
	}

	now := l.now()
	l.prune(now)

	if len(l.timestamps) >= l.policy.MaxRequests {
		wait := l.timestamps[0].Add(l.policy.Window).Sub(now)
		l.blockedRequests++
		return rateLimitError(wait)
	}

	if l.burst != nil {
		r := l.burst.ReserveN(now, 1)
		if !r.OK() {
			l.blockedRequests++
			return rateLimitError(l.policy.Window)
		}
		if delay := r.DelayFrom(now); delay > 0 {
			r.CancelAt(now)
			l.blockedRequests++
			return rateLimitError(delay)
		}
	}

	l.timestamps = append(l.timestamps, now)
	l.allowedRequests++
	return nil
}

// Remaining reports the sliding window's spare capacity. It does not prune.
func (l *SlidingWindowRateLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.unlimited() {
		return math.MaxInt
	}
	return l.policy.MaxRequests - l.countInWindow(l.now())
}

// GetStats returns a snapshot of the limiter.
func (l *SlidingWindowRateLimiter) GetStats() RateLimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := RateLimiterStats{
		MaxRequests:     l.policy.MaxRequests,
		Window:          l.policy.Window,
		MaxBurst:        l.policy.MaxBurst,
		AllowedRequests: l.allowedRequests,
		BlockedRequests: l.blockedRequests,
	}
	if l.unlimited() {
		stats.Remaining = math.MaxInt
		return stats
	}

	now := l.now()
	stats.InWindow = l.countInWindow(now)
	stats.Remaining = l.policy.MaxRequests - stats.InWindow
	if stats.InWindow > 0 {
		oldest := l.timestamps[len(l.timestamps)-stats.InWindow]
		stats.ResetAt = oldest.Add(l.policy.Window)
	}
	return stats
}

// prune drops timestamps that have left the window. Must hold mu.
func (l *SlidingWindowRateLimiter) prune(now time.Time) {
	cutoff := now.Add(-l.policy.Window)
	i := 0
	for i < len(l.timestamps) && !l.timestamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.timestamps = append(l.timestamps[:0], l.timestamps[i:]...)
	}
}

// countInWindow counts timestamps inside the window without mutating. Must hold mu.
func (l *SlidingWindowRateLimiter) countInWindow(now time.Time) int {
	cutoff := now.Add(-l.policy.Window)
	n := 0
	for i := len(l.timestamps) - 1; i >= 0 && l.timestamps[i].After(cutoff); i-- {
		n++
	}
	return n
}

func rateLimitError(wait time.Duration) error {
	if wait < 0 {
		wait = 0
	}
	seconds := int(math.Ceil(wait.Seconds()))
	return errors.Newf(errors.ErrorTypeRateLimit, "rate limit exceeded, retry after %ds", seconds).
		WithDetail(errors.DetailRetryAfter, wait)
}

// LimiterSet holds one limiter per connection id.
type LimiterSet struct {
	limiters map[string]*SlidingWindowRateLimiter
	opts     []RateLimiterOption
	mu       sync.Mutex
}

// NewLimiterSet creates an empty set. Options apply to every limiter it creates.
func NewLimiterSet(opts ...RateLimiterOption) *LimiterSet {
	return &LimiterSet{
		limiters: make(map[string]*SlidingWindowRateLimiter),
		opts:     opts,
	}
}

// Get returns the limiter for id, creating it with policy on first use.
func (s *LimiterSet) Get(id string, policy RateLimitPolicy) *SlidingWindowRateLimiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.limiters[id]
	if !ok {
		l = NewSlidingWindowRateLimiter(policy, s.opts...)
		s.limiters[id] = l
	}
	return l
}

// Lookup returns the limiter for id if one exists.
func (s *LimiterSet) Lookup(id string) (*SlidingWindowRateLimiter, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[id]
	return l, ok
}

// Remove forgets the limiter for id.
func (s *LimiterSet) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.limiters, id)
}
