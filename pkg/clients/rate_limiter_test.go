package clients

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/freightsync/pkg/errors"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestSlidingWindowRateLimiter_FiveCallsPerSecond(t *testing.T) {
	clock := newFakeClock()
	l := NewSlidingWindowRateLimiter(RateLimitPolicy{MaxRequests: 5, Window: time.Second}, WithClock(clock.Now))

	for i := 0; i < 5; i++ {
		require.NoError(t, l.CheckLimit(), "call %d", i+1)
		clock.Advance(100 * time.Millisecond)
	}

	err := l.CheckLimit()
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeRateLimit))
	assert.Contains(t, err.Error(), "rate limit exceeded, retry after 1s")
	assert.False(t, errors.IsRetryable(err), "own admission errors are not retried")

	wait, ok := errors.RetryAfter(err)
	require.True(t, ok)
	assert.Equal(t, 500*time.Millisecond, wait)

	clock.Advance(time.Second)
	assert.NoError(t, l.CheckLimit())
}

func TestSlidingWindowRateLimiter_WindowSlides(t *testing.T) {
	clock := newFakeClock()
	l := NewSlidingWindowRateLimiter(RateLimitPolicy{MaxRequests: 2, Window: time.Second}, WithClock(clock.Now))

	require.NoError(t, l.CheckLimit())
	clock.Advance(600 * time.Millisecond)
	require.NoError(t, l.CheckLimit())
	require.Error(t, l.CheckLimit())

	// the first call leaves the window, the second is still in it
	clock.Advance(400 * time.Millisecond)
	require.NoError(t, l.CheckLimit())
	assert.Error(t, l.CheckLimit())
}

func TestSlidingWindowRateLimiter_RemainingHasNoSideEffects(t *testing.T) {
	clock := newFakeClock()
	l := NewSlidingWindowRateLimiter(RateLimitPolicy{MaxRequests: 3, Window: time.Second}, WithClock(clock.Now))

	assert.Equal(t, 3, l.Remaining())
	require.NoError(t, l.CheckLimit())
	require.NoError(t, l.CheckLimit())

	for i := 0; i < 5; i++ {
		assert.Equal(t, 1, l.Remaining())
	}

	clock.Advance(time.Second)
	assert.Equal(t, 3, l.Remaining())

	stats := l.GetStats()
	assert.Equal(t, int64(2), stats.AllowedRequests)
	assert.Equal(t, int64(0), stats.BlockedRequests)
}

func TestSlidingWindowRateLimiter_BurstTier(t *testing.T) {
	clock := newFakeClock()
	l := NewSlidingWindowRateLimiter(
		RateLimitPolicy{MaxRequests: 10, Window: 10 * time.Second, MaxBurst: 2},
		WithClock(clock.Now),
	)

	require.NoError(t, l.CheckLimit())
	require.NoError(t, l.CheckLimit())

	err := l.CheckLimit()
	require.Error(t, err)
	wait, ok := errors.RetryAfter(err)
	require.True(t, ok)
	assert.Equal(t, time.Second, wait)
	assert.Equal(t, 8, l.Remaining(), "rejected burst calls do not consume the window")

	clock.Advance(time.Second)
	assert.NoError(t, l.CheckLimit())
}

func TestSlidingWindowRateLimiter_Unlimited(t *testing.T) {
	l := NewSlidingWindowRateLimiter(RateLimitPolicy{})
	for i := 0; i < 100; i++ {
		require.NoError(t, l.CheckLimit())
	}
	assert.Equal(t, int64(100), l.GetStats().AllowedRequests)
}

func TestSlidingWindowRateLimiter_Stats(t *testing.T) {
	clock := newFakeClock()
	l := NewSlidingWindowRateLimiter(RateLimitPolicy{MaxRequests: 2, Window: time.Minute}, WithClock(clock.Now))

	start := clock.Now()
	require.NoError(t, l.CheckLimit())
	clock.Advance(time.Second)
	require.NoError(t, l.CheckLimit())
	require.Error(t, l.CheckLimit())

	stats := l.GetStats()
	assert.Equal(t, 2, stats.InWindow)
	assert.Equal(t, 0, stats.Remaining)
	assert.Equal(t, int64(2), stats.AllowedRequests)
	assert.Equal(t, int64(1), stats.BlockedRequests)
	assert.Equal(t, start.Add(time.Minute), stats.ResetAt)
}

func TestSlidingWindowRateLimiter_Concurrent(t *testing.T) {
	l := NewSlidingWindowRateLimiter(RateLimitPolicy{MaxRequests: 50, Window: time.Hour})

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.CheckLimit() == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, admitted)
}

func TestLimiterSet(t *testing.T) {
	set := NewLimiterSet()
	policy := RateLimitPolicy{MaxRequests: 1, Window: time.Hour}

	a := set.Get("conn-a", policy)
	assert.Same(t, a, set.Get("conn-a", policy))

	require.NoError(t, a.CheckLimit())
	require.Error(t, a.CheckLimit())

	b := set.Get("conn-b", policy)
	assert.NoError(t, b.CheckLimit(), "limiters are per connection")

	_, ok := set.Lookup("conn-a")
	assert.True(t, ok)
	set.Remove("conn-a")
	_, ok = set.Lookup("conn-a")
	assert.False(t, ok)
}
