package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock safe for concurrent reads.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
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

func countingFetcher(calls *int32) TokenFetcher {
	return func(ctx context.Context) (string, error) {
		n := atomic.AddInt32(calls, 1)
		return fmt.Sprintf("token-%d", n), nil
	}
}

func TestTokenManager_CachesUntilRefreshPoint(t *testing.T) {
	var calls int32
	clock := newFakeClock()
	m := NewTokenManager(countingFetcher(&calls), time.Hour, zerolog.Nop())
	m.now = clock.Now

	tok, err := m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", tok)
	assert.Equal(t, clock.Now().Add(time.Hour-60*time.Second), m.ExpiresAt())

	clock.Advance(time.Hour - 61*time.Second)
	tok, err = m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", tok)

	clock.Advance(time.Second)
	tok, err = m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-2", tok)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestTokenManager_ConcurrentCallersFetchOnce(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	m := NewTokenManager(func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "shared", nil
	}, time.Hour, zerolog.Nop())

	const n = 50
	var wg sync.WaitGroup
	tokens := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], _ = m.Token(context.Background())
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, tok := range tokens {
		assert.Equal(t, "shared", tok)
	}
}

func TestTokenManager_FetchErrorLeavesStateUntouched(t *testing.T) {
	boom := errors.New("boom")
	fail := true
	m := NewTokenManager(func(ctx context.Context) (string, error) {
		if fail {
			return "", boom
		}
		return "ok", nil
	}, time.Hour, zerolog.Nop())

	_, err := m.Token(context.Background())
	assert.Same(t, boom, err)
	assert.True(t, m.ExpiresAt().IsZero())

	fail = false
	tok, err := m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", tok)
}

func TestTokenManager_TTLBelowBufferAlwaysRefreshes(t *testing.T) {
	var calls int32
	m := NewTokenManager(countingFetcher(&calls), 30*time.Second, zerolog.Nop())

	_, err := m.Token(context.Background())
	require.NoError(t, err)
	_, err = m.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestTokenManager_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("a token is reused strictly before ttl minus buffer", prop.ForAll(
		func(ttlSeconds, elapsedSeconds int) bool {
			var calls int32
			clock := newFakeClock()
			m := NewTokenManager(countingFetcher(&calls), time.Duration(ttlSeconds)*time.Second, zerolog.Nop())
			m.now = clock.Now

			if _, err := m.Token(context.Background()); err != nil {
				return false
			}
			clock.Advance(time.Duration(elapsedSeconds) * time.Second)
			if _, err := m.Token(context.Background()); err != nil {
				return false
			}

			wantCalls := int32(1)
			if elapsedSeconds >= ttlSeconds-60 {
				wantCalls = 2
			}
			return atomic.LoadInt32(&calls) == wantCalls
		},
		gen.IntRange(61, 86400),
		gen.IntRange(0, 90000),
	))

	properties.TestingRun(t)
}
