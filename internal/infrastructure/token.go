package infrastructure

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// TokenRefreshBuffer is subtracted from a token's lifetime so it is replaced
// before the upstream starts rejecting it.
const TokenRefreshBuffer = 60 * time.Second

// TokenFetcher obtains a fresh bearer token from the upstream.
type TokenFetcher func(ctx context.Context) (string, error)

type accessToken struct {
	value     string
	expiresAt time.Time
}

func (t *accessToken) validAt(now time.Time) bool {
	return t != nil && t.value != "" && now.Before(t.expiresAt)
}

// TokenManager caches a bearer token and refreshes it at most once per expiry,
// however many callers ask at the same time. Reads of a valid token take no lock.
type TokenManager struct {
	fetch TokenFetcher
	ttl   time.Duration
	now   func() time.Time
	log   zerolog.Logger

	mu      sync.Mutex
	current atomic.Pointer[accessToken]
}

// NewTokenManager creates a token manager. ttl is the nominal token lifetime
// reported by the upstream.
func NewTokenManager(fetch TokenFetcher, ttl time.Duration, log zerolog.Logger) *TokenManager {
	return &TokenManager{
		fetch: fetch,
		ttl:   ttl,
		now:   time.Now,
		log:   log,
	}
}

// Token returns a valid token, fetching a new one when none is cached or the
// cached one has reached its refresh point. Fetch errors are returned as-is
// and leave the previous state untouched.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	if tok := m.current.Load(); tok.validAt(m.now()) {
		return tok.value, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Another caller may have refreshed while we waited.
	if tok := m.current.Load(); tok.validAt(m.now()) {
		return tok.value, nil
	}

	m.log.Info().Msg("fetching new access token")
	value, err := m.fetch(ctx)
	if err != nil {
		m.log.Error().Err(err).Msg("failed to fetch access token")
		return "", err
	}

	expiresAt := m.now().Add(m.ttl - TokenRefreshBuffer)
	m.current.Store(&accessToken{value: value, expiresAt: expiresAt})
	m.log.Info().Time("expires_at", expiresAt).Msg("access token refreshed")
	return value, nil
}

// ExpiresAt returns the refresh point of the cached token, or the zero time.
func (m *TokenManager) ExpiresAt() time.Time {
	if tok := m.current.Load(); tok != nil {
		return tok.expiresAt
	}
	return time.Time{}
}
