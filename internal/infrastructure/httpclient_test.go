package infrastructure

import (
	"bytes"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_LazyAndReused(t *testing.T) {
	h := NewHTTPClient(5*time.Second, nil, zerolog.Nop())
	assert.False(t, h.IsOpen())

	c1 := h.Client()
	c2 := h.Client()
	assert.True(t, h.IsOpen())
	assert.Same(t, c1, c2)
	assert.Equal(t, 5*time.Second, c1.Timeout)

	tr, ok := c1.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 10, tr.MaxConnsPerHost)
	assert.Equal(t, 5, tr.MaxIdleConnsPerHost)
}

func TestHTTPClient_DefaultTimeout(t *testing.T) {
	h := NewHTTPClient(0, nil, zerolog.Nop())
	assert.Equal(t, DefaultTimeout, h.Client().Timeout)
}

func TestHTTPClient_WrapDecoratesTransport(t *testing.T) {
	var wrapped http.RoundTripper
	h := NewHTTPClient(time.Second, func(base http.RoundTripper) http.RoundTripper {
		wrapped = base
		return roundTripperFunc(base.RoundTrip)
	}, zerolog.Nop())

	c := h.Client()
	require.NotNil(t, wrapped)
	_, isPooled := wrapped.(*http.Transport)
	assert.True(t, isPooled)
	_, isFunc := c.Transport.(roundTripperFunc)
	assert.True(t, isFunc)
}

func TestHTTPClient_CloseOnlyWhenOpen(t *testing.T) {
	var buf bytes.Buffer
	h := NewHTTPClient(time.Second, nil, zerolog.New(&buf))

	h.Close()
	assert.Empty(t, buf.String(), "closing a never-opened client should not log")

	first := h.Client()
	h.Close()
	assert.False(t, h.IsOpen())
	assert.Contains(t, buf.String(), "http client closed")

	buf.Reset()
	h.Close()
	assert.Empty(t, buf.String(), "second close should be a no-op")

	second := h.Client()
	assert.NotSame(t, first, second)
}

func TestHTTPClient_ConcurrentFirstUse(t *testing.T) {
	h := NewHTTPClient(time.Second, nil, zerolog.Nop())

	const n = 20
	clients := make([]*http.Client, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			clients[i] = h.Client()
		}(i)
	}
	wg.Wait()

	for _, c := range clients {
		assert.Same(t, clients[0], c)
	}
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
