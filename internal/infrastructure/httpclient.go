package infrastructure

import (
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultTimeout bounds every upstream data call.
	DefaultTimeout = 30 * time.Second

	maxConnsPerHost     = 10
	maxIdleConnsPerHost = 5
)

// HTTPClient owns a single pooled *http.Client that is built on first use and
// reused until Close. Each API client holds its own HTTPClient.
type HTTPClient struct {
	timeout time.Duration
	wrap    func(http.RoundTripper) http.RoundTripper
	log     zerolog.Logger

	mu     sync.Mutex
	client *http.Client
}

// NewHTTPClient creates a lazy pooled client. wrap, when non-nil, decorates the
// pooled transport (e.g. to attach credentials).
func NewHTTPClient(timeout time.Duration, wrap func(http.RoundTripper) http.RoundTripper, log zerolog.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClient{
		timeout: timeout,
		wrap:    wrap,
		log:     log,
	}
}

// Client returns the pooled client, creating it if it is not open.
func (h *HTTPClient) Client() *http.Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.client == nil {
		var rt http.RoundTripper = newPooledTransport()
		if h.wrap != nil {
			rt = h.wrap(rt)
		}
		h.client = &http.Client{
			Timeout:   h.timeout,
			Transport: rt,
		}
	}
	return h.client
}

// IsOpen reports whether a client has been created and not yet closed.
func (h *HTTPClient) IsOpen() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.client != nil
}

// Close releases the pooled connections. It is a no-op when the client was
// never opened or is already closed; a later Client call opens a fresh one.
func (h *HTTPClient) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.client == nil {
		return
	}
	h.client.CloseIdleConnections()
	h.client = nil
	h.log.Info().Msg("http client closed")
}

func newPooledTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxConnsPerHost = maxConnsPerHost
	t.MaxIdleConnsPerHost = maxIdleConnsPerHost
	t.MaxIdleConns = maxIdleConnsPerHost
	return t
}
