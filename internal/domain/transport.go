package domain

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Transport defines the interface for MCP transport mechanisms.
// Implementations handle communication between MCP clients and the server
// using either stdio or HTTP transport.
type Transport interface {
	// Start begins listening for incoming MCP messages.
	// Returns an error if the transport cannot be initialized.
	Start(ctx context.Context) error

	// Send transmits a JSON-RPC response to the client.
	// Returns an error if the response cannot be sent.
	Send(response *Response) error

	// Receive returns a channel for incoming JSON-RPC requests.
	// The channel is closed when the transport is shut down.
	Receive() <-chan *Request

	// Close gracefully shuts down the transport.
	// Returns an error if shutdown fails.
	Close() error
}

// StdioTransport implements Transport using stdin/stdout for communication.
// It reads newline-delimited JSON-RPC messages from stdin and writes
// responses to stdout.
type StdioTransport struct {
	reader  *bufio.Reader
	writer  *bufio.Writer
	reqChan chan *Request
	log     zerolog.Logger
	mu      sync.Mutex
	closed  bool
}

// NewStdioTransport creates a new StdioTransport on os.Stdin and os.Stdout.
func NewStdioTransport(log zerolog.Logger) *StdioTransport {
	return NewStdioTransportWithIO(os.Stdin, os.Stdout, log)
}

// NewStdioTransportWithIO creates a new StdioTransport with custom IO streams.
// This is primarily used for testing.
func NewStdioTransportWithIO(reader io.Reader, writer io.Writer, log zerolog.Logger) *StdioTransport {
	return &StdioTransport{
		reader:  bufio.NewReader(reader),
		writer:  bufio.NewWriter(writer),
		reqChan: make(chan *Request, 10),
		log:     log.With().Str("transport", "stdio").Logger(),
	}
}

// Start begins reading JSON-RPC messages from stdin.
func (t *StdioTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("transport is closed")
	}
	t.mu.Unlock()

	go t.readLoop(ctx)
	return nil
}

// readLoop continuously reads from stdin and parses JSON-RPC requests.
func (t *StdioTransport) readLoop(ctx context.Context) {
	defer close(t.reqChan)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := t.reader.ReadString('\n')
		if err != nil && line == "" {
			if !errors.Is(err, io.EOF) {
				t.log.Error().Err(err).Msg("read failed")
			}
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			if err != nil {
				return
			}
			continue
		}

		var req Request
		if jsonErr := json.Unmarshal([]byte(line), &req); jsonErr != nil {
			t.sendParseError(nil, jsonErr)
			continue
		}

		if req.JSONRPC != "2.0" {
			t.sendInvalidRequest(req.ID, "invalid jsonrpc version")
			continue
		}

		select {
		case t.reqChan <- &req:
		case <-ctx.Done():
			return
		}

		if err != nil {
			return
		}
	}
}

// Send writes a JSON-RPC response to stdout as a single line.
func (t *StdioTransport) Send(response *Response) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("transport is closed")
	}

	if response.JSONRPC == "" {
		response.JSONRPC = "2.0"
	}

	data, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}

	if _, err := t.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}

	// Flush to ensure immediate delivery
	if err := t.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush response: %w", err)
	}

	return nil
}

// Receive returns the channel for incoming JSON-RPC requests.
func (t *StdioTransport) Receive() <-chan *Request {
	return t.reqChan
}

// Close gracefully shuts down the transport.
func (t *StdioTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	// reqChan is closed by readLoop
	return nil
}

// sendParseError sends a parse error response.
func (t *StdioTransport) sendParseError(id interface{}, err error) {
	_ = t.Send(&Response{
		JSONRPC: "2.0",
		ID:      id,
		Error: &Error{
			Code:    ParseError,
			Message: "Parse error",
			Data:    err.Error(),
		},
	})
}

// sendInvalidRequest sends an invalid request error response.
func (t *StdioTransport) sendInvalidRequest(id interface{}, reason string) {
	_ = t.Send(&Response{
		JSONRPC: "2.0",
		ID:      id,
		Error: &Error{
			Code:    InvalidRequest,
			Message: "Invalid Request",
			Data:    reason,
		},
	})
}

// HTTPTransport implements Transport using HTTP with SSE for communication.
// It mounts two routes on a shared gin engine under mountPath:
//  1. GET  {mountPath}/mcp          SSE stream for server-to-client messages
//  2. POST {mountPath}/mcp/message  client-to-server messages for a session
type HTTPTransport struct {
	addr      string
	mountPath string
	engine    *gin.Engine
	server    *http.Server
	reqChan   chan *Request
	log       zerolog.Logger
	mu        sync.Mutex
	closed    bool
	// Session management for SSE connections
	sessions   map[string]*sseSession
	sessionsMu sync.RWMutex
}

// sseSession represents an active SSE connection
type sseSession struct {
	id          string
	messageChan chan *Response
	done        chan struct{}
	closeOnce   sync.Once
}

func (s *sseSession) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// NewHTTPTransport creates a new HTTPTransport serving engine on addr.
// Other routes (health, CORS) are expected to be registered on engine by the caller.
func NewHTTPTransport(addr, mountPath string, engine *gin.Engine, log zerolog.Logger) *HTTPTransport {
	return &HTTPTransport{
		addr:      addr,
		mountPath: strings.TrimRight(mountPath, "/"),
		engine:    engine,
		reqChan:   make(chan *Request, 64),
		log:       log.With().Str("transport", "http").Logger(),
		sessions:  make(map[string]*sseSession),
	}
}

// RegisterRoutes mounts the MCP endpoints on the engine.
func (t *HTTPTransport) RegisterRoutes() {
	t.engine.GET(t.mountPath+"/mcp", t.handleSSE)
	t.engine.POST(t.mountPath+"/mcp/message", t.handleMessage)
}

// Start mounts the MCP routes, binds the listener and serves in the background.
func (t *HTTPTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("transport is closed")
	}
	t.mu.Unlock()

	t.RegisterRoutes()

	ln, err := net.Listen("tcp", t.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", t.addr, err)
	}

	t.server = &http.Server{
		Handler:           t.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := t.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.log.Error().Err(err).Msg("http server stopped")
		}
	}()

	go func() {
		<-ctx.Done()
		_ = t.Close()
	}()

	t.log.Info().Str("addr", t.addr).Str("mount_path", t.mountPath).Msg("listening")
	return nil
}

// handleSSE opens an SSE session and streams responses routed to it.
func (t *HTTPTransport) handleSSE(c *gin.Context) {
	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	session := &sseSession{
		id:          uuid.NewString(),
		messageChan: make(chan *Response, 16),
		done:        make(chan struct{}),
	}

	t.sessionsMu.Lock()
	t.sessions[session.id] = session
	t.sessionsMu.Unlock()

	defer func() {
		t.sessionsMu.Lock()
		delete(t.sessions, session.id)
		t.sessionsMu.Unlock()
		session.close()
	}()

	// Tell the client where to post its messages
	fmt.Fprintf(w, "event: endpoint\ndata: %s/mcp/message?sessionId=%s\n\n", t.mountPath, session.id)
	w.Flush()

	t.log.Debug().Str("session_id", session.id).Str("remote", c.ClientIP()).Msg("sse session established")

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			t.log.Debug().Str("session_id", session.id).Msg("sse session disconnected")
			return
		case <-session.done:
			return
		case response := <-session.messageChan:
			data, err := json.Marshal(response)
			if err != nil {
				t.log.Error().Err(err).Str("session_id", session.id).Msg("failed to marshal response")
				continue
			}
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
			w.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			w.Flush()
		}
	}
}

// handleMessage accepts a JSON-RPC request for an existing session.
func (t *HTTPTransport) handleMessage(c *gin.Context) {
	sessionID := c.Query("sessionId")
	if sessionID == "" {
		c.String(http.StatusBadRequest, "Missing sessionId parameter")
		return
	}

	t.sessionsMu.RLock()
	session, exists := t.sessions[sessionID]
	t.sessionsMu.RUnlock()
	if !exists {
		c.String(http.StatusBadRequest, "Invalid session")
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.String(http.StatusBadRequest, "Failed to read request body")
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		t.sendErrorToSession(session, nil, ParseError, "Parse error", err.Error())
		c.Status(http.StatusAccepted)
		return
	}

	if req.JSONRPC != "2.0" {
		t.sendErrorToSession(session, req.ID, InvalidRequest, "Invalid Request", "invalid jsonrpc version")
		c.Status(http.StatusAccepted)
		return
	}
	req.SessionID = session.id

	// reqChan is closed under mu, so the send must happen under it too.
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		c.Status(http.StatusServiceUnavailable)
		return
	}
	accepted := false
	select {
	case t.reqChan <- &req:
		accepted = true
	default:
	}
	t.mu.Unlock()

	if !accepted {
		t.sendErrorToSession(session, req.ID, InternalError, "Internal error", "request queue full")
		c.Status(http.StatusServiceUnavailable)
		return
	}
	c.Status(http.StatusAccepted)
}

// sendErrorToSession sends an error response to a specific session.
func (t *HTTPTransport) sendErrorToSession(session *sseSession, id interface{}, code int, message string, data interface{}) {
	response := &Response{
		JSONRPC:   "2.0",
		ID:        id,
		SessionID: session.id,
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}

	select {
	case session.messageChan <- response:
	default:
		t.log.Warn().Str("session_id", session.id).Msg("session queue full, dropping error response")
	}
}

// Send delivers a response to the session named by response.SessionID, or to
// every active session when it is empty.
func (t *HTTPTransport) Send(response *Response) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("transport is closed")
	}
	t.mu.Unlock()

	if response.JSONRPC == "" {
		response.JSONRPC = "2.0"
	}

	t.sessionsMu.RLock()
	defer t.sessionsMu.RUnlock()

	if response.SessionID != "" {
		session, ok := t.sessions[response.SessionID]
		if !ok {
			return fmt.Errorf("session %s is gone", response.SessionID)
		}
		return t.deliver(session, response)
	}

	if len(t.sessions) == 0 {
		return fmt.Errorf("no active sessions")
	}
	for _, session := range t.sessions {
		_ = t.deliver(session, response)
	}
	return nil
}

func (t *HTTPTransport) deliver(session *sseSession, response *Response) error {
	select {
	case session.messageChan <- response:
		return nil
	case <-session.done:
		return fmt.Errorf("session %s is closed", session.id)
	default:
		t.log.Warn().Str("session_id", session.id).Msg("session queue full, dropping response")
		return fmt.Errorf("session %s queue full", session.id)
	}
}

// Receive returns the channel for incoming JSON-RPC requests.
func (t *HTTPTransport) Receive() <-chan *Request {
	return t.reqChan
}

// Close gracefully shuts down the HTTP server and all SSE sessions.
func (t *HTTPTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.reqChan)
	t.mu.Unlock()

	t.sessionsMu.Lock()
	for _, session := range t.sessions {
		session.close()
	}
	t.sessions = make(map[string]*sseSession)
	t.sessionsMu.Unlock()

	var err error
	if t.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = t.server.Shutdown(ctx)
	}

	return err
}
