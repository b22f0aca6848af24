package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fabric-mcp-server/internal/domain"
	"fabric-mcp-server/internal/logger"
)

const (
	// ProtocolVersion is the MCP revision this server speaks.
	ProtocolVersion = "2024-11-05"
	// ServerVersion is reported in the initialize handshake.
	ServerVersion = "1.0.0"
)

// Server is the main MCP server implementation.
// It orchestrates the transport layer and request routing, and implements
// the MCP protocol methods.
type Server struct {
	transport domain.Transport
	router    *RequestRouter
	mapper    domain.ResponseMapper
	config    *domain.Config
	log       zerolog.Logger

	inflight sync.WaitGroup
	done     chan struct{}
}

// NewServer creates a new MCP server instance.
func NewServer(
	transport domain.Transport,
	router *RequestRouter,
	mapper domain.ResponseMapper,
	config *domain.Config,
	log zerolog.Logger,
) *Server {
	return &Server{
		transport: transport,
		router:    router,
		mapper:    mapper,
		config:    config,
		log:       logger.Component(log, "mcp_server"),
		done:      make(chan struct{}),
	}
}

// Start begins the server operation.
// It starts the transport layer and begins processing incoming requests.
func (s *Server) Start(ctx context.Context) error {
	if err := s.transport.Start(ctx); err != nil {
		s.log.Error().Err(err).Str("transport_type", s.config.Transport.Type).Msg("failed to start transport")
		return fmt.Errorf("failed to start transport: %w", err)
	}

	s.log.Info().Str("transport_type", s.config.Transport.Type).Msg("server started")

	go s.processRequests(ctx)

	return nil
}

// processRequests serves every incoming request in its own goroutine so a
// slow upstream call never blocks the others.
func (s *Server) processRequests(ctx context.Context) {
	defer close(s.done)
	reqChan := s.transport.Receive()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("server shutting down")
			return
		case req, ok := <-reqChan:
			if !ok {
				// Channel closed, transport is shutting down
				return
			}

			s.inflight.Add(1)
			go func() {
				defer s.inflight.Done()
				s.handleRequest(ctx, req)
			}()
		}
	}
}

// Done is closed once the server stops taking requests, either because ctx
// was cancelled or because the transport closed its request channel.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until every request that has been picked up has been answered.
func (s *Server) Wait() {
	s.inflight.Wait()
}

// handleRequest processes a single JSON-RPC request.
func (s *Server) handleRequest(ctx context.Context, req *domain.Request) {
	log := s.log.With().
		Str("method", req.Method).
		Interface("request_id", req.ID).
		Str("call_id", uuid.NewString()).
		Logger()
	log.Info().Msg("received request")

	if err := s.validateRequest(req); err != nil {
		s.sendErrorResponse(req, domain.InvalidRequest, "Invalid Request", err.Error())
		return
	}

	// Notifications carry no id and expect no answer.
	if req.ID == nil && strings.HasPrefix(req.Method, "notifications/") {
		log.Debug().Msg("notification acknowledged")
		return
	}

	var response *domain.Response

	switch req.Method {
	case "initialize":
		response = s.handleInitialize(req)
	case "ping":
		response = &domain.Response{JSONRPC: "2.0", ID: req.ID, Result: map[string]interface{}{}}
	case "tools/list":
		response = s.handleToolsList(req)
	case "tools/call":
		response = s.handleToolsCall(ctx, log, req)
	default:
		s.sendErrorResponse(req, domain.MethodNotFound, "Method not found", fmt.Sprintf("unknown method: %s", req.Method))
		return
	}

	s.send(log, req, response)
}

// validateRequest validates the basic structure of a JSON-RPC request.
func (s *Server) validateRequest(req *domain.Request) error {
	if req.JSONRPC != "2.0" {
		return fmt.Errorf("invalid jsonrpc version: %s", req.JSONRPC)
	}

	if req.Method == "" {
		return fmt.Errorf("method is required")
	}

	return nil
}

// handleInitialize handles the MCP initialize method.
// This is the initial handshake between client and server.
func (s *Server) handleInitialize(req *domain.Request) *domain.Response {
	result := map[string]interface{}{
		"protocolVersion": ProtocolVersion,
		"capabilities": map[string]interface{}{
			"tools": map[string]interface{}{},
		},
		"serverInfo": map[string]interface{}{
			"name":    s.config.AppName,
			"version": ServerVersion,
		},
	}

	return &domain.Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  result,
	}
}

// handleToolsList handles the MCP tools/list method.
// Returns all available tools from registered handlers.
func (s *Server) handleToolsList(req *domain.Request) *domain.Response {
	return &domain.Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": s.router.ListAllTools(),
		},
	}
}

// handleToolsCall handles the MCP tools/call method.
// Protocol errors (*domain.Error) are returned as-is. Any other failure is
// reported as a generic internal error unless debug is enabled.
func (s *Server) handleToolsCall(ctx context.Context, log zerolog.Logger, req *domain.Request) *domain.Response {
	toolReq, err := s.parseToolRequest(req.Params)
	if err != nil {
		return s.errorResponse(req, &domain.Error{Code: domain.InvalidParams, Message: "Invalid params", Data: err.Error()})
	}

	toolResp, err := s.router.Route(ctx, toolReq)
	if err != nil {
		var rpcErr *domain.Error
		if errors.As(err, &rpcErr) {
			log.Warn().Err(err).Str("tool", toolReq.Name).Msg("tool call rejected")
			return s.errorResponse(req, rpcErr)
		}

		log.Error().Err(err).Str("tool", toolReq.Name).Msg("tool execution failed")
		if s.config.Debug {
			return s.errorResponse(req, s.mapper.MapError(err))
		}
		return s.errorResponse(req, &domain.Error{Code: domain.InternalError, Message: "Internal error"})
	}

	return &domain.Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  toolResp,
	}
}

// parseToolRequest parses the params field into a ToolRequest.
func (s *Server) parseToolRequest(params interface{}) (*domain.ToolRequest, error) {
	if params == nil {
		return nil, fmt.Errorf("params is required for tools/call")
	}

	// Convert params to JSON and back to ToolRequest
	// This handles both map[string]interface{} and already-parsed structs
	jsonData, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}

	var toolReq domain.ToolRequest
	if err := json.Unmarshal(jsonData, &toolReq); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tool request: %w", err)
	}

	if toolReq.Name == "" {
		return nil, fmt.Errorf("tool name is required")
	}

	if toolReq.Arguments == nil {
		toolReq.Arguments = make(map[string]interface{})
	}

	return &toolReq, nil
}

func (s *Server) errorResponse(req *domain.Request, rpcErr *domain.Error) *domain.Response {
	return &domain.Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Error:   rpcErr,
	}
}

// sendErrorResponse sends a JSON-RPC error response.
func (s *Server) sendErrorResponse(req *domain.Request, code int, message string, data interface{}) {
	s.send(s.log, req, s.errorResponse(req, &domain.Error{
		Code:    code,
		Message: message,
		Data:    data,
	}))
}

// send routes response back to the session req arrived on.
func (s *Server) send(log zerolog.Logger, req *domain.Request, response *domain.Response) {
	response.SessionID = req.SessionID
	if err := s.transport.Send(response); err != nil {
		log.Error().Err(err).Interface("request_id", req.ID).Msg("failed to send response")
	}
}

// Close gracefully shuts down the server.
func (s *Server) Close() error {
	s.log.Info().Msg("closing server")
	return s.transport.Close()
}
