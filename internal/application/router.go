package application

import (
	"context"
	"fmt"

	"fabric-mcp-server/internal/domain"
)

// RequestRouter dispatches MCP tool requests to the appropriate ToolHandler.
// Each tool name advertised by a handler's ListTools is routed to that handler.
type RequestRouter struct {
	handlers []domain.ToolHandler
	tools    map[string]domain.ToolHandler
}

// NewRequestRouter creates a new RequestRouter with the provided handlers.
// Handlers are registered by every tool they advertise. A tool advertised
// twice is routed to the later handler.
func NewRequestRouter(handlers ...domain.ToolHandler) *RequestRouter {
	router := &RequestRouter{
		tools: make(map[string]domain.ToolHandler),
	}

	for _, handler := range handlers {
		router.handlers = append(router.handlers, handler)
		for _, tool := range handler.ListTools() {
			router.tools[tool.Name] = handler
		}
	}

	return router
}

// Route dispatches a tool request to the handler that advertises req.Name.
// Unknown tools fail with a MethodNotFound *domain.Error.
func (r *RequestRouter) Route(ctx context.Context, req *domain.ToolRequest) (*domain.ToolResponse, error) {
	handler, exists := r.tools[req.Name]
	if !exists {
		return nil, &domain.Error{
			Code:    domain.MethodNotFound,
			Message: fmt.Sprintf("unknown tool: %s", req.Name),
		}
	}

	return handler.Handle(ctx, req)
}

// ListAllTools aggregates tool definitions from all registered handlers in
// registration order. This is used for MCP tool discovery (tools/list method).
func (r *RequestRouter) ListAllTools() []domain.ToolDefinition {
	allTools := []domain.ToolDefinition{}
	for _, handler := range r.handlers {
		allTools = append(allTools, handler.ListTools()...)
	}
	return allTools
}
