package domain

import (
	"context"
)

// ToolHandler processes requests for one upstream service.
// Jira and Xray each have their own handler.
type ToolHandler interface {
	// Handle processes an MCP tool call request.
	// Returns the tool response or an error if processing fails.
	Handle(ctx context.Context, req *ToolRequest) (*ToolResponse, error)

	// ListTools returns available tools for this handler.
	// Each tool represents a specific operation (e.g., get_jira_issue).
	ListTools() []ToolDefinition

	// ToolName returns the identifier for this handler.
	// This is used for logging and diagnostics.
	ToolName() string
}
