package application

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"fabric-mcp-server/internal/domain"
	"fabric-mcp-server/internal/logger"
)

// Base tool name for Jira operations. The configured prefix is applied on top.
const ToolGetJiraIssue = "get_jira_issue"

// JiraHandler implements ToolHandler for Jira operations.
// It routes MCP tool calls to the IssueGetter and transforms responses
// using the ResponseMapper.
type JiraHandler struct {
	client   domain.IssueGetter
	mapper   domain.ResponseMapper
	toolName string
	log      zerolog.Logger
}

// NewJiraHandler creates a new JiraHandler instance.
// toolName is the published name of the get-issue tool, prefix included.
func NewJiraHandler(client domain.IssueGetter, mapper domain.ResponseMapper, toolName string, log zerolog.Logger) *JiraHandler {
	return &JiraHandler{
		client:   client,
		mapper:   mapper,
		toolName: toolName,
		log:      logger.Component(log, "jira_handler"),
	}
}

// ToolName returns the identifier for this handler.
func (h *JiraHandler) ToolName() string {
	return domain.ToolJira
}

// ListTools returns available tools for Jira operations.
func (h *JiraHandler) ListTools() []domain.ToolDefinition {
	return []domain.ToolDefinition{
		{
			Name:        h.toolName,
			Description: "Fetch a Jira issue by its key with all fields including custom fields. Returns the issue details with custom field names resolved.",
			InputSchema: domain.JSONSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"issue_key": map[string]interface{}{
						"type":        "string",
						"description": "The Jira issue key (e.g., 'PROJ-123')",
					},
				},
				Required: []string{"issue_key"},
			},
		},
	}
}

// Handle processes a Jira tool call.
func (h *JiraHandler) Handle(ctx context.Context, req *domain.ToolRequest) (*domain.ToolResponse, error) {
	if req.Arguments == nil {
		req.Arguments = make(map[string]interface{})
	}

	switch req.Name {
	case h.toolName:
		return h.handleGetIssue(ctx, req.Arguments)
	default:
		return nil, &domain.Error{
			Code:    domain.MethodNotFound,
			Message: fmt.Sprintf("unknown Jira tool: %s", req.Name),
		}
	}
}

// handleGetIssue handles the get_jira_issue tool call.
func (h *JiraHandler) handleGetIssue(ctx context.Context, args map[string]interface{}) (*domain.ToolResponse, error) {
	issueKey, err := getStringParam(args, "issue_key", true)
	if err != nil {
		return nil, err
	}

	issue, err := h.client.GetIssue(ctx, issueKey)
	if err != nil {
		return h.toolError(err)
	}

	return h.mapper.MapToToolResponse(issue)
}

// toolError turns domain failures into an isError result the agent can read.
// Anything else is logged and returned for the server to mask.
func (h *JiraHandler) toolError(err error) (*domain.ToolResponse, error) {
	if resp, ok := h.mapper.MapToolError(err); ok {
		h.log.Warn().Err(err).Str("tool", h.toolName).Msg("tool call failed")
		return resp, nil
	}
	h.log.Error().Err(err).Str("tool", h.toolName).Msg("unexpected error in tool call")
	return nil, err
}
