package application

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"fabric-mcp-server/internal/domain"
	"fabric-mcp-server/internal/logger"
)

// Base tool name for Xray operations. The configured prefix is applied on top.
const ToolGetXrayTestCase = "get_xray_test_case"

// XrayHandler implements ToolHandler for Xray operations.
type XrayHandler struct {
	client   domain.TestCaseGetter
	mapper   domain.ResponseMapper
	toolName string
	log      zerolog.Logger
}

// NewXrayHandler creates a new XrayHandler instance.
func NewXrayHandler(client domain.TestCaseGetter, mapper domain.ResponseMapper, toolName string, log zerolog.Logger) *XrayHandler {
	return &XrayHandler{
		client:   client,
		mapper:   mapper,
		toolName: toolName,
		log:      logger.Component(log, "xray_handler"),
	}
}

// ToolName returns the identifier for this handler.
func (h *XrayHandler) ToolName() string {
	return domain.ToolXray
}

// ListTools returns available tools for Xray operations.
func (h *XrayHandler) ListTools() []domain.ToolDefinition {
	return []domain.ToolDefinition{
		{
			Name:        h.toolName,
			Description: "Fetch an Xray test case by its key. Returns the test type, steps, gherkin or unstructured definition and core Jira fields.",
			InputSchema: domain.JSONSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"test_case_key": map[string]interface{}{
						"type":        "string",
						"description": "The Xray test case key (e.g., 'PROJ-123')",
					},
				},
				Required: []string{"test_case_key"},
			},
		},
	}
}

// Handle processes an Xray tool call.
func (h *XrayHandler) Handle(ctx context.Context, req *domain.ToolRequest) (*domain.ToolResponse, error) {
	if req.Arguments == nil {
		req.Arguments = make(map[string]interface{})
	}

	switch req.Name {
	case h.toolName:
		return h.handleGetTestCase(ctx, req.Arguments)
	default:
		return nil, &domain.Error{
			Code:    domain.MethodNotFound,
			Message: fmt.Sprintf("unknown Xray tool: %s", req.Name),
		}
	}
}

func (h *XrayHandler) handleGetTestCase(ctx context.Context, args map[string]interface{}) (*domain.ToolResponse, error) {
	testCaseKey, err := getStringParam(args, "test_case_key", true)
	if err != nil {
		return nil, err
	}

	testCase, err := h.client.GetTestCase(ctx, testCaseKey)
	if err != nil {
		return h.toolError(err)
	}

	return h.mapper.MapToToolResponse(testCase)
}

func (h *XrayHandler) toolError(err error) (*domain.ToolResponse, error) {
	if resp, ok := h.mapper.MapToolError(err); ok {
		h.log.Warn().Err(err).Str("tool", h.toolName).Msg("tool call failed")
		return resp, nil
	}
	h.log.Error().Err(err).Str("tool", h.toolName).Msg("unexpected error in tool call")
	return nil, err
}
