package application

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fabric-mcp-server/internal/domain"
)

// mockHandler is a test implementation of ToolHandler
type mockHandler struct {
	name  string
	tools []domain.ToolDefinition
}

func (m *mockHandler) Handle(ctx context.Context, req *domain.ToolRequest) (*domain.ToolResponse, error) {
	// Simple mock implementation that echoes the tool name
	return &domain.ToolResponse{
		Content: []domain.ContentBlock{
			{
				Type: "text",
				Text: "Handled by " + m.name + ": " + req.Name,
			},
		},
	}, nil
}

func (m *mockHandler) ListTools() []domain.ToolDefinition {
	return m.tools
}

func (m *mockHandler) ToolName() string {
	return m.name
}

func newTestRouter() (*RequestRouter, *mockHandler, *mockHandler) {
	jira := &mockHandler{
		name:  "jira",
		tools: []domain.ToolDefinition{{Name: "get_jira_issue", Description: "Get Jira issue"}},
	}
	xray := &mockHandler{
		name:  "xray",
		tools: []domain.ToolDefinition{{Name: "get_xray_test_case", Description: "Get Xray test case"}},
	}
	return NewRequestRouter(jira, xray), jira, xray
}

func TestNewRequestRouter(t *testing.T) {
	router, jira, xray := newTestRouter()

	require.Len(t, router.handlers, 2)
	assert.Same(t, jira, router.tools["get_jira_issue"])
	assert.Same(t, xray, router.tools["get_xray_test_case"])
	assert.NotContains(t, router.tools, "jira", "handlers are not routable by their ToolName")
}

func TestRoute_ExactToolName(t *testing.T) {
	router, _, _ := newTestRouter()

	tests := map[string]string{
		"get_jira_issue":     "Handled by jira: get_jira_issue",
		"get_xray_test_case": "Handled by xray: get_xray_test_case",
	}

	for tool, want := range tests {
		resp, err := router.Route(context.Background(), &domain.ToolRequest{Name: tool})
		require.NoError(t, err)
		assert.Equal(t, want, resp.Content[0].Text)
	}
}

func TestRoute_PrefixedToolNames(t *testing.T) {
	jira := &mockHandler{name: "jira", tools: []domain.ToolDefinition{{Name: "pss_fabric_get_jira_issue"}}}
	router := NewRequestRouter(jira)

	resp, err := router.Route(context.Background(), &domain.ToolRequest{Name: "pss_fabric_get_jira_issue"})
	require.NoError(t, err)
	assert.Equal(t, "Handled by jira: pss_fabric_get_jira_issue", resp.Content[0].Text)

	_, err = router.Route(context.Background(), &domain.ToolRequest{Name: "get_jira_issue"})
	require.Error(t, err)
}

func TestRoute_UnknownTool(t *testing.T) {
	router, _, _ := newTestRouter()

	for _, name := range []string{"unknown_tool", "get", "jira", "get_jira_issue_extra", ""} {
		_, err := router.Route(context.Background(), &domain.ToolRequest{Name: name})
		require.Error(t, err, name)

		var rpcErr *domain.Error
		require.True(t, errors.As(err, &rpcErr), name)
		assert.Equal(t, domain.MethodNotFound, rpcErr.Code)
	}
}

func TestListAllTools_RegistrationOrder(t *testing.T) {
	router, _, _ := newTestRouter()

	tools := router.ListAllTools()
	require.Len(t, tools, 2)
	assert.Equal(t, "get_jira_issue", tools[0].Name)
	assert.Equal(t, "get_xray_test_case", tools[1].Name)
}

func TestListAllToolsEmptyRouter(t *testing.T) {
	router := NewRequestRouter()

	tools := router.ListAllTools()
	assert.NotNil(t, tools)
	assert.Empty(t, tools)
}
