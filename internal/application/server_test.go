package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fabric-mcp-server/internal/domain"
)

// mockTransport is a mock implementation of domain.Transport for testing.
type mockTransport struct {
	mu        sync.Mutex
	reqChan   chan *domain.Request
	responses []*domain.Response
	started   bool
	closed    bool
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		reqChan:   make(chan *domain.Request, 10),
		responses: make([]*domain.Response, 0),
	}
}

func (m *mockTransport) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
	return nil
}

func (m *mockTransport) Send(response *domain.Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, response)
	return nil
}

func (m *mockTransport) Receive() <-chan *domain.Request {
	return m.reqChan
}

func (m *mockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	close(m.reqChan)
	return nil
}

func (m *mockTransport) sendRequest(req *domain.Request) {
	m.reqChan <- req
}

func (m *mockTransport) getLastResponse() *domain.Response {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.responses) == 0 {
		return nil
	}
	return m.responses[len(m.responses)-1]
}

func (m *mockTransport) getAllResponses() []*domain.Response {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*domain.Response, len(m.responses))
	copy(result, m.responses)
	return result
}

// mockToolHandler is a mock implementation of domain.ToolHandler for testing.
type mockToolHandler struct {
	name     string
	tools    []domain.ToolDefinition
	response *domain.ToolResponse
	err      error
	block    chan struct{}
}

func (m *mockToolHandler) Handle(ctx context.Context, req *domain.ToolRequest) (*domain.ToolResponse, error) {
	if m.block != nil {
		<-m.block
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

func (m *mockToolHandler) ListTools() []domain.ToolDefinition {
	return m.tools
}

func (m *mockToolHandler) ToolName() string {
	return m.name
}

func newJiraMock() *mockToolHandler {
	return &mockToolHandler{
		name: "jira",
		tools: []domain.ToolDefinition{
			{
				Name:        "get_jira_issue",
				Description: "Get a Jira issue",
				InputSchema: domain.JSONSchema{
					Type: "object",
					Properties: map[string]interface{}{
						"issue_key": map[string]interface{}{"type": "string"},
					},
					Required: []string{"issue_key"},
				},
			},
		},
		response: &domain.ToolResponse{
			Content: []domain.ContentBlock{{Type: "text", Text: "Issue retrieved"}},
		},
	}
}

// createTestServer creates a server with mock dependencies for testing.
func createTestServer(handler *mockToolHandler, debug bool) (*Server, *mockTransport) {
	transport := newMockTransport()
	config := domain.NewDefaultConfig()
	config.Debug = debug
	config.Transport.Type = "stdio"

	server := NewServer(transport, NewRequestRouter(handler), domain.NewResponseMapper(), config, zerolog.Nop())
	return server, transport
}

func callRequest(id int, name string, args map[string]interface{}) *domain.Request {
	return &domain.Request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  "tools/call",
		Params: map[string]interface{}{
			"name":      name,
			"arguments": args,
		},
	}
}

func TestHandleInitialize(t *testing.T) {
	server, transport := createTestServer(newJiraMock(), false)

	server.handleRequest(context.Background(), &domain.Request{JSONRPC: "2.0", ID: 1, Method: "initialize"})

	resp := transport.getLastResponse()
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)

	result := resp.Result.(map[string]interface{})
	assert.Equal(t, "2024-11-05", result["protocolVersion"])
	assert.Equal(t, map[string]interface{}{"name": "Fabric Agent Server", "version": "1.0.0"}, result["serverInfo"])
}

func TestHandleToolsList(t *testing.T) {
	server, transport := createTestServer(newJiraMock(), false)

	server.handleRequest(context.Background(), &domain.Request{JSONRPC: "2.0", ID: 2, Method: "tools/list"})

	resp := transport.getLastResponse()
	require.NotNil(t, resp)
	tools := resp.Result.(map[string]interface{})["tools"].([]domain.ToolDefinition)
	require.Len(t, tools, 1)
	assert.Equal(t, "get_jira_issue", tools[0].Name)
}

func TestHandlePing(t *testing.T) {
	server, transport := createTestServer(newJiraMock(), false)

	server.handleRequest(context.Background(), &domain.Request{JSONRPC: "2.0", ID: 9, Method: "ping"})

	resp := transport.getLastResponse()
	require.NotNil(t, resp)
	assert.Nil(t, resp.Error)
	assert.Equal(t, map[string]interface{}{}, resp.Result)
}

func TestNotificationsGetNoResponse(t *testing.T) {
	server, transport := createTestServer(newJiraMock(), false)

	server.handleRequest(context.Background(), &domain.Request{JSONRPC: "2.0", Method: "notifications/initialized"})

	assert.Empty(t, transport.getAllResponses())
}

func TestHandleToolsCall_Success(t *testing.T) {
	server, transport := createTestServer(newJiraMock(), false)

	server.handleRequest(context.Background(), callRequest(3, "get_jira_issue", map[string]interface{}{"issue_key": "PROJ-1"}))

	resp := transport.getLastResponse()
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)
	assert.Equal(t, "Issue retrieved", resp.Result.(*domain.ToolResponse).Content[0].Text)
}

func TestHandleToolsCall_MissingParams(t *testing.T) {
	server, transport := createTestServer(newJiraMock(), false)

	server.handleRequest(context.Background(), &domain.Request{JSONRPC: "2.0", ID: 4, Method: "tools/call"})

	resp := transport.getLastResponse()
	require.NotNil(t, resp.Error)
	assert.Equal(t, domain.InvalidParams, resp.Error.Code)
}

func TestHandleToolsCall_MissingToolName(t *testing.T) {
	server, transport := createTestServer(newJiraMock(), false)

	server.handleRequest(context.Background(), &domain.Request{
		JSONRPC: "2.0", ID: 5, Method: "tools/call",
		Params: map[string]interface{}{"arguments": map[string]interface{}{}},
	})

	resp := transport.getLastResponse()
	require.NotNil(t, resp.Error)
	assert.Equal(t, domain.InvalidParams, resp.Error.Code)
	assert.Equal(t, "tool name is required", resp.Error.Data)
}

func TestHandleToolsCall_UnknownTool(t *testing.T) {
	server, transport := createTestServer(newJiraMock(), false)

	server.handleRequest(context.Background(), callRequest(6, "jira_delete_everything", nil))

	resp := transport.getLastResponse()
	require.NotNil(t, resp.Error)
	assert.Equal(t, domain.MethodNotFound, resp.Error.Code)
	assert.Equal(t, "unknown tool: jira_delete_everything", resp.Error.Message)
}

func TestHandleToolsCall_ProtocolErrorPassesThrough(t *testing.T) {
	handler := newJiraMock()
	handler.err = &domain.Error{Code: domain.InvalidParams, Message: "missing required parameter: issue_key"}
	server, transport := createTestServer(handler, false)

	server.handleRequest(context.Background(), callRequest(7, "get_jira_issue", nil))

	resp := transport.getLastResponse()
	require.NotNil(t, resp.Error)
	assert.Equal(t, domain.InvalidParams, resp.Error.Code)
	assert.Equal(t, "missing required parameter: issue_key", resp.Error.Message)
}

func TestHandleToolsCall_UnexpectedErrorIsMasked(t *testing.T) {
	handler := newJiraMock()
	handler.err = domain.NewHTTPError(500, "Failed to authenticate with Xray API", "secret detail")
	server, transport := createTestServer(handler, false)

	server.handleRequest(context.Background(), callRequest(8, "get_jira_issue", nil))

	resp := transport.getLastResponse()
	require.NotNil(t, resp.Error)
	assert.Equal(t, domain.InternalError, resp.Error.Code)
	assert.Equal(t, "Internal error", resp.Error.Message)
	assert.Nil(t, resp.Error.Data)
}

func TestHandleToolsCall_UnexpectedErrorDetailInDebug(t *testing.T) {
	handler := newJiraMock()
	handler.err = domain.NewHTTPError(401, "Failed to authenticate with Xray API", "")
	server, transport := createTestServer(handler, true)

	server.handleRequest(context.Background(), callRequest(8, "get_jira_issue", nil))

	resp := transport.getLastResponse()
	require.NotNil(t, resp.Error)
	assert.Equal(t, domain.AuthenticationError, resp.Error.Code)
	assert.Equal(t, "Authentication failed", resp.Error.Message)
}

func TestHandleUnknownMethod(t *testing.T) {
	server, transport := createTestServer(newJiraMock(), false)

	server.handleRequest(context.Background(), &domain.Request{JSONRPC: "2.0", ID: 10, Method: "resources/list"})

	resp := transport.getLastResponse()
	require.NotNil(t, resp.Error)
	assert.Equal(t, domain.MethodNotFound, resp.Error.Code)
}

func TestHandleRequest_InvalidJSONRPC(t *testing.T) {
	server, transport := createTestServer(newJiraMock(), false)

	server.handleRequest(context.Background(), &domain.Request{JSONRPC: "1.0", ID: 11, Method: "tools/list"})

	resp := transport.getLastResponse()
	require.NotNil(t, resp.Error)
	assert.Equal(t, domain.InvalidRequest, resp.Error.Code)
}

func TestResponsesKeepSessionID(t *testing.T) {
	server, transport := createTestServer(newJiraMock(), false)

	server.handleRequest(context.Background(), &domain.Request{JSONRPC: "2.0", ID: 12, Method: "tools/list", SessionID: "s-1"})
	server.handleRequest(context.Background(), &domain.Request{JSONRPC: "2.0", ID: 13, Method: "nope", SessionID: "s-2"})

	responses := transport.getAllResponses()
	require.Len(t, responses, 2)
	assert.Equal(t, "s-1", responses[0].SessionID)
	assert.Equal(t, "s-2", responses[1].SessionID)
}

func TestServer_SlowCallDoesNotBlockOthers(t *testing.T) {
	slow := newJiraMock()
	slow.block = make(chan struct{})
	server, transport := createTestServer(slow, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, server.Start(ctx))

	transport.sendRequest(callRequest(1, "get_jira_issue", map[string]interface{}{"issue_key": "PROJ-1"}))
	transport.sendRequest(&domain.Request{JSONRPC: "2.0", ID: 2, Method: "tools/list"})

	require.Eventually(t, func() bool {
		resp := transport.getLastResponse()
		return resp != nil && resp.ID == 2
	}, time.Second, 10*time.Millisecond)

	close(slow.block)
	require.Eventually(t, func() bool {
		return len(transport.getAllResponses()) == 2
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, server.Close())
	server.Wait()
}

func TestServerStartFailure(t *testing.T) {
	transport := &failingTransport{mockTransport: newMockTransport()}
	config := domain.NewDefaultConfig()
	server := NewServer(transport, NewRequestRouter(), domain.NewResponseMapper(), config, zerolog.Nop())

	err := server.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errStartFailed))
}

var errStartFailed = errors.New("bind failed")

type failingTransport struct {
	*mockTransport
}

func (f *failingTransport) Start(ctx context.Context) error {
	return errStartFailed
}
