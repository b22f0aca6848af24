package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"fabric-mcp-server/internal/domain"
	"fabric-mcp-server/internal/logger"
)

// getTestsQuery selects a test by JQL. The key is passed as a variable, never
// spliced into the query text.
const getTestsQuery = `query GetTest($jql: String!, $limit: Int!) {
	getTests(jql: $jql, limit: $limit) {
		total
		results {
			issueId
			projectId
			jira(fields: ["key", "summary", "description", "priority", "status", "labels"])
			testType {
				name
				kind
			}
			steps {
				id
				action
				data
				result
			}
			gherkin
			unstructured
		}
	}
}`

const getTestsLimit = 100

// XrayClient fetches test cases from the Xray Cloud GraphQL API. It exchanges
// its client credentials for a bearer token and refreshes it before expiry.
type XrayClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	http         *HTTPClient
	tokens       *TokenManager
	errors       errorMapper
	log          zerolog.Logger
}

// NewXrayClient creates a new Xray API client. tokenTTL is the lifetime Xray
// grants to issued tokens.
func NewXrayClient(baseURL string, creds *domain.Credentials, tokenTTL time.Duration, log zerolog.Logger) *XrayClient {
	log = logger.Component(log, "xray_client")
	c := &XrayClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     creds.ClientID,
		clientSecret: creds.ClientSecret,
		http:         NewHTTPClient(DefaultTimeout, nil, log),
		errors:       errorMapper{entity: "test case", service: "Xray"},
		log:          log,
	}
	c.tokens = NewTokenManager(c.authenticate, tokenTTL, log)
	return c
}

// GetTestCase retrieves the first test matching testCaseKey (e.g., "PROJ-42").
// Query failures are *domain.ClientError; token acquisition failures are
// returned unwrapped.
func (c *XrayClient) GetTestCase(ctx context.Context, testCaseKey string) (*domain.TestCase, error) {
	if err := domain.ValidateIssueKey("test case key", testCaseKey); err != nil {
		c.log.Warn().Str("test_case_key", testCaseKey).Msg("invalid test case key format")
		return nil, err
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	log := c.log.With().Str("test_case_key", testCaseKey).Logger()
	log.Info().Msg("fetching xray test case")

	var resp domain.GetTestsResponse
	if err := c.query(ctx, token, testCaseKey, &resp); err != nil {
		return nil, c.errors.mapError(log, testCaseKey, err)
	}

	if len(resp.Errors) > 0 && (resp.Data == nil || resp.Data.GetTests == nil) {
		log.Error().Str("graphql_error", resp.Errors[0].Message).Msg("graphql error fetching test case")
		return nil, domain.NewRuntimeError(nil, "Failed to fetch test case %s: %s", testCaseKey, resp.Errors[0].Message)
	}

	var results *domain.TestSearchResults
	if resp.Data != nil {
		results = resp.Data.GetTests
	}
	if results == nil || results.Total == 0 || len(results.Results) == 0 {
		log.Warn().Msg("test case not found")
		return nil, domain.NewNotFoundError("Test case %s not found", testCaseKey)
	}

	log.Info().Msg("fetched xray test case")
	test := results.Results[0]
	return &test, nil
}

// Close releases the pooled HTTP connections.
func (c *XrayClient) Close() {
	c.http.Close()
}

// authenticate exchanges the client credentials for a bearer token. The
// response body is the bare token, optionally JSON-quoted.
func (c *XrayClient) authenticate(ctx context.Context) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal credentials: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v2/authenticate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Client().Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to authenticate with Xray: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read authentication response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", domain.NewHTTPError(resp.StatusCode, "Failed to authenticate with Xray API", string(body))
	}

	return unquoteToken(string(body)), nil
}

func unquoteToken(raw string) string {
	token := strings.TrimSpace(raw)
	if len(token) >= 2 && strings.HasPrefix(token, `"`) && strings.HasSuffix(token, `"`) {
		token = token[1 : len(token)-1]
	}
	return token
}

// query posts the getTests query for testCaseKey and decodes a 200 response.
func (c *XrayClient) query(ctx context.Context, token, testCaseKey string, out *domain.GetTestsResponse) error {
	body, err := json.Marshal(domain.GraphQLRequest{
		Query: getTestsQuery,
		Variables: map[string]interface{}{
			"jql":   "key = " + testCaseKey,
			"limit": getTestsLimit,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v2/graphql", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	domain.NewBearerCredentials(token).Apply(req)

	resp, err := c.http.Client().Do(req)
	if err != nil {
		return &networkError{err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return domain.NewHTTPError(resp.StatusCode, http.StatusText(resp.StatusCode), string(respBody))
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

