package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"fabric-mcp-server/internal/domain"
	"fabric-mcp-server/internal/logger"
)

// JiraClient fetches single issues from the Jira Cloud REST API v3 and
// normalizes them into domain.NormalizedIssue.
type JiraClient struct {
	baseURL string
	http    *HTTPClient
	errors  errorMapper
	log     zerolog.Logger
}

// NewJiraClient creates a new Jira API client.
// The baseURL should be the root URL of the Jira site (e.g., "https://example.atlassian.net").
// Every request carries creds as basic auth.
func NewJiraClient(baseURL string, creds *domain.Credentials, log zerolog.Logger) *JiraClient {
	log = logger.Component(log, "jira_client")
	return &JiraClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    NewHTTPClient(DefaultTimeout, creds.Transport, log),
		errors:  errorMapper{entity: "issue", service: "Jira"},
		log:     log,
	}
}

// jiraIssue is the subset of the issue resource the normalizer reads.
type jiraIssue struct {
	Key    string                 `json:"key"`
	ID     string                 `json:"id"`
	Self   string                 `json:"self"`
	Fields map[string]interface{} `json:"fields"`
}

// GetIssue retrieves a Jira issue by its key (e.g., "PROJ-123") together with
// the field metadata needed to name its custom fields.
// Every failure is a *domain.ClientError.
func (c *JiraClient) GetIssue(ctx context.Context, issueKey string) (*domain.NormalizedIssue, error) {
	if err := domain.ValidateIssueKey("issue key", issueKey); err != nil {
		c.log.Warn().Str("issue_key", issueKey).Msg("invalid issue key format")
		return nil, err
	}

	log := c.log.With().Str("issue_key", issueKey).Logger()
	log.Info().Msg("fetching jira issue")

	var issue jiraIssue
	if err := c.getJSON(ctx, fmt.Sprintf("%s/rest/api/3/issue/%s", c.baseURL, issueKey), &issue); err != nil {
		return nil, c.errors.mapError(log, issueKey, err)
	}

	log.Debug().Msg("fetching jira field metadata")
	var defs []domain.FieldDefinition
	if err := c.getJSON(ctx, c.baseURL+"/rest/api/3/field", &defs); err != nil {
		return nil, c.errors.mapError(log, issueKey, err)
	}

	result := normalizeIssue(&issue, domain.NewFieldNameMap(defs))
	log.Info().Int("custom_fields", len(result.AllFields)).Msg("fetched jira issue")
	return result, nil
}

// Close releases the pooled HTTP connections.
func (c *JiraClient) Close() {
	c.http.Close()
}

// getJSON performs an authenticated GET and decodes a 200 response into out.
// Non-200 responses are returned as domain.HTTPError.
func (c *JiraClient) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Client().Do(req)
	if err != nil {
		return &networkError{err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return domain.NewHTTPError(resp.StatusCode, http.StatusText(resp.StatusCode), string(body))
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// normalizeIssue assembles the stable issue contract from the raw resource.
func normalizeIssue(issue *jiraIssue, names domain.FieldNameMap) *domain.NormalizedIssue {
	fields := issue.Fields
	if fields == nil {
		fields = map[string]interface{}{}
	}

	result := &domain.NormalizedIssue{
		Key:         issue.Key,
		ID:          issue.ID,
		SelfURL:     issue.Self,
		Summary:     stringField(fields["summary"]),
		Description: fields["description"],
		Status:      nestedString(fields["status"], "name"),
		Priority:    nestedString(fields["priority"], "name"),
		Assignee:    domain.DefaultAssignee,
		Reporter:    nestedString(fields["reporter"], "displayName"),
		Created:     stringField(fields["created"]),
		Updated:     stringField(fields["updated"]),
		IssueType:   nestedString(fields["issuetype"], "name"),
		Project: domain.ProjectSummary{
			Key:  nestedString(fields["project"], "key"),
			Name: nestedString(fields["project"], "name"),
		},
		AllFields: buildAllFields(fields, names),
	}

	if name := nestedString(fields["assignee"], "displayName"); name != nil {
		result.Assignee = *name
	}

	// An absent labels field reads as empty; an explicit null stays null.
	if raw, ok := fields["labels"]; !ok {
		result.Labels = []interface{}{}
	} else if labels, ok := raw.([]interface{}); ok {
		result.Labels = labels
	}

	return result
}

func stringField(v interface{}) *string {
	if s, ok := v.(string); ok {
		return &s
	}
	return nil
}

func nestedString(v interface{}, key string) *string {
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	return stringField(obj[key])
}
