package domain

import (
	"context"
)

// IssueGetter fetches a single normalized Jira issue.
type IssueGetter interface {
	// GetIssue validates issueKey and returns the normalized issue.
	// Failures are *ClientError values, except where documented otherwise.
	GetIssue(ctx context.Context, issueKey string) (*NormalizedIssue, error)
}

// TestCaseGetter fetches a single Xray test case.
type TestCaseGetter interface {
	// GetTestCase validates testCaseKey and returns the first matching test.
	// Token acquisition failures are returned unwrapped and are not *ClientError.
	GetTestCase(ctx context.Context, testCaseKey string) (*TestCase, error)
}
