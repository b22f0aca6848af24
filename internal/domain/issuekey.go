package domain

import "regexp"

// issueKeyPattern matches Jira/Xray keys such as PROJ-123.
var issueKeyPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]*-[0-9]+$`)

// IsValidIssueKey reports whether key is a well-formed issue key.
func IsValidIssueKey(key string) bool {
	if key == "" {
		return false
	}
	return issueKeyPattern.MatchString(key)
}

// ValidateIssueKey returns an InvalidInput error for malformed keys. label names
// the entity in the message ("issue key", "test case key").
//
// Keys are interpolated into upstream paths and JQL, so this check is the only
// escaping they receive.
func ValidateIssueKey(label, key string) error {
	if !IsValidIssueKey(key) {
		return NewInvalidInputError("Invalid %s format: %s", label, key)
	}
	return nil
}
