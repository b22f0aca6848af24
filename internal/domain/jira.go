package domain

// DefaultAssignee is reported when an issue has no assignee.
const DefaultAssignee = "Unassigned"

// CanonicalFieldNames are the Jira field display names surfaced as top-level
// attributes of NormalizedIssue. They are left out of AllFields.
var CanonicalFieldNames = []string{
	"Summary",
	"Description",
	"Status",
	"Priority",
	"Assignee",
	"Reporter",
	"Created",
	"Updated",
	"Issue Type",
	"Project",
	"Labels",
}

// IsCanonicalFieldName reports whether name is one of CanonicalFieldNames.
// The comparison is case-sensitive.
func IsCanonicalFieldName(name string) bool {
	for _, n := range CanonicalFieldNames {
		if n == name {
			return true
		}
	}
	return false
}

// NormalizedIssue is the stable response contract of the get_jira_issue tool.
// Nullable attributes are pointers so they serialize as JSON null.
type NormalizedIssue struct {
	Key         string                 `json:"key"`
	ID          string                 `json:"id"`
	SelfURL     string                 `json:"self_url"`
	Summary     *string                `json:"summary"`
	Description interface{}            `json:"description"`
	Status      *string                `json:"status"`
	Priority    *string                `json:"priority"`
	Assignee    string                 `json:"assignee"`
	Reporter    *string                `json:"reporter"`
	Created     *string                `json:"created"`
	Updated     *string                `json:"updated"`
	IssueType   *string                `json:"issue_type"`
	Project     ProjectSummary         `json:"project"`
	Labels      []interface{}          `json:"labels"`
	AllFields   map[string]interface{} `json:"all_fields"`
}

// ProjectSummary is the project reference embedded in NormalizedIssue.
type ProjectSummary struct {
	Key  *string `json:"key"`
	Name *string `json:"name"`
}

// FieldDefinition is one entry of Jira's field-listing response.
type FieldDefinition struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FieldNameMap maps opaque field ids (e.g. customfield_10010) to display names.
type FieldNameMap map[string]string

// NewFieldNameMap builds a FieldNameMap from Jira field metadata.
func NewFieldNameMap(defs []FieldDefinition) FieldNameMap {
	m := make(FieldNameMap, len(defs))
	for _, d := range defs {
		m[d.ID] = d.Name
	}
	return m
}

// Resolve returns the display name for id, or id itself when unknown.
func (m FieldNameMap) Resolve(id string) string {
	if name, ok := m[id]; ok {
		return name
	}
	return id
}
