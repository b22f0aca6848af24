package domain

// TestCase is one element of Xray's getTests result list. Scalars are
// pointers so upstream nulls serialize back as null.
type TestCase struct {
	IssueID      *string                `json:"issueId"`
	ProjectID    *string                `json:"projectId"`
	Jira         map[string]interface{} `json:"jira"`
	TestType     *TestType              `json:"testType"`
	Steps        []TestStep             `json:"steps"`
	Gherkin      *string                `json:"gherkin"`
	Unstructured *string                `json:"unstructured"`
}

// TestType describes how a test is expressed (Manual, Cucumber, Generic).
type TestType struct {
	Name *string `json:"name"`
	Kind *string `json:"kind"`
}

// TestStep is a single manual test step. Order is preserved from the upstream.
type TestStep struct {
	ID     *string `json:"id"`
	Action *string `json:"action"`
	Data   *string `json:"data"`
	Result *string `json:"result"`
}

// TestSearchResults is the getTests payload of the GraphQL response.
type TestSearchResults struct {
	Total   int        `json:"total"`
	Results []TestCase `json:"results"`
}

// GraphQLRequest is the body posted to Xray's GraphQL endpoint.
type GraphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

// GraphQLError is one entry of a GraphQL "errors" array.
type GraphQLError struct {
	Message string `json:"message"`
}

// GetTestsResponse is the envelope returned for the getTests query.
type GetTestsResponse struct {
	Data *struct {
		GetTests *TestSearchResults `json:"getTests"`
	} `json:"data"`
	Errors []GraphQLError `json:"errors,omitempty"`
}
