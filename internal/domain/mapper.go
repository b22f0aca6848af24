package domain

// ResponseMapper converts client results and failures to MCP tool responses.
type ResponseMapper interface {
	// MapToToolResponse converts a client result to MCP format.
	MapToToolResponse(result interface{}) (*ToolResponse, error)

	// MapToolError converts a domain failure into a tool-level error result
	// that carries the original message. ok is false for any other error.
	MapToolError(err error) (resp *ToolResponse, ok bool)

	// MapError converts an unexpected failure to a JSON-RPC error with full detail.
	MapError(err error) *Error
}
