package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// DefaultResponseMapper is the default implementation of ResponseMapper.
type DefaultResponseMapper struct{}

// NewResponseMapper creates a new instance of DefaultResponseMapper.
func NewResponseMapper() ResponseMapper {
	return &DefaultResponseMapper{}
}

// MapToToolResponse renders result as indented JSON in a single text block.
func (m *DefaultResponseMapper) MapToToolResponse(result interface{}) (*ToolResponse, error) {
	if result == nil {
		return &ToolResponse{
			Content: []ContentBlock{
				{
					Type: "text",
					Text: "{}",
				},
			},
		}, nil
	}

	jsonBytes, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return &ToolResponse{
		Content: []ContentBlock{
			{
				Type: "text",
				Text: string(jsonBytes),
			},
		},
	}, nil
}

// MapToolError converts a ClientError into an isError tool result.
func (m *DefaultResponseMapper) MapToolError(err error) (*ToolResponse, bool) {
	ce, ok := AsClientError(err)
	if !ok {
		return nil, false
	}

	return &ToolResponse{
		Content: []ContentBlock{
			{
				Type: "text",
				Text: ce.Message,
			},
		},
		IsError: true,
	}, true
}

// MapError converts an error to JSON-RPC error format.
// HTTP status failures are mapped through the status code table.
func (m *DefaultResponseMapper) MapError(err error) *Error {
	if err == nil {
		return nil
	}

	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return mapHTTPError(httpErr)
	}

	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr
	}

	// Default to internal error for unknown error types
	return &Error{
		Code:    InternalError,
		Message: err.Error(),
	}
}

// HTTPError represents an HTTP error with status code and message.
// Clients use it for upstream calls that sit outside the domain taxonomy.
type HTTPError struct {
	StatusCode int
	Message    string
	Body       string
}

// Error implements the error interface for HTTPError.
func (e HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %d: %s - %s", e.StatusCode, e.Message, e.Body)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// NewHTTPError creates a new HTTPError with the given status code and message.
func NewHTTPError(statusCode int, message string, body string) HTTPError {
	return HTTPError{
		StatusCode: statusCode,
		Message:    message,
		Body:       body,
	}
}

// mapHTTPError maps HTTP status codes to JSON-RPC error codes.
func mapHTTPError(httpErr HTTPError) *Error {
	var code int
	var message string

	switch httpErr.StatusCode {
	case http.StatusUnauthorized:
		code = AuthenticationError
		message = "Authentication failed"
	case http.StatusForbidden:
		code = AuthenticationError
		message = "Access forbidden - insufficient permissions"
	case http.StatusNotFound:
		code = APIError
		message = "Resource not found"
	case http.StatusBadRequest:
		code = InvalidParams
		message = "Bad request - invalid parameters"
	case http.StatusTooManyRequests:
		code = RateLimitError
		message = "Rate limit exceeded"
	case http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		code = NetworkError
		message = http.StatusText(httpErr.StatusCode)
	default:
		if httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 {
			code = APIError
			message = fmt.Sprintf("Client error: %s", httpErr.Message)
		} else if httpErr.StatusCode >= 500 {
			code = APIError
			message = fmt.Sprintf("Server error: %s", httpErr.Message)
		} else {
			code = InternalError
			message = httpErr.Message
		}
	}

	// Include the original error details in the data field
	errorData := map[string]interface{}{
		"statusCode": httpErr.StatusCode,
		"message":    httpErr.Message,
	}
	if httpErr.Body != "" {
		errorData["body"] = httpErr.Body
	}

	return &Error{
		Code:    code,
		Message: message,
		Data:    errorData,
	}
}
