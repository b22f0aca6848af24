package infrastructure

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"fabric-mcp-server/internal/domain"
)

// networkError marks a failure to get any response from the upstream.
type networkError struct {
	err error
}

func (e *networkError) Error() string { return e.err.Error() }
func (e *networkError) Unwrap() error { return e.err }

// errorMapper translates request failures for one kind of entity into the
// domain taxonomy. entity is the lowercase noun ("issue"), service the
// upstream name used in credential hints ("Jira").
type errorMapper struct {
	entity  string
	service string
}

// mapError logs err and returns the matching *domain.ClientError.
func (m errorMapper) mapError(log zerolog.Logger, key string, err error) error {
	var httpErr domain.HTTPError
	var netErr *networkError

	switch {
	case errors.As(err, &httpErr):
		log.Error().Int("status", httpErr.StatusCode).Msgf("http error fetching %s", m.entity)
		switch httpErr.StatusCode {
		case http.StatusNotFound:
			return &domain.ClientError{Kind: domain.KindNotFound, Message: fmt.Sprintf("%s %s does not exist", capitalize(m.entity), key), Err: httpErr}
		case http.StatusUnauthorized:
			return &domain.ClientError{Kind: domain.KindPermissionDenied, Message: fmt.Sprintf("Authentication failed. Check %s credentials.", m.service), Err: httpErr}
		case http.StatusForbidden:
			return &domain.ClientError{Kind: domain.KindPermissionDenied, Message: fmt.Sprintf("Access forbidden to %s %s", m.entity, key), Err: httpErr}
		default:
			return domain.NewRuntimeError(httpErr, "Failed to fetch %s %s: HTTP %d", m.entity, key, httpErr.StatusCode)
		}
	case errors.As(err, &netErr):
		log.Error().Err(netErr.err).Msgf("network error fetching %s", m.entity)
		return domain.NewRuntimeError(netErr.err, "Network error fetching %s: %v", m.entity, netErr.err)
	default:
		log.Error().Err(err).Msgf("unexpected error fetching %s", m.entity)
		return domain.NewRuntimeError(err, "Unexpected error fetching %s: %v", m.entity, err)
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
