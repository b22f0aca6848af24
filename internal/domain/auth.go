package domain

import (
	"encoding/base64"
	"fmt"
	"net/http"
)

// Tool identifiers used as credential keys.
const (
	ToolJira = "jira"
	ToolXray = "xray"
)

// Credentials stores authentication information for an upstream service.
type Credentials struct {
	Type         AuthType // BasicAuth, TokenAuth or ClientCredentialsAuth
	Username     string   // Used for basic auth
	Password     string   // Used for basic auth
	Token        string   // Used for token auth
	ClientID     string   // Used for client credentials auth
	ClientSecret string   // Used for client credentials auth
}

// NewBearerCredentials wraps an access token as TokenAuth credentials.
func NewBearerCredentials(token string) *Credentials {
	return &Credentials{Type: TokenAuth, Token: token}
}

// Apply sets the Authorization header on req. Client credentials are not
// presented directly; they are exchanged for a bearer token first.
func (c *Credentials) Apply(req *http.Request) {
	switch c.Type {
	case BasicAuth:
		auth := c.Username + ":" + c.Password
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(auth)))
	case TokenAuth:
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
}

// Transport wraps base so every request carries these credentials.
// A nil base means http.DefaultTransport.
func (c *Credentials) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &authenticatedTransport{base: base, credentials: c}
}

// AuthenticationManager holds the credentials of each configured upstream.
type AuthenticationManager struct {
	credentials map[string]*Credentials
}

// NewAuthenticationManager creates a new authentication manager keyed by tool name.
func NewAuthenticationManager(credentials map[string]*Credentials) *AuthenticationManager {
	return &AuthenticationManager{
		credentials: credentials,
	}
}

// NewAuthenticationManagerFromConfig creates an authentication manager from a configuration.
func NewAuthenticationManagerFromConfig(config *Config) *AuthenticationManager {
	credentials := make(map[string]*Credentials)

	if config.Tools.Jira != nil && config.Tools.Jira.Auth != nil {
		credentials[ToolJira] = credentialsFromAuthConfig(config.Tools.Jira.Auth)
	}

	if config.Tools.Xray != nil && config.Tools.Xray.Auth != nil {
		credentials[ToolXray] = credentialsFromAuthConfig(config.Tools.Xray.Auth)
	}

	return NewAuthenticationManager(credentials)
}

// credentialsFromAuthConfig converts an AuthConfig to Credentials.
func credentialsFromAuthConfig(authConfig *AuthConfig) *Credentials {
	return &Credentials{
		Type:         ParseAuthType(authConfig.Type),
		Username:     authConfig.Username,
		Password:     authConfig.Password,
		Token:        authConfig.Token,
		ClientID:     authConfig.ClientID,
		ClientSecret: authConfig.ClientSecret,
	}
}

// GetCredentials returns the validated credentials of tool.
func (am *AuthenticationManager) GetCredentials(tool string) (*Credentials, error) {
	if err := am.ValidateCredentials(tool); err != nil {
		return nil, err
	}
	return am.credentials[tool], nil
}

// validateCredentials validates a Credentials object.
func validateCredentials(creds *Credentials) error {
	if creds == nil {
		return fmt.Errorf("credentials cannot be nil")
	}

	switch creds.Type {
	case BasicAuth:
		if creds.Username == "" {
			return fmt.Errorf("username is required for basic authentication")
		}
		if creds.Password == "" {
			return fmt.Errorf("password is required for basic authentication")
		}
	case TokenAuth:
		if creds.Token == "" {
			return fmt.Errorf("token is required for token authentication")
		}
	case ClientCredentialsAuth:
		if creds.ClientID == "" || creds.ClientSecret == "" {
			return fmt.Errorf("client_id and client_secret are required for client credentials authentication")
		}
	default:
		return fmt.Errorf("invalid authentication type: %v", creds.Type)
	}

	return nil
}

// ValidateCredentials checks if credentials are properly configured for a tool.
func (am *AuthenticationManager) ValidateCredentials(tool string) error {
	creds, ok := am.credentials[tool]
	if !ok {
		return fmt.Errorf("no credentials configured for tool: %s", tool)
	}
	if err := validateCredentials(creds); err != nil {
		return fmt.Errorf("%s: %w", tool, err)
	}
	return nil
}

// authenticatedTransport is an http.RoundTripper that adds authentication headers.
type authenticatedTransport struct {
	base        http.RoundTripper
	credentials *Credentials
}

// RoundTrip implements http.RoundTripper by adding authentication headers to requests.
func (t *authenticatedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid modifying the original
	clonedReq := req.Clone(req.Context())
	t.credentials.Apply(clonedReq)
	return t.base.RoundTrip(clonedReq)
}

// CloseIdleConnections lets http.Client.CloseIdleConnections reach the pooled base transport.
func (t *authenticatedTransport) CloseIdleConnections() {
	if c, ok := t.base.(interface{ CloseIdleConnections() }); ok {
		c.CloseIdleConnections()
	}
}
