package domain

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the server configuration.
// It is assembled from defaults, an optional YAML file and the environment.
type Config struct {
	Env       string          `yaml:"env"`
	Debug     bool            `yaml:"debug"`
	AppName   string          `yaml:"app_name"`
	Transport TransportConfig `yaml:"transport"`
	Tools     ToolsConfig     `yaml:"tools"`
}

// TransportConfig defines transport settings.
// Specifies whether to use stdio or HTTP transport.
type TransportConfig struct {
	Type string     `yaml:"type"` // "stdio" or "http"
	HTTP HTTPConfig `yaml:"http,omitempty"`
}

// HTTPConfig defines HTTP transport settings.
// Only used when transport type is "http".
type HTTPConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	MountPath   string   `yaml:"mount_path"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// ToolsConfig defines the upstream services. Both are required.
type ToolsConfig struct {
	// Prefix is prepended to every tool name as "<prefix>_<name>" when set.
	Prefix string      `yaml:"prefix,omitempty"`
	Jira   *ToolConfig `yaml:"jira,omitempty"`
	Xray   *ToolConfig `yaml:"xray,omitempty"`
}

// ToolConfig defines configuration for a single upstream service.
type ToolConfig struct {
	BaseURL string      `yaml:"base_url"`
	Auth    *AuthConfig `yaml:"auth,omitempty"`
	// TokenTTL is the lifetime in seconds of tokens issued by the service.
	// Only used for client_credentials auth.
	TokenTTL int `yaml:"token_ttl,omitempty"`
}

// AuthConfig defines authentication settings.
type AuthConfig struct {
	Type         string `yaml:"type"` // "basic", "token" or "client_credentials"
	Username     string `yaml:"username,omitempty"`
	Password     string `yaml:"password,omitempty"`
	Token        string `yaml:"token,omitempty"`
	ClientID     string `yaml:"client_id,omitempty"`
	ClientSecret string `yaml:"client_secret,omitempty"`
}

// AuthType defines supported authentication methods.
type AuthType int

const (
	// BasicAuth uses username and password (or API token) authentication
	BasicAuth AuthType = iota
	// TokenAuth uses a static bearer token
	TokenAuth
	// ClientCredentialsAuth exchanges a client id and secret for a short-lived bearer token
	ClientCredentialsAuth
)

// String returns the string representation of AuthType.
func (a AuthType) String() string {
	switch a {
	case BasicAuth:
		return "basic"
	case TokenAuth:
		return "token"
	case ClientCredentialsAuth:
		return "client_credentials"
	default:
		return "unknown"
	}
}

// ParseAuthType converts a string to AuthType.
func ParseAuthType(s string) AuthType {
	switch s {
	case "basic":
		return BasicAuth
	case "token":
		return TokenAuth
	case "client_credentials":
		return ClientCredentialsAuth
	default:
		return BasicAuth
	}
}

const (
	defaultEnv         = "development"
	defaultAppName     = "Fabric Agent Server"
	defaultHost        = "127.0.0.1"
	defaultPort        = 8000
	defaultMountPath   = "/fabric"
	defaultCORSOrigins = "http://localhost:3000"

	// DefaultTokenTTL is the nominal lifetime of an Xray token.
	DefaultTokenTTL = 86400
)

// NewDefaultConfig returns a configuration with every optional value filled in.
func NewDefaultConfig() *Config {
	return &Config{
		Env:     defaultEnv,
		AppName: defaultAppName,
		Transport: TransportConfig{
			Type: "http",
			HTTP: HTTPConfig{
				Host:        defaultHost,
				Port:        defaultPort,
				MountPath:   defaultMountPath,
				CORSOrigins: splitList(defaultCORSOrigins),
			},
		},
	}
}

// LoadConfig builds the configuration from defaults, the YAML file at path
// (skipped when path is empty) and the process environment, then validates it.
func LoadConfig(path string) (*Config, error) {
	config := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("configuration file not found: %s", path)
			}
			return nil, fmt.Errorf("failed to read configuration file: %w", err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("invalid YAML syntax in configuration file: %w", err)
		}
	}

	if err := config.ApplyEnvironment(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// ApplyEnvironment overrides configuration values with environment variables.
// lookup is normally os.LookupEnv.
func (c *Config) ApplyEnvironment(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		if !ok {
			return "", false
		}
		return strings.TrimSpace(v), true
	}

	if v, ok := get("ENV"); ok && v != "" {
		c.Env = v
	}
	if v, ok := get("DEBUG"); ok {
		c.Debug = strings.ToLower(v) == "true"
	}
	if v, ok := get("APP_NAME"); ok && v != "" {
		c.AppName = v
	}
	if v, ok := get("MCP_TRANSPORT"); ok && v != "" {
		c.Transport.Type = v
	}
	if v, ok := get("HOST"); ok && v != "" {
		c.Transport.HTTP.Host = v
	}
	if v, ok := get("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT must be an integer: %q", v)
		}
		c.Transport.HTTP.Port = port
	}
	if v, ok := get("CORS_ORIGINS"); ok {
		c.Transport.HTTP.CORSOrigins = splitList(v)
	}
	if v, ok := get("MCP_TOOL_PREFIX"); ok {
		c.Tools.Prefix = v
	}

	jiraAuth := func() *AuthConfig {
		if c.Tools.Jira == nil {
			c.Tools.Jira = &ToolConfig{}
		}
		if c.Tools.Jira.Auth == nil {
			c.Tools.Jira.Auth = &AuthConfig{Type: "basic"}
		}
		return c.Tools.Jira.Auth
	}
	if v, ok := get("JIRA_BASE_URL"); ok {
		jiraAuth()
		c.Tools.Jira.BaseURL = v
	}
	if v, ok := get("JIRA_EMAIL"); ok {
		jiraAuth().Username = v
	}
	if v, ok := get("JIRA_API_TOKEN"); ok {
		jiraAuth().Password = v
	}

	xrayAuth := func() *AuthConfig {
		if c.Tools.Xray == nil {
			c.Tools.Xray = &ToolConfig{}
		}
		if c.Tools.Xray.Auth == nil {
			c.Tools.Xray.Auth = &AuthConfig{Type: "client_credentials"}
		}
		return c.Tools.Xray.Auth
	}
	if v, ok := get("XRAY_BASE_URL"); ok {
		xrayAuth()
		c.Tools.Xray.BaseURL = v
	}
	if v, ok := get("XRAY_CLIENT_ID"); ok {
		xrayAuth().ClientID = v
	}
	if v, ok := get("XRAY_CLIENT_SECRET"); ok {
		xrayAuth().ClientSecret = v
	}
	if v, ok := get("XRAY_TOKEN_TTL"); ok && v != "" {
		ttl, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("XRAY_TOKEN_TTL must be an integer number of seconds: %q", v)
		}
		xrayAuth()
		c.Tools.Xray.TokenTTL = ttl
	}

	return nil
}

// IsProduction reports whether the server runs in a production environment.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ToolName applies the configured prefix to a base tool name.
func (c *Config) ToolName(base string) string {
	if c.Tools.Prefix == "" {
		return base
	}
	return c.Tools.Prefix + "_" + base
}

// XrayTokenTTL returns the configured Xray token lifetime.
func (c *Config) XrayTokenTTL() time.Duration {
	if c.Tools.Xray == nil || c.Tools.Xray.TokenTTL <= 0 {
		return DefaultTokenTTL * time.Second
	}
	return time.Duration(c.Tools.Xray.TokenTTL) * time.Second
}

// Warnings returns non-fatal configuration concerns worth logging at startup.
func (c *Config) Warnings() []string {
	var warnings []string
	for _, origin := range c.Transport.HTTP.CORSOrigins {
		if origin == "*" {
			warnings = append(warnings, "CORS_ORIGINS is set to '*' (allow all origins). This is insecure and should not be used in production!")
			break
		}
	}
	return warnings
}

// Validate checks the configuration for completeness and correctness.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errors []string

	// Validate transport configuration
	if err := c.validateTransport(); err != nil {
		errors = append(errors, err.Error())
	}

	// Validate tools configuration
	if err := c.validateTools(); err != nil {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		return fmt.Errorf("validation errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// validateTransport validates the transport configuration.
func (c *Config) validateTransport() error {
	var errors []string

	// Check transport type is specified
	if c.Transport.Type == "" {
		errors = append(errors, "transport type is required")
	} else if c.Transport.Type != "stdio" && c.Transport.Type != "http" {
		errors = append(errors, fmt.Sprintf("invalid transport type '%s': must be 'stdio' or 'http'", c.Transport.Type))
	}

	// If HTTP transport, validate HTTP configuration
	if c.Transport.Type == "http" {
		if c.Transport.HTTP.Host == "" {
			errors = append(errors, "HTTP host is required when transport type is 'http'")
		}
		if c.Transport.HTTP.Port <= 0 || c.Transport.HTTP.Port > 65535 {
			errors = append(errors, fmt.Sprintf("invalid HTTP port %d: must be between 1 and 65535", c.Transport.HTTP.Port))
		}
		if c.Transport.HTTP.MountPath != "" && !strings.HasPrefix(c.Transport.HTTP.MountPath, "/") {
			errors = append(errors, fmt.Sprintf("HTTP mount_path '%s' must start with '/'", c.Transport.HTTP.MountPath))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("%s", strings.Join(errors, "; "))
	}

	return nil
}

// validateTools validates both upstream services. Each one is required.
func (c *Config) validateTools() error {
	var errors []string

	if c.Tools.Jira == nil {
		errors = append(errors, "Jira configuration is required (JIRA_BASE_URL, JIRA_EMAIL, JIRA_API_TOKEN)")
	} else if err := c.Tools.Jira.Validate("Jira", BasicAuth); err != nil {
		errors = append(errors, err.Error())
	}

	if c.Tools.Xray == nil {
		errors = append(errors, "Xray configuration is required (XRAY_BASE_URL, XRAY_CLIENT_ID, XRAY_CLIENT_SECRET)")
	} else if err := c.Tools.Xray.Validate("Xray", ClientCredentialsAuth); err != nil {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		return fmt.Errorf("%s", strings.Join(errors, "; "))
	}

	return nil
}

// Validate validates a single tool configuration. want is the only auth type
// the tool accepts.
func (tc *ToolConfig) Validate(toolName string, want AuthType) error {
	var errors []string

	// Check base URL is specified
	baseURL := strings.TrimSpace(tc.BaseURL)
	if baseURL == "" {
		errors = append(errors, fmt.Sprintf("%s base_url is required", toolName))
	} else {
		// Validate URL format
		parsedURL, err := url.Parse(baseURL)
		if err != nil {
			errors = append(errors, fmt.Sprintf("%s base_url is invalid: %v", toolName, err))
		} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			errors = append(errors, fmt.Sprintf("%s base_url must start with http:// or https://", toolName))
		} else if parsedURL.Host == "" {
			errors = append(errors, fmt.Sprintf("%s base_url must include a host", toolName))
		}
	}

	if tc.Auth == nil {
		errors = append(errors, fmt.Sprintf("%s auth is required", toolName))
	} else if err := tc.Auth.Validate(toolName); err != nil {
		errors = append(errors, err.Error())
	} else if ParseAuthType(tc.Auth.Type) != want {
		errors = append(errors, fmt.Sprintf("%s auth type must be '%s'", toolName, want))
	}

	if tc.TokenTTL < 0 {
		errors = append(errors, fmt.Sprintf("%s token_ttl must not be negative", toolName))
	}

	if len(errors) > 0 {
		return fmt.Errorf("%s", strings.Join(errors, "; "))
	}

	return nil
}

// Validate validates authentication configuration.
func (ac *AuthConfig) Validate(toolName string) error {
	var errors []string

	blank := func(s string) bool { return strings.TrimSpace(s) == "" }

	switch ac.Type {
	case "":
		errors = append(errors, fmt.Sprintf("%s auth type is required", toolName))
	case "basic":
		if blank(ac.Username) {
			errors = append(errors, fmt.Sprintf("%s username is required for basic auth", toolName))
		}
		if blank(ac.Password) {
			errors = append(errors, fmt.Sprintf("%s password is required for basic auth", toolName))
		}
	case "token":
		if blank(ac.Token) {
			errors = append(errors, fmt.Sprintf("%s token is required for token auth", toolName))
		}
	case "client_credentials":
		if blank(ac.ClientID) {
			errors = append(errors, fmt.Sprintf("%s client_id is required for client_credentials auth", toolName))
		}
		if blank(ac.ClientSecret) {
			errors = append(errors, fmt.Sprintf("%s client_secret is required for client_credentials auth", toolName))
		}
	default:
		errors = append(errors, fmt.Sprintf("%s auth type '%s' is invalid: must be 'basic', 'token' or 'client_credentials'", toolName, ac.Type))
	}

	if len(errors) > 0 {
		return fmt.Errorf("%s", strings.Join(errors, "; "))
	}

	return nil
}

// splitList splits a comma-separated list, dropping empty entries.
func splitList(csv string) []string {
	var out []string
	for _, p := range strings.Split(csv, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
