package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"fabric-mcp-server/internal/domain"
	"fabric-mcp-server/internal/logger"
)

// HealthProbeTimeout bounds each upstream connectivity probe.
const HealthProbeTimeout = 5 * time.Second

// HealthProber checks that both upstreams are reachable with the configured
// credentials. It uses its own short-timeout client so probes never queue
// behind data calls.
type HealthProber struct {
	jiraURL   string
	jiraCreds *domain.Credentials
	xrayURL   string
	xrayCreds *domain.Credentials
	http      *HTTPClient
	log       zerolog.Logger
}

// NewHealthProber creates a prober for the given upstreams.
func NewHealthProber(jiraURL string, jiraCreds *domain.Credentials, xrayURL string, xrayCreds *domain.Credentials, log zerolog.Logger) *HealthProber {
	log = logger.Component(log, "health_prober")
	return &HealthProber{
		jiraURL:   strings.TrimRight(jiraURL, "/"),
		jiraCreds: jiraCreds,
		xrayURL:   strings.TrimRight(xrayURL, "/"),
		xrayCreds: xrayCreds,
		http:      NewHTTPClient(HealthProbeTimeout, nil, log),
		log:       log,
	}
}

// CheckJira probes GET /rest/api/3/serverInfo with basic auth.
func (p *HealthProber) CheckJira(ctx context.Context) domain.HealthCheck {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.jiraURL+"/rest/api/3/serverInfo", nil)
	if err != nil {
		return p.unhealthy("jira", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.jiraCreds != nil {
		p.jiraCreds.Apply(req)
	}
	return p.probe("jira", req)
}

// CheckXray probes POST /api/v2/authenticate with the client credentials.
func (p *HealthProber) CheckXray(ctx context.Context) domain.HealthCheck {
	var id, secret string
	if p.xrayCreds != nil {
		id, secret = p.xrayCreds.ClientID, p.xrayCreds.ClientSecret
	}
	body, err := json.Marshal(map[string]string{"client_id": id, "client_secret": secret})
	if err != nil {
		return p.unhealthy("xray", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.xrayURL+"/api/v2/authenticate", bytes.NewReader(body))
	if err != nil {
		return p.unhealthy("xray", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return p.probe("xray", req)
}

// Close releases the pooled HTTP connections.
func (p *HealthProber) Close() {
	p.http.Close()
}

func (p *HealthProber) probe(name string, req *http.Request) domain.HealthCheck {
	resp, err := p.http.Client().Do(req)
	if err != nil {
		return p.unhealthy(name, err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.log.Warn().Str("upstream", name).Int("status", resp.StatusCode).Msg("health check degraded")
		return domain.HealthCheck{Status: domain.HealthStatusDegraded, Message: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}
	return domain.HealthCheck{Status: domain.HealthStatusHealthy, Message: "Connected"}
}

func (p *HealthProber) unhealthy(name string, err error) domain.HealthCheck {
	p.log.Warn().Err(err).Str("upstream", name).Msg("health check failed")
	return domain.HealthCheck{Status: domain.HealthStatusUnhealthy, Message: err.Error()}
}
