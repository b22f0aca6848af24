package domain

import "time"

// Health statuses reported by the health endpoints.
const (
	HealthStatusHealthy   = "healthy"
	HealthStatusDegraded  = "degraded"
	HealthStatusUnhealthy = "unhealthy"
)

// HealthCheck is the outcome of probing one upstream.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Healthy reports whether the upstream answered with 200.
func (h HealthCheck) Healthy() bool {
	return h.Status == HealthStatusHealthy
}

// HealthReport is the body of the combined health endpoint.
type HealthReport struct {
	Status      string                 `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Environment string                 `json:"environment"`
	Service     string                 `json:"service"`
	Checks      map[string]HealthCheck `json:"checks"`
}
