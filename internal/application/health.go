package application

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"fabric-mcp-server/internal/domain"
	"fabric-mcp-server/internal/logger"
)

// HealthChecker probes upstream connectivity.
type HealthChecker interface {
	CheckJira(ctx context.Context) domain.HealthCheck
	CheckXray(ctx context.Context) domain.HealthCheck
}

// HealthHandler serves the liveness, readiness and combined health endpoints.
type HealthHandler struct {
	config  *domain.Config
	checker HealthChecker
	now     func() time.Time
	log     zerolog.Logger
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(config *domain.Config, checker HealthChecker, log zerolog.Logger) *HealthHandler {
	return &HealthHandler{
		config:  config,
		checker: checker,
		now:     time.Now,
		log:     logger.Component(log, "health"),
	}
}

// RegisterRoutes mounts the health endpoints on engine.
func (h *HealthHandler) RegisterRoutes(engine *gin.Engine) {
	engine.GET("/healthy", h.Healthy)

	api := engine.Group("/api")
	api.GET("/health", h.Health)
	api.GET("/health/ready", h.Ready)
	api.GET("/health/live", h.Live)
}

// Healthy is the plain process check.
func (h *HealthHandler) Healthy(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": domain.HealthStatusHealthy})
}

// Health probes both upstreams and reports "degraded" if either is not healthy.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx := c.Request.Context()

	report := domain.HealthReport{
		Status:      domain.HealthStatusHealthy,
		Timestamp:   h.now().UTC(),
		Environment: h.config.Env,
		Service:     h.config.AppName,
		Checks: map[string]domain.HealthCheck{
			domain.ToolJira: h.checker.CheckJira(ctx),
			domain.ToolXray: h.checker.CheckXray(ctx),
		},
	}

	for _, check := range report.Checks {
		if !check.Healthy() {
			report.Status = domain.HealthStatusDegraded
		}
	}

	c.JSON(http.StatusOK, report)
}

// Ready fails with 503 until both upstream base URLs are configured.
func (h *HealthHandler) Ready(c *gin.Context) {
	if !h.configured(h.config.Tools.Jira) || !h.configured(h.config.Tools.Xray) {
		h.log.Error().Msg("readiness check failed: missing configuration")
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "Service not ready: missing configuration"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Live always answers while the process serves HTTP.
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (h *HealthHandler) configured(tc *domain.ToolConfig) bool {
	return tc != nil && strings.TrimSpace(tc.BaseURL) != ""
}

// NewEngine builds the gin engine shared by the health endpoints and the MCP
// HTTP transport.
func NewEngine(config *domain.Config, log zerolog.Logger) *gin.Engine {
	if config.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(recovery(config, log))
	engine.Use(requestLogger(log))
	engine.Use(cors(config.Transport.HTTP.CORSOrigins))
	return engine
}

// recovery turns panics into a 500. Production responses omit the panic value.
func recovery(config *domain.Config, log zerolog.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		log.Error().Str("panic", fmt.Sprint(recovered)).Str("path", c.Request.URL.Path).Msg("unhandled error")

		body := gin.H{"detail": "Internal Server Error"}
		if !config.IsProduction() {
			body["error"] = fmt.Sprint(recovered)
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, body)
	})
}

func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("m", c.Request.Method).
			Str("p", c.Request.URL.Path).
			Int("s", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("http")
	}
}

// cors allows the configured origins with credentials, any method and any
// header. "*" allows every origin.
func cors(origins []string) gin.HandlerFunc {
	allowAll := false
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowAll || allowed[origin]) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")

			if c.Request.Method == http.MethodOptions {
				methods := c.GetHeader("Access-Control-Request-Method")
				if methods == "" {
					methods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
				}
				h.Set("Access-Control-Allow-Methods", methods)
				if headers := c.GetHeader("Access-Control-Request-Headers"); headers != "" {
					h.Set("Access-Control-Allow-Headers", headers)
				}
				h.Set("Access-Control-Max-Age", "600")
				c.AbortWithStatus(http.StatusOK)
				return
			}
		}
		c.Next()
	}
}
