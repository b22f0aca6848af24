package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rs/zerolog"

	"fabric-mcp-server/internal/application"
	"fabric-mcp-server/internal/domain"
	"fabric-mcp-server/internal/infrastructure"
	"fabric-mcp-server/internal/logger"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "", "Path to an optional YAML configuration file")
	envFile := flag.String("env-file", "", "Path to a .env file (defaults to ./.env)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, *envFile); err != nil {
		fmt.Fprintf(os.Stderr, "fabric-mcp-server: %v\n", err)
		os.Exit(1)
	}
}

// run loads the environment and configuration, serves until ctx is cancelled
// or the transport closes, then shuts everything down.
func run(ctx context.Context, configPath, envFile string) error {
	report, envErr := domain.LoadEnvironment(ctx, envFile)

	config, err := domain.LoadConfig(configPath)
	if err != nil {
		return err
	}

	log := logger.New(config.Env, config.Debug)
	if envErr != nil {
		log.Warn().Err(envErr).Str("secret_id", report.SecretID).Msg("failed to load secrets from AWS Secrets Manager")
	} else if report.SecretID != "" {
		log.Info().Str("secret_id", report.SecretID).Int("applied", report.SecretsApplied).Msg("loaded secrets from AWS Secrets Manager")
	}
	if report.DotEnvFile != "" {
		log.Debug().Str("file", report.DotEnvFile).Msg("loaded env file")
	}
	for _, w := range config.Warnings() {
		log.Warn().Msg(w)
	}
	log.Info().Str("env", config.Env).Str("transport", config.Transport.Type).Msg("configuration loaded successfully")

	app, err := newApp(config, log, os.Stdin, os.Stdout)
	if err != nil {
		return err
	}
	defer app.close()

	if err := app.server.Start(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("initiating graceful shutdown")
	case <-app.server.Done():
		log.Info().Msg("transport closed")
	}

	if err := app.server.Close(); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}
	app.server.Wait()

	log.Info().Msg("server shutdown complete")
	return nil
}

// app holds everything built by the composition root.
type app struct {
	server *application.Server
	jira   *infrastructure.JiraClient
	xray   *infrastructure.XrayClient
	prober *infrastructure.HealthProber
	log    zerolog.Logger
}

// newApp wires clients, handlers, router and transport from config.
// stdin and stdout back the stdio transport.
func newApp(config *domain.Config, log zerolog.Logger, stdin io.Reader, stdout io.Writer) (*app, error) {
	authManager := domain.NewAuthenticationManagerFromConfig(config)

	jiraCreds, err := authManager.GetCredentials(domain.ToolJira)
	if err != nil {
		return nil, fmt.Errorf("jira credentials: %w", err)
	}
	xrayCreds, err := authManager.GetCredentials(domain.ToolXray)
	if err != nil {
		return nil, fmt.Errorf("xray credentials: %w", err)
	}

	a := &app{
		jira:   infrastructure.NewJiraClient(config.Tools.Jira.BaseURL, jiraCreds, log),
		xray:   infrastructure.NewXrayClient(config.Tools.Xray.BaseURL, xrayCreds, config.XrayTokenTTL(), log),
		prober: infrastructure.NewHealthProber(config.Tools.Jira.BaseURL, jiraCreds, config.Tools.Xray.BaseURL, xrayCreds, log),
		log:    log,
	}

	mapper := domain.NewResponseMapper()
	router := application.NewRequestRouter(
		application.NewJiraHandler(a.jira, mapper, config.ToolName(application.ToolGetJiraIssue), log),
		application.NewXrayHandler(a.xray, mapper, config.ToolName(application.ToolGetXrayTestCase), log),
	)
	for _, tool := range router.ListAllTools() {
		log.Info().Str("tool", tool.Name).Msg("tool registered")
	}

	var transport domain.Transport
	switch config.Transport.Type {
	case "stdio":
		transport = domain.NewStdioTransportWithIO(stdin, stdout, log)
	case "http":
		engine := application.NewEngine(config, log)
		application.NewHealthHandler(config, a.prober, log).RegisterRoutes(engine)
		addr := net.JoinHostPort(config.Transport.HTTP.Host, strconv.Itoa(config.Transport.HTTP.Port))
		transport = domain.NewHTTPTransport(addr, config.Transport.HTTP.MountPath, engine, log)
	default:
		return nil, fmt.Errorf("invalid transport type: %s", config.Transport.Type)
	}

	a.server = application.NewServer(transport, router, mapper, config, log)
	return a, nil
}

// close releases the upstream connection pools.
func (a *app) close() {
	a.jira.Close()
	a.xray.Close()
	a.prober.Close()
	a.log.Info().Msg("upstream clients closed")
}
