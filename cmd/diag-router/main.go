package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/diag-router/internal/backends"
	anthropicbackend "github.com/tributary-ai/diag-router/internal/backends/anthropic"
	openaibackend "github.com/tributary-ai/diag-router/internal/backends/openai"
	"github.com/tributary-ai/diag-router/internal/config"
	"github.com/tributary-ai/diag-router/internal/consensus"
	"github.com/tributary-ai/diag-router/internal/middleware"
	"github.com/tributary-ai/diag-router/internal/orchestrator"
	"github.com/tributary-ai/diag-router/internal/quality"
	"github.com/tributary-ai/diag-router/internal/routing"
	"github.com/tributary-ai/diag-router/internal/security"
	"github.com/tributary-ai/diag-router/internal/server"
)

// Application represents the main application
type Application struct {
	config *config.Config
	server *server.Server
	logger *logrus.Logger
}

// NewApplication creates a new application instance
func NewApplication(configPath string) (*Application, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logrus.New()
	if err := setupLogger(logger, cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to setup logger: %w", err)
	}

	registry, err := buildRegistry(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build backend registry: %w", err)
	}

	classifier := routing.NewClassifier(cfg.Classifier.Vocabulary, cfg.Classifier.Categories)
	policy := routing.NewPolicy(registry, classifier, logger)
	executor := routing.NewExecutor(registry, cfg.Router.FailureRules, cfg.Router.CallTimeout, logger)
	aggregator := consensus.NewAggregator(registry, executor, cfg.Router.ConsensusCallTimeout, logger)

	orch, err := orchestrator.New(orchestrator.Config{
		Registry:     registry,
		Policy:       policy,
		Executor:     executor,
		Aggregator:   aggregator,
		Validator:    quality.NewValidator(logger),
		Scorer:       quality.NewScorer(cfg.Checklists),
		Checklists:   cfg.Checklists,
		DefaultPanel: cfg.Router.ConsensusPanel,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	serverInstance, err := server.NewServer(orch, toServerConfig(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create server: %w", err)
	}

	return &Application{
		config: cfg,
		server: serverInstance,
		logger: logger,
	}, nil
}

// Run starts the application
func (app *Application) Run() error {
	app.logger.Info("Starting diagnostic router")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		app.logger.WithField("address", ":"+app.config.Server.Port).Info("HTTP server starting")
		if err := app.server.Start(); err != nil {
			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		app.logger.WithField("signal", sig.String()).Info("Shutdown signal received")
	}

	app.logger.Info("Starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()

	if err := app.server.Stop(shutdownCtx); err != nil {
		app.logger.WithError(err).Error("Server shutdown error")
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	app.logger.Info("Graceful shutdown completed")
	return nil
}

// setupLogger configures the logger based on configuration
func setupLogger(logger *logrus.Logger, config config.LoggingConfig) error {
	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %s: %w", config.Level, err)
	}
	logger.SetLevel(level)

	switch config.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	default:
		return fmt.Errorf("invalid log format: %s", config.Format)
	}

	switch config.Output {
	case "stdout":
		logger.SetOutput(os.Stdout)
	case "stderr":
		logger.SetOutput(os.Stderr)
	default:
		file, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", config.Output, err)
		}
		logger.SetOutput(file)
	}

	return nil
}

// buildRegistry builds the backend catalogue and binds one invoker per
// configured descriptor.
func buildRegistry(cfg *config.Config, logger *logrus.Logger) (*backends.Registry, error) {
	registry, err := backends.NewRegistry(cfg.Backends, logger)
	if err != nil {
		return nil, err
	}

	bound := 0
	for _, d := range cfg.Backends {
		var invoker backends.Invoker
		switch d.Provider {
		case "openai":
			invoker = openaibackend.New(d.ID, d.Model, cfg.Providers.OpenAI, logger)
		case "anthropic":
			invoker = anthropicbackend.New(d.ID, d.Model, cfg.Providers.Anthropic, logger)
		default:
			return nil, fmt.Errorf("backend %s has unknown provider %q", d.ID, d.Provider)
		}
		if err := registry.Bind(invoker); err != nil {
			return nil, err
		}
		bound++
	}

	if bound == 0 {
		return nil, fmt.Errorf("no backends were bound - check your configuration and API keys")
	}

	logger.WithField("count", bound).Info("Backend binding completed")
	return registry, nil
}

// toServerConfig assembles the server configuration from the loaded file
func toServerConfig(cfg *config.Config) *server.Config {
	return &server.Config{
		Port:           cfg.Server.Port,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
		Auth: &security.Config{
			APIKeys:     cfg.Security.APIKeys,
			JWTSecret:   cfg.Security.JWTSecret,
			RequireAuth: len(cfg.Security.APIKeys) > 0 || cfg.Security.JWTSecret != "",
		},
		RateLimit: &security.RateLimitConfig{
			Enabled:           cfg.Security.RateLimiting.Enabled,
			RequestsPerMinute: cfg.Security.RateLimiting.RequestsPerMin,
			BurstSize:         cfg.Security.RateLimiting.BurstSize,
			WindowDuration:    cfg.Security.RateLimiting.WindowDuration,
		},
		Validate: &middleware.ValidationConfig{
			Enabled: cfg.Security.OpenAPIValidation,
		},
	}
}

// printUsage prints application usage information
func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\nOptions:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
	fmt.Fprintf(os.Stderr, "  OPENAI_API_KEY          OpenAI API key\n")
	fmt.Fprintf(os.Stderr, "  ANTHROPIC_API_KEY       Anthropic API key\n")
	fmt.Fprintf(os.Stderr, "  DIAG_ROUTER_PORT        Server port (default: 8080)\n")
	fmt.Fprintf(os.Stderr, "  DIAG_ROUTER_LOG_LEVEL   Log level (debug,info,warn,error,fatal)\n")
	fmt.Fprintf(os.Stderr, "  DIAG_ROUTER_LOG_FORMAT  Log format (json,text)\n")
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  %s --config configs/config.yaml\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  OPENAI_API_KEY=sk-xxx ANTHROPIC_API_KEY=sk-ant-xxx %s\n", os.Args[0])
}

func main() {
	var (
		configPath = flag.String("config", "", "Path to configuration file")
		showHelp   = flag.Bool("help", false, "Show help message")
		version    = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showHelp {
		printUsage()
		os.Exit(0)
	}

	if *version {
		fmt.Printf("Diagnostic Router v1.0.0\n")
		os.Exit(0)
	}

	app, err := NewApplication(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(1)
	}
}
