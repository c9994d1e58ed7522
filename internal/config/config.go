package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	anthropicbackend "github.com/tributary-ai/diag-router/internal/backends/anthropic"
	openaibackend "github.com/tributary-ai/diag-router/internal/backends/openai"
	"github.com/tributary-ai/diag-router/internal/quality"
	"github.com/tributary-ai/diag-router/internal/routing"
	"github.com/tributary-ai/diag-router/internal/types"
)

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig                         `yaml:"server"`
	Router     RouterConfig                         `yaml:"router"`
	Providers  ProvidersConfig                      `yaml:"providers"`
	Backends   []types.BackendDescriptor            `yaml:"backends"`
	Classifier ClassifierConfig                     `yaml:"classifier"`
	Checklists map[types.Category]quality.Checklist `yaml:"checklists"`
	Logging    LoggingConfig                        `yaml:"logging"`
	Security   SecurityConfig                       `yaml:"security"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           string        `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
}

// RouterConfig holds orchestration configuration
type RouterConfig struct {
	// Per-attempt timeout for single-backend calls
	CallTimeout time.Duration `yaml:"call_timeout"`

	// Per-panel-member timeout for consensus calls
	ConsensusCallTimeout time.Duration `yaml:"consensus_call_timeout"`

	// Backends queried when the caller omits a panel
	ConsensusPanel []string `yaml:"consensus_panel"`

	// Failure-detection rule table; nil means the built-in rules
	FailureRules *routing.FailureRules `yaml:"failure_rules"`
}

// ProvidersConfig holds account-level settings per SDK
type ProvidersConfig struct {
	OpenAI    *openaibackend.Config    `yaml:"openai"`
	Anthropic *anthropicbackend.Config `yaml:"anthropic"`
}

// ClassifierConfig holds the keyword tables consumed by the complexity
// classifier. Empty lists fall back to the built-in vocabularies.
type ClassifierConfig struct {
	Vocabulary routing.Vocabulary         `yaml:"vocabulary"`
	Categories []routing.CategoryKeywords `yaml:"categories"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
	Output string `yaml:"output"` // "stdout", "stderr", or file path
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	APIKeys           []string        `yaml:"api_keys"`
	JWTSecret         string          `yaml:"jwt_secret"`
	RateLimiting      RateLimitConfig `yaml:"rate_limiting"`
	OpenAPIValidation bool            `yaml:"openapi_validation"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled        bool          `yaml:"enabled"`
	RequestsPerMin int           `yaml:"requests_per_minute"`
	BurstSize      int           `yaml:"burst_size"`
	WindowDuration time.Duration `yaml:"window_duration"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}
	config.setDefaults()

	if configPath != "" {
		if err := config.loadFromFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	config.loadFromEnv()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setDefaults sets default configuration values
func (c *Config) setDefaults() {
	c.Server = ServerConfig{
		Port:           "8080",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   180 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	c.Router = RouterConfig{
		CallTimeout:          120 * time.Second,
		ConsensusCallTimeout: 150 * time.Second,
		ConsensusPanel:       []string{"gpt-balanced", "claude-high", "gpt-high"},
	}

	c.Logging = LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}

	c.Security = SecurityConfig{
		APIKeys: []string{},
		RateLimiting: RateLimitConfig{
			Enabled:        false,
			RequestsPerMin: 60,
			BurstSize:      10,
			WindowDuration: time.Minute,
		},
	}

	c.Providers = ProvidersConfig{
		OpenAI:    &openaibackend.Config{Timeout: 120 * time.Second},
		Anthropic: &anthropicbackend.Config{Timeout: 120 * time.Second},
	}

	// Default backend catalogue. Declared order within a tier is the
	// tier priority order, fixed here once; routing never reorders it.
	c.Backends = []types.BackendDescriptor{
		{
			ID:            "gpt-fast",
			Provider:      "openai",
			Model:         "gpt-4o-mini",
			Tier:          types.TierFast,
			FallbackChain: []string{"claude-fast", "gpt-balanced"},
		},
		{
			ID:            "claude-fast",
			Provider:      "anthropic",
			Model:         "claude-3-haiku-20240307",
			Tier:          types.TierFast,
			FallbackChain: []string{"gpt-fast", "gpt-balanced"},
		},
		{
			ID:            "gpt-balanced",
			Provider:      "openai",
			Model:         "gpt-4o",
			Tier:          types.TierBalanced,
			FallbackChain: []string{"claude-high", "gpt-fast"},
		},
		{
			ID:            "claude-high",
			Provider:      "anthropic",
			Model:         "claude-3-5-sonnet-20241022",
			Tier:          types.TierHighCapability,
			FallbackChain: []string{"gpt-high", "gpt-balanced"},
		},
		{
			ID:            "gpt-high",
			Provider:      "openai",
			Model:         "gpt-4o",
			Tier:          types.TierHighCapability,
			FallbackChain: []string{"claude-high", "gpt-balanced"},
		},
	}

	c.Classifier = ClassifierConfig{
		Vocabulary: routing.DefaultVocabulary(),
		Categories: routing.DefaultCategories(),
	}

	c.Checklists = quality.DefaultChecklists()
}

// loadFromFile loads configuration from a YAML file
func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return nil
}

// loadFromEnv overrides configuration from environment variables
func (c *Config) loadFromEnv() {
	if port := os.Getenv("DIAG_ROUTER_PORT"); port != "" {
		c.Server.Port = port
	}

	if key := os.Getenv("OPENAI_API_KEY"); key != "" && c.Providers.OpenAI != nil {
		c.Providers.OpenAI.APIKey = key
	}

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && c.Providers.Anthropic != nil {
		c.Providers.Anthropic.APIKey = key
	}

	if level := os.Getenv("DIAG_ROUTER_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	if format := os.Getenv("DIAG_ROUTER_LOG_FORMAT"); format != "" {
		c.Logging.Format = format
	}
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if len(c.Backends) == 0 {
		return fmt.Errorf("at least one backend must be configured")
	}

	ids := make(map[string]bool, len(c.Backends))
	for _, b := range c.Backends {
		if b.ID == "" {
			return fmt.Errorf("backend with empty id")
		}
		if ids[b.ID] {
			return fmt.Errorf("duplicate backend id: %s", b.ID)
		}
		ids[b.ID] = true

		switch b.Provider {
		case "openai":
			if c.Providers.OpenAI == nil || c.Providers.OpenAI.APIKey == "" {
				return fmt.Errorf("backend %s requires an OpenAI API key", b.ID)
			}
		case "anthropic":
			if c.Providers.Anthropic == nil || c.Providers.Anthropic.APIKey == "" {
				return fmt.Errorf("backend %s requires an Anthropic API key", b.ID)
			}
		default:
			return fmt.Errorf("backend %s has unknown provider %q", b.ID, b.Provider)
		}
	}

	for _, id := range c.Router.ConsensusPanel {
		if !ids[id] {
			return fmt.Errorf("consensus panel references unknown backend %s", id)
		}
	}

	if c.Router.CallTimeout <= 0 {
		return fmt.Errorf("router call_timeout must be positive")
	}

	return nil
}

// SaveToFile saves the current configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
