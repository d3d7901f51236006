package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Config holds the configuration for the companion service.
// Environment variables are parsed with the CLARIO_ prefix,
// e.g. CLARIO_HTTP_PORT, CLARIO_GENAI_API_KEY.
type Config struct {
	// Build target selects the high-level environment: local, cloud-dev, cloud
	BuildTarget string `envconfig:"BUILD_TARGET" default:"local"`

	// Derived or override driver
	DBDriver string `envconfig:"DB_DRIVER" default:"auto"`

	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`

	// HTTP Configuration
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	// Storage
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"clario.db"`

	// Generative backend
	GenAIAPIKey string `envconfig:"GENAI_API_KEY" default:""`
	TextModel   string `envconfig:"TEXT_MODEL" default:"gemini-2.5-flash"`
	EmbedModel  string `envconfig:"EMBED_MODEL" default:"gemini-embedding-001"`

	// Conversation memory tuning
	SummaryTrigger int `envconfig:"SUMMARY_TRIGGER" default:"10"`
	MaxRecentTurns int `envconfig:"MAX_RECENT_TURNS" default:"8"`

	// Auth
	JWTSecret string `envconfig:"JWT_SECRET" default:""`

	// Health checking
	HealthProbeTimeoutSeconds int `envconfig:"HEALTH_PROBE_TIMEOUT_SECONDS" default:"2"`
	HealthIntervalSeconds     int `envconfig:"HEALTH_INTERVAL_SECONDS" default:"15"`
}

// ResolveDefaults validates BuildTarget and derives DBDriver when set to
// "auto" or empty.
func (c *Config) ResolveDefaults() error {
	var defaultDB string

	switch c.BuildTarget {
	case "local":
		defaultDB = "sqlite"
	case "cloud-dev", "cloud":
		defaultDB = "postgres"
	default:
		return fmt.Errorf("unsupported BUILD_TARGET: %s", c.BuildTarget)
	}

	if c.DBDriver == "" || c.DBDriver == "auto" {
		c.DBDriver = defaultDB
	}

	allowedDB := map[string]bool{"postgres": true, "sqlite": true}
	if !allowedDB[c.DBDriver] {
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}
	if c.DBDriver == "postgres" && c.PostgresDSN == "" {
		return fmt.Errorf("CLARIO_POSTGRES_DSN is required with DB_DRIVER=postgres")
	}
	if c.SummaryTrigger <= 0 {
		return fmt.Errorf("SUMMARY_TRIGGER must be positive")
	}
	if c.MaxRecentTurns <= 0 {
		return fmt.Errorf("MAX_RECENT_TURNS must be positive")
	}
	return nil
}

// New creates a new Config by parsing environment variables.
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("CLARIO", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("build_target", cfg.BuildTarget).
		Str("db_driver", cfg.DBDriver).
		Str("environment", string(cfg.Environment)).
		Int("port", cfg.HTTPPort).
		Str("text_model", cfg.TextModel).
		Str("embed_model", cfg.EmbedModel).
		Bool("postgres_dsn_present", cfg.PostgresDSN != "").
		Bool("genai_key_present", cfg.GenAIAPIKey != "").
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config specifically for testing.
func NewForTesting() *Config {
	return &Config{
		BuildTarget:               "local",
		DBDriver:                  "sqlite",
		Environment:               EnvTesting,
		HTTPPort:                  8080,
		SQLitePath:                ":memory:",
		TextModel:                 "gemini-2.5-flash",
		EmbedModel:                "gemini-embedding-001",
		SummaryTrigger:            10,
		MaxRecentTurns:            8,
		HealthProbeTimeoutSeconds: 2,
		HealthIntervalSeconds:     15,
	}
}

// IsTesting returns true if the environment is set to testing
func (c *Config) IsTesting() bool {
	return c.Environment == EnvTesting
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
