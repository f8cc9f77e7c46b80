// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every variable name. Keys with an explicit tag fall
// back to the unprefixed name, so DATABASE_URL works as well as
// HOURA_DATABASE_URL.
const Prefix = "HOURA"

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Server settings.
type Server struct {
	Port                int           `envconfig:"PORT" default:"8080"`
	ReadTimeout         time.Duration `envconfig:"READ_TIMEOUT" default:"30s"`
	WriteTimeout        time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
	MaxRequestBodyBytes int64         `envconfig:"MAX_REQUEST_BODY_BYTES" default:"1048576"`
	LogLevel            string        `envconfig:"LOG_LEVEL" default:"info"`
}

// Store settings.
type Store struct {
	Backend     string `envconfig:"STORE" default:"memory"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	MaxConns    int32  `envconfig:"DB_MAX_CONNS" default:"10"`
}

// Agent settings for the proposal backend.
type Agent struct {
	OpenAIAPIKey    string        `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL   string        `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	Model           string        `envconfig:"AGENT_MODEL" default:"gpt-5.3-codex"`
	ProposerTimeout time.Duration `envconfig:"PROPOSER_TIMEOUT" default:"20s"`
}

// Auth settings. Identity is issued elsewhere; houra only verifies tokens.
type Auth struct {
	JWTSecret  string `envconfig:"JWT_SECRET"`
	JWTIssuer  string `envconfig:"JWT_ISSUER" default:"houra"`
	CronSecret string `envconfig:"CRON_SECRET"`
}

// Scheduler settings for autonomous runs.
type Scheduler struct {
	Enabled     bool          `envconfig:"SCHEDULER_ENABLED" default:"false"`
	Interval    time.Duration `envconfig:"SCHEDULER_INTERVAL" default:"15m"`
	Objective   string        `envconfig:"SCHEDULER_OBJECTIVE"`
	Concurrency int           `envconfig:"SCHEDULER_CONCURRENCY" default:"4"`
}

// Sync settings for the offline mutation queue.
type Sync struct {
	KafkaBrokers  string        `envconfig:"KAFKA_BROKERS"`
	KafkaTopic    string        `envconfig:"KAFKA_TOPIC" default:"houra.sync"`
	FlushInterval time.Duration `envconfig:"SYNC_FLUSH_INTERVAL" default:"1m"`
	MaxRetries    int           `envconfig:"SYNC_MAX_RETRIES" default:"5"`
}

// RateLimit settings for the run endpoint.
type RateLimit struct {
	Enabled bool    `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	RPS     float64 `envconfig:"RATE_LIMIT_RPS" default:"1"`
	Burst   int     `envconfig:"RATE_LIMIT_BURST" default:"5"`
}

// Telemetry settings.
type Telemetry struct {
	OTELEndpoint string  `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string  `envconfig:"OTEL_SERVICE_NAME" default:"houra"`
	Insecure     bool    `envconfig:"OTEL_INSECURE" default:"false"`
	SampleRatio  float64 `envconfig:"OTEL_SAMPLE_RATIO" default:"1"`
}

// Config holds all application configuration.
type Config struct {
	Server    Server
	Store     Store
	Agent     Agent
	Auth      Auth
	Scheduler Scheduler
	Sync      Sync
	RateLimit RateLimit
	Telemetry Telemetry
}

// Load reads a .env file if present, then the environment, then validates.
func Load() (Config, error) {
	// A missing .env is normal in production.
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads configuration from the process environment only.
func FromEnv() (Config, error) {
	var cfg Config
	groups := []any{
		&cfg.Server, &cfg.Store, &cfg.Agent, &cfg.Auth,
		&cfg.Scheduler, &cfg.Sync, &cfg.RateLimit, &cfg.Telemetry,
	}
	for _, g := range groups {
		if err := envconfig.Process(Prefix, g); err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present and consistent.
func (c Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case StoreMemory:
	case StorePostgres:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, errors.New("config: DATABASE_URL is required when HOURA_STORE=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: HOURA_STORE must be %q or %q, got %q", StoreMemory, StorePostgres, c.Store.Backend))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("config: HOURA_PORT %d is out of range", c.Server.Port))
	}
	if c.Server.MaxRequestBodyBytes <= 0 {
		errs = append(errs, errors.New("config: HOURA_MAX_REQUEST_BODY_BYTES must be positive"))
	}
	if c.Agent.ProposerTimeout <= 0 {
		errs = append(errs, errors.New("config: HOURA_PROPOSER_TIMEOUT must be positive"))
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, errors.New("config: HOURA_JWT_SECRET must be at least 32 bytes"))
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval < time.Minute {
		errs = append(errs, errors.New("config: HOURA_SCHEDULER_INTERVAL must be at least 1m"))
	}
	if c.Sync.MaxRetries <= 0 {
		errs = append(errs, errors.New("config: HOURA_SYNC_MAX_RETRIES must be positive"))
	}
	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0) {
		errs = append(errs, errors.New("config: rate limit rps and burst must be positive"))
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, errors.New("config: HOURA_OTEL_SAMPLE_RATIO must be within [0,1]"))
	}
	return errors.Join(errs...)
}

// GenerativeConfigured reports whether an OpenAI key is available.
func (c Config) GenerativeConfigured() bool { return c.Agent.OpenAIAPIKey != "" }

// SyncEnabled reports whether a Kafka upload sink is configured.
func (c Config) SyncEnabled() bool { return c.Sync.KafkaBrokers != "" }
