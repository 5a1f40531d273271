// Package config manages application configuration loading and validation.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	rootconfig "github.com/hostwell/paygate/config"
)

// ServerConfig controls the inbound webhook HTTP listener.
type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`
	// RatePerSecond throttles inbound deliveries; zero disables limiting.
	RatePerSecond float64 `yaml:"ratePerSecond"`
	RateBurst     int     `yaml:"rateBurst"`
}

// DatabaseConfig locates the claim ledger database.
type DatabaseConfig struct {
	DSN            string        `yaml:"dsn"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
	MigrationsPath string        `yaml:"migrationsPath"`
}

// ClaimsConfig tunes the claim coordinator.
type ClaimsConfig struct {
	// StaleAfter is the takeover window for abandoned processing claims.
	// The engine clamps values below its hard floor.
	StaleAfter time.Duration `yaml:"staleAfter"`
}

// WebhookConfig carries inbound delivery authentication settings.
type WebhookConfig struct {
	SigningSecret string `yaml:"signingSecret"`
}

// AppConfig is the full configuration tree for the paygate service.
type AppConfig struct {
	Environment rootconfig.Environment     `yaml:"environment"`
	Server      ServerConfig               `yaml:"server"`
	Database    DatabaseConfig             `yaml:"database"`
	Claims      ClaimsConfig               `yaml:"claims"`
	Webhook     WebhookConfig              `yaml:"webhook"`
	Telemetry   rootconfig.TelemetryConfig `yaml:"telemetry"`
}

// Default returns the default paygate configuration.
func Default() AppConfig {
	return AppConfig{
		Environment: rootconfig.EnvProd,
		Server: ServerConfig{
			Addr:              ":8085",
			ReadHeaderTimeout: 5 * time.Second,
			RatePerSecond:     50,
			RateBurst:         100,
		},
		Database: DatabaseConfig{
			DSN:            "",
			ConnectTimeout: 30 * time.Second,
			MigrationsPath: "db/migrations",
		},
		Claims: ClaimsConfig{
			StaleAfter: 10 * time.Minute,
		},
		Webhook: WebhookConfig{SigningSecret: ""},
		Telemetry: rootconfig.TelemetryConfig{
			OTLPEndpoint: "",
			ServiceName:  "paygate",
		},
	}
}

// LoadOrDefault reads the configuration file at path, layering environment
// overrides on top. It reports loadedFromFile=false when the file is absent
// and defaults were used.
func LoadOrDefault(ctx context.Context, path string) (AppConfig, bool, error) {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return AppConfig{}, false, fmt.Errorf("load config context: %w", ctx.Err())
		default:
		}
	}
	cfg := Default()
	loaded := false

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return AppConfig{}, false, fmt.Errorf("parse config %s: %w", path, err)
		}
		loaded = true
	case errors.Is(err, fs.ErrNotExist):
		// Defaults plus env overrides only.
	default:
		return AppConfig{}, false, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, loaded, err
	}
	return cfg, loaded, nil
}

// Validate rejects configurations the service cannot run with.
func (c AppConfig) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("config: server addr required")
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("config: database dsn required")
	}
	if strings.TrimSpace(c.Webhook.SigningSecret) == "" {
		return fmt.Errorf("config: webhook signing secret required")
	}
	if c.Claims.StaleAfter < 0 {
		return fmt.Errorf("config: claims staleAfter must not be negative")
	}
	return nil
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv("PAYGATE_ENV")); v != "" {
		cfg.Environment = rootconfig.Environment(strings.ToLower(v))
	}
	if v := strings.TrimSpace(os.Getenv("PAYGATE_ADDR")); v != "" {
		cfg.Server.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("PAYGATE_DATABASE_DSN")); v != "" {
		cfg.Database.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("PAYGATE_WEBHOOK_SECRET")); v != "" {
		cfg.Webhook.SigningSecret = v
	}
	if v := strings.TrimSpace(os.Getenv("PAYGATE_CLAIM_STALE_AFTER")); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			cfg.Claims.StaleAfter = dur
		}
	}
	if v := strings.TrimSpace(os.Getenv("PAYGATE_OTLP_ENDPOINT")); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
}
