// Package config centralises runtime environment helpers for paygate services.
package config

import (
	"os"
	"strings"
)

// Environment identifies the runtime environment where paygate operates.
type Environment string

const (
	// EnvDev marks the development environment.
	EnvDev Environment = "dev"
	// EnvStaging marks the staging environment.
	EnvStaging Environment = "staging"
	// EnvProd marks the production environment.
	EnvProd Environment = "prod"
)

// TelemetryConfig configures OTLP exporters.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlpEndpoint"`
	ServiceName  string `yaml:"serviceName"`
}

// EnvironmentFromEnv resolves the runtime environment from PAYGATE_ENV,
// defaulting to prod.
func EnvironmentFromEnv() Environment {
	env := strings.ToLower(strings.TrimSpace(os.Getenv("PAYGATE_ENV")))
	switch Environment(env) {
	case EnvDev, EnvStaging, EnvProd:
		return Environment(env)
	}
	return EnvProd
}
