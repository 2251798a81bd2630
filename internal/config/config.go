// Package config loads service configuration from environment variables.
// All variables use the CHATFORGE_ prefix and have sensible defaults for
// local development.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration for the service.
type Config struct {
	// Server
	Port    int
	Version string

	// Persistence
	DataDir string // empty disables snapshots

	// Telemetry
	TelemetryEnabled bool
	OTLPEndpoint     string
	ServiceName      string

	// Auth
	SessionVerifyURL   string // external session issuer's verify endpoint
	ServiceTokenSecret string // HMAC secret for service-to-service tokens
	AuthTimeout        time.Duration

	// Text generation provider
	ProviderEndpoint string
	ProviderModel    string
	ProviderAPIKey   string
	ProviderTimeout  time.Duration
}

// Load reads configuration from the environment.
func Load() *Config {
	return &Config{
		Port:    envInt("CHATFORGE_PORT", 8080),
		Version: envStr("CHATFORGE_VERSION", "dev"),

		DataDir: envStr("CHATFORGE_DATA_DIR", "./data"),

		TelemetryEnabled: envBool("CHATFORGE_TELEMETRY_ENABLED", false),
		OTLPEndpoint:     envStr("CHATFORGE_OTLP_ENDPOINT", "localhost:4317"),
		ServiceName:      envStr("CHATFORGE_SERVICE_NAME", "chatforge-core"),

		SessionVerifyURL:   envStr("CHATFORGE_SESSION_VERIFY_URL", ""),
		ServiceTokenSecret: envStr("CHATFORGE_SERVICE_TOKEN_SECRET", ""),
		AuthTimeout:        envDuration("CHATFORGE_AUTH_TIMEOUT", 5*time.Second),

		ProviderEndpoint: envStr("CHATFORGE_PROVIDER_ENDPOINT", "http://localhost:11434/v1"),
		ProviderModel:    envStr("CHATFORGE_PROVIDER_MODEL", "llama3.2"),
		ProviderAPIKey:   envStr("CHATFORGE_PROVIDER_API_KEY", ""),
		ProviderTimeout:  envDuration("CHATFORGE_PROVIDER_TIMEOUT", 60*time.Second),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
