package tutum

import (
	"strings"
	"time"

	"dockup-scheduler/internal/config"
)

// Config holds configuration for the Tutum API client.
type Config struct {
	Host    string        // API base URL (e.g. https://dashboard.tutum.co)
	User    string        // Account name for ApiKey auth
	APIKey  string        // API key for ApiKey auth
	Auth    string        // Raw Authorization header; takes precedence over User/APIKey
	Timeout time.Duration // Per-request timeout

	BreakerThreshold int           // Consecutive API failures before calls fail fast
	BreakerCooldown  time.Duration // Time before a failing API is probed again
}

// LoadConfigFromEnv loads client configuration from environment variables.
// TUTUM_AUTH is injected by Tutum into services created with API roles.
func LoadConfigFromEnv() Config {
	return Config{
		Host:    strings.TrimSuffix(config.GetEnv("TUTUM_REST_HOST", "https://dashboard.tutum.co"), "/"),
		User:    config.GetEnv("TUTUM_USER", ""),
		APIKey:  config.GetSecretEnv("TUTUM_APIKEY"),
		Auth:    config.GetSecretEnv("TUTUM_AUTH"),
		Timeout: config.GetDurationEnv("TUTUM_TIMEOUT", 30*time.Second),

		BreakerThreshold: config.GetIntEnv("TUTUM_BREAKER_THRESHOLD", 5),
		BreakerCooldown:  config.GetDurationEnv("TUTUM_BREAKER_COOLDOWN", 30*time.Second),
	}
}

// authorization returns the Authorization header value, or "" if no
// credentials are configured.
func (c Config) authorization() string {
	if c.Auth != "" {
		return c.Auth
	}
	if c.User != "" && c.APIKey != "" {
		return "ApiKey " + c.User + ":" + c.APIKey
	}
	return ""
}
