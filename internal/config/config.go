// Package config provides configuration loading from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"dockup-scheduler/internal/apperrors"
)

// Supported resource backends.
const (
	BackendTutum  = "tutum"
	BackendDocker = "docker"
)

// ServiceConfig holds process-level configuration for the scheduler.
type ServiceConfig struct {
	Backend         string        // Resource backend: tutum or docker
	ServiceURI      string        // URI of the service this process runs as
	BackupSchedule  string        // Cadence of the backup cycle when no schedule file is given
	ScheduleFile    string        // Optional YAML file with scheduled jobs
	Port            string        // Admin API port
	MetricsPort     string        // Prometheus metrics port
	APIKey          string        // Bearer token for admin endpoints (empty disables auth)
	LogLevel        string        // debug, info, warn or error
	ShutdownTimeout time.Duration // Budget for cleanup after a signal
}

// LoadServiceConfig loads service configuration from environment variables.
// SERVICE_API_URI falls back to TUTUM_SERVICE_API_URI, which Tutum injects
// into every container it runs.
func LoadServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Backend:         strings.ToLower(GetEnv("BACKEND", BackendTutum)),
		ServiceURI:      GetEnv("SERVICE_API_URI", GetEnv("TUTUM_SERVICE_API_URI", "")),
		BackupSchedule:  GetEnv("BACKUP_SCHEDULE", "every 1m"),
		ScheduleFile:    GetEnv("SCHEDULE_FILE", ""),
		Port:            GetEnv("PORT", "8080"),
		MetricsPort:     GetEnv("METRICS_PORT", "9090"),
		APIKey:          GetSecretFile(GetEnv("API_KEY_FILE", "")),
		LogLevel:        strings.ToLower(GetEnv("LOG_LEVEL", "info")),
		ShutdownTimeout: GetDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

// Validate checks the settings every command needs.
func (c *ServiceConfig) Validate() error {
	switch c.Backend {
	case BackendTutum, BackendDocker:
	default:
		return apperrors.Validation("BACKEND", fmt.Sprintf("unknown backend %q (want %s or %s)", c.Backend, BackendTutum, BackendDocker))
	}
	if c.ServiceURI == "" {
		return apperrors.Validation("SERVICE_API_URI", "SERVICE_API_URI (or TUTUM_SERVICE_API_URI) is required")
	}
	return nil
}

// SlogLevel converts LogLevel into a slog level, defaulting to info.
func (c *ServiceConfig) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
