package job

import (
	"time"

	"dockup-scheduler/internal/config"
	"dockup-scheduler/internal/observability"

	"github.com/juju/clock"
)

// RunnerConfig bounds the poll-until-terminal loop. Zero values keep the
// unbounded fixed-interval behaviour.
type RunnerConfig struct {
	MaxPolls      int                    // Maximum state fetches (0 = unbounded)
	Timeout       time.Duration          // Maximum time spent polling (0 = unbounded)
	MaxBackoff    time.Duration          // Exponential backoff cap (0 = fixed interval)
	BackoffFactor float64                // Growth per poll when backing off (default 2)
	DeleteTimeout time.Duration          // Budget for the final delete (default 30s)
	Clock         clock.Clock            // Time source (default wall clock)
	Metrics       *observability.Metrics // Metrics recorder (optional)
}

// LoadRunnerConfigFromEnv loads poll bounds from environment variables.
func LoadRunnerConfigFromEnv() RunnerConfig {
	return RunnerConfig{
		MaxPolls:      config.GetIntEnv("POLL_MAX", 0),
		Timeout:       config.GetDurationEnv("POLL_TIMEOUT", 0),
		MaxBackoff:    config.GetDurationEnv("POLL_BACKOFF_MAX", 0),
		BackoffFactor: config.GetFloatEnv("POLL_BACKOFF_FACTOR", 0),
		DeleteTimeout: config.GetDurationEnv("DELETE_TIMEOUT", 30*time.Second),
	}
}
