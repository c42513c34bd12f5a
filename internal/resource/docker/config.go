package docker

import (
	"time"

	"dockup-scheduler/internal/config"
)

// Config holds configuration for the Docker backend.
type Config struct {
	Project       string        // Compose project treated as the stack (COMPOSE_PROJECT_NAME)
	PullImages    bool          // Pull worker images that are not present locally
	StopTimeout   time.Duration // Grace period when deleting workers
	CleanOrphans  bool          // Remove workers left by a previous process on start
	ExtraHosts    []string      // Extra /etc/hosts entries for workers
	WorkerNetwork string        // Network for workers without a link (empty = daemon default)
}

// LoadConfigFromEnv loads backend configuration from environment variables.
func LoadConfigFromEnv() Config {
	return Config{
		Project:       config.GetEnv("COMPOSE_PROJECT_NAME", ""),
		PullImages:    config.GetBoolEnv("DOCKER_PULL_IMAGES", true),
		StopTimeout:   config.GetDurationEnv("DOCKER_STOP_TIMEOUT", 10*time.Second),
		CleanOrphans:  config.GetBoolEnv("DOCKER_CLEAN_ORPHANS", true),
		ExtraHosts:    config.GetListEnv("EXTRA_HOSTS"),
		WorkerNetwork: config.GetEnv("DOCKER_WORKER_NETWORK", ""),
	}
}
