package backup

import (
	"fmt"
	"time"

	"dockup-scheduler/internal/apperrors"
	"dockup-scheduler/internal/config"
)

// MountMode selects how a copy worker sees the target container's data.
type MountMode string

const (
	// MountBindings mounts the container's own bindings.
	MountBindings MountMode = "bindings"
	// MountVolumesFrom mounts every volume of the sibling service.
	MountVolumesFrom MountMode = "volumes_from"
)

// ErrorPolicy decides what a failed container does to the rest of a cycle.
type ErrorPolicy string

const (
	// PolicyContinue records the failure and moves to the next container.
	PolicyContinue ErrorPolicy = "continue"
	// PolicyAbort ends the cycle at the first failure.
	PolicyAbort ErrorPolicy = "abort"
)

// Config holds configuration for backup cycles.
type Config struct {
	ServiceURI    string        // Resource URI of the scheduler's own service
	BackupImage   string        // Image of the copy worker; containers running it are skipped
	DatabaseImage string        // Containers running this image get a dump first
	MountMode     MountMode     // How copy workers mount data (default bindings)
	ErrorPolicy   ErrorPolicy   // continue (default) or abort
	PollInterval  time.Duration // Delay between worker state checks
	Cooldown      time.Duration // Pause after each copy worker (0 disables)

	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSRegion          string
	Bucket             string
	Folder             string // Optional key prefix inside Bucket
	VerifyUploads      bool   // Check the bucket for a new object after each copy
}

// LoadConfigFromEnv loads backup configuration from environment variables.
// ServiceURI is left to the caller.
func LoadConfigFromEnv() Config {
	return Config{
		BackupImage:        config.GetEnv("BACKUP_IMAGE", "tutum.co/mhubig/dockup:latest"),
		DatabaseImage:      config.GetEnv("DATABASE_IMAGE", "tutum/postgresql"),
		MountMode:          MountMode(config.GetEnv("BACKUP_MOUNT_MODE", string(MountBindings))),
		ErrorPolicy:        ErrorPolicy(config.GetEnv("ERROR_POLICY", string(PolicyContinue))),
		PollInterval:       config.GetDurationEnv("POLL_INTERVAL", 10*time.Second),
		Cooldown:           config.GetDurationEnv("COOLDOWN", 30*time.Second),
		AWSAccessKeyID:     config.GetEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: config.GetSecretEnv("AWS_SECRET_ACCESS_KEY"),
		AWSRegion:          config.GetEnv("AWS_DEFAULT_REGION", "eu-central-1"),
		Bucket:             config.GetEnv("S3_BUCKET_NAME", ""),
		Folder:             config.GetEnv("S3_FOLDER", ""),
		VerifyUploads:      config.GetBoolEnv("VERIFY_UPLOADS", false),
	}
}

// Validate checks that a cycle can run with this configuration.
func (c *Config) Validate() error {
	required := []struct{ field, value string }{
		{"SERVICE_API_URI", c.ServiceURI},
		{"BACKUP_IMAGE", c.BackupImage},
		{"AWS_ACCESS_KEY_ID", c.AWSAccessKeyID},
		{"AWS_SECRET_ACCESS_KEY", c.AWSSecretAccessKey},
		{"S3_BUCKET_NAME", c.Bucket},
	}
	for _, r := range required {
		if r.value == "" {
			return apperrors.Validation(r.field, r.field+" is required")
		}
	}

	switch c.MountMode {
	case MountBindings, MountVolumesFrom:
	default:
		return apperrors.Validation("BACKUP_MOUNT_MODE", fmt.Sprintf("unknown mount mode %q", c.MountMode))
	}
	switch c.ErrorPolicy {
	case PolicyContinue, PolicyAbort:
	default:
		return apperrors.Validation("ERROR_POLICY", fmt.Sprintf("unknown error policy %q", c.ErrorPolicy))
	}
	if c.PollInterval <= 0 {
		return apperrors.Validation("POLL_INTERVAL", "poll interval must be positive")
	}
	return nil
}
