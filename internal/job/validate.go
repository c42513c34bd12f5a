package job

import (
	"fmt"
	"path"
	"regexp"

	"dockup-scheduler/internal/apperrors"

	"github.com/distribution/reference"
)

// Validation limits
const (
	maxReplicas = 10
	maxEnvVars  = 128
	maxBindings = 64
)

var (
	// namePattern allows alphanumeric, hyphens, dots and underscores
	namePattern   = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)
	envKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// ApplyDefaults sets default values for unspecified description fields.
func ApplyDefaults(desc *Description) {
	if desc.TargetNumContainers == 0 {
		desc.TargetNumContainers = 1
	}
	if desc.Autodestroy == "" {
		desc.Autodestroy = AutodestroyOff
	}
}

// Validate validates a description. Does not modify it.
func Validate(desc *Description) error {
	if desc == nil {
		return apperrors.Validation("description", "description is required")
	}

	if desc.Image == "" {
		return apperrors.Validation("image", "image is required")
	}
	if _, err := reference.ParseNormalizedNamed(desc.Image); err != nil {
		return apperrors.Validation("image", fmt.Sprintf("invalid image reference %q: %v", desc.Image, err))
	}

	if desc.Name == "" {
		return apperrors.Validation("name", "name is required")
	}
	if !namePattern.MatchString(desc.Name) {
		return apperrors.Validation("name", "name must be alphanumeric (hyphens, dots and underscores allowed, cannot start with one)")
	}

	if desc.TargetNumContainers < 1 || desc.TargetNumContainers > maxReplicas {
		return apperrors.Validation("target_num_containers", fmt.Sprintf("target_num_containers must be between 1 and %d", maxReplicas))
	}

	switch desc.Autodestroy {
	case AutodestroyOff, AutodestroyAlways:
	default:
		return apperrors.Validation("autodestroy", fmt.Sprintf("autodestroy must be %s or %s, got %q", AutodestroyOff, AutodestroyAlways, desc.Autodestroy))
	}

	if len(desc.Bindings) > maxBindings {
		return apperrors.Validation("bindings", fmt.Sprintf("bindings exceed maximum of %d", maxBindings))
	}
	for i, b := range desc.Bindings {
		if err := validateBinding(i, b); err != nil {
			return err
		}
	}

	if len(desc.Env) > maxEnvVars {
		return apperrors.Validation("container_envvars", fmt.Sprintf("environment exceeds maximum of %d variables", maxEnvVars))
	}
	seen := make(map[string]struct{}, len(desc.Env))
	for _, e := range desc.Env {
		if !envKeyPattern.MatchString(e.Key) {
			return apperrors.Validation("container_envvars", fmt.Sprintf("invalid environment variable name %q", e.Key))
		}
		if _, dup := seen[e.Key]; dup {
			return apperrors.Validation("container_envvars", fmt.Sprintf("duplicate environment variable %q", e.Key))
		}
		seen[e.Key] = struct{}{}
	}

	if desc.LinkedTo != nil {
		if desc.LinkedTo.ToService == "" {
			return apperrors.Validation("linked_to_service", "linked service URI is required")
		}
		if desc.LinkedTo.Name == "" {
			return apperrors.Validation("linked_to_service", "link alias is required")
		}
	}

	return nil
}

func validateBinding(i int, b Binding) error {
	field := fmt.Sprintf("bindings[%d]", i)
	switch {
	case b.VolumesFrom != "" && (b.ContainerPath != "" || b.HostPath != "" || b.Volume != ""):
		return apperrors.Validation(field, "volumes_from cannot be combined with host_path, volume or container_path")
	case b.HostPath != "" && b.Volume != "":
		return apperrors.Validation(field, "host_path and volume are mutually exclusive")
	case b.VolumesFrom != "":
		return nil
	case b.ContainerPath == "":
		return apperrors.Validation(field, "container_path or volumes_from is required")
	case !path.IsAbs(b.ContainerPath):
		return apperrors.Validation(field, fmt.Sprintf("container_path %q must be absolute", b.ContainerPath))
	case b.HostPath != "" && !path.IsAbs(b.HostPath):
		return apperrors.Validation(field, fmt.Sprintf("host_path %q must be absolute", b.HostPath))
	}
	return nil
}
