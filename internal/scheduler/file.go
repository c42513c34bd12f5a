package scheduler

import (
	"errors"
	"fmt"
	"io"
	"os"

	"dockup-scheduler/internal/apperrors"
	"dockup-scheduler/internal/job"

	"gopkg.in/yaml.v3"
)

// Action names what a scheduled job does.
type Action string

const (
	ActionBackup        Action = "backup"
	ActionStartService  Action = "start-service"
	ActionCreateService Action = "create-service"
)

// File is a schedule file:
//
//	jobs:
//	  - name: nightly
//	    schedule: daily at 2:15
//	    action: backup
//	  - name: reporter
//	    schedule: every 1h
//	    action: start-service
//	    service: 2463a0c3-bacd-4195-8493-bcbb49681f4a
//	  - name: created
//	    schedule: "@daily"
//	    action: create-service
//	    service_spec:
//	      image: tutum.co/user/my-job
//	      name: created
//	      autodestroy: ALWAYS
type File struct {
	Jobs []JobSpec `yaml:"jobs"`
}

// JobSpec is one entry of a schedule file.
type JobSpec struct {
	Name     string           `yaml:"name"`
	Schedule string           `yaml:"schedule"`
	Action   Action           `yaml:"action"`
	Service  string           `yaml:"service"`      // Identifier or URI, for start-service
	Spec     *job.Description `yaml:"service_spec"` // For create-service
}

// LoadFile reads and validates a schedule file.
func LoadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open schedule file: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses a schedule file. Unknown keys anywhere in the document,
// including service options, are rejected.
func Decode(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file File
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, apperrors.Validation("jobs", "schedule file is empty")
		}
		return nil, apperrors.Validation("jobs", fmt.Sprintf("invalid schedule file: %v", err))
	}
	if err := file.Validate(); err != nil {
		return nil, err
	}
	return &file, nil
}

// Validate checks every job spec.
func (f *File) Validate() error {
	if len(f.Jobs) == 0 {
		return apperrors.Validation("jobs", "at least one job is required")
	}

	seen := make(map[string]struct{}, len(f.Jobs))
	for i, j := range f.Jobs {
		field := fmt.Sprintf("jobs[%d]", i)
		if j.Name == "" {
			return apperrors.Validation(field, "name is required")
		}
		if _, dup := seen[j.Name]; dup {
			return apperrors.Validation(field, fmt.Sprintf("duplicate job name %q", j.Name))
		}
		seen[j.Name] = struct{}{}

		if _, err := ParseCadence(j.Schedule); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}

		switch j.Action {
		case ActionBackup:
		case ActionStartService:
			if j.Service == "" {
				return apperrors.Validation(field, "service is required for start-service")
			}
		case ActionCreateService:
			if j.Spec == nil {
				return apperrors.Validation(field, "service_spec is required for create-service")
			}
			spec := *j.Spec
			job.ApplyDefaults(&spec)
			if err := job.Validate(&spec); err != nil {
				return fmt.Errorf("%s.service_spec: %w", field, err)
			}
		default:
			return apperrors.Validation(field, fmt.Sprintf("unknown action %q", j.Action))
		}
	}
	return nil
}
