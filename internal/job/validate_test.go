package job

import (
	"errors"
	"strings"
	"testing"

	"dockup-scheduler/internal/apperrors"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() *Description {
		d := &Description{Image: "tutum/postgresql", Name: "dockup-dump-db"}
		ApplyDefaults(d)
		return d
	}

	tests := []struct {
		name    string
		mutate  func(d *Description)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid minimal description",
			mutate: func(d *Description) {},
		},
		{
			name:    "empty image",
			mutate:  func(d *Description) { d.Image = "" },
			wantErr: true,
			errMsg:  "image is required",
		},
		{
			name:    "malformed image",
			mutate:  func(d *Description) { d.Image = "Tutum/PostgreSQL" },
			wantErr: true,
			errMsg:  "invalid image reference",
		},
		{
			name:    "empty name",
			mutate:  func(d *Description) { d.Name = "" },
			wantErr: true,
			errMsg:  "name is required",
		},
		{
			name:    "name starting with hyphen",
			mutate:  func(d *Description) { d.Name = "-dockup" },
			wantErr: true,
			errMsg:  "name must be alphanumeric",
		},
		{
			name:   "long derived name",
			mutate: func(d *Description) { d.Name = "dockup-dump-" + strings.Repeat("a", 58) },
		},
		{
			name:    "too many replicas",
			mutate:  func(d *Description) { d.TargetNumContainers = maxReplicas + 1 },
			wantErr: true,
			errMsg:  "target_num_containers",
		},
		{
			name:    "unknown autodestroy",
			mutate:  func(d *Description) { d.Autodestroy = "ON_SUCCESS" },
			wantErr: true,
			errMsg:  "autodestroy must be",
		},
		{
			name: "bindings and volumes_from",
			mutate: func(d *Description) {
				d.Bindings = []Binding{
					{HostPath: "/srv/data", ContainerPath: "/data", Rewritable: true},
					{VolumesFrom: "/api/v1/service/abc/"},
				}
			},
		},
		{
			name:    "binding without target",
			mutate:  func(d *Description) { d.Bindings = []Binding{{HostPath: "/srv"}} },
			wantErr: true,
			errMsg:  "container_path or volumes_from is required",
		},
		{
			name:    "relative container path",
			mutate:  func(d *Description) { d.Bindings = []Binding{{ContainerPath: "data"}} },
			wantErr: true,
			errMsg:  "must be absolute",
		},
		{
			name:    "volumes_from mixed with path",
			mutate:  func(d *Description) { d.Bindings = []Binding{{ContainerPath: "/data", VolumesFrom: "/api/v1/service/abc/"}} },
			wantErr: true,
			errMsg:  "cannot be combined",
		},
		{
			name:    "host path and volume",
			mutate:  func(d *Description) { d.Bindings = []Binding{{HostPath: "/srv", Volume: "data", ContainerPath: "/data"}} },
			wantErr: true,
			errMsg:  "mutually exclusive",
		},
		{
			name:   "named volume",
			mutate: func(d *Description) { d.Bindings = []Binding{{Volume: "pgdata", ContainerPath: "/var/lib/postgresql"}} },
		},
		{
			name:    "invalid env key",
			mutate:  func(d *Description) { d.Env = []EnvVar{{Key: "1BAD", Value: "x"}} },
			wantErr: true,
			errMsg:  "invalid environment variable name",
		},
		{
			name: "duplicate env key",
			mutate: func(d *Description) {
				d.Env = []EnvVar{{Key: "BACKUP_NAME", Value: "a"}, {Key: "BACKUP_NAME", Value: "b"}}
			},
			wantErr: true,
			errMsg:  "duplicate environment variable",
		},
		{
			name:   "empty env value is allowed",
			mutate: func(d *Description) { d.Env = []EnvVar{{Key: "PATHS_TO_BACKUP", Value: ""}} },
		},
		{
			name:    "link without alias",
			mutate:  func(d *Description) { d.LinkedTo = &Link{ToService: "/api/v1/service/abc/"} },
			wantErr: true,
			errMsg:  "link alias is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := valid()
			tt.mutate(d)
			err := Validate(d)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Expected error containing %q", tt.errMsg)
				}
				if !errors.Is(err, apperrors.ErrValidation) {
					t.Errorf("Expected ErrValidation, got %v", err)
				}
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("Expected error containing %q, got %q", tt.errMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	t.Parallel()
	d := &Description{Image: "alpine", Name: "x"}
	ApplyDefaults(d)

	if d.TargetNumContainers != 1 {
		t.Errorf("Expected default replicas 1, got %d", d.TargetNumContainers)
	}
	if d.Autodestroy != AutodestroyOff {
		t.Errorf("Expected default autodestroy OFF, got %q", d.Autodestroy)
	}
}

func TestApplyDefaults_PreservesExisting(t *testing.T) {
	t.Parallel()
	d := &Description{Image: "alpine", Name: "x", TargetNumContainers: 3, Autodestroy: AutodestroyAlways}
	ApplyDefaults(d)

	if d.TargetNumContainers != 3 {
		t.Errorf("Expected replicas 3 preserved, got %d", d.TargetNumContainers)
	}
	if d.Autodestroy != AutodestroyAlways {
		t.Errorf("Expected ALWAYS preserved, got %q", d.Autodestroy)
	}
}

func TestLookup(t *testing.T) {
	t.Parallel()
	env := []EnvVar{{Key: "A", Value: "1"}, {Key: "B", Value: ""}}

	if v, ok := Lookup(env, "A"); !ok || v != "1" {
		t.Errorf("Lookup(A) = %q, %v", v, ok)
	}
	if v, ok := Lookup(env, "B"); !ok || v != "" {
		t.Errorf("Lookup(B) = %q, %v", v, ok)
	}
	if _, ok := Lookup(env, "C"); ok {
		t.Error("Lookup(C) should report missing")
	}
}
