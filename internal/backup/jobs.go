package backup

import (
	"fmt"
	"strings"

	"dockup-scheduler/internal/apperrors"
	"dockup-scheduler/internal/job"
	"dockup-scheduler/internal/resource"
)

// dbLinkAlias is the alias the dump worker links the database under. The
// dump command reads the variables the platform derives from it.
const dbLinkAlias = "DB"

// dumpCommand dumps every PostgreSQL database of the linked service into dir.
func dumpCommand(dir string) string {
	return fmt.Sprintf(`PGPASSWORD="$DB_ENV_POSTGRES_PASS" pg_dumpall -h "$DB_PORT_5432_TCP_ADDR" -p "$DB_PORT_5432_TCP_PORT" -U "$DB_ENV_POSTGRES_USER" > %s/dump.sql`,
		strings.TrimSuffix(dir, "/"))
}

// dumpDescription builds the worker that writes a SQL dump of svc into the
// first bound path of ctr.
func (o *Orchestrator) dumpDescription(svc, ctr *resource.Resource) (*job.Description, error) {
	dir := ""
	for _, b := range ctr.Bindings {
		if b.ContainerPath != "" {
			dir = b.ContainerPath
			break
		}
	}
	if dir == "" {
		return nil, apperrors.Validation("bindings", fmt.Sprintf("database container %s has no bound path for the dump", ctr.Name))
	}

	return &job.Description{
		Image:               o.cfg.DatabaseImage,
		Name:                "dockup-dump-" + svc.Name,
		TargetNumContainers: 1,
		Autodestroy:         job.AutodestroyOff,
		Bindings:            []job.Binding{{VolumesFrom: svc.URI}},
		RunCommand:          dumpCommand(dir),
		LinkedTo:            &job.Link{ToService: svc.URI, Name: dbLinkAlias},
	}, nil
}

// backupName is the archive name the copy worker uploads ctr under.
func backupName(ctr *resource.Resource) string {
	return "backup-" + ctr.Name
}

// pathsToBackup joins the container paths of ctr's bindings with a space.
func pathsToBackup(ctr *resource.Resource) string {
	paths := make([]string, 0, len(ctr.Bindings))
	for _, b := range ctr.Bindings {
		if b.ContainerPath != "" {
			paths = append(paths, b.ContainerPath)
		}
	}
	return strings.Join(paths, " ")
}

// copyDescription builds the worker that uploads ctr's data to the bucket.
// Database containers always mount from their service so the dump written
// by the dump worker is included.
func (o *Orchestrator) copyDescription(svc, ctr *resource.Resource, database bool) *job.Description {
	env := []job.EnvVar{
		{Key: "AWS_ACCESS_KEY_ID", Value: o.cfg.AWSAccessKeyID},
		{Key: "AWS_SECRET_ACCESS_KEY", Value: o.cfg.AWSSecretAccessKey},
		{Key: "AWS_DEFAULT_REGION", Value: o.cfg.AWSRegion},
		{Key: "BACKUP_NAME", Value: backupName(ctr)},
		{Key: "PATHS_TO_BACKUP", Value: pathsToBackup(ctr)},
		{Key: "S3_BUCKET_NAME", Value: o.cfg.Bucket},
	}
	if o.cfg.Folder != "" {
		env = append(env, job.EnvVar{Key: "S3_FOLDER", Value: o.cfg.Folder})
	}

	var bindings []job.Binding
	if database || o.cfg.MountMode == MountVolumesFrom {
		bindings = []job.Binding{{VolumesFrom: svc.URI}}
	} else {
		bindings = append(bindings, ctr.Bindings...)
	}

	return &job.Description{
		Image:               o.cfg.BackupImage,
		Name:                "dockup-" + svc.Name,
		TargetNumContainers: 1,
		Autodestroy:         job.AutodestroyAlways,
		Bindings:            bindings,
		Env:                 env,
	}
}
