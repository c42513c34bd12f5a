package tutum

import (
	"dockup-scheduler/internal/job"
	"dockup-scheduler/internal/resource"
)

// apiResource is the union of the service, stack and container fields the
// scheduler reads. Absent fields decode to zero values.
type apiResource struct {
	UUID                string       `json:"uuid"`
	ResourceURI         string       `json:"resource_uri"`
	Name                string       `json:"name"`
	State               string       `json:"state"`
	ImageName           string       `json:"image_name"`
	Stack               string       `json:"stack"`
	Services            []string     `json:"services"`
	Containers          []string     `json:"containers"`
	Bindings            []apiBinding `json:"bindings"`
	TargetNumContainers int          `json:"target_num_containers"`
}

type apiBinding struct {
	HostPath      string `json:"host_path,omitempty"`
	ContainerPath string `json:"container_path,omitempty"`
	Rewritable    bool   `json:"rewritable"`
	VolumesFrom   string `json:"volumes_from,omitempty"`
}

type apiLink struct {
	ToService string `json:"to_service"`
	Name      string `json:"name"`
}

// serviceRequest is the body of service create and update calls.
type serviceRequest struct {
	Image               string       `json:"image,omitempty"`
	Name                string       `json:"name,omitempty"`
	TargetNumContainers int          `json:"target_num_containers,omitempty"`
	Autodestroy         string       `json:"autodestroy,omitempty"`
	Bindings            []apiBinding `json:"bindings,omitempty"`
	ContainerEnvvars    []job.EnvVar `json:"container_envvars,omitempty"`
	RunCommand          string       `json:"run_command,omitempty"`
	LinkedToService     []apiLink    `json:"linked_to_service,omitempty"`
}

func (a *apiResource) toResource(kind resource.Kind) *resource.Resource {
	r := &resource.Resource{
		Kind:                kind,
		ID:                  a.UUID,
		URI:                 a.ResourceURI,
		Name:                a.Name,
		State:               job.State(a.State),
		ImageName:           a.ImageName,
		Stack:               a.Stack,
		Services:            a.Services,
		Containers:          a.Containers,
		TargetNumContainers: a.TargetNumContainers,
	}
	if r.URI == "" && r.ID != "" {
		r.URI = resource.URI(kind, r.ID)
	}
	if r.ID == "" && r.URI != "" {
		if id, err := resource.ExtractID(r.URI); err == nil {
			r.ID = id
		}
	}
	for _, b := range a.Bindings {
		r.Bindings = append(r.Bindings, job.Binding{
			HostPath:      b.HostPath,
			ContainerPath: b.ContainerPath,
			Rewritable:    b.Rewritable,
			VolumesFrom:   b.VolumesFrom,
		})
	}
	return r
}

func newServiceRequest(desc *job.Description) *serviceRequest {
	req := &serviceRequest{
		Image:               desc.Image,
		Name:                desc.Name,
		TargetNumContainers: desc.TargetNumContainers,
		Autodestroy:         string(desc.Autodestroy),
		ContainerEnvvars:    desc.Env,
		RunCommand:          desc.RunCommand,
	}
	for _, b := range desc.Bindings {
		req.Bindings = append(req.Bindings, apiBinding{
			HostPath:      b.HostPath,
			ContainerPath: b.ContainerPath,
			Rewritable:    b.Rewritable,
			VolumesFrom:   b.VolumesFrom,
		})
	}
	if desc.LinkedTo != nil {
		req.LinkedToService = []apiLink{{ToService: desc.LinkedTo.ToService, Name: desc.LinkedTo.Name}}
	}
	return req
}
