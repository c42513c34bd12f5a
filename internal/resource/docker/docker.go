// Package docker implements resource.Client on a local Docker daemon.
// A Compose project plays the stack, its Compose services play services,
// and worker services are groups of containers labelled by this client.
package docker

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"dockup-scheduler/internal/apperrors"
	"dockup-scheduler/internal/job"
	"dockup-scheduler/internal/resource"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

const (
	labelManagedBy = "managed-by"
	managedByValue = "dockup-scheduler"
	labelWorker    = "dockup.service"

	labelProject = "com.docker.compose.project"
	labelService = "com.docker.compose.service"
	labelNumber  = "com.docker.compose.container-number"

	defaultProject = "dockup"
	bridgeNetwork  = "bridge"
)

// engine is the part of the Docker API client this package calls.
type engine interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ImageInspect(ctx context.Context, imageID string, inspectOpts ...client.ImageInspectOption) (image.InspectResponse, error)
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	Ping(ctx context.Context) (types.Ping, error)
	Close() error
}

// Client implements resource.Client using Docker.
type Client struct {
	client  engine
	cfg     Config
	workers *workerRepo
}

// NewClient creates a Docker backend. Workers left behind by a previous
// process are removed when CleanOrphans is set.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	c := &Client{
		client:  dockerClient,
		cfg:     cfg,
		workers: newWorkerRepo(),
	}

	if cfg.CleanOrphans {
		if err := c.removeOrphans(ctx); err != nil {
			slog.Warn("Failed to remove orphaned workers", "error", err)
		}
	}

	return c, nil
}

// removeOrphans deletes every container carrying this client's label.
// Worker state is in-memory only, so such containers cannot be resumed.
func (c *Client) removeOrphans(ctx context.Context) error {
	containers, err := c.client.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", labelManagedBy+"="+managedByValue)),
	})
	if err != nil {
		return fmt.Errorf("failed to list containers: %w", err)
	}

	for _, ctr := range containers {
		c.removeContainer(ctx, ctr.ID)
	}
	if len(containers) > 0 {
		slog.Info("Removed orphaned workers", "component", "reconcile", "containers", len(containers))
	}
	return nil
}

func (c *Client) project() string {
	if c.cfg.Project != "" {
		return c.cfg.Project
	}
	return defaultProject
}

func serviceID(project, name string) string {
	return project + ":" + name
}

func splitServiceID(id string) (project, name string, err error) {
	project, name, ok := strings.Cut(id, ":")
	if !ok || project == "" || name == "" {
		return "", "", apperrors.Validation("id", fmt.Sprintf("service id %q must be <project>:<service>", id))
	}
	return project, name, nil
}

// Fetch returns the resource of the given kind and identifier.
func (c *Client) Fetch(ctx context.Context, kind resource.Kind, id string) (*resource.Resource, error) {
	switch kind {
	case resource.KindContainer:
		return c.fetchContainer(ctx, id)
	case resource.KindStack:
		return c.fetchStack(ctx, id)
	case resource.KindService:
		if ws, ok := c.workers.get(id); ok {
			return c.fetchWorker(ctx, id, ws)
		}
		return c.fetchComposeService(ctx, id)
	default:
		return nil, apperrors.Validation("kind", fmt.Sprintf("unknown resource kind %q", kind))
	}
}

func (c *Client) fetchContainer(ctx context.Context, id string) (*resource.Resource, error) {
	inspect, err := c.client.ContainerInspect(ctx, id)
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return nil, apperrors.NotFound("container", id)
		}
		return nil, apperrors.Internal("docker.inspectContainer", err)
	}
	return containerResource(inspect), nil
}

func (c *Client) fetchStack(ctx context.Context, project string) (*resource.Resource, error) {
	containers, err := c.list(ctx, filters.Arg("label", labelProject+"="+project))
	if err != nil {
		return nil, err
	}
	if len(containers) == 0 {
		return nil, apperrors.NotFound("stack", project)
	}

	var names []string
	states := make([]string, 0, len(containers))
	for _, ctr := range containers {
		if name := ctr.Labels[labelService]; name != "" && !slices.Contains(names, name) {
			names = append(names, name)
		}
		states = append(states, string(ctr.State))
	}
	slices.Sort(names)

	r := &resource.Resource{
		Kind:  resource.KindStack,
		ID:    project,
		URI:   resource.URI(resource.KindStack, project),
		Name:  project,
		State: serviceState(states),
	}
	for _, name := range names {
		r.Services = append(r.Services, resource.URI(resource.KindService, serviceID(project, name)))
	}
	return r, nil
}

func (c *Client) fetchComposeService(ctx context.Context, id string) (*resource.Resource, error) {
	project, name, err := splitServiceID(id)
	if err != nil {
		return nil, err
	}

	containers, err := c.list(ctx,
		filters.Arg("label", labelProject+"="+project),
		filters.Arg("label", labelService+"="+name),
	)
	if err != nil {
		return nil, err
	}
	if len(containers) == 0 {
		return nil, apperrors.NotFound("service", id)
	}
	sortByReplica(containers)

	r := serviceResource(id, name, containers)
	r.Stack = resource.URI(resource.KindStack, project)
	r.ImageName = containers[0].Image
	return r, nil
}

func (c *Client) fetchWorker(ctx context.Context, id string, ws *workerState) (*resource.Resource, error) {
	if ws == nil {
		// Reserved by a Save still in progress.
		return &resource.Resource{Kind: resource.KindService, ID: id, URI: resource.URI(resource.KindService, id), State: job.StateNotRunning}, nil
	}

	containers, err := c.list(ctx, filters.Arg("label", labelWorker+"="+id))
	if err != nil {
		return nil, err
	}
	sortByReplica(containers)

	r := serviceResource(id, ws.spec.Name, containers)
	r.ImageName = ws.spec.Image
	r.Bindings = ws.spec.Bindings
	r.TargetNumContainers = ws.spec.TargetNumContainers
	return r, nil
}

func (c *Client) list(ctx context.Context, args ...filters.KeyValuePair) ([]container.Summary, error) {
	containers, err := c.client.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(args...),
	})
	if err != nil {
		return nil, apperrors.Internal("docker.listContainers", err)
	}
	return containers, nil
}

// Create builds an unsaved worker service from desc. No daemon call is made.
func (c *Client) Create(_ context.Context, desc *job.Description) (*resource.Resource, error) {
	spec := *desc
	return &resource.Resource{
		Kind:                resource.KindService,
		Name:                desc.Name,
		ImageName:           desc.Image,
		Bindings:            desc.Bindings,
		TargetNumContainers: desc.TargetNumContainers,
		Spec:                &spec,
	}, nil
}

// Save creates the containers of an unsaved worker service. Containers
// cannot be reconfigured in place, so saving an existing service only
// refreshes it.
func (c *Client) Save(ctx context.Context, r *resource.Resource) (_ *resource.Resource, err error) {
	if r.Kind != "" && r.Kind != resource.KindService {
		return nil, apperrors.Validation("kind", fmt.Sprintf("only services can be saved, got %s", r.Kind))
	}
	if r.Saved() {
		return c.Fetch(ctx, resource.KindService, r.ID)
	}
	if r.Spec == nil {
		return nil, apperrors.Validation("spec", "unsaved service has no description")
	}

	spec := *r.Spec
	id := serviceID(c.project(), spec.Name)
	if err := c.reserveWorker(ctx, id); err != nil {
		return nil, err
	}

	var created []string
	defer func() {
		if err != nil {
			cleanupCtx := context.WithoutCancel(ctx)
			for _, containerID := range created {
				c.removeContainer(cleanupCtx, containerID)
			}
			c.workers.release(id)
		}
	}()

	if c.cfg.PullImages {
		// Pull outlives the caller's deadline so a retry finds the image cached.
		if err := c.pullImageIfNeeded(context.WithoutCancel(ctx), spec.Image); err != nil {
			return nil, apperrors.Internal("docker.pullImage", err)
		}
	}

	containerConfig, hostConfig, networkConfig, err := c.containerSpec(ctx, id, &spec)
	if err != nil {
		return nil, err
	}

	for i := 1; i <= spec.TargetNumContainers; i++ {
		name := fmt.Sprintf("%s-%s-%d", c.project(), spec.Name, i)
		resp, err := c.client.ContainerCreate(ctx, containerConfig, hostConfig, networkConfig, nil, name)
		if err != nil {
			if cerrdefs.IsConflict(err) {
				return nil, apperrors.Conflict("container", name, err.Error())
			}
			return nil, apperrors.Internal("docker.createContainer", err)
		}
		created = append(created, resp.ID)
	}

	c.workers.commit(id, &workerState{spec: &spec, containerIDs: created})
	slog.Debug("Created worker service", "service", id, "containers", len(created))

	ws, _ := c.workers.get(id)
	return c.fetchWorker(ctx, id, ws)
}

// reserveWorker claims id for a new worker service. A started worker whose
// containers have all exited or been removed is replaced, and its leftover
// containers are removed so their names can be reused.
func (c *Client) reserveWorker(ctx context.Context, id string) error {
	err := c.workers.reserve(id)
	if err == nil || !errors.Is(err, apperrors.ErrConflict) {
		return err
	}

	ws, ok := c.workers.get(id)
	if !ok || ws == nil || !ws.started {
		return err
	}
	containers, listErr := c.list(ctx, filters.Arg("label", labelWorker+"="+id))
	if listErr != nil {
		return listErr
	}
	if !workerFinished(containers) {
		return err
	}
	if !c.workers.takeOver(id) {
		// Deleted or replaced concurrently.
		return c.workers.reserve(id)
	}

	for _, ctr := range containers {
		c.removeContainer(ctx, ctr.ID)
	}
	slog.Debug("Replacing finished worker service", "service", id, "containers", len(containers))
	return nil
}

// workerFinished reports whether no container of a started worker is still
// alive.
func workerFinished(containers []container.Summary) bool {
	for _, ctr := range containers {
		if ctr.State != container.StateExited && ctr.State != container.StateDead {
			return false
		}
	}
	return true
}

// containerSpec translates a worker description into container settings.
func (c *Client) containerSpec(ctx context.Context, id string, spec *job.Description) (*container.Config, *container.HostConfig, *network.NetworkingConfig, error) {
	env := make([]string, 0, len(spec.Env))
	for _, e := range spec.Env {
		env = append(env, e.Key+"="+e.Value)
	}

	var cmd []string
	if spec.RunCommand != "" {
		cmd = []string{"/bin/sh", "-c", spec.RunCommand}
	}

	containerConfig := &container.Config{
		Image: spec.Image,
		Cmd:   cmd,
		Env:   env,
		Labels: map[string]string{
			labelManagedBy: managedByValue,
			labelWorker:    id,
		},
	}

	hostConfig := &container.HostConfig{
		AutoRemove: spec.Autodestroy == job.AutodestroyAlways,
		ExtraHosts: c.cfg.ExtraHosts,
	}
	if c.cfg.WorkerNetwork != "" {
		hostConfig.NetworkMode = container.NetworkMode(c.cfg.WorkerNetwork)
	}

	for _, b := range spec.Bindings {
		if b.VolumesFrom == "" {
			hostConfig.Mounts = append(hostConfig.Mounts, bindingMount(b))
			continue
		}
		ids, err := c.serviceContainerIDs(ctx, b.VolumesFrom)
		if err != nil {
			return nil, nil, nil, err
		}
		hostConfig.VolumesFrom = append(hostConfig.VolumesFrom, ids...)
	}

	var networkConfig *network.NetworkingConfig
	if spec.LinkedTo != nil {
		target, err := c.linkTarget(ctx, spec.LinkedTo.ToService)
		if err != nil {
			return nil, nil, nil, err
		}
		alias := spec.LinkedTo.Name
		link := strings.TrimPrefix(target.Name, "/") + ":" + alias

		if netName := primaryNetwork(target); netName == "" || netName == bridgeNetwork {
			hostConfig.Links = append(hostConfig.Links, link)
		} else {
			// Legacy link variables are only injected by the daemon on the
			// default bridge.
			hostConfig.NetworkMode = container.NetworkMode(netName)
			networkConfig = &network.NetworkingConfig{
				EndpointsConfig: map[string]*network.EndpointSettings{
					netName: {Links: []string{link}},
				},
			}
			containerConfig.Env = append(containerConfig.Env, linkEnv(alias, target)...)
		}
	}

	return containerConfig, hostConfig, networkConfig, nil
}

// serviceContainerIDs returns the container IDs of the service at uri.
func (c *Client) serviceContainerIDs(ctx context.Context, uri string) ([]string, error) {
	svc, err := resource.FetchURI(ctx, c, resource.KindService, uri)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(svc.Containers))
	for _, containerURI := range svc.Containers {
		id, err := resource.ExtractID(containerURI)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, apperrors.NotFound("container", uri)
	}
	return ids, nil
}

func (c *Client) linkTarget(ctx context.Context, uri string) (container.InspectResponse, error) {
	ids, err := c.serviceContainerIDs(ctx, uri)
	if err != nil {
		return container.InspectResponse{}, err
	}
	inspect, err := c.client.ContainerInspect(ctx, ids[0])
	if err != nil {
		return container.InspectResponse{}, apperrors.Internal("docker.inspectContainer", err)
	}
	return inspect, nil
}

// Start starts every container of a saved worker service. For a Compose
// service it starts the containers that are not already running.
func (c *Client) Start(ctx context.Context, r *resource.Resource) error {
	ws, ok := c.workers.get(r.ID)
	if !ok {
		return c.startComposeService(ctx, r.ID)
	}
	if ws == nil {
		return apperrors.NotFound("service", r.ID)
	}
	if ws.started {
		return nil
	}
	for _, containerID := range ws.containerIDs {
		if err := c.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
			return apperrors.Internal("docker.startContainer", err)
		}
	}
	c.workers.markStarted(r.ID)
	return nil
}

func (c *Client) startComposeService(ctx context.Context, id string) error {
	project, name, err := splitServiceID(id)
	if err != nil {
		return err
	}

	containers, err := c.list(ctx,
		filters.Arg("label", labelProject+"="+project),
		filters.Arg("label", labelService+"="+name),
	)
	if err != nil {
		return err
	}
	if len(containers) == 0 {
		return apperrors.NotFound("service", id)
	}
	sortByReplica(containers)

	for _, containerID := range containersToStart(containers) {
		if err := c.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
			return apperrors.Internal("docker.startContainer", err)
		}
	}
	return nil
}

// containersToStart returns the IDs of containers that are not running.
func containersToStart(containers []container.Summary) []string {
	var ids []string
	for _, ctr := range containers {
		switch ctr.State {
		case container.StateRunning, container.StateRestarting, container.StatePaused:
		default:
			ids = append(ids, ctr.ID)
		}
	}
	return ids
}

// Delete stops and removes the containers of a worker service. Containers
// already removed by autodestroy are ignored.
func (c *Client) Delete(ctx context.Context, r *resource.Resource) error {
	ws, ok := c.workers.release(r.ID)
	if !ok {
		return apperrors.NotFound("service", r.ID)
	}
	if ws == nil {
		return nil
	}

	timeout := int(c.cfg.StopTimeout.Seconds())
	for _, containerID := range ws.containerIDs {
		if err := c.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil && !cerrdefs.IsNotFound(err) {
			slog.Warn("Failed to stop worker container", "service", r.ID, "container", containerID, "error", err)
		}
		err := c.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true, RemoveVolumes: true})
		if err != nil && !cerrdefs.IsNotFound(err) && !cerrdefs.IsConflict(err) {
			return apperrors.Internal("docker.removeContainer", err)
		}
	}
	return nil
}

// Close releases the daemon connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// Ready checks if the Docker daemon is reachable and responsive.
func (c *Client) Ready(ctx context.Context) error {
	_, err := c.client.Ping(ctx)
	return err
}

func (c *Client) pullImageIfNeeded(ctx context.Context, imageName string) error {
	_, err := c.client.ImageInspect(ctx, imageName)
	if err == nil {
		return nil
	}

	reader, err := c.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

func (c *Client) removeContainer(ctx context.Context, containerID string) {
	timeout := int(c.cfg.StopTimeout.Seconds())
	_ = c.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout})
	_ = c.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true, RemoveVolumes: true})
}

// containerResource maps an inspected container to a resource.
func containerResource(inspect container.InspectResponse) *resource.Resource {
	r := &resource.Resource{Kind: resource.KindContainer}
	if inspect.ContainerJSONBase != nil {
		r.ID = inspect.ID
		r.Name = strings.TrimPrefix(inspect.Name, "/")
		if inspect.State != nil {
			r.State = containerState(string(inspect.State.Status))
		}
	}
	r.URI = resource.URI(resource.KindContainer, r.ID)
	if inspect.Config != nil {
		r.ImageName = inspect.Config.Image
		if project := inspect.Config.Labels[labelProject]; project != "" {
			r.Stack = resource.URI(resource.KindStack, project)
		}
	}
	for _, m := range inspect.Mounts {
		b := job.Binding{ContainerPath: m.Destination, Rewritable: m.RW}
		switch m.Type {
		case mount.TypeBind:
			b.HostPath = m.Source
		case mount.TypeVolume:
			b.Volume = m.Name
		}
		r.Bindings = append(r.Bindings, b)
	}
	return r
}

// serviceResource aggregates the containers of one service.
func serviceResource(id, name string, containers []container.Summary) *resource.Resource {
	r := &resource.Resource{
		Kind:                resource.KindService,
		ID:                  id,
		URI:                 resource.URI(resource.KindService, id),
		Name:                name,
		TargetNumContainers: len(containers),
	}
	states := make([]string, 0, len(containers))
	for _, ctr := range containers {
		r.Containers = append(r.Containers, resource.URI(resource.KindContainer, ctr.ID))
		states = append(states, string(ctr.State))
	}
	r.State = serviceState(states)
	return r
}

// containerState maps a Docker container status to a platform state.
func containerState(status string) job.State {
	switch status {
	case "running", "paused":
		return job.StateRunning
	case "restarting":
		return job.StateStarting
	case "removing":
		return job.StateTerminating
	case "exited", "dead":
		return job.StateStopped
	default:
		return job.StateNotRunning
	}
}

// serviceState aggregates container statuses. A service with no
// containers left, as after autodestroy, is not running.
func serviceState(statuses []string) job.State {
	var running, stopped int
	for _, s := range statuses {
		switch containerState(s) {
		case job.StateRunning, job.StateStarting:
			running++
		case job.StateStopped:
			stopped++
		}
	}
	switch {
	case running > 0 && running == len(statuses):
		return job.StateRunning
	case running > 0:
		return job.StatePartlyRunning
	case stopped > 0:
		return job.StateStopped
	default:
		return job.StateNotRunning
	}
}

func bindingMount(b job.Binding) mount.Mount {
	m := mount.Mount{Type: mount.TypeVolume, Source: b.Volume, Target: b.ContainerPath, ReadOnly: !b.Rewritable}
	if b.HostPath != "" {
		m.Type = mount.TypeBind
		m.Source = b.HostPath
	}
	return m
}

// primaryNetwork picks the network a linked worker joins, preferring a
// user-defined network over the default bridge.
func primaryNetwork(inspect container.InspectResponse) string {
	if inspect.NetworkSettings == nil {
		return ""
	}
	var names []string
	for name := range inspect.NetworkSettings.Networks {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int {
		aBridge, bBridge := a == bridgeNetwork, b == bridgeNetwork
		if aBridge != bBridge {
			if aBridge {
				return 1
			}
			return -1
		}
		return strings.Compare(a, b)
	})
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

// linkEnv reproduces the variables Docker injects for a legacy link:
// <ALIAS>_PORT_<port>_<PROTO>_{ADDR,PORT,PROTO} per exposed port and
// <ALIAS>_ENV_<KEY> per target environment entry.
func linkEnv(alias string, target container.InspectResponse) []string {
	if target.Config == nil {
		return nil
	}
	prefix := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(alias))

	var env []string
	for port := range target.Config.ExposedPorts {
		num, proto, _ := strings.Cut(string(port), "/")
		if proto == "" {
			proto = "tcp"
		}
		key := fmt.Sprintf("%s_PORT_%s_%s", prefix, num, strings.ToUpper(proto))
		env = append(env, key+"_ADDR="+alias, key+"_PORT="+num, key+"_PROTO="+proto)
	}
	for _, kv := range target.Config.Env {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "HOME" || k == "HOSTNAME" || k == "PATH" {
			continue
		}
		env = append(env, prefix+"_ENV_"+k+"="+v)
	}
	slices.Sort(env)
	return env
}

// sortByReplica orders containers by Compose replica number, then name.
func sortByReplica(containers []container.Summary) {
	slices.SortFunc(containers, func(a, b container.Summary) int {
		an, _ := strconv.Atoi(a.Labels[labelNumber])
		bn, _ := strconv.Atoi(b.Labels[labelNumber])
		return cmp.Or(cmp.Compare(an, bn), cmp.Compare(firstName(a), firstName(b)))
	})
}

func firstName(c container.Summary) string {
	if len(c.Names) == 0 {
		return ""
	}
	return c.Names[0]
}
