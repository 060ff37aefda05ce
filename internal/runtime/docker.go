package runtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
)

// Docker implements Runtime on top of the Docker SDK.
type Docker struct {
	inner *client.Client
}

// NewDocker creates a Docker runtime using environment defaults, or the
// given host when non-empty.
func NewDocker(host string) (*Docker, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	inner, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("runtime: create docker client: %w", err)
	}
	return &Docker{inner: inner}, nil
}

// Ping validates connectivity to the Docker daemon.
func (d *Docker) Ping(ctx context.Context) error {
	if d == nil || d.inner == nil {
		return fmt.Errorf("runtime: docker client not initialized")
	}
	if _, err := d.inner.Ping(ctx); err != nil {
		return fmt.Errorf("runtime: docker ping: %w", err)
	}
	return nil
}

// Create provisions and starts a container on the sandbox network.
func (d *Docker) Create(ctx context.Context, spec CreateSpec) (Info, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return Info{}, fmt.Errorf("runtime: container name is required")
	}
	if strings.TrimSpace(spec.Image) == "" {
		return Info{}, fmt.Errorf("runtime: image is required")
	}

	cfg := &container.Config{
		Image:  spec.Image,
		Cmd:    spec.Cmd,
		Env:    spec.Env,
		Labels: spec.Labels,
	}
	hostCfg := &container.HostConfig{
		RestartPolicy: container.RestartPolicy{Name: "unless-stopped"},
	}
	var netCfg *network.NetworkingConfig
	if spec.Network != "" {
		netCfg = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{
				spec.Network: {},
			},
		}
	}

	r, err := d.inner.ContainerCreate(ctx, cfg, hostCfg, netCfg, nil, spec.Name)
	if err != nil {
		return Info{}, fmt.Errorf("runtime: container create %s: %w", spec.Name, err)
	}
	if err := d.inner.ContainerStart(ctx, r.ID, container.StartOptions{}); err != nil {
		return Info{}, fmt.Errorf("runtime: container start %s: %w", spec.Name, err)
	}
	return d.Inspect(ctx, spec.Name)
}

// Inspect returns the current state of a named container straight from the
// daemon.
func (d *Docker) Inspect(ctx context.Context, name string) (Info, error) {
	inspect, err := d.inner.ContainerInspect(ctx, name)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return Info{Name: name, State: StateNotFound}, nil
		}
		return Info{}, fmt.Errorf("runtime: container inspect %s: %w", name, err)
	}

	info := Info{Name: name, State: StateStopped}
	if inspect.Config != nil {
		info.Labels = inspect.Config.Labels
	}
	if inspect.State != nil && inspect.State.Running {
		info.State = StateRunning
		// The container name doubles as hostname on the sandbox network.
		info.Address = name
	}
	return info, nil
}

// List returns containers matching all the given labels.
func (d *Docker) List(ctx context.Context, labels map[string]string) ([]Info, error) {
	args := filters.NewArgs()
	for k, v := range labels {
		args.Add("label", k+"="+v)
	}
	containers, err := d.inner.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return nil, fmt.Errorf("runtime: container list: %w", err)
	}

	infos := make([]Info, 0, len(containers))
	for _, c := range containers {
		name := strings.TrimPrefix(c.Names[0], "/")
		info, err := d.Inspect(ctx, name)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Stop stops a running container.
func (d *Docker) Stop(ctx context.Context, name string) error {
	if err := d.inner.ContainerStop(ctx, name, container.StopOptions{}); err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("runtime: container stop %s: %w", name, err)
	}
	return nil
}

// Remove force-removes a container and its volumes.
func (d *Docker) Remove(ctx context.Context, name string) error {
	err := d.inner.ContainerRemove(ctx, name, container.RemoveOptions{Force: true, RemoveVolumes: true})
	if err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("runtime: container remove %s: %w", name, err)
	}
	return nil
}

// Close releases the underlying client.
func (d *Docker) Close() error {
	if d.inner == nil {
		return nil
	}
	return d.inner.Close()
}
