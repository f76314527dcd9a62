// Package containerdriver implements the Container Driver (SPEC_FULL.md
// §4.6): a thin, typed-error wrapper over the Docker Engine API exposing
// exactly the operations C10 needs.
package containerdriver

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/ocelot-cloud/captn-updater/internal/apperrors"
	"github.com/ocelot-cloud/captn-updater/internal/model"
)

// engineAPI is the narrow slice of *client.Client this package depends on,
// mirroring the dockerAPI seam used elsewhere in the pack so driver tests
// can substitute a fake without touching a real daemon.
//
//go:generate mockery --name=engineAPI --output=mocks --outpkg=mocks --filename=engine_api_mock.go
type engineAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error)
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	ImageInspectWithRaw(ctx context.Context, imageID string) (types.ImageInspect, []byte, error)
	ImageRemove(ctx context.Context, imageID string, options image.RemoveOptions) ([]image.DeleteResponse, error)
	ContainerCreate(ctx context.Context, cfg *container.Config, hostCfg *container.HostConfig, netCfg *network.NetworkingConfig, platform *ocispec.Platform, name string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRename(ctx context.Context, containerID, newName string) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerUpdate(ctx context.Context, containerID string, updateConfig container.UpdateConfig) (container.ContainerUpdateOKBody, error)
	ImagesPrune(ctx context.Context, pruneFilters filters.Args) (image.PruneReport, error)
	Ping(ctx context.Context) (types.Ping, error)
}

// Driver is the C6 capability.
type Driver struct {
	cli engineAPI
}

// New establishes a Docker Engine API client from the ambient environment,
// grounded directly on eos's pkg/docker.New (client.FromEnv +
// WithAPIVersionNegotiation).
func New() (*Driver, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, apperrors.Wrap(apperrors.DaemonUnavailable, err, "constructing docker client")
	}
	return &Driver{cli: cli}, nil
}

func (d *Driver) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := d.cli.Ping(ctx); err != nil {
		return apperrors.Wrap(apperrors.DaemonUnavailable, err, "pinging docker daemon")
	}
	return nil
}

// List returns every container (running and stopped) translated into the
// shared model.Container shape.
func (d *Driver) List(ctx context.Context) ([]model.Container, error) {
	raw, err := d.cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.DaemonUnavailable, err, "listing containers")
	}

	out := make([]model.Container, 0, len(raw))
	for _, c := range raw {
		insp, err := d.cli.ContainerInspect(ctx, c.ID)
		if err != nil {
			continue
		}
		out = append(out, fromInspect(insp))
	}
	return out, nil
}

// Inspect returns the single named/ID'd container's current state.
func (d *Driver) Inspect(ctx context.Context, containerID string) (model.Container, error) {
	insp, err := d.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		if client.IsErrNotFound(err) {
			return model.Container{}, apperrors.Wrap(apperrors.ContainerMissing, err, containerID)
		}
		return model.Container{}, apperrors.Wrap(apperrors.DaemonUnavailable, err, "inspecting "+containerID)
	}
	return fromInspect(insp), nil
}

// PullImage pulls ref (by tag or digest) and returns the resolved image ID,
// repo digest, and the image's own declared env (Config.Env, as inherited
// by a freshly created container before any old-container env is merged
// in) — grounded on the dockhand client's PullImage, extended per §4.5 so
// C5's env reconciliation has the image side of the merge to work with.
func (d *Driver) PullImage(ctx context.Context, ref string, registryAuth string) (imageID string, repoDigest string, imageEnv []string, err error) {
	opts := image.PullOptions{}
	if registryAuth != "" {
		opts.RegistryAuth = registryAuth
	}
	rc, err := d.cli.ImagePull(ctx, ref, opts)
	if err != nil {
		return "", "", nil, apperrors.Wrap(apperrors.ImagePullFailed, err, "pulling "+ref)
	}
	defer rc.Close()
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return "", "", nil, apperrors.Wrap(apperrors.ImagePullFailed, err, "reading pull stream for "+ref)
	}

	inspected, _, err := d.cli.ImageInspectWithRaw(ctx, ref)
	if err != nil {
		return "", "", nil, apperrors.Wrap(apperrors.ImagePullFailed, err, "inspecting pulled image "+ref)
	}
	digest := ""
	if len(inspected.RepoDigests) > 0 {
		digest = inspected.RepoDigests[0]
	}
	var env []string
	if inspected.Config != nil {
		env = inspected.Config.Env
	}
	return inspected.ID, digest, env, nil
}

// CreateContainer creates (but does not start) a container from spec.
func (d *Driver) CreateContainer(ctx context.Context, name string, spec ContainerSpec) (string, error) {
	resp, err := d.cli.ContainerCreate(ctx, spec.Config, spec.HostConfig, spec.NetworkingConfig, nil, name)
	if err != nil {
		if strings.Contains(err.Error(), "Conflict") || strings.Contains(err.Error(), "already in use") {
			return "", apperrors.Wrap(apperrors.ConflictName, err, "creating "+name)
		}
		return "", apperrors.Wrap(apperrors.StartFailed, err, "creating "+name)
	}
	return resp.ID, nil
}

func (d *Driver) Start(ctx context.Context, containerID string) error {
	if err := d.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return apperrors.Wrap(apperrors.StartFailed, err, "starting "+containerID)
	}
	return nil
}

// Stop stops a container, bounded by timeout (§4.10's STOP_OLD step).
func (d *Driver) Stop(ctx context.Context, containerID string, timeout time.Duration) error {
	seconds := int(timeout.Seconds())
	if err := d.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &seconds}); err != nil {
		return apperrors.Wrap(apperrors.StartFailed, err, "stopping "+containerID)
	}
	return nil
}

func (d *Driver) Rename(ctx context.Context, containerID, newName string) error {
	if err := d.cli.ContainerRename(ctx, containerID, newName); err != nil {
		return apperrors.Wrap(apperrors.ConflictName, err, "renaming "+containerID+" to "+newName)
	}
	return nil
}

// SetRestartPolicy updates a container's restart policy in place via the
// Docker Engine API's ContainerUpdate, without recreating or restarting the
// container — the mechanism §4.10 step 4/step 9 needs to disable and later
// restore the renamed backup's restart policy around STOP_OLD.
func (d *Driver) SetRestartPolicy(ctx context.Context, containerID string, policy model.RestartPolicy) error {
	update := container.UpdateConfig{
		RestartPolicy: container.RestartPolicy{
			Name:              container.RestartPolicyMode(policy.Name),
			MaximumRetryCount: policy.MaximumRetryCount,
		},
	}
	if _, err := d.cli.ContainerUpdate(ctx, containerID, update); err != nil {
		return apperrors.Wrap(apperrors.StartFailed, err, "updating restart policy for "+containerID)
	}
	return nil
}

func (d *Driver) Remove(ctx context.Context, containerID string, force bool) error {
	if err := d.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: force}); err != nil {
		return apperrors.Wrap(apperrors.RollbackFailed, err, "removing "+containerID)
	}
	return nil
}

// PruneImages delegates unused-image cleanup to the daemon's own prune
// endpoint rather than enumerating images/containers by hand, per §4.10's
// "Unused images are deleted only when no container references them" —
// grounded on cleanup.py's cleanup_unused_images, which delegates the same
// way to client.images.prune.
func (d *Driver) PruneImages(ctx context.Context) error {
	args := filters.NewArgs(filters.Arg("dangling", "false"))
	if _, err := d.cli.ImagesPrune(ctx, args); err != nil {
		return apperrors.Wrap(apperrors.RollbackFailed, err, "pruning unused images")
	}
	return nil
}

func (d *Driver) RemoveImage(ctx context.Context, imageID string) error {
	if _, err := d.cli.ImageRemove(ctx, imageID, image.RemoveOptions{}); err != nil {
		return apperrors.Wrap(apperrors.RollbackFailed, err, "removing image "+imageID)
	}
	return nil
}

// WaitForState polls until the container's State.Status matches want, or
// returns the last observed container on context cancellation/timeout.
// The Verifier (C8) builds its richer stability protocol on top of this.
func (d *Driver) WaitForState(ctx context.Context, containerID string, want model.ContainerState, pollEvery time.Duration) (model.Container, error) {
	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()

	for {
		c, err := d.Inspect(ctx, containerID)
		if err != nil {
			return c, err
		}
		if c.State == want {
			return c, nil
		}
		select {
		case <-ctx.Done():
			return c, apperrors.Wrap(apperrors.DidNotStabilize, ctx.Err(), fmt.Sprintf("waiting for %s to reach %s", containerID, want))
		case <-ticker.C:
		}
	}
}

func fromInspect(insp types.ContainerJSON) model.Container {
	c := model.Container{
		ID:    insp.ID,
		Name:  strings.TrimPrefix(insp.Name, "/"),
		Env:   nil,
		Labels: map[string]string{},
	}
	if insp.Config != nil {
		c.Env = insp.Config.Env
		c.Labels = insp.Config.Labels
		c.HasHealthcheck = insp.Config.Healthcheck != nil && len(insp.Config.Healthcheck.Test) > 0
	}
	if insp.Image != "" {
		c.Digest = insp.Image
	}
	if created, err := time.Parse(time.RFC3339Nano, insp.Created); err == nil {
		c.CreatedAt = created
	}
	if insp.State != nil {
		c.State = stateFromDocker(insp.State)
		c.HealthState = healthFromDocker(insp.State)
		if started, err := time.Parse(time.RFC3339Nano, insp.State.StartedAt); err == nil {
			c.StartedAt = started
		}
	}
	c.RestartCount = insp.RestartCount
	if insp.HostConfig != nil {
		c.RestartPolicy = model.RestartPolicy{
			Name:              string(insp.HostConfig.RestartPolicy.Name),
			MaximumRetryCount: insp.HostConfig.RestartPolicy.MaximumRetryCount,
		}
		c.Resources = model.ResourceLimits{
			NanoCPUs:    insp.HostConfig.NanoCPUs,
			MemoryBytes: insp.HostConfig.Memory,
		}
		for _, m := range insp.Mounts {
			c.Mounts = append(c.Mounts, model.Mount{
				Type:        string(m.Type),
				Source:      m.Source,
				Target:      m.Destination,
				ReadOnly:    !m.RW,
				VolumeNamed: m.Name,
			})
		}
	}
	if insp.NetworkSettings != nil {
		c.Networks = map[string]model.NetworkAttachment{}
		for name, ep := range insp.NetworkSettings.Networks {
			c.Networks[name] = model.NetworkAttachment{
				NetworkID: ep.NetworkID,
				Aliases:   ep.Aliases,
				IPAddress: ep.IPAddress,
			}
		}
	}
	return c
}

func stateFromDocker(s *types.ContainerState) model.ContainerState {
	switch {
	case s.Running && s.Paused:
		return model.StatePaused
	case s.Running:
		return model.StateRunning
	case s.Restarting:
		return model.StateRestarting
	case s.Dead:
		return model.StateDead
	case s.Status == "created":
		return model.StateCreated
	default:
		return model.StateExited
	}
}

func healthFromDocker(s *types.ContainerState) model.HealthState {
	if s.Health == nil {
		return model.HealthNone
	}
	switch s.Health.Status {
	case "healthy":
		return model.HealthHealthy
	case "unhealthy":
		return model.HealthUnhealthy
	case "starting":
		return model.HealthStarting
	default:
		return model.HealthNone
	}
}
