package containerdriver

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocelot-cloud/captn-updater/internal/apperrors"
	"github.com/ocelot-cloud/captn-updater/internal/model"
)

type fakeEngine struct {
	listResult    []types.Container
	inspectResult types.ContainerJSON
	inspectErr    error
	pullErr       error
	imageInspect  types.ImageInspect
	createResp    container.CreateResponse
	createErr     error
	startErr      error
	stopErr       error
	renameErr     error
	removeErr     error
	updateErr     error
	updatedPolicy *container.UpdateConfig
	stopOptions   *container.StopOptions
}

func (f *fakeEngine) ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error) {
	return f.listResult, nil
}
func (f *fakeEngine) ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error) {
	return f.inspectResult, f.inspectErr
}
func (f *fakeEngine) ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error) {
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	return io.NopCloser(strings.NewReader("")), nil
}
func (f *fakeEngine) ImageInspectWithRaw(ctx context.Context, imageID string) (types.ImageInspect, []byte, error) {
	return f.imageInspect, nil, nil
}
func (f *fakeEngine) ImageRemove(ctx context.Context, imageID string, options image.RemoveOptions) ([]image.DeleteResponse, error) {
	return nil, nil
}
func (f *fakeEngine) ContainerCreate(ctx context.Context, cfg *container.Config, hostCfg *container.HostConfig, netCfg *network.NetworkingConfig, platform *ocispec.Platform, name string) (container.CreateResponse, error) {
	return f.createResp, f.createErr
}
func (f *fakeEngine) ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error {
	return f.startErr
}
func (f *fakeEngine) ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error {
	f.stopOptions = &options
	return f.stopErr
}
func (f *fakeEngine) ContainerRename(ctx context.Context, containerID, newName string) error {
	return f.renameErr
}
func (f *fakeEngine) ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error {
	return f.removeErr
}
func (f *fakeEngine) ContainerUpdate(ctx context.Context, containerID string, updateConfig container.UpdateConfig) (container.ContainerUpdateOKBody, error) {
	f.updatedPolicy = &updateConfig
	return container.ContainerUpdateOKBody{}, f.updateErr
}
func (f *fakeEngine) Ping(ctx context.Context) (types.Ping, error) {
	return types.Ping{}, nil
}
func (f *fakeEngine) ImagesPrune(ctx context.Context, pruneFilters filters.Args) (image.PruneReport, error) {
	return image.PruneReport{}, nil
}

func TestInspectTranslatesRunningState(t *testing.T) {
	engine := &fakeEngine{
		inspectResult: types.ContainerJSON{
			ContainerJSONBase: &types.ContainerJSONBase{
				ID:      "abc123",
				Name:    "/web",
				Created: "2026-08-03T12:00:00Z",
				State:   &types.ContainerState{Running: true, Health: &types.Health{Status: "healthy"}},
			},
			Config: &container.Config{Env: []string{"FOO=bar"}, Labels: map[string]string{"x": "y"}},
		},
	}
	d := &Driver{cli: engine}

	c, err := d.Inspect(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, "web", c.Name)
	assert.Equal(t, []string{"FOO=bar"}, c.Env)
	assert.Equal(t, "healthy", string(c.HealthState))
	assert.Equal(t, "running", string(c.State))
}

func TestInspectNotFoundIsContainerMissing(t *testing.T) {
	d := &Driver{cli: &fakeEngine{inspectErr: notFoundErr{}}}
	_, err := d.Inspect(context.Background(), "missing")
	require.Error(t, err)
}

type notFoundErr struct{}

func (notFoundErr) Error() string  { return "no such container" }
func (notFoundErr) NotFound() bool { return true }

func TestPullImageReturnsDigestFromInspect(t *testing.T) {
	engine := &fakeEngine{
		imageInspect: types.ImageInspect{
			ID:          "sha256:imgid",
			RepoDigests: []string{"web@sha256:digest"},
			Config:      &container.Config{Env: []string{"FEATURE_FLAG=on"}},
		},
	}
	d := &Driver{cli: engine}

	id, digest, env, err := d.PullImage(context.Background(), "web:latest", "")
	require.NoError(t, err)
	assert.Equal(t, "sha256:imgid", id)
	assert.Equal(t, "web@sha256:digest", digest)
	assert.Equal(t, []string{"FEATURE_FLAG=on"}, env)
}

func TestPullImageWrapsFailure(t *testing.T) {
	d := &Driver{cli: &fakeEngine{pullErr: assertErr{}}}
	_, _, _, err := d.PullImage(context.Background(), "web:latest", "")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ImagePullFailed))
}

func TestSetRestartPolicySendsNameAndRetryCount(t *testing.T) {
	engine := &fakeEngine{}
	d := &Driver{cli: engine}

	err := d.SetRestartPolicy(context.Background(), "abc", model.RestartPolicy{Name: "on-failure", MaximumRetryCount: 3})
	require.NoError(t, err)
	require.NotNil(t, engine.updatedPolicy)
	assert.Equal(t, container.RestartPolicyMode("on-failure"), engine.updatedPolicy.RestartPolicy.Name)
	assert.Equal(t, 3, engine.updatedPolicy.RestartPolicy.MaximumRetryCount)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func TestCreateContainerDetectsConflict(t *testing.T) {
	d := &Driver{cli: &fakeEngine{createErr: conflictErr{}}}
	_, err := d.CreateContainer(context.Background(), "web", ContainerSpec{Config: &container.Config{}, HostConfig: &container.HostConfig{}})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ConflictName))
}

type conflictErr struct{}

func (conflictErr) Error() string { return "Conflict. The container name is already in use" }

func TestStopPassesTimeoutSeconds(t *testing.T) {
	engine := &fakeEngine{}
	d := &Driver{cli: engine}
	err := d.Stop(context.Background(), "abc", 30*time.Second)
	assert.NoError(t, err)
	require.NotNil(t, engine.stopOptions)
	require.NotNil(t, engine.stopOptions.Timeout)
	assert.Equal(t, 30, *engine.stopOptions.Timeout)
}
