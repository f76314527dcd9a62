package executor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docker/docker/api/types/container"

	clockmocks "github.com/ocelot-cloud/captn-updater/internal/clock/mocks"
	"github.com/ocelot-cloud/captn-updater/internal/containerdriver"
	"github.com/ocelot-cloud/captn-updater/internal/model"
)

func containerSpecFixture() containerdriver.ContainerSpec {
	return containerdriver.ContainerSpec{
		Config:     &container.Config{Env: []string{"FOO=bar"}},
		HostConfig: &container.HostConfig{RestartPolicy: container.RestartPolicy{Name: "unless-stopped"}},
	}
}

func TestCgroupIdentifiersExtractsDockerScopeID(t *testing.T) {
	line := "0::/system.slice/docker-" + strings.Repeat("a", 64) + ".scope\n"
	ids := cgroupIdentifiers(strings.NewReader(line))
	assert.Contains(t, ids, strings.Repeat("a", 64))
}

func TestCgroupIdentifiersExtractsBareHexID(t *testing.T) {
	line := "1:name=systemd:/docker/" + strings.Repeat("b", 64) + "\n"
	ids := cgroupIdentifiers(strings.NewReader(line))
	assert.Contains(t, ids, strings.Repeat("b", 64))
}

func TestCgroupIdentifiersIgnoresUnrelatedLines(t *testing.T) {
	ids := cgroupIdentifiers(strings.NewReader("0::/user.slice/user-1000.slice\n"))
	assert.Empty(t, ids)
}

func TestIsSelfIdentifierMatchesByName(t *testing.T) {
	identifiers := map[string]struct{}{"captn": {}}
	assert.True(t, isSelfIdentifier("captn", "", identifiers))
}

func TestIsSelfIdentifierMatchesByIDPrefix(t *testing.T) {
	full := strings.Repeat("c", 64)
	identifiers := map[string]struct{}{full: {}}
	assert.True(t, isSelfIdentifier("other-name", full[:12], identifiers))
}

func TestIsSelfIdentifierNoMatch(t *testing.T) {
	identifiers := map[string]struct{}{"unrelated": {}}
	assert.False(t, isSelfIdentifier("captn", "abc123", identifiers))
}

func TestIsSelfReturnsFalseOutsideContainer(t *testing.T) {
	old := dockerEnvMarker
	dockerEnvMarker = "/definitely/does/not/exist"
	defer func() { dockerEnvMarker = old }()

	assert.False(t, IsSelf("captn", "anything"))
}

// §4.10: self-update delegates the whole cutover to a helper container
// instead of running STOP_OLD/START_NEW against the Updater's own
// container in-process.
func TestRunSelfUpdateCreatesAndRemovesHelperOnSuccess(t *testing.T) {
	driver := &fakeDriver{
		createID:     "helper-id",
		stableResult: model.Container{ID: "helper-id", State: model.StateExited},
	}
	cfg := SelfUpdateConfig{RemoveHelperContainer: true, PollInterval: time.Millisecond, MaxWait: time.Second}
	old := model.Container{ID: "self-id", Name: "captn-updater", Image: "repo/captn"}
	plan := model.Plan{Steps: []model.Step{{Target: model.Candidate{Digest: "sha256:next"}}}}

	outcome := RunSelfUpdate(context.Background(), driver, clockmocks.NewFake(time.Unix(0, 0)), cfg, old, plan, Options{})

	require.Equal(t, model.FinalUpdated, outcome.FinalState)
	require.Len(t, driver.createdSpecs, 1)
	// the helper is the only thing created/started directly; rename/stop
	// happen inside its script, not via direct driver calls.
	assert.Empty(t, driver.renamedTo)
	assert.Contains(t, driver.removed, "helper-id")
}

func TestRunSelfUpdateAbortsWhenHelperNeverExits(t *testing.T) {
	driver := &fakeDriver{
		createID:     "helper-id",
		stableResult: model.Container{ID: "helper-id", State: model.StateRunning},
	}
	cfg := SelfUpdateConfig{RemoveHelperContainer: true, PollInterval: time.Millisecond, MaxWait: time.Millisecond}
	old := model.Container{ID: "self-id", Name: "captn-updater", Image: "repo/captn"}
	plan := model.Plan{Steps: []model.Step{{Target: model.Candidate{Digest: "sha256:next"}}}}

	outcome := RunSelfUpdate(context.Background(), driver, clockmocks.NewFake(time.Unix(0, 0)), cfg, old, plan, Options{})

	assert.Equal(t, model.FinalAborted, outcome.FinalState)
	assert.Contains(t, driver.removed, "helper-id")
}

func TestBuildHelperScriptIncludesChoreographySteps(t *testing.T) {
	old := model.Container{ID: "self-id", Name: "captn-updater"}
	spec := containerSpecFixture()
	script := buildHelperScript(old, "captn-updater_bak_cu_20260803_120000", "repo/captn@sha256:next", spec)

	assert.Contains(t, script, "docker rename 'self-id'")
	assert.Contains(t, script, "docker update --restart=no 'self-id'")
	assert.Contains(t, script, "docker stop 'self-id'")
	assert.Contains(t, script, "docker create")
	assert.Contains(t, script, "docker start 'captn-updater'")
}
