package report

import (
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocelot-cloud/captn-updater/internal/model"
)

func TestBuildAggregatesContainerOutcomes(t *testing.T) {
	start := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)
	outcomes := []model.UpdateOutcome{
		{
			Container:  model.Container{Name: "web", Image: "repo/web"},
			FinalState: model.FinalUpdated,
			StartedAt:  start,
			FinishedAt: start.Add(2 * time.Minute),
		},
		{
			Container:  model.Container{Name: "db", Image: "repo/db"},
			FinalState: model.FinalSkipped,
			Reason:     string(model.SkipImageTooYoung),
			StartedAt:  start,
			FinishedAt: start.Add(time.Second),
		},
	}

	r := Build(outcomes, RegistryStats{ImagesChecked: 2}, nil, start, start.Add(3*time.Minute))

	require.Len(t, r.Containers, 2)
	assert.Equal(t, model.FinalUpdated, r.Containers[0].FinalState)
	assert.Equal(t, 2*time.Minute, r.Containers[0].Duration)
	assert.Equal(t, 3*time.Minute, r.Duration())
	assert.Equal(t, 1, r.CountByState()[model.FinalUpdated])
	assert.Equal(t, 1, r.CountByState()[model.FinalSkipped])
}

func TestBuildTrimsLongHookOutput(t *testing.T) {
	long := strings.Repeat("x", maxHookOutput+500)
	outcomes := []model.UpdateOutcome{
		{
			Container:     model.Container{Name: "web"},
			FinalState:    model.FinalUpdated,
			ScriptResults: []model.ScriptResult{{Type: "pre", Ran: true, Output: long}},
		},
	}

	r := Build(outcomes, RegistryStats{}, nil, time.Time{}, time.Time{})

	require.Len(t, r.Containers[0].Hooks, 1)
	assert.True(t, strings.HasSuffix(r.Containers[0].Hooks[0].Output, "(truncated)"))
	assert.Less(t, len(r.Containers[0].Hooks[0].Output), len(long))
}

func TestBuildPreservesRunErrors(t *testing.T) {
	var merr *multierror.Error
	merr = multierror.Append(merr, assertErr{"registry unreachable for repo/x"})

	r := Build(nil, RegistryStats{DiscoveryErrors: 1}, merr, time.Time{}, time.Time{})

	require.NotNil(t, r.RunErrors)
	assert.Len(t, r.RunErrors.Errors, 1)
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }
