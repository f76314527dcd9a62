package planner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocelot-cloud/captn-updater/internal/model"
	"github.com/ocelot-cloud/captn-updater/internal/rule"
	"github.com/ocelot-cloud/captn-updater/internal/version"
)

func candidate(t *testing.T, tag, digest string, age time.Duration, now time.Time) model.Candidate {
	t.Helper()
	v, ok := version.Parse(tag)
	require.True(t, ok, tag)
	return model.Candidate{Tag: tag, Version: v, Digest: digest, PushedAt: now.Add(-age)}
}

func TestPlanSkipsUnparseableCurrentTag(t *testing.T) {
	c := model.Container{Tag: "not-a-version-!!!"}
	r, ok := rule.Builtin("patch_only")
	require.True(t, ok)

	_, skip := Plan(c, r, []model.Candidate{}, time.Now())

	assert.Equal(t, model.SkipTagNotParseable, skip)
}

func TestPlanSkipsWhenNoCandidates(t *testing.T) {
	c := model.Container{Tag: "1.25.3"}
	r, ok := rule.Builtin("patch_only")
	require.True(t, ok)

	_, skip := Plan(c, r, nil, time.Now())

	assert.Equal(t, model.SkipNoCandidates, skip)
}

func TestPlanProducesSingletonForHighestAdmissible(t *testing.T) {
	now := time.Now()
	c := model.Container{Tag: "1.25.3", Digest: "sha:A"}
	candidates := []model.Candidate{
		candidate(t, "1.25.4", "sha:B", 5*time.Hour, now),
	}
	r, ok := rule.Builtin("patch_only")
	require.True(t, ok)
	r.MinImageAge = time.Hour

	plan, skip := Plan(c, r, candidates, now)

	require.Equal(t, model.SkipNone, skip)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "1.25.4", plan.Steps[0].Target.Tag)
}

func TestPlanSkipsWhenRuleForbidsAllCandidates(t *testing.T) {
	now := time.Now()
	c := model.Container{Tag: "1.25.3", Digest: "sha:A"}
	candidates := []model.Candidate{
		candidate(t, "1.26.0", "sha:B", 5*time.Hour, now),
	}
	r, ok := rule.Builtin("patch_only")
	require.True(t, ok)
	r.MinImageAge = time.Hour

	_, skip := Plan(c, r, candidates, now)

	assert.Equal(t, model.SkipRuleForbidsAll, skip)
}
