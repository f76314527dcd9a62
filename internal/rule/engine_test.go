package rule

import (
	"testing"
	"time"

	"github.com/ocelot-cloud/captn-updater/internal/model"
	"github.com/ocelot-cloud/captn-updater/internal/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, tag string) version.Version {
	t.Helper()
	v, ok := version.Parse(tag)
	require.True(t, ok, tag)
	return v
}

func candidate(t *testing.T, tag, digest string, age time.Duration, now time.Time) model.Candidate {
	t.Helper()
	v := mustParse(t, tag)
	return model.Candidate{Tag: tag, Version: v, Digest: digest, PushedAt: now.Add(-age)}
}

// S1 — patch-only allows a patch, skips a minor.
func TestS1PatchOnlyAllowsPatchSkipsMinor(t *testing.T) {
	now := time.Now()
	current := mustParse(t, "1.25.3")
	candidates := []model.Candidate{
		candidate(t, "1.25.3", "sha:A", 2*time.Hour, now),
		candidate(t, "1.25.4", "sha:B", 5*time.Hour, now),
		candidate(t, "1.26.0", "sha:C", 10*time.Hour, now),
	}
	r, ok := Builtin("patch_only")
	require.True(t, ok)
	r.MinImageAge = 3 * time.Hour

	plan, skip := SelectPlan(current, "sha:A", candidates, r, now)
	require.Equal(t, model.SkipNone, skip)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "1.25.4", plan.Steps[0].Target.Tag)
	assert.Equal(t, version.DiffPatch, plan.Steps[0].DiffKind)
}

// S2 — progressive chain with condition (relaxed rule).
func TestS2ProgressiveChainWithCondition(t *testing.T) {
	now := time.Now()
	current := mustParse(t, "1.0.0")
	candidates := []model.Candidate{
		candidate(t, "1.0.1", "sha:1", 48*time.Hour, now),
		candidate(t, "1.1.0", "sha:2", 48*time.Hour, now),
		candidate(t, "2.0.0", "sha:3", 48*time.Hour, now),
	}
	r, ok := Builtin("relaxed")
	require.True(t, ok)

	plan, skip := SelectPlan(current, "sha:0", candidates, r, now)
	require.Equal(t, model.SkipNone, skip)
	require.Len(t, plan.Steps, 3)
	assert.Equal(t, "1.0.1", plan.Steps[0].Target.Tag)
	assert.Equal(t, "1.1.0", plan.Steps[1].Target.Tag)
	assert.Equal(t, "2.0.0", plan.Steps[2].Target.Tag)
	assert.Equal(t, version.DiffMajor, plan.Steps[2].DiffKind)
}

// S3 — minImageAge defers upgrade.
func TestS3MinImageAgeDefersUpgrade(t *testing.T) {
	now := time.Now()
	current := mustParse(t, "15.2")
	candidates := []model.Candidate{
		candidate(t, "15.3", "sha:X", 10*time.Minute, now),
	}
	r := model.Rule{MinImageAge: 3 * time.Hour, Allow: allowSet(version.DiffPatch, version.DiffMinor)}

	_, skip := SelectPlan(current, "sha:old", candidates, r, now)
	assert.Equal(t, model.SkipImageTooYoung, skip)
}

// S6 — digest-only update.
func TestS6DigestOnlyUpdate(t *testing.T) {
	now := time.Now()
	current := mustParse(t, "latest")
	_ = current
	// "latest" is not a numeric-parseable tag; use a numeric stand-in
	// whose tag the running container keeps constant, matching §8 S6's
	// "tag unchanged, digest differs" shape.
	cur := mustParse(t, "1")
	candidates := []model.Candidate{
		candidate(t, "1", "sha:new", 30*time.Hour, now),
	}
	r, ok := Builtin("digest_only")
	require.True(t, ok)
	r.MinImageAge = 24 * time.Hour

	plan, skip := SelectPlan(cur, "sha:old", candidates, r, now)
	require.Equal(t, model.SkipNone, skip)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, version.DiffDigest, plan.Steps[0].DiffKind)
}

// Property: making a rule strictly more permissive never shrinks the
// admissible set (§8 property 3).
func TestRuleMonotonicity(t *testing.T) {
	now := time.Now()
	current := mustParse(t, "1.0.0")
	candidates := []model.Candidate{
		candidate(t, "1.0.1", "sha:1", 48*time.Hour, now),
		candidate(t, "1.1.0", "sha:2", 48*time.Hour, now),
		candidate(t, "2.0.0", "sha:3", 48*time.Hour, now),
	}
	strict := model.Rule{MinImageAge: 24 * time.Hour, Allow: allowSet(version.DiffPatch)}
	permissive := model.Rule{MinImageAge: 0, Allow: allowSet(version.DiffPatch, version.DiffMinor, version.DiffMajor)}

	strictAdmissible := Admissible(current, "sha:0", candidates, strict, now)
	permissiveAdmissible := Admissible(current, "sha:0", candidates, permissive, now)
	assert.LessOrEqual(t, len(strictAdmissible), len(permissiveAdmissible))
}

// conservative's lagPolicy (major:1, minor:1) must reject a patch bump
// sitting at its own major group's bleeding-edge minor, even when that
// major isn't the overall max major present in the candidate set — §4.4
// step 5 says minor-lag is "restricted to candidates with major =
// c.major", i.e. evaluated per-group, not gated on the candidate's group
// being the one holding the global max major.
func TestConservativeLagPolicyAppliesPerMajorGroup(t *testing.T) {
	now := time.Now()
	current := mustParse(t, "1.6.0")
	candidates := []model.Candidate{
		// bleeding-edge minor (6) within major 1's own group: lag 1
		// should reject it even though major 1 isn't the overall max.
		candidate(t, "1.6.5", "sha:a", 30*24*time.Hour, now),
		// pushes maxMajor to 2, making major 1 a non-max group.
		candidate(t, "2.0.0", "sha:b", 30*24*time.Hour, now),
	}
	r, ok := Builtin("conservative")
	require.True(t, ok)

	admissible := Admissible(current, "sha:0", candidates, r, now)

	assert.Empty(t, admissible)
}

// Property: every step in a progressive plan is itself admissible, and
// the chain ends at the highest admissible candidate (§8 property 4).
func TestProgressiveChainCompleteness(t *testing.T) {
	now := time.Now()
	current := mustParse(t, "1.0.0")
	candidates := []model.Candidate{
		candidate(t, "1.0.1", "sha:1", 48*time.Hour, now),
		candidate(t, "1.1.0", "sha:2", 48*time.Hour, now),
		candidate(t, "2.0.0", "sha:3", 48*time.Hour, now),
	}
	r, _ := Builtin("permissive")

	plan, skip := SelectPlan(current, "sha:0", candidates, r, now)
	require.Equal(t, model.SkipNone, skip)
	require.Len(t, plan.Steps, 3)
	assert.Equal(t, "2.0.0", plan.Steps[len(plan.Steps)-1].Target.Tag)
}
