// Package planner implements the Update Planner (SPEC_FULL.md §4.9): the
// pure function turning a container, its rule, and its registry
// candidates into an UpdatePlan or a skip reason.
package planner

import (
	"time"

	"github.com/ocelot-cloud/captn-updater/internal/model"
	"github.com/ocelot-cloud/captn-updater/internal/rule"
	"github.com/ocelot-cloud/captn-updater/internal/version"
)

// Plan combines tag parsing and C4's selectPlan into the single pure
// (Container, Rule, Candidates) -> UpdatePlan | Skipped(reason) function
// named in §4.9. Candidates are expected already pattern-filtered and
// descending-sorted by the Registry Client (§4.3).
func Plan(c model.Container, r model.Rule, candidates []model.Candidate, now time.Time) (model.Plan, model.SkipReason) {
	current, ok := version.Parse(c.Tag)
	if !ok {
		return model.Plan{}, model.SkipTagNotParseable
	}
	if len(candidates) == 0 {
		return model.Plan{}, model.SkipNoCandidates
	}
	return rule.SelectPlan(current, c.Digest, candidates, r, now)
}
