// Package rule implements the Rule Engine (SPEC_FULL.md §4.4): admission
// filtering and plan selection given a current version, a candidate set,
// and a Rule.
package rule

import (
	"sort"
	"time"

	"github.com/ocelot-cloud/captn-updater/internal/model"
	"github.com/ocelot-cloud/captn-updater/internal/version"
)

// Admissible filters candidates against current+rule per the five-step
// algorithm in §4.4, returning the admissible set (unsorted).
func Admissible(current version.Version, currentDigest string, candidates []model.Candidate, r model.Rule, now time.Time) []model.Candidate {
	out, _, _ := admissibleFiltered(current, currentDigest, candidates, r, now)
	return out
}

// admissibleFiltered is Admissible plus the bookkeeping SelectPlan needs to
// report *why* the admissible set came up empty: eligible counts every
// candidate that passed step 1 (newer version, or a same-version digest
// bump), and ageRejected counts how many of those were excluded solely by
// the minImageAge gate before any other filter had a chance to run.
func admissibleFiltered(current version.Version, currentDigest string, candidates []model.Candidate, r model.Rule, now time.Time) (out []model.Candidate, eligible int, ageRejected int) {
	maxMajor := 0
	majorMaxMinor := map[int]int{}
	for _, c := range candidates {
		if c.Version.Major() > maxMajor {
			maxMajor = c.Version.Major()
		}
		if c.Version.Minor() > majorMaxMinor[c.Version.Major()] {
			majorMaxMinor[c.Version.Major()] = c.Version.Minor()
		}
	}

	available := make(map[version.DiffKind]bool, len(candidates))
	for _, c := range candidates {
		k := version.Classify(current, c.Version, currentDigest, c.Digest)
		available[k] = true
	}

	for _, c := range candidates {
		ord := version.Compare(current, c.Version)
		isDigestBump := ord == version.Equal && c.Digest != currentDigest
		if ord != version.Less && !isDigestBump {
			// step 1: require c > current, or c == current with a
			// differing digest.
			continue
		}
		eligible++

		if now.Sub(c.PushedAt) < r.MinImageAge {
			ageRejected++
			continue
		}

		k := version.Classify(current, c.Version, currentDigest, c.Digest)
		if !r.Allows(k) {
			continue
		}

		if cond, ok := r.Conditions[k]; ok {
			satisfied := false
			for req := range cond.Require {
				if available[req] {
					satisfied = true
					break
				}
			}
			if !satisfied {
				continue
			}
		}

		if n, ok := r.LagPolicy["major"]; ok {
			if c.Version.Major() > maxMajor-n {
				continue
			}
		}
		// §4.4 step 5: minor lag is "analogous... restricted to candidates
		// with major = c.major" — each major group is lagged against its
		// own max minor, not only the group holding the global max major.
		if n, ok := r.LagPolicy["minor"]; ok {
			if c.Version.Minor() > majorMaxMinor[c.Version.Major()]-n {
				continue
			}
		}

		out = append(out, c)
	}
	return out, eligible, ageRejected
}

// SelectPlan builds the UpdatePlan from the admissible set per §4.4.
func SelectPlan(current version.Version, currentDigest string, candidates []model.Candidate, r model.Rule, now time.Time) (model.Plan, model.SkipReason) {
	admissible, eligible, ageRejected := admissibleFiltered(current, currentDigest, candidates, r, now)
	if len(admissible) == 0 {
		if eligible > 0 && eligible == ageRejected {
			return model.Plan{}, model.SkipImageTooYoung
		}
		return model.Plan{}, model.SkipRuleForbidsAll
	}

	sorted := sortByVersionThenPushedAt(admissible)

	if !r.ProgressiveUpgrade {
		highest := sorted[len(sorted)-1]
		return model.Plan{Steps: []model.Step{{
			Target:   highest,
			DiffKind: version.Classify(current, highest.Version, currentDigest, highest.Digest),
		}}}, model.SkipNone
	}

	steps := make([]model.Step, 0, len(sorted))
	prev := current
	prevDigest := currentDigest
	for _, c := range sorted {
		steps = append(steps, model.Step{
			Target:   c,
			DiffKind: version.Classify(prev, c.Version, prevDigest, c.Digest),
		})
		prev = c.Version
		prevDigest = c.Digest
	}
	return model.Plan{Steps: steps}, model.SkipNone
}

// sortByVersionThenPushedAt orders ascending by Version, breaking ties on
// PushedAt (newer wins) per §4.4's tie-break rule.
func sortByVersionThenPushedAt(cs []model.Candidate) []model.Candidate {
	out := make([]model.Candidate, len(cs))
	copy(out, cs)
	sort.SliceStable(out, func(i, j int) bool {
		ord := version.Compare(out[i].Version, out[j].Version)
		if ord == version.Less {
			return true
		}
		if ord == version.Greater {
			return false
		}
		return out[i].PushedAt.Before(out[j].PushedAt)
	})
	return out
}
