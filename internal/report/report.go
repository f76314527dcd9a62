// Package report implements the Report Builder (SPEC_FULL.md §4.12):
// aggregating per-container outcomes, hook output, and registry
// statistics from one run into a single structured value.
package report

import (
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/ocelot-cloud/captn-updater/internal/model"
)

// maxHookOutput bounds how much of a hook script's captured output is
// retained in the report; longer output is truncated with a marker.
const maxHookOutput = 4000

// RegistryStats summarizes the run's registry-discovery work.
type RegistryStats struct {
	ImagesChecked     int
	CandidatesFetched int
	DiscoveryErrors   int
}

// ContainerReport is one container's contribution to the run report.
type ContainerReport struct {
	ContainerName string
	Image         string
	FinalState    model.FinalState
	Reason        string
	StepsApplied  int
	Duration      time.Duration
	Hooks         []model.ScriptResult
}

// Report is the run-level aggregate C12 produces; this spec does not
// fix a wire format for the notification sink that consumes it.
type Report struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Containers []ContainerReport
	Registry   RegistryStats
	RunErrors  *multierror.Error
}

// Duration is the total wall-clock span of the run.
func (r Report) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// Build assembles a Report from the coordinator's collected per-container
// outcomes and registry statistics. runErrors aggregates cross-cutting,
// non-aborting failures (e.g. a single image's registry discovery
// failing) without losing individual causes (§5, §10).
func Build(outcomes []model.UpdateOutcome, stats RegistryStats, runErrors *multierror.Error, startedAt, finishedAt time.Time) Report {
	containers := make([]ContainerReport, 0, len(outcomes))
	for _, o := range outcomes {
		containers = append(containers, ContainerReport{
			ContainerName: o.Container.Name,
			Image:         o.Container.Image,
			FinalState:    o.FinalState,
			Reason:        o.Reason,
			StepsApplied:  o.StepsApplied,
			Duration:      o.Duration(),
			Hooks:         trimHookOutput(o.ScriptResults),
		})
	}
	return Report{
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Containers: containers,
		Registry:   stats,
		RunErrors:  runErrors,
	}
}

func trimHookOutput(results []model.ScriptResult) []model.ScriptResult {
	trimmed := make([]model.ScriptResult, len(results))
	for i, r := range results {
		trimmed[i] = r
		if len(r.Output) > maxHookOutput {
			trimmed[i].Output = r.Output[:maxHookOutput] + "... (truncated)"
		}
	}
	return trimmed
}

// CountByState tallies containers by FinalState, for a human-readable
// run summary line.
func (r Report) CountByState() map[model.FinalState]int {
	counts := make(map[model.FinalState]int)
	for _, c := range r.Containers {
		counts[c.FinalState]++
	}
	return counts
}
