// Package executor implements the Update Executor (SPEC_FULL.md §4.10):
// the per-step state machine that pulls, replaces, verifies, and
// (on failure) rolls back a single container.
package executor

import (
	"context"
	"time"

	"github.com/ocelot-cloud/captn-updater/internal/apperrors"
	"github.com/ocelot-cloud/captn-updater/internal/clock"
	"github.com/ocelot-cloud/captn-updater/internal/containerdriver"
	"github.com/ocelot-cloud/captn-updater/internal/envfilter"
	"github.com/ocelot-cloud/captn-updater/internal/hooks"
	"github.com/ocelot-cloud/captn-updater/internal/model"
	"github.com/ocelot-cloud/captn-updater/internal/verifier"
)

// Driver is the narrow seam onto the Container Driver (C6) the executor
// needs, satisfied by *containerdriver.Driver.
type Driver interface {
	Inspect(ctx context.Context, containerID string) (model.Container, error)
	PullImage(ctx context.Context, ref string, registryAuth string) (imageID string, repoDigest string, imageEnv []string, err error)
	CreateContainer(ctx context.Context, name string, spec containerdriver.ContainerSpec) (string, error)
	Start(ctx context.Context, containerID string) error
	Stop(ctx context.Context, containerID string, timeout time.Duration) error
	Rename(ctx context.Context, containerID, newName string) error
	Remove(ctx context.Context, containerID string, force bool) error
	RemoveImage(ctx context.Context, imageID string) error
	// SetRestartPolicy overrides (or restores) a container's restart policy
	// without recreating it, grounded on the Docker Engine API's
	// ContainerUpdate. STOP_OLD uses it to force "no" on the renamed backup
	// (§4.10 step 4) so the daemon can't resurrect it mid-cutover; rollback
	// and restoreOld use it to put the original policy back (§4.10 step 9).
	SetRestartPolicy(ctx context.Context, containerID string, policy model.RestartPolicy) error
}

// Options bundles the per-run configuration the executor needs (§4.10, §6).
type Options struct {
	DryRun              bool
	StopTimeout         time.Duration
	DelayBetweenUpdates time.Duration
	ContinueOnPreFail   bool
	RollbackOnPostFail  bool
	EnvFilter           envfilter.Config
	PreHook             hooks.Config
	PostHook            hooks.Config
	Verify              verifier.Config
	RegistryAuth        string
}

// Executor runs plans against a single container using the given Driver,
// HookRunner, and Clock.
type Executor struct {
	Driver Driver
	Hooks  *hooks.Runner
	Clock  clock.Clock
}

// Execute walks plan's steps against old in order (§4.10's state machine:
// INIT→PRE→PULL→STOP_OLD→START_NEW→VERIFY→POST→COMMIT→DONE, with
// ROLLBACK/FAILED branches). A rollback within step i preserves commits of
// steps 1..i-1 and abandons the remainder of the plan.
func (e *Executor) Execute(ctx context.Context, old model.Container, plan model.Plan, opts Options) model.UpdateOutcome {
	outcome := model.UpdateOutcome{Container: old, Plan: plan, StartedAt: e.Clock.Now()}
	if plan.Empty() {
		outcome.FinalState = model.FinalNoop
		outcome.FinishedAt = e.Clock.Now()
		return outcome
	}

	current := old
	for i, step := range plan.Steps {
		stepOutcome, next, ok := e.executeStep(ctx, current, step, opts)
		outcome.ScriptResults = append(outcome.ScriptResults, stepOutcome.ScriptResults...)
		if !ok {
			outcome.FinalState = stepOutcome.FinalState
			outcome.Reason = stepOutcome.Reason
			outcome.FinishedAt = e.Clock.Now()
			return outcome
		}
		outcome.StepsApplied++
		current = next

		if i < len(plan.Steps)-1 && opts.DelayBetweenUpdates > 0 {
			e.Clock.Sleep(opts.DelayBetweenUpdates)
		}
	}

	outcome.FinalState = model.FinalUpdated
	outcome.Container = current
	outcome.FinishedAt = e.Clock.Now()
	return outcome
}

// executeStep runs one plan step; ok=false means the run should stop
// (either an intentional skip/abort or a rollback with no further steps
// attempted).
func (e *Executor) executeStep(ctx context.Context, old model.Container, step model.Step, opts Options) (model.UpdateOutcome, model.Container, bool) {
	out := model.UpdateOutcome{}

	if opts.DryRun {
		// §4.10's hook idempotence guarantee: hooks still fire during a dry
		// run (with CAPTN_DRY_RUN=true) even though no daemon mutation
		// follows, and a non-zero exit here never blocks or rolls back
		// since nothing has changed to roll back.
		out.ScriptResults = append(out.ScriptResults, e.Hooks.Run(ctx, opts.PreHook, old, hooks.Pre, true))
		out.ScriptResults = append(out.ScriptResults, e.Hooks.Run(ctx, opts.PostHook, old, hooks.Post, true))
		out.FinalState = model.FinalUpdated
		return out, old, true
	}

	// PRE
	preResult := e.Hooks.Run(ctx, opts.PreHook, old, hooks.Pre, false)
	out.ScriptResults = append(out.ScriptResults, preResult)
	if preResult.Ran && preResult.Err != nil && !opts.ContinueOnPreFail {
		out.FinalState = model.FinalSkipped
		out.Reason = string(apperrors.HookFailedPre)
		return out, old, false
	}

	// PULL
	targetRef := old.Image + "@" + step.Target.Digest
	_, _, imageEnv, err := e.Driver.PullImage(ctx, targetRef, opts.RegistryAuth)
	if err != nil {
		out.FinalState = model.FinalAborted
		out.Reason = err.Error()
		return out, old, false
	}

	// STOP_OLD
	backupName := containerdriver.BackupName(old.Name, e.Clock.Now())
	if err := e.Driver.Rename(ctx, old.ID, backupName); err != nil {
		out.FinalState = model.FinalAborted
		out.Reason = "renaming old container: " + err.Error()
		return out, old, false
	}
	// Force the renamed backup's restart policy to "no" before stopping it:
	// otherwise the daemon can resurrect it under its old name mid-cutover
	// (§4.10 step 4), racing the new container's CreateContainer/Rename.
	if err := e.Driver.SetRestartPolicy(ctx, old.ID, model.RestartPolicy{Name: "no"}); err != nil {
		e.restoreOld(ctx, old, backupName)
		out.FinalState = model.FinalAborted
		out.Reason = "disabling restart policy on old container: " + err.Error()
		return out, old, false
	}
	if err := e.Driver.Stop(ctx, old.ID, opts.StopTimeout); err != nil {
		e.restoreOld(ctx, old, backupName)
		out.FinalState = model.FinalAborted
		out.Reason = "stopping old container: " + err.Error()
		return out, old, false
	}

	// START_NEW
	env := envfilter.Apply(old.Env, imageEnv, opts.EnvFilter, old.Name)
	spec := containerdriver.BuildReplacementSpec(old, targetRef, env, e.Clock.Now())
	newID, err := e.Driver.CreateContainer(ctx, old.Name, spec)
	if err != nil {
		e.rollback(ctx, "", old, backupName)
		out.FinalState = model.FinalRolledBack
		out.Reason = "creating new container: " + err.Error()
		return out, old, false
	}
	if err := e.Driver.Start(ctx, newID); err != nil {
		e.rollback(ctx, newID, old, backupName)
		out.FinalState = model.FinalRolledBack
		out.Reason = "starting new container: " + err.Error()
		return out, old, false
	}

	// VERIFY
	result := verifier.Verify(ctx, driverInspector{e.Driver}, e.Clock, newID, opts.Verify)
	if !result.Stable {
		e.rollback(ctx, newID, old, backupName)
		out.FinalState = model.FinalRolledBack
		out.Reason = result.FailReason
		return out, old, false
	}

	// POST
	newContainer, _ := e.Driver.Inspect(ctx, newID)
	postResult := e.Hooks.Run(ctx, opts.PostHook, newContainer, hooks.Post, false)
	out.ScriptResults = append(out.ScriptResults, postResult)
	if postResult.Ran && postResult.Err != nil {
		if opts.RollbackOnPostFail {
			e.rollback(ctx, newID, old, backupName)
			out.FinalState = model.FinalRolledBack
			out.Reason = string(apperrors.HookFailedPost)
			return out, old, false
		}
		out.Reason = "post-hook failed but rollbackOnFailure=false; step committed with warning"
	}

	// COMMIT: the renamed old container is left in place as backup material
	// for PruneBackups to reclaim later per minBackupAge/minBackupsToKeep —
	// it is never removed here (GLOSSARY: "kept until the prune policy
	// removes it").
	return out, newContainer, true
}

// driverInspector adapts Driver to verifier.Inspector.
type driverInspector struct {
	d Driver
}

func (i driverInspector) Inspect(ctx context.Context, containerID string) (model.Container, error) {
	return i.d.Inspect(ctx, containerID)
}
