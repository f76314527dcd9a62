package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ocelot-cloud/captn-updater/internal/config"
	"github.com/ocelot-cloud/captn-updater/internal/coordinator"
	"github.com/ocelot-cloud/captn-updater/internal/envfilter"
	"github.com/ocelot-cloud/captn-updater/internal/executor"
	"github.com/ocelot-cloud/captn-updater/internal/hooks"
	"github.com/ocelot-cloud/captn-updater/internal/report"
	"github.com/ocelot-cloud/captn-updater/internal/rule"
	"github.com/ocelot-cloud/captn-updater/internal/verifier"
)

// RunFlags carries the CLI overlay on top of the loaded Config (§6's
// invocation-surface flags).
type RunFlags struct {
	ForceRun    bool // --run: forces non-dry even if config says otherwise
	NameFilters []string
	ForceLock   bool
}

// Runner composes the loaded Config with the wired Coordinator for one
// invocation, translating config.Config into coordinator.Config, and
// owns the lock path the teacher's updaterDir-relative layout implies.
type Runner struct {
	Coordinator *coordinator.Coordinator
	Config      config.Config
	Logger      *zap.SugaredLogger
	LockPath    string
}

// Run executes one pass over all managed containers (§4.11) and returns
// the assembled Report.
func (r *Runner) Run(ctx context.Context, flags RunFlags) (report.Report, error) {
	rules, err := config.BuildRules(r.Config)
	if err != nil {
		return report.Report{}, err
	}

	lockPath := r.LockPath
	if lockPath == "" {
		lockPath = "/var/run/captn-updater.lock"
	}

	dryRun := r.Config.General.DryRun && !flags.ForceRun

	cfg := coordinator.Config{
		LockPath:          lockPath,
		ForceLock:         flags.ForceLock,
		NameFilters:       flags.NameFilters,
		RuleLabelKey:      r.Config.RuleLabelKey,
		AssignmentsByName: r.Config.AssignmentsByName,
		Rules:             rules,
		DefaultRuleName:   rule.BuiltinNames[0], // "default"
		RegistryWorkers:   4,
		ExecutorOptions: executor.Options{
			DryRun:              dryRun,
			StopTimeout:         30 * time.Second,
			DelayBetweenUpdates: r.Config.Update.DelayBetweenUpdates,
			ContinueOnPreFail:   r.Config.PreScripts.ContinueOnFailure,
			RollbackOnPostFail:  r.Config.PostScripts.RollbackOnFailure,
			EnvFilter: envfilter.Config{
				Enabled:                r.Config.EnvFiltering.Enabled,
				ExcludePatterns:        r.Config.EnvFiltering.ExcludePatterns,
				PreservePatterns:       r.Config.EnvFiltering.PreservePatterns,
				ContainerSpecificRules: scopedEnvRules(r.Config.EnvFiltering.ContainerSpecificRules),
			},
			PreHook: hooks.Config{
				Enabled:           r.Config.PreScripts.Enabled,
				ScriptsDirectory:  r.Config.PreScripts.ScriptsDirectory,
				Timeout:           r.Config.PreScripts.Timeout,
				ContinueOnFailure: r.Config.PreScripts.ContinueOnFailure,
			},
			PostHook: hooks.Config{
				Enabled:           r.Config.PostScripts.Enabled,
				ScriptsDirectory:  r.Config.PostScripts.ScriptsDirectory,
				Timeout:           r.Config.PostScripts.Timeout,
				RollbackOnFailure: r.Config.PostScripts.RollbackOnFailure,
			},
			Verify: verifier.Config{
				MaxWait:       r.Config.UpdateVerification.MaxWait,
				StableTime:    r.Config.UpdateVerification.StableTime,
				CheckInterval: r.Config.UpdateVerification.CheckInterval,
				GracePeriod:   r.Config.UpdateVerification.GracePeriod,
			},
		},
		PruneConfig: executor.PruneConfig{
			MinBackupAge:       r.Config.Prune.MinBackupAge,
			MinBackupsToKeep:   r.Config.Prune.MinBackupsToKeep,
			RemoveUnusedImages: r.Config.Prune.RemoveUnusedImages,
		},
		SelfUpdate: executor.SelfUpdateConfig{
			HelperNamePrefix:      r.Config.SelfUpdate.HelperNamePrefix,
			RemoveHelperContainer: r.Config.SelfUpdate.RemoveHelperContainer,
		},
	}

	return r.Coordinator.Run(ctx, cfg)
}

func scopedEnvRules(in map[string]config.ScopedEnvRule) map[string]envfilter.ScopedRules {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]envfilter.ScopedRules, len(in))
	for name, rules := range in {
		out[name] = envfilter.ScopedRules{Exclude: rules.Exclude, Preserve: rules.Preserve}
	}
	return out
}
