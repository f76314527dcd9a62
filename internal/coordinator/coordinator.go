// Package coordinator implements the Run Coordinator (SPEC_FULL.md
// §4.11): the single driven invocation that enumerates containers,
// resolves rules, plans, executes, prunes, and reports.
package coordinator

import (
	"context"
	"sort"

	"github.com/distribution/reference"
	"github.com/gobwas/glob"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ocelot-cloud/captn-updater/internal/apperrors"
	"github.com/ocelot-cloud/captn-updater/internal/clock"
	"github.com/ocelot-cloud/captn-updater/internal/executor"
	"github.com/ocelot-cloud/captn-updater/internal/model"
	"github.com/ocelot-cloud/captn-updater/internal/planner"
	"github.com/ocelot-cloud/captn-updater/internal/registry"
	"github.com/ocelot-cloud/captn-updater/internal/report"
	"github.com/ocelot-cloud/captn-updater/internal/rule"
	"github.com/ocelot-cloud/captn-updater/internal/tagpattern"
)

// Driver is the full Container Driver surface (C6) the coordinator
// depends on directly, plus everything the Executor (C10) needs;
// satisfied by *containerdriver.Driver.
type Driver interface {
	executor.Driver
	List(ctx context.Context) ([]model.Container, error)
	PruneImages(ctx context.Context) error
}

// Config is the coordinator's per-run configuration (§4.11, §6).
type Config struct {
	LockPath          string
	ForceLock         bool
	NameFilters       []string // OR-set globs; empty matches everything
	RuleLabelKey      string
	AssignmentsByName map[string]string
	Rules             map[string]model.Rule
	DefaultRuleName   string
	RegistryWorkers   int
	ExecutorOptions   executor.Options
	PruneConfig       executor.PruneConfig
	SelfUpdate        executor.SelfUpdateConfig
}

// Coordinator wires the Container Driver, Registry Client, Executor, and
// Clock into one run.
type Coordinator struct {
	Driver   Driver
	Registry *registry.Client
	Executor *executor.Executor
	Clock    clock.Clock
	Logger   *zap.SugaredLogger
}

// logger returns co.Logger, or a discarded no-op if unset, so callers
// never need a nil check.
func (co *Coordinator) logger() *zap.SugaredLogger {
	if co.Logger != nil {
		return co.Logger
	}
	return zap.NewNop().Sugar()
}

// Run implements §4.11's numbered steps end to end, returning the
// assembled Report. A lock/daemon failure aborts the run (§7); a
// per-container or per-image failure is recorded and the run continues.
func (co *Coordinator) Run(ctx context.Context, cfg Config) (report.Report, error) {
	startedAt := co.Clock.Now()

	log := co.logger()

	lock := NewFileLock(cfg.LockPath)
	if err := lock.Acquire(cfg.ForceLock); err != nil {
		log.Errorw("could not acquire run lock", "path", cfg.LockPath, "error", err)
		return report.Report{}, err
	}
	defer lock.Release()

	containers, err := co.Driver.List(ctx)
	if err != nil {
		log.Errorw("listing containers failed", "error", err)
		return report.Report{}, apperrors.Wrap(apperrors.DaemonUnavailable, err, "listing containers")
	}
	log.Infow("run started", "containers", len(containers))

	matcher := newNameMatcher(cfg.NameFilters)
	var eligible []model.Container
	for _, c := range containers {
		if !matcher.matches(c.Name) {
			continue
		}
		if !recognizableImage(c.Image) {
			continue
		}
		eligible = append(eligible, c)
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].Name < eligible[j].Name })

	refs := make(map[registry.Ref][]model.Container)
	for _, c := range eligible {
		ref := registry.ParseRef(c.Image, c.Tag)
		refs[ref] = append(refs[ref], c)
	}

	candidatesByRef, stats, runErrors := co.fetchCandidates(ctx, refs, cfg.RegistryWorkers)

	var normal, deferred []model.Container
	for _, c := range eligible {
		if executor.IsSelf(c.Name, c.ID) {
			deferred = append(deferred, c)
		} else {
			normal = append(normal, c)
		}
	}

	var outcomes []model.UpdateOutcome
	for _, c := range append(normal, deferred...) {
		ref := registry.ParseRef(c.Image, c.Tag)
		candidates := candidatesByRef[ref]

		r := co.resolveRule(cfg, c)
		plan, skip := planner.Plan(c, r, candidates, co.Clock.Now())
		if skip != model.SkipNone {
			log.Infow("container skipped", "container", c.Name, "reason", skip)
			outcomes = append(outcomes, model.UpdateOutcome{
				Container:  c,
				FinalState: model.FinalSkipped,
				Reason:     string(skip),
				StartedAt:  co.Clock.Now(),
				FinishedAt: co.Clock.Now(),
			})
			continue
		}

		opts := cfg.ExecutorOptions
		cred := co.Registry.Creds.Resolve(ref.Host, ref.Repository)
		opts.RegistryAuth = registry.EncodeDockerAuth(cred)

		var outcome model.UpdateOutcome
		if executor.IsSelf(c.Name, c.ID) {
			// §4.10: the Updater's own container is never run through the
			// normal in-process STOP_OLD/START_NEW choreography — a helper
			// container performs the cutover instead.
			outcome = executor.RunSelfUpdate(ctx, co.Driver, co.Clock, cfg.SelfUpdate, c, plan, opts)
		} else {
			outcome = co.Executor.Execute(ctx, c, plan, opts)
		}
		log.Infow("container processed", "container", c.Name, "finalState", outcome.FinalState, "reason", outcome.Reason)
		outcomes = append(outcomes, outcome)
	}

	pruneResult := executor.PruneBackups(ctx, co.Driver, cfg.PruneConfig, co.Clock.Now(), cfg.ExecutorOptions.DryRun)
	for _, pruneErr := range pruneResult.Errors {
		runErrors = multierror.Append(runErrors, pruneErr)
	}
	if cfg.PruneConfig.RemoveUnusedImages && !cfg.ExecutorOptions.DryRun {
		if err := co.Driver.PruneImages(ctx); err != nil {
			runErrors = multierror.Append(runErrors, err)
		}
	}

	finishedAt := co.Clock.Now()
	log.Infow("run finished", "duration", finishedAt.Sub(startedAt), "discoveryErrors", stats.DiscoveryErrors)
	return report.Build(outcomes, stats, runErrors, startedAt, finishedAt), nil
}

// fetchCandidates dedupes registry work by image reference and fetches
// each unique ref's candidate list concurrently, bounded by workers
// (§4.11 step 4, §5's "typical: 4-8"). A single image's discovery
// failure marks that image's containers for a later per-container skip
// rather than aborting the run (§7).
func (co *Coordinator) fetchCandidates(ctx context.Context, refs map[registry.Ref][]model.Container, workers int) (map[registry.Ref][]model.Candidate, report.RegistryStats, *multierror.Error) {
	if workers <= 0 {
		workers = 4
	}

	results := make(map[registry.Ref][]model.Candidate, len(refs))
	var stats report.RegistryStats
	var runErrors *multierror.Error

	type job struct {
		ref        registry.Ref
		candidates []model.Candidate
		err        error
	}
	jobs := make([]job, 0, len(refs))
	for ref := range refs {
		jobs = append(jobs, job{ref: ref})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range jobs {
		i := i
		g.Go(func() error {
			ref := jobs[i].ref
			pattern := patternFor(refs[ref])
			candidates, err := co.Registry.FetchCandidates(gctx, ref, pattern)
			jobs[i].candidates = candidates
			jobs[i].err = err
			return nil
		})
	}
	_ = g.Wait()

	for _, j := range jobs {
		stats.ImagesChecked++
		if j.err != nil {
			stats.DiscoveryErrors++
			runErrors = multierror.Append(runErrors, j.err)
			continue
		}
		stats.CandidatesFetched += len(j.candidates)
		results[j.ref] = j.candidates
	}
	return results, stats, runErrors
}

// patternFor induces the tag pattern from the first container in the
// group; groups are keyed by a registry.Ref that includes the tag, so
// every container in a group runs the same tag.
func patternFor(containers []model.Container) tagpattern.Pattern {
	if len(containers) == 0 {
		return tagpattern.Pattern{}
	}
	return tagpattern.Induce(containers[0].Tag)
}

// resolveRule implements §4.11 step 3's precedence: label override >
// explicit name-to-rule assignment > default.
func (co *Coordinator) resolveRule(cfg Config, c model.Container) model.Rule {
	name := cfg.DefaultRuleName
	if assigned, ok := cfg.AssignmentsByName[c.Name]; ok {
		name = assigned
	}
	if cfg.RuleLabelKey != "" {
		if label, ok := c.Labels[cfg.RuleLabelKey]; ok && label != "" {
			name = label
		}
	}
	if r, ok := cfg.Rules[name]; ok {
		return r
	}
	if r, ok := rule.Builtin(name); ok {
		return r
	}
	r, _ := rule.Builtin("default")
	return r
}

// recognizableImage reports whether image parses as a canonical
// reference (§4.11 step 2, "drop those whose image reference is
// un-recognizable"), using distribution/reference ahead of the
// protocol-profile selection in C3/C9 (§11).
func recognizableImage(image string) bool {
	_, err := reference.ParseNormalizedNamed(image)
	return err == nil
}

// nameMatcher implements the `--filter name=<glob>` OR-set (§6).
type nameMatcher struct {
	globs []glob.Glob
}

func newNameMatcher(patterns []string) nameMatcher {
	m := nameMatcher{}
	for _, p := range patterns {
		if g, err := glob.Compile(p); err == nil {
			m.globs = append(m.globs, g)
		}
	}
	return m
}

func (m nameMatcher) matches(name string) bool {
	if len(m.globs) == 0 {
		return true
	}
	for _, g := range m.globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}
