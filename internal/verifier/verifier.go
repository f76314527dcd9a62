// Package verifier implements the Verifier (SPEC_FULL.md §4.8): polling a
// freshly-started container until it has been continuously stable for a
// configured window, or declaring it failed.
package verifier

import (
	"context"
	"time"

	"github.com/ocelot-cloud/captn-updater/internal/apperrors"
	"github.com/ocelot-cloud/captn-updater/internal/clock"
	"github.com/ocelot-cloud/captn-updater/internal/model"
)

// Config mirrors §4.8's `{ maxWait, stableTime, checkInterval, gracePeriod }`.
type Config struct {
	MaxWait       time.Duration
	StableTime    time.Duration
	CheckInterval time.Duration
	GracePeriod   time.Duration
}

// Inspector is the narrow seam onto the Container Driver this package
// needs; satisfied by *containerdriver.Driver.Inspect.
//
//go:generate mockery --name=Inspector --output=mocks --outpkg=mocks --filename=inspector_mock.go
type Inspector interface {
	Inspect(ctx context.Context, containerID string) (model.Container, error)
}

// Result is the Verifier's outcome (§4.8's "Outputs").
type Result struct {
	Stable       bool
	FailReason   string
	LastObserved model.Container
}

// lastState is the snapshot compared at each poll tick to distinguish a
// crash-restart (reset) from a sustained failure, per §12's "Verifier
// polling state detail".
type lastState struct {
	startedAt    time.Time
	restartCount int
}

// Verify implements the full protocol described in §4.8.
func Verify(ctx context.Context, insp Inspector, clk clock.Clock, containerID string, cfg Config) Result {
	deadline := clk.Now().Add(cfg.MaxWait)

	var stableSince time.Time
	var snapshot *lastState
	inGrace := false
	var graceDeadline time.Time

	for {
		now := clk.Now()
		if now.After(deadline) {
			c, _ := insp.Inspect(ctx, containerID)
			return Result{Stable: false, FailReason: string(apperrors.DidNotStabilize), LastObserved: c}
		}

		c, err := insp.Inspect(ctx, containerID)
		if err != nil {
			return Result{Stable: false, FailReason: err.Error()}
		}

		if snapshot == nil {
			snapshot = &lastState{startedAt: c.StartedAt, restartCount: c.RestartCount}
		} else if c.StartedAt.After(snapshot.startedAt) || c.RestartCount > snapshot.restartCount {
			// A restart counts as a reset, not a terminal failure (§4.8
			// step 3, §12).
			snapshot = &lastState{startedAt: c.StartedAt, restartCount: c.RestartCount}
			stableSince = time.Time{}
			inGrace = false
		}

		stable := candidateStable(c)

		switch {
		case !stable && inGrace:
			return Result{Stable: false, FailReason: "regressed during grace period", LastObserved: c}
		case !stable:
			stableSince = time.Time{}
		case stableSince.IsZero():
			stableSince = now
		case !inGrace && now.Sub(stableSince) >= cfg.StableTime:
			inGrace = true
			graceDeadline = now.Add(cfg.GracePeriod)
		case inGrace && now.After(graceDeadline):
			return Result{Stable: true, LastObserved: c}
		}

		select {
		case <-ctx.Done():
			c, _ := insp.Inspect(ctx, containerID)
			return Result{Stable: false, FailReason: ctx.Err().Error(), LastObserved: c}
		case <-clk.After(cfg.CheckInterval):
		}
	}
}

// candidateStable reports whether c satisfies §4.8 step 2: running, and
// either no defined healthcheck or reporting healthy.
func candidateStable(c model.Container) bool {
	if c.State != model.StateRunning {
		return false
	}
	if !c.HasHealthcheck {
		return true
	}
	return c.HealthState == model.HealthHealthy
}
