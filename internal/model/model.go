// Package model holds the shared data types from SPEC_FULL.md §3:
// Container, Candidate, Rule, UpdatePlan, UpdateOutcome. Components
// depend on these types rather than redeclaring them locally.
package model

import (
	"time"

	"github.com/ocelot-cloud/captn-updater/internal/version"
)

// Container is a running container as inspected from the daemon.
type Container struct {
	ID             string
	Name           string
	Image          string // repository reference, no tag
	Tag            string
	Digest         string
	Labels         map[string]string
	Env            []string // "KEY=VALUE" entries, daemon order preserved
	Mounts         []Mount
	Networks       map[string]NetworkAttachment
	Ports          []PortBinding
	RestartPolicy  RestartPolicy
	Resources      ResourceLimits
	CreatedAt      time.Time
	StartedAt      time.Time
	RestartCount   int
	State          ContainerState
	HealthState    HealthState
	HasHealthcheck bool
}

type Mount struct {
	Type        string // "bind" | "volume" | "tmpfs"
	Source      string
	Target      string
	ReadOnly    bool
	VolumeNamed string // volume name, when Type == "volume"
}

type NetworkAttachment struct {
	NetworkID string
	Aliases   []string
	IPAddress string
}

type PortBinding struct {
	ContainerPort string
	Protocol      string
	HostIP        string
	HostPort      string
}

type RestartPolicy struct {
	Name              string // "no" | "always" | "unless-stopped" | "on-failure"
	MaximumRetryCount int
}

type ResourceLimits struct {
	NanoCPUs int64
	MemoryBytes int64
}

type ContainerState string

const (
	StateRunning    ContainerState = "running"
	StateExited     ContainerState = "exited"
	StateDead       ContainerState = "dead"
	StateRestarting ContainerState = "restarting"
	StateCreated    ContainerState = "created"
	StatePaused     ContainerState = "paused"
)

type HealthState string

const (
	HealthNone      HealthState = "none"
	HealthStarting  HealthState = "starting"
	HealthHealthy   HealthState = "healthy"
	HealthUnhealthy HealthState = "unhealthy"
)

// Candidate is a remote tag enriched with digest and push time,
// populated by the Registry Client (C3).
type Candidate struct {
	Tag               string
	Version           version.Version
	Digest            string
	PushedAt          time.Time
	DiffKindVsCurrent version.DiffKind
}

// Rule is the policy object (SPEC_FULL.md §3).
type Rule struct {
	Name               string
	MinImageAge        time.Duration
	ProgressiveUpgrade bool
	Allow              map[version.DiffKind]bool
	Conditions         map[version.DiffKind]Condition
	LagPolicy          map[string]int // "major" | "minor" -> N
}

type Condition struct {
	Require map[version.DiffKind]bool
}

func (r Rule) Allows(k version.DiffKind) bool {
	return r.Allow[k]
}

// Step is a single candidate-application within a Plan.
type Step struct {
	Target   Candidate
	DiffKind version.DiffKind
}

// Plan is the ordered, non-empty sequence of Steps the executor applies.
// A nil/empty Plan means "noop".
type Plan struct {
	Steps []Step
}

func (p Plan) Empty() bool { return len(p.Steps) == 0 }

// SkipReason enumerates why planning produced no plan.
type SkipReason string

const (
	SkipTagNotParseable SkipReason = "TagNotParseable"
	SkipNoCandidates    SkipReason = "NoCandidates"
	SkipRuleForbidsAll  SkipReason = "RuleForbidsAll"
	SkipImageTooYoung   SkipReason = "ImageTooYoung"
	SkipNone            SkipReason = "" // plan produced, not skipped
)

// FinalState is the terminal classification of an UpdateOutcome.
type FinalState string

const (
	FinalUpdated            FinalState = "updated"
	FinalNoop               FinalState = "noop"
	FinalSkipped            FinalState = "skipped"
	FinalRolledBack         FinalState = "rolled-back"
	FinalAborted            FinalState = "aborted"
	FinalAbortedInconsistent FinalState = "aborted-inconsistent"
)

// ScriptResult records one hook invocation's outcome for the report.
type ScriptResult struct {
	Type     string // "pre" | "post"
	Ran      bool
	ExitCode int
	Output   string
	Err      error
}

// UpdateOutcome is the per-container result of a run (SPEC_FULL.md §3).
type UpdateOutcome struct {
	Container     Container
	Plan          Plan
	StepsApplied  int
	FinalState    FinalState
	Reason        string
	StartedAt     time.Time
	FinishedAt    time.Time
	ScriptResults []ScriptResult
}

func (o UpdateOutcome) Duration() time.Duration {
	return o.FinishedAt.Sub(o.StartedAt)
}
