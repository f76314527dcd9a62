package executor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"

	"github.com/ocelot-cloud/captn-updater/internal/apperrors"
	"github.com/ocelot-cloud/captn-updater/internal/clock"
	"github.com/ocelot-cloud/captn-updater/internal/containerdriver"
	"github.com/ocelot-cloud/captn-updater/internal/envfilter"
	"github.com/ocelot-cloud/captn-updater/internal/model"
)

// dockerEnvMarker, cgroupPaths are indirections over the filesystem paths
// IsSelf inspects, overridable in tests.
var (
	dockerEnvMarker = "/.dockerenv"
	cgroupPaths     = []string{"/proc/self/cgroup", "/proc/1/cgroup"}
)

// IsSelf reports whether containerName/containerID identifies the Updater's
// own running container, per §4.10's self-update handling and §12's
// concrete detection signals: /.dockerenv presence, HOSTNAME, and
// cgroup-path parsing of /proc/self/cgroup and /proc/1/cgroup, where a
// docker-<id>.scope segment or a bare 64-hex segment on a line that
// mentions docker or containerd is taken as a container ID.
func IsSelf(containerName, containerID string) bool {
	if _, err := os.Stat(dockerEnvMarker); err != nil {
		return false
	}
	return isSelfIdentifier(containerName, containerID, selfIdentifiers())
}

func selfIdentifiers() map[string]struct{} {
	identifiers := map[string]struct{}{}
	if hostname := os.Getenv("HOSTNAME"); hostname != "" {
		identifiers[strings.TrimPrefix(hostname, "/")] = struct{}{}
	}
	for _, path := range cgroupPaths {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		for _, id := range cgroupIdentifiers(f) {
			identifiers[id] = struct{}{}
		}
		f.Close()
	}
	return identifiers
}

func isSelfIdentifier(containerName, containerID string, identifiers map[string]struct{}) bool {
	if _, ok := identifiers[containerName]; ok {
		return true
	}
	if containerID == "" {
		return false
	}
	if _, ok := identifiers[containerID]; ok {
		return true
	}
	for id := range identifiers {
		if strings.HasPrefix(containerID, id) || strings.HasPrefix(id, containerID) {
			return true
		}
	}
	return false
}

func cgroupIdentifiers(r io.Reader) []string {
	var out []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "docker") && !strings.Contains(line, "containerd") {
			continue
		}
		for _, part := range strings.Split(line, "/") {
			if strings.HasPrefix(part, "docker-") && strings.HasSuffix(part, ".scope") {
				out = append(out, strings.TrimSuffix(strings.TrimPrefix(part, "docker-"), ".scope"))
				continue
			}
			if len(part) == 64 && isHex(part) {
				out = append(out, part)
			}
		}
	}
	return out
}

func isHex(s string) bool {
	for _, r := range s {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
			return false
		}
	}
	return true
}

// SelfUpdateConfig mirrors §6's "Helper container for self-update" naming
// rule (config.SelfUpdate): the helper's name prefix and whether it is
// removed once its choreography completes.
type SelfUpdateConfig struct {
	HelperNamePrefix      string
	RemoveHelperContainer bool
	HelperImage           string // docker CLI image with socket access; defaults if empty
	PollInterval          time.Duration
	MaxWait               time.Duration
}

const defaultHelperImage = "docker:cli"

// RunSelfUpdate implements §4.10's self-update handling. The Updater's own
// process cannot safely run STOP_OLD/START_NEW against its own container
// in-process — stopping it would kill the goroutine mid-choreography — so
// the whole rename/stop/create/start sequence is delegated to a short-
// lived helper container that talks to the same daemon over the bind-
// mounted docker socket and exits once the cutover is done. The
// coordinator calls this in place of Executor.Execute for any container
// IsSelf identifies, deferred to the end of the run.
func RunSelfUpdate(ctx context.Context, driver Driver, clk clock.Clock, cfg SelfUpdateConfig, old model.Container, plan model.Plan, opts Options) model.UpdateOutcome {
	outcome := model.UpdateOutcome{Container: old, Plan: plan, StartedAt: clk.Now()}
	if plan.Empty() {
		outcome.FinalState = model.FinalNoop
		outcome.FinishedAt = clk.Now()
		return outcome
	}

	// A deferred self-update is never progressive: by the time the run
	// reaches it, only the final desired step matters.
	step := plan.Steps[len(plan.Steps)-1]
	targetRef := old.Image + "@" + step.Target.Digest

	_, _, imageEnv, err := driver.PullImage(ctx, targetRef, opts.RegistryAuth)
	if err != nil {
		return abortedSelfUpdate(outcome, clk, "pulling target image: "+err.Error())
	}

	backupName := containerdriver.BackupName(old.Name, clk.Now())
	env := envfilter.Apply(old.Env, imageEnv, opts.EnvFilter, old.Name)
	spec := containerdriver.BuildReplacementSpec(old, targetRef, env, clk.Now())

	scriptDir, err := os.MkdirTemp("", "captn-selfupdate-*")
	if err != nil {
		return abortedSelfUpdate(outcome, clk, "preparing helper workspace: "+err.Error())
	}
	defer os.RemoveAll(scriptDir)

	scriptPath := filepath.Join(scriptDir, "self-update.sh")
	script := buildHelperScript(old, backupName, targetRef, spec)
	if err := os.WriteFile(scriptPath, []byte(script), 0o755); err != nil {
		return abortedSelfUpdate(outcome, clk, "writing helper script: "+err.Error())
	}

	helperName := helperContainerName(cfg, old.Name, clk.Now())
	helperSpec := helperContainerSpec(cfg, scriptDir)
	helperID, err := driver.CreateContainer(ctx, helperName, helperSpec)
	if err != nil {
		return abortedSelfUpdate(outcome, clk, "creating helper container: "+err.Error())
	}
	if err := driver.Start(ctx, helperID); err != nil {
		if cfg.RemoveHelperContainer {
			_ = driver.Remove(ctx, helperID, true)
		}
		return abortedSelfUpdate(outcome, clk, "starting helper container: "+err.Error())
	}

	waitErr := waitForHelperExit(ctx, driver, clk, helperID, cfg)
	if cfg.RemoveHelperContainer {
		_ = driver.Remove(ctx, helperID, true)
	}
	if waitErr != nil {
		return abortedSelfUpdate(outcome, clk, waitErr.Error())
	}

	outcome.FinalState = model.FinalUpdated
	outcome.StepsApplied = len(plan.Steps)
	outcome.FinishedAt = clk.Now()
	return outcome
}

func abortedSelfUpdate(outcome model.UpdateOutcome, clk clock.Clock, reason string) model.UpdateOutcome {
	outcome.FinalState = model.FinalAborted
	outcome.Reason = reason
	outcome.FinishedAt = clk.Now()
	return outcome
}

// helperContainerName builds an ephemeral, prefixed name (§6) that cannot
// collide across runs.
func helperContainerName(cfg SelfUpdateConfig, targetName string, at time.Time) string {
	prefix := cfg.HelperNamePrefix
	if prefix == "" {
		prefix = "captn-updater-helper"
	}
	return fmt.Sprintf("%s_%s_%s", prefix, targetName, at.Format("20060102_150405"))
}

// helperContainerSpec builds the short-lived helper's own create-spec: the
// docker CLI image, the docker socket bind-mounted so it can reach the
// same daemon, and the generated script bind-mounted alongside it.
func helperContainerSpec(cfg SelfUpdateConfig, scriptDir string) containerdriver.ContainerSpec {
	image := cfg.HelperImage
	if image == "" {
		image = defaultHelperImage
	}
	return containerdriver.ContainerSpec{
		Config: &container.Config{
			Image:      image,
			Entrypoint: []string{"/bin/sh", "/captn/self-update.sh"},
		},
		HostConfig: &container.HostConfig{
			Binds: []string{
				"/var/run/docker.sock:/var/run/docker.sock",
				scriptDir + ":/captn:ro",
			},
		},
	}
}

// waitForHelperExit polls the helper container until it reaches a
// terminal (exited) state or cfg.MaxWait elapses, mirroring the
// Verifier's own check-interval poll loop (§4.8) since the helper's
// success is itself a stability condition worth the same treatment.
func waitForHelperExit(ctx context.Context, driver Driver, clk clock.Clock, helperID string, cfg SelfUpdateConfig) error {
	maxWait := cfg.MaxWait
	if maxWait <= 0 {
		maxWait = 5 * time.Minute
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	deadline := clk.Now().Add(maxWait)

	for {
		c, err := driver.Inspect(ctx, helperID)
		if err != nil {
			return apperrors.Wrap(apperrors.DidNotStabilize, err, "inspecting self-update helper")
		}
		if c.State == model.StateExited {
			if c.RestartCount == 0 {
				return nil
			}
		}
		if clk.Now().After(deadline) {
			return apperrors.New(apperrors.DidNotStabilize, "self-update helper did not finish in time")
		}
		select {
		case <-ctx.Done():
			return apperrors.Wrap(apperrors.DidNotStabilize, ctx.Err(), "waiting for self-update helper")
		case <-clk.After(interval):
		}
	}
}

// buildHelperScript renders the shell script the helper container runs:
// the same STOP_OLD/START_NEW choreography as the in-process path
// (rename, restart-policy override, stop, create, start), driven through
// the docker CLI against the bind-mounted socket instead of the Updater's
// own process.
func buildHelperScript(old model.Container, backupName, targetRef string, spec containerdriver.ContainerSpec) string {
	var b strings.Builder
	b.WriteString("#!/bin/sh\nset -e\n")
	fmt.Fprintf(&b, "docker rename %s %s\n", shellQuote(old.ID), shellQuote(backupName))
	fmt.Fprintf(&b, "docker update --restart=no %s\n", shellQuote(old.ID))
	fmt.Fprintf(&b, "docker stop %s\n", shellQuote(old.ID))
	b.WriteString("docker create")
	for _, arg := range dockerCreateArgs(old.Name, spec, targetRef) {
		b.WriteString(" ")
		b.WriteString(shellQuote(arg))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "docker start %s\n", shellQuote(old.Name))
	return b.String()
}

// dockerCreateArgs translates the same ContainerSpec the in-process path
// hands to CreateContainer into `docker create` CLI flags, field for
// field: restart policy, mounts, port bindings, CPU and memory limits,
// env, exposed ports, labels and networks. Network aliases and other
// endpoint settings are not passed.
func dockerCreateArgs(name string, spec containerdriver.ContainerSpec, targetRef string) []string {
	args := []string{"--name", name}

	if spec.HostConfig != nil {
		if spec.HostConfig.NanoCPUs > 0 {
			args = append(args, "--cpus", fmt.Sprintf("%g", float64(spec.HostConfig.NanoCPUs)/1e9))
		}
		if spec.HostConfig.Memory > 0 {
			args = append(args, "--memory", fmt.Sprintf("%d", spec.HostConfig.Memory))
		}
		policy := spec.HostConfig.RestartPolicy
		if policy.Name != "" {
			restart := string(policy.Name)
			if restart == "on-failure" && policy.MaximumRetryCount > 0 {
				restart = fmt.Sprintf("on-failure:%d", policy.MaximumRetryCount)
			}
			args = append(args, "--restart", restart)
		}
		for _, m := range spec.HostConfig.Mounts {
			args = append(args, "--mount", mountFlag(m))
		}
		for port, bindings := range spec.HostConfig.PortBindings {
			for _, binding := range bindings {
				hostSide := binding.HostPort
				if binding.HostIP != "" {
					hostSide = binding.HostIP + ":" + hostSide
				}
				args = append(args, "-p", fmt.Sprintf("%s:%s", hostSide, port))
			}
		}
	}
	if spec.Config != nil {
		for _, e := range spec.Config.Env {
			args = append(args, "-e", e)
		}
		for k, v := range spec.Config.Labels {
			args = append(args, "--label", k+"="+v)
		}
		for port := range spec.Config.ExposedPorts {
			bound := false
			if spec.HostConfig != nil {
				_, bound = spec.HostConfig.PortBindings[port]
			}
			if !bound {
				args = append(args, "--expose", string(port))
			}
		}
	}
	if spec.NetworkingConfig != nil {
		for netName := range spec.NetworkingConfig.EndpointsConfig {
			args = append(args, "--network", netName)
		}
	}
	args = append(args, targetRef)
	return args
}

func mountFlag(m mount.Mount) string {
	flag := fmt.Sprintf("type=%s,source=%s,target=%s", m.Type, m.Source, m.Target)
	if m.ReadOnly {
		flag += ",readonly"
	}
	return flag
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
