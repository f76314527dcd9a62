// Package hooks implements the Hook Runner (SPEC_FULL.md §4.7): resolving
// and executing per-container pre/post scripts with a wall-clock timeout.
package hooks

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ocelot-cloud/captn-updater/internal/model"
)

// Type distinguishes a pre- from a post-update hook.
type Type string

const (
	Pre  Type = "pre"
	Post Type = "post"
)

// Config is the ambient hook configuration (§6, per script type).
type Config struct {
	Enabled           bool
	ScriptsDirectory  string
	Timeout           time.Duration
	ContinueOnFailure bool // pre-hook only
	RollbackOnFailure bool // post-hook only
}

// Runner executes resolved hook scripts in a child process.
type Runner struct {
	ConfigDir string
	LogLevel  string
}

// Resolve returns the script path for containerName/scriptType following
// the precedence in §4.7: "<containerName>_<type>.sh", falling back to
// generic "<type>.sh". Absence is reported via the bool, not an error.
func Resolve(scriptsDir string, containerName string, t Type) (string, bool) {
	specific := filepath.Join(scriptsDir, fmt.Sprintf("%s_%s.sh", containerName, t))
	if fileExists(specific) {
		return specific, true
	}
	generic := filepath.Join(scriptsDir, fmt.Sprintf("%s.sh", t))
	if fileExists(generic) {
		return generic, true
	}
	return "", false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Run executes the hook for container and resolution precedence. A missing
// script is success, not failure (§4.7). dryRun is threaded through as
// CAPTN_DRY_RUN rather than skipping execution: §4.10's hook idempotence
// guarantee requires hooks to still run during a dry run (so scripts that
// only notify or log still fire), with their non-zero exit never causing a
// rollback since no daemon mutation happened.
func (r *Runner) Run(ctx context.Context, cfg Config, c model.Container, t Type, dryRun bool) model.ScriptResult {
	result := model.ScriptResult{Type: string(t)}

	if !cfg.Enabled {
		return result
	}

	path, found := Resolve(cfg.ScriptsDirectory, c.Name, t)
	if !found {
		return result
	}
	result.Ran = true

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	output, exitCode, err := r.runWithTimeout(runCtx, path, r.env(cfg, c, t, dryRun))
	result.Output = output
	result.ExitCode = exitCode
	result.Err = err
	return result
}

// env injects exactly the six CAPTN_* variables described in §4.7 — no
// other process environment is exposed to the script.
func (r *Runner) env(cfg Config, c model.Container, t Type, dryRun bool) []string {
	return []string{
		"CAPTN_CONTAINER_NAME=" + c.Name,
		"CAPTN_SCRIPT_TYPE=" + string(t),
		"CAPTN_DRY_RUN=" + strconv.FormatBool(dryRun),
		"CAPTN_LOG_LEVEL=" + r.LogLevel,
		"CAPTN_CONFIG_DIR=" + r.ConfigDir,
		"CAPTN_SCRIPTS_DIR=" + cfg.ScriptsDirectory,
	}
}

// runWithTimeout runs path as a child process in its own process group so
// a timeout can terminate the whole group, not just the immediate child,
// mirroring scripts.py's terminate-then-kill-after-grace escalation.
func (r *Runner) runWithTimeout(ctx context.Context, path string, env []string) (string, int, error) {
	cmd := exec.Command(path)
	cmd.Dir = filepath.Dir(path)
	cmd.Env = env
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", -1, fmt.Errorf("opening stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return "", -1, fmt.Errorf("starting script: %w", err)
	}

	var lines []string
	scanner := bufio.NewScanner(stdout)
	done := make(chan error, 1)
	go func() {
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		output := strings.Join(lines, "\n")
		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				return output, exitErr.ExitCode(), fmt.Errorf("script exited with code %d", exitErr.ExitCode())
			}
			return output, -1, err
		}
		return output, 0, nil
	case <-ctx.Done():
		terminateGroup(cmd)
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			killGroup(cmd)
			<-done
		}
		return strings.Join(lines, "\n"), -1, fmt.Errorf("script timed out: %w", ctx.Err())
	}
}

func terminateGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
}

func killGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
