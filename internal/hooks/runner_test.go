package hooks

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocelot-cloud/captn-updater/internal/model"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func TestResolvePrefersContainerSpecificScript(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "pre.sh", "#!/bin/sh\nexit 0\n")
	writeScript(t, dir, "web_pre.sh", "#!/bin/sh\nexit 0\n")

	path, found := Resolve(dir, "web", Pre)
	require.True(t, found)
	assert.Equal(t, filepath.Join(dir, "web_pre.sh"), path)
}

func TestResolveFallsBackToGeneric(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "pre.sh", "#!/bin/sh\nexit 0\n")

	path, found := Resolve(dir, "web", Pre)
	require.True(t, found)
	assert.Equal(t, filepath.Join(dir, "pre.sh"), path)
}

func TestResolveAbsentIsNotFoundNotError(t *testing.T) {
	dir := t.TempDir()
	_, found := Resolve(dir, "web", Pre)
	assert.False(t, found)
}

func TestRunMissingScriptIsSuccessNotRan(t *testing.T) {
	r := &Runner{}
	cfg := Config{Enabled: true, ScriptsDirectory: t.TempDir()}
	result := r.Run(context.Background(), cfg, model.Container{Name: "web"}, Pre, false)
	assert.False(t, result.Ran)
	assert.NoError(t, result.Err)
}

func TestRunDisabledSkipsResolution(t *testing.T) {
	r := &Runner{}
	cfg := Config{Enabled: false}
	result := r.Run(context.Background(), cfg, model.Container{Name: "web"}, Pre, false)
	assert.False(t, result.Ran)
}

// §4.10's hook idempotence guarantee: a dry run still executes the script
// (so notify/log-only hooks still fire), just with CAPTN_DRY_RUN=true.
func TestRunDryRunStillExecutesWithDryRunEnvSet(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "pre.sh", "#!/bin/sh\necho \"dry=$CAPTN_DRY_RUN\"\nexit 0\n")

	r := &Runner{}
	cfg := Config{Enabled: true, ScriptsDirectory: dir}
	result := r.Run(context.Background(), cfg, model.Container{Name: "web"}, Pre, true)
	assert.True(t, result.Ran)
	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, result.Output, "dry=true")
	assert.NoError(t, result.Err)
}

func TestRunCapturesOutputAndSuccessExitCode(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "post.sh", "#!/bin/sh\necho hello-from-hook\nexit 0\n")

	r := &Runner{}
	cfg := Config{Enabled: true, ScriptsDirectory: dir, Timeout: time.Second}
	result := r.Run(context.Background(), cfg, model.Container{Name: "web"}, Post, false)
	assert.True(t, result.Ran)
	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, result.Output, "hello-from-hook")
	assert.NoError(t, result.Err)
}

func TestRunNonZeroExitIsFailure(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "post.sh", "#!/bin/sh\nexit 7\n")

	r := &Runner{}
	cfg := Config{Enabled: true, ScriptsDirectory: dir, Timeout: time.Second}
	result := r.Run(context.Background(), cfg, model.Container{Name: "web"}, Post, false)
	assert.True(t, result.Ran)
	assert.Equal(t, 7, result.ExitCode)
	assert.Error(t, result.Err)
}

func TestRunTimeoutKillsLongRunningScript(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "post.sh", "#!/bin/sh\nsleep 5\nexit 0\n")

	r := &Runner{}
	cfg := Config{Enabled: true, ScriptsDirectory: dir, Timeout: 100 * time.Millisecond}
	result := r.Run(context.Background(), cfg, model.Container{Name: "web"}, Post, false)
	assert.True(t, result.Ran)
	assert.Error(t, result.Err)
}

func TestEnvInjectsOnlyCaptnVariables(t *testing.T) {
	r := &Runner{ConfigDir: "/app/conf", LogLevel: "info"}
	cfg := Config{ScriptsDirectory: "/app/conf/scripts"}
	env := r.env(cfg, model.Container{Name: "web"}, Pre, false)
	require.Len(t, env, 6)
	assert.Contains(t, env, "CAPTN_CONTAINER_NAME=web")
	assert.Contains(t, env, "CAPTN_SCRIPT_TYPE=pre")
	assert.Contains(t, env, "CAPTN_DRY_RUN=false")
	assert.Contains(t, env, "CAPTN_CONFIG_DIR=/app/conf")
	assert.Contains(t, env, "CAPTN_SCRIPTS_DIR=/app/conf/scripts")
}
