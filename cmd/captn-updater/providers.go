package main

import (
	"go.uber.org/zap"

	"github.com/ocelot-cloud/captn-updater/internal/clock"
	"github.com/ocelot-cloud/captn-updater/internal/config"
	"github.com/ocelot-cloud/captn-updater/internal/containerdriver"
	"github.com/ocelot-cloud/captn-updater/internal/coordinator"
	"github.com/ocelot-cloud/captn-updater/internal/executor"
	"github.com/ocelot-cloud/captn-updater/internal/hooks"
	"github.com/ocelot-cloud/captn-updater/internal/registry"
)

// Provider functions for the wire graph declared in build.go. Kept in a
// plain (non-wireinject-tagged) file, unlike the teacher's own build.go
// which inlines its NewX providers under the wireinject tag — the
// teacher's Initialize is consequently unreachable from a normal build
// (main.go calls buildManager() directly instead); splitting providers
// out here is what lets wire_gen.go's hand-sequenced Initialize actually
// compile and run.

// NewLogger builds the process-wide zap logger from --log-level (§10:
// "constructed at startup ... injected into every component constructor").
func NewLogger(logLevel string) (*zap.SugaredLogger, error) {
	level, err := zap.ParseAtomicLevel(mapLogLevel(logLevel))
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}

// mapLogLevel translates §6's five-level scheme onto zap's four levels;
// "critical" has no zap equivalent and maps to its closest, "error".
func mapLogLevel(level string) string {
	switch level {
	case "debug":
		return "debug"
	case "warning":
		return "warn"
	case "error", "critical":
		return "error"
	default:
		return "info"
	}
}

func NewContainerDriver() (*containerdriver.Driver, error) {
	return containerdriver.New()
}

func NewRegistryClient(cfg config.Config) (*registry.Client, error) {
	creds, err := registry.LoadCredentialStore(cfg.RegistryAuth.CredentialsFile, cfg.RegistryAuth.Enabled)
	if err != nil {
		return nil, err
	}
	return &registry.Client{
		DockerHub:      &registry.DockerHubProfile{PageSize: cfg.Docker.PageSize, PageCrawlLimit: cfg.Docker.PageCrawlLimit},
		GHCR:           &registry.GHCRProfile{},
		GenericV2:      &registry.GenericV2Profile{},
		Creds:          creds,
		PageSize:       cfg.Docker.PageSize,
		PageCrawlLimit: cfg.Docker.PageCrawlLimit,
	}, nil
}

func NewHooksRunner(logger *zap.SugaredLogger) *hooks.Runner {
	return &hooks.Runner{ConfigDir: "/etc/captn-updater", LogLevel: "info"}
}

func NewExecutor(driver *containerdriver.Driver, hooksRunner *hooks.Runner) *executor.Executor {
	return &executor.Executor{Driver: driver, Hooks: hooksRunner, Clock: clock.Real{}}
}

func NewCoordinator(driver *containerdriver.Driver, reg *registry.Client, exec *executor.Executor, logger *zap.SugaredLogger) *coordinator.Coordinator {
	return &coordinator.Coordinator{Driver: driver, Registry: reg, Executor: exec, Clock: clock.Real{}, Logger: logger}
}

func NewRunner(co *coordinator.Coordinator, cfg config.Config, logger *zap.SugaredLogger) *Runner {
	return &Runner{Coordinator: co, Config: cfg, Logger: logger}
}
