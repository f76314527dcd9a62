// Hand-written stand-in for the injector Wire would generate from build.go.

//go:generate go run -mod=mod github.com/google/wire/cmd/wire
//go:build !wireinject
// +build !wireinject

package main

import (
	"github.com/ocelot-cloud/captn-updater/internal/config"
)

// Initialize wires the C1-C12 graph for one process lifetime. This is the
// hand-sequenced equivalent of what `wire gen` would emit from build.go's
// wire.Build call, following the teacher's own generated-file split
// (build.go under the wireinject tag, this file without it).
func Initialize(configFile string, logLevel string) (Deps, error) {
	logger, err := NewLogger(logLevel)
	if err != nil {
		return Deps{}, err
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		return Deps{}, err
	}
	driver, err := NewContainerDriver()
	if err != nil {
		return Deps{}, err
	}
	reg, err := NewRegistryClient(cfg)
	if err != nil {
		return Deps{}, err
	}
	hooksRunner := NewHooksRunner(logger)
	exec := NewExecutor(driver, hooksRunner)
	co := NewCoordinator(driver, reg, exec, logger)
	runner := NewRunner(co, cfg, logger)
	return Deps{Runner: runner}, nil
}
