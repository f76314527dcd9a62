//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/ocelot-cloud/captn-updater/internal/config"
)

// Initialize wires the C1-C12 graph for one process lifetime, following
// the teacher's own wireinject Deps/Initialize pattern in build.go
// verbatim in structure; its NewX providers live in providers.go.
func Initialize(configFile string, logLevel string) (Deps, error) {
	wire.Build(
		NewLogger,
		config.Load,
		NewContainerDriver,
		NewRegistryClient,
		NewHooksRunner,
		NewExecutor,
		NewCoordinator,
		NewRunner,
		wire.Struct(new(Deps), "*"),
	)
	return Deps{}, nil
}
