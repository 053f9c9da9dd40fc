// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"

	"github.com/replaykit/replaykit/pkg/executors"
	"github.com/replaykit/replaykit/pkg/registry"
)

// NewRegistry creates a registry with every built-in executor registered.
func NewRegistry(logger *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(logger)
	executors.RegisterAll(reg)

	return reg
}
