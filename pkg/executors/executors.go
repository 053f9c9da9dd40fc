// Package executors wires the built-in node executors into a registry.
package executors

import (
	"github.com/replaykit/replaykit/pkg/executors/condition"
	"github.com/replaykit/replaykit/pkg/executors/delay"
	"github.com/replaykit/replaykit/pkg/executors/httprequest"
	logexecutor "github.com/replaykit/replaykit/pkg/executors/log"
	"github.com/replaykit/replaykit/pkg/executors/noop"
	"github.com/replaykit/replaykit/pkg/executors/transform"
	"github.com/replaykit/replaykit/pkg/registry"
)

// RegisterAll registers every built-in executor.
func RegisterAll(reg *registry.Registry) {
	reg.Register(noop.NewExecutor())
	reg.Register(logexecutor.NewExecutor())
	reg.Register(delay.NewExecutor())
	reg.Register(condition.NewExecutor())
	reg.Register(transform.NewExecutor())
	reg.Register(httprequest.NewExecutor())
}
