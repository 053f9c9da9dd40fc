// Package registry provides the kind-to-executor dispatch table used by the
// runner.
package registry

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/replaykit/replaykit/pkg/models"
	"github.com/replaykit/replaykit/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

// Registry maps node kinds to executors. It is constructed once at process
// start and passed by reference; registration after the scheduler starts is
// not synchronized.
type Registry struct {
	logger    *slog.Logger
	executors map[string]protocol.Executor
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger,
		executors: make(map[string]protocol.Executor),
	}
}

// Register adds an executor under its kind. Registration is idempotent:
// re-registering a kind replaces the previous executor.
func (r *Registry) Register(executor protocol.Executor) {
	if _, replaced := r.executors[executor.Kind()]; replaced {
		r.logger.Warn("Replacing registered executor", "kind", executor.Kind())
	}

	r.executors[executor.Kind()] = executor
}

// Get returns the executor for kind. The runner turns a miss into a
// non-retryable config failure.
func (r *Registry) Get(kind string) (protocol.Executor, bool) {
	executor, ok := r.executors[kind]

	return executor, ok
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.executors))
	for kind := range r.executors {
		kinds = append(kinds, kind)
	}

	sort.Strings(kinds)

	return kinds
}

// ValidateFlow checks that every node kind resolves to a registered executor
// and that each node config satisfies the executor's JSON schema. Run after
// Flow.Validate so graph errors surface first.
func (r *Registry) ValidateFlow(flow *models.Flow) error {
	for _, node := range flow.Nodes {
		executor, ok := r.executors[node.Kind]
		if !ok {
			return fmt.Errorf("node %s: executor kind %q not registered", node.ID, node.Kind)
		}

		schema := executor.Schema()
		if schema == nil {
			continue
		}

		result, err := gojsonschema.Validate(
			gojsonschema.NewGoLoader(schema),
			gojsonschema.NewGoLoader(node.Config),
		)
		if err != nil {
			return fmt.Errorf("node %s: config schema validation: %w", node.ID, err)
		}

		if !result.Valid() {
			return fmt.Errorf("node %s: config does not match %q schema: %v",
				node.ID, node.Kind, result.Errors())
		}
	}

	return nil
}
