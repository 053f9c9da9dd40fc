package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/replaykit/replaykit/pkg/cmd"
	"github.com/replaykit/replaykit/pkg/log"
	"github.com/replaykit/replaykit/pkg/models"
	"github.com/replaykit/replaykit/pkg/persistence"
	"github.com/replaykit/replaykit/pkg/protocol"
	"github.com/replaykit/replaykit/pkg/queue"
	"github.com/replaykit/replaykit/pkg/registry"
	"github.com/replaykit/replaykit/pkg/services"
	cli "github.com/urfave/cli/v3"
)

// toolkit bundles everything a CLI action needs against one store.
type toolkit struct {
	store    persistence.Persistence
	registry *registry.Registry
	flows    *services.Flows
	runs     *services.Runs
	close    func(ctx context.Context)
}

func newToolkit(ctx context.Context, command *cli.Command) (*toolkit, error) {
	log.Setup(command.String("log-level"))
	logger := log.WithModule("replaykit-cli")

	store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return nil, err
	}

	if err := store.HealthCheck(ctx); err != nil {
		return nil, err
	}

	reg := cmd.NewRegistry(logger)
	q := queue.NewQueue(store.QueueRepository(), logger)

	return &toolkit{
		store:    store,
		registry: reg,
		flows:    services.NewFlows(store.FlowRepository(), reg, logger),
		runs:     services.NewRuns(store, q, nil, logger),
		close: func(ctx context.Context) {
			_ = store.Close(ctx)
		},
	}, nil
}

func printJSON(value any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")

	return encoder.Encode(value)
}

func readFlowFile(path string) (*models.Flow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read flow file: %w", err)
	}

	var flow models.Flow
	if err := json.Unmarshal(data, &flow); err != nil {
		return nil, fmt.Errorf("failed to parse flow file: %w", err)
	}

	return &flow, nil
}

func requireArg(command *cli.Command, name string) (string, error) {
	arg := command.Args().First()
	if arg == "" {
		return "", fmt.Errorf("missing required argument: %s", name)
	}

	return arg, nil
}

func validateAction(ctx context.Context, command *cli.Command) error {
	path, err := requireArg(command, "flow file")
	if err != nil {
		return err
	}

	tk, err := newToolkit(ctx, command)
	if err != nil {
		return err
	}
	defer tk.close(ctx)

	flow, err := readFlowFile(path)
	if err != nil {
		return err
	}

	if err := flow.Validate(); err != nil {
		return err
	}

	if err := tk.registry.ValidateFlow(flow); err != nil {
		return err
	}

	fmt.Printf("flow %q is valid (%d nodes, %d edges)\n", flow.Name, len(flow.Nodes), len(flow.Edges))

	return nil
}

func loadAction(ctx context.Context, command *cli.Command) error {
	path, err := requireArg(command, "flow file")
	if err != nil {
		return err
	}

	tk, err := newToolkit(ctx, command)
	if err != nil {
		return err
	}
	defer tk.close(ctx)

	flow, err := readFlowFile(path)
	if err != nil {
		return err
	}

	stored, err := tk.flows.Create(ctx, flow)
	if err != nil {
		return err
	}

	return printJSON(stored)
}

func executeAction(ctx context.Context, command *cli.Command) error {
	flowID, err := requireArg(command, "flow id")
	if err != nil {
		return err
	}

	tk, err := newToolkit(ctx, command)
	if err != nil {
		return err
	}
	defer tk.close(ctx)

	var args map[string]any

	if raw := command.String("args"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return errors.New("--args must be a JSON object")
		}
	}

	run, err := tk.runs.Execute(ctx, protocol.ExecuteRequest{
		FlowID:   flowID,
		Args:     args,
		Priority: command.Int("priority"),
	})
	if err != nil {
		return err
	}

	return printJSON(run)
}

func stateAction(ctx context.Context, command *cli.Command) error {
	runID, err := requireArg(command, "run id")
	if err != nil {
		return err
	}

	tk, err := newToolkit(ctx, command)
	if err != nil {
		return err
	}
	defer tk.close(ctx)

	run, err := tk.runs.State(ctx, runID)
	if err != nil {
		return err
	}

	return printJSON(run)
}

func eventsAction(ctx context.Context, command *cli.Command) error {
	runID, err := requireArg(command, "run id")
	if err != nil {
		return err
	}

	tk, err := newToolkit(ctx, command)
	if err != nil {
		return err
	}
	defer tk.close(ctx)

	log, err := tk.runs.Events(ctx, runID, int64(command.Int("since-seq")))
	if err != nil {
		return err
	}

	return printJSON(log)
}

func pauseAction(ctx context.Context, command *cli.Command) error {
	return controlAction(ctx, command, func(tk *toolkit, runID string) error {
		return tk.runs.Pause(ctx, runID)
	})
}

func resumeAction(ctx context.Context, command *cli.Command) error {
	return controlAction(ctx, command, func(tk *toolkit, runID string) error {
		return tk.runs.Resume(ctx, runID)
	})
}

func cancelAction(ctx context.Context, command *cli.Command) error {
	return controlAction(ctx, command, func(tk *toolkit, runID string) error {
		return tk.runs.Cancel(ctx, runID)
	})
}

func controlAction(ctx context.Context, command *cli.Command, op func(tk *toolkit, runID string) error) error {
	runID, err := requireArg(command, "run id")
	if err != nil {
		return err
	}

	tk, err := newToolkit(ctx, command)
	if err != nil {
		return err
	}
	defer tk.close(ctx)

	if err := op(tk, runID); err != nil {
		return err
	}

	fmt.Println("accepted")

	return nil
}
