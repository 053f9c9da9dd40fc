// Package queue provides a Redis-backed trigger source: external systems
// push execute requests onto a Redis list and the trigger drains it into the
// engine.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/replaykit/replaykit/pkg/protocol"
)

const defaultListKey = "replaykit:execute"

// Trigger consumes execute requests from a Redis list with BLPOP.
type Trigger struct {
	client  *redis.Client
	listKey string
	logger  *slog.Logger
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewTrigger connects to redisURL and consumes listKey ("" for the default).
func NewTrigger(redisURL, listKey string, logger *slog.Logger) (*Trigger, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	if listKey == "" {
		listKey = defaultListKey
	}

	return &Trigger{
		client:  redis.NewClient(opts),
		listKey: listKey,
		logger:  logger.With("module", "queue_trigger", "list", listKey),
	}, nil
}

func (t *Trigger) Validate() error {
	if t.listKey == "" {
		return errors.New("queue trigger requires a list key")
	}

	return nil
}

// Start begins draining the list in a background goroutine.
func (t *Trigger) Start(ctx context.Context, callback protocol.TriggerCallback) error {
	if err := t.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	consumeCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})

	go t.consume(consumeCtx, callback)

	t.logger.InfoContext(ctx, "Queue trigger started")

	return nil
}

func (t *Trigger) consume(ctx context.Context, callback protocol.TriggerCallback) {
	defer close(t.done)

	for {
		result, err := t.client.BLPop(ctx, 5*time.Second, t.listKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}

			if ctx.Err() != nil {
				return
			}

			t.logger.ErrorContext(ctx, "Failed to pop execute request", "error", err)

			continue
		}

		// BLPop returns [key, value].
		if len(result) < 2 {
			continue
		}

		var req protocol.ExecuteRequest

		if err := json.Unmarshal([]byte(result[1]), &req); err != nil {
			t.logger.WarnContext(ctx, "Discarding malformed execute request", "error", err)

			continue
		}

		runID, err := callback(ctx, req)
		if err != nil {
			t.logger.ErrorContext(ctx, "Queued execution failed",
				"flow_id", req.FlowID, "error", err)

			continue
		}

		t.logger.InfoContext(ctx, "Queued run enqueued",
			"flow_id", req.FlowID, "run_id", runID)
	}
}

// Stop halts consumption and closes the connection.
func (t *Trigger) Stop(ctx context.Context) error {
	if t.cancel != nil {
		t.cancel()

		select {
		case <-t.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return t.client.Close()
}
