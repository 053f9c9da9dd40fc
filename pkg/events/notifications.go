package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/replaykit/replaykit/pkg/models"
)

// NotificationType identifies a bus notification. Notifications are advisory
// wake-ups between processes; the durable truth stays in the store.
type NotificationType string

const (
	// RunQueuedNotification is published after an item lands in the queue so
	// schedulers claim promptly instead of waiting out a poll interval.
	RunQueuedNotification NotificationType = "queue.run.queued"

	// RunFinishedNotification is published when a run reaches a terminal
	// status, for observers such as trigger sources and dashboards.
	RunFinishedNotification NotificationType = "queue.run.finished"
)

// Topic is the bus topic carrying run notifications.
const Topic = "replaykit.runs"

const NotificationKeyMetadata = "key"
const NotificationTypeMetadata = "notification_type"

// Notification is implemented by every bus message payload.
type Notification interface {
	GetType() NotificationType
}

// BaseNotification carries the fields shared by all notifications.
type BaseNotification struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	EngineID  string    `json:"engine_id,omitempty"`
}

// NewBaseNotification stamps a fresh notification id and timestamp.
func NewBaseNotification() BaseNotification {
	return BaseNotification{
		ID:        "ntf-" + uuid.New().String()[:8],
		Timestamp: time.Now().UTC(),
	}
}

// RunQueued announces a newly enqueued run.
type RunQueued struct {
	BaseNotification

	RunID    string `json:"run_id"`
	FlowID   string `json:"flow_id"`
	ItemID   string `json:"item_id"`
	Priority int    `json:"priority"`
}

func (n RunQueued) GetType() NotificationType {
	return RunQueuedNotification
}

// RunFinished announces a run reaching a terminal status.
type RunFinished struct {
	BaseNotification

	RunID       string           `json:"run_id"`
	FlowID      string           `json:"flow_id"`
	Status      models.RunStatus `json:"status"`
	ErrorKind   models.ErrorKind `json:"error_kind,omitempty"`
	ErrorDetail string           `json:"error_detail,omitempty"`
	DurationMs  int64            `json:"duration_ms"`
}

func (n RunFinished) GetType() NotificationType {
	return RunFinishedNotification
}
