// Package eventbus carries advisory run notifications between the API,
// trigger sources, and scheduler processes. The bus only wakes consumers up;
// every durable decision is made against the store.
package eventbus

import (
	"context"

	"github.com/replaykit/replaykit/pkg/events"
)

type Publisher interface {
	Publish(ctx context.Context, key string, notification events.Notification) error
}

type Subscriber interface {
	Handle(notificationType events.NotificationType, handler Handler) error
	Subscribe(ctx context.Context) error
}

type Handler func(ctx context.Context, notification any) error

type EventBus interface {
	Publisher
	Subscriber
	Close() error
	GenerateID() string
}
