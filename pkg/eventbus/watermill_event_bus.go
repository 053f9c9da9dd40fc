package eventbus

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/replaykit/replaykit/pkg/events"
)

type WatermillEventBus struct {
	publisher     message.Publisher
	subscriber    message.Subscriber
	subscriptions map[events.NotificationType]Handler
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber) EventBus {
	return &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		subscriptions: make(map[events.NotificationType]Handler),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(_ context.Context, key string, notification events.Notification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.Metadata.Set(events.NotificationKeyMetadata, key)
	msg.Metadata.Set(events.NotificationTypeMetadata, string(notification.GetType()))

	return eb.publisher.Publish(events.Topic, msg)
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			var notification any

			notificationType := events.NotificationType(msg.Metadata.Get(events.NotificationTypeMetadata))

			handler, exists := eb.subscriptions[notificationType]
			if !exists {
				msg.Ack()

				continue
			}

			switch notificationType {
			case events.RunQueuedNotification:
				notification = &events.RunQueued{}
			case events.RunFinishedNotification:
				notification = &events.RunFinished{}
			default:
				msg.Nack()

				continue
			}

			err := json.Unmarshal(msg.Payload, notification)
			if err != nil {
				msg.Nack()

				continue
			}

			err = handler(ctx, notification)
			if err != nil {
				msg.Nack()

				continue
			}

			msg.Ack()
		}
	}()

	return nil
}

func (eb *WatermillEventBus) Handle(notificationType events.NotificationType, handler Handler) error {
	eb.subscriptions[notificationType] = handler

	return nil
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}
