package eventbus

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/parley/pkg/events"
)

type WatermillEventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber

	mu            sync.RWMutex
	subscriptions map[events.EventType]EventHandler
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber) EventBus {
	return &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		subscriptions: make(map[events.EventType]EventHandler),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))
	msg.Metadata.Set(events.BusinessIDMetadataKey, event.GetBusinessID())

	return eb.publisher.Publish(events.Topic, msg)
}

// Decode returns a pointer to the concrete event registered for eventType, filled from
// payload. The boolean is false for unknown event types.
func Decode(eventType events.EventType, payload []byte) (any, bool, error) {
	var event any

	switch eventType {
	case events.WorkflowCreatedEvent:
		event = &events.WorkflowCreated{}
	case events.WorkflowUpdatedEvent:
		event = &events.WorkflowUpdated{}
	case events.WorkflowDeletedEvent:
		event = &events.WorkflowDeleted{}
	case events.ConnectionRegisteredEvent:
		event = &events.ConnectionRegistered{}
	case events.ConnectionRoutingUpdatedEvent:
		event = &events.ConnectionRoutingUpdated{}
	case events.ConnectionStatusChangedEvent:
		event = &events.ConnectionStatusChanged{}
	case events.ConnectionDeletedEvent:
		event = &events.ConnectionDeleted{}
	case events.DefaultFlowStaleEvent:
		event = &events.DefaultFlowStale{}
	default:
		return nil, false, nil
	}

	err := json.Unmarshal(payload, event)
	if err != nil {
		return nil, true, err
	}

	return event, true, nil
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

			eb.mu.RLock()
			handler, exists := eb.subscriptions[eventType]
			eb.mu.RUnlock()

			if !exists {
				msg.Ack()

				continue
			}

			// Undecodable messages would be redelivered forever; drop them.
			event, known, err := Decode(eventType, msg.Payload)
			if !known || err != nil {
				msg.Ack()

				continue
			}

			err = handler(ctx, event)
			if err != nil {
				msg.Nack()

				continue
			}

			msg.Ack()
		}
	}()

	return nil
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscriptions[eventType] = handler

	return nil
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}
