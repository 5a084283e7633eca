package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/parley/pkg/channels/gochannel"
	"github.com/dukex/parley/pkg/channels/kafka"
	"github.com/dukex/parley/pkg/eventbus"
	"github.com/google/uuid"
)

const (
	EventBusGoChannel = "gochannel"
	EventBusKafka     = "kafka"

	kafkaConsumerGroup = "parley"
)

var ErrUnsupportedEventBus = errors.New("unsupported event bus provider")

// EventBus is the domain event bus plus the subscriber that feeds realtime sessions. With
// Kafka the session subscriber has a consumer group of its own so every API process sees
// every event.
type EventBus struct {
	eventbus.EventBus

	SessionSubscriber message.Subscriber
}

func (b *EventBus) Close() error {
	return errors.Join(b.EventBus.Close(), b.SessionSubscriber.Close())
}

// NewEventBus creates the event bus for provider. brokers is the comma separated Kafka
// broker list and is ignored by the in-memory provider.
func NewEventBus(provider, brokers string, logger *slog.Logger) (*EventBus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "", EventBusGoChannel:
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory pub/sub: %w", err)
		}

		return &EventBus{EventBus: eventbus.NewWatermillEventBus(pub, sub), SessionSubscriber: sub}, nil

	case EventBusKafka:
		brokerList := kafka.ParseBrokers(brokers)

		pub, sub, err := kafka.CreateChannel(wmLogger, brokerList, kafkaConsumerGroup)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		sessionSub, err := kafka.NewSubscriber(wmLogger, brokerList, kafkaConsumerGroup+"-sessions-"+uuid.NewString())
		if err != nil {
			_ = pub.Close()
			_ = sub.Close()

			return nil, fmt.Errorf("failed to create Kafka session subscriber: %w", err)
		}

		return &EventBus{EventBus: eventbus.NewWatermillEventBus(pub, sub), SessionSubscriber: sessionSub}, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEventBus, provider)
	}
}
