package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/applyflow/pkg/channels/gochannel"
	"github.com/dukex/applyflow/pkg/channels/kafka"
	"github.com/dukex/applyflow/pkg/config"
	"github.com/dukex/applyflow/pkg/notification"
)

// Notifications is the notification plumbing of one process. Producers notify Sink; the
// Broker serves subscribers of this process.
type Notifications struct {
	Broker *notification.Broker
	Sink   notification.Sink

	relay      *notification.Relay
	publisher  message.Publisher
	subscriber message.Subscriber
}

// NewNotifications builds the transport of cfg. With a watermill transport notifications
// are published to the topic and relayed back into the local broker, so processes sharing
// a Kafka cluster see each other's notifications.
func NewNotifications(cfg config.Notifications, serviceName string, logger *slog.Logger) (*Notifications, error) {
	broker := notification.NewBroker(cfg.Buffer, logger.With("component", "broker"))
	wmLogger := watermill.NewSlogLogger(logger)

	var (
		publisher  message.Publisher
		subscriber message.Subscriber
		err        error
	)

	switch cfg.Transport {
	case "", "memory":
		return &Notifications{Broker: broker, Sink: broker}, nil
	case "gochannel":
		publisher, subscriber, err = gochannel.CreateChannel(gochannel.Options{Buffer: int64(cfg.Buffer)}, wmLogger)
	case "kafka":
		publisher, subscriber, err = kafka.CreateChannel(kafka.Config{
			Brokers:       cfg.Brokers,
			ConsumerGroup: kafka.ConsumerGroup(serviceName),
		}, wmLogger)
	default:
		return nil, fmt.Errorf("unsupported notification transport %q", cfg.Transport)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create %s pub/sub: %w", cfg.Transport, err)
	}

	return &Notifications{
		Broker:     broker,
		Sink:       notification.NewWatermillSink(publisher, cfg.Topic),
		relay:      notification.NewRelay(subscriber, cfg.Topic, broker, logger.With("component", "relay")),
		publisher:  publisher,
		subscriber: subscriber,
	}, nil
}

// Run relays the topic into the broker until ctx ends. It returns at once for the memory
// transport.
func (n *Notifications) Run(ctx context.Context) error {
	if n.relay == nil {
		return nil
	}

	return n.relay.Run(ctx)
}

func (n *Notifications) Close() error {
	var errs []error

	if n.publisher != nil {
		errs = append(errs, n.publisher.Close())
	}

	if n.subscriber != nil && any(n.subscriber) != any(n.publisher) {
		errs = append(errs, n.subscriber.Close())
	}

	return errors.Join(errs...)
}
