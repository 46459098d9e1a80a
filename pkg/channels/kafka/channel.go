// Package kafka provides the Kafka watermill transport used to fan notifications out across processes.
package kafka

import (
	"errors"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
)

// ErrNoBrokers is returned when no Kafka broker address is configured.
var ErrNoBrokers = errors.New("no kafka brokers configured")

type Config struct {
	Brokers []string
	// ConsumerGroup is shared by every replica of one service, so each notification is
	// relayed once per service.
	ConsumerGroup string
}

// ConsumerGroup names the consumer group of a service.
func ConsumerGroup(serviceName string) string {
	return "applyflow-" + serviceName
}

// CreateChannel connects a publisher and a consumer-group subscriber. New groups start at
// the newest offset: notifications published while no relay ran are not replayed.
func CreateChannel(cfg Config, logger watermill.LoggerAdapter) (*kafka.Publisher, *kafka.Subscriber, error) {
	if len(cfg.Brokers) == 0 || cfg.Brokers[0] == "" {
		return nil, nil, ErrNoBrokers
	}

	group := cfg.ConsumerGroup
	if group == "" {
		group = ConsumerGroup("default")
	}

	saramaSubscriberConfig := kafka.DefaultSaramaSubscriberConfig()
	saramaSubscriberConfig.Consumer.Offsets.Initial = sarama.OffsetNewest

	subscriber, err := kafka.NewSubscriber(
		kafka.SubscriberConfig{
			Brokers:               cfg.Brokers,
			Unmarshaler:           kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: saramaSubscriberConfig,
			ConsumerGroup:         group,
			OTELEnabled:           true,
		},
		logger,
	)
	if err != nil {
		return nil, nil, err
	}

	saramaPublisherConfig := sarama.NewConfig()
	saramaPublisherConfig.Producer.Return.Successes = true
	saramaPublisherConfig.Producer.RequiredAcks = sarama.WaitForAll

	publisher, err := kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:               cfg.Brokers,
			Marshaler:             kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: saramaPublisherConfig,
			OTELEnabled:           true,
		},
		logger,
	)
	if err != nil {
		_ = subscriber.Close()
		return nil, nil, err
	}

	return publisher, subscriber, nil
}
