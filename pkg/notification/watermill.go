package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/applyflow/pkg/models"
)

const (
	// Topic carries JSON-encoded notifications.
	Topic = "applyflow.notifications"

	userIDMetadataKey = "user_id"
	typeMetadataKey   = "notification_type"
)

// WatermillSink publishes notifications to a watermill topic.
type WatermillSink struct {
	publisher message.Publisher
	topic     string
}

func NewWatermillSink(publisher message.Publisher, topic string) *WatermillSink {
	if topic == "" {
		topic = Topic
	}

	return &WatermillSink{publisher: publisher, topic: topic}
}

func (s *WatermillSink) Notify(_ context.Context, n *models.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	msg := message.NewMessage("ntf-"+watermill.NewULID(), payload)
	msg.Metadata.Set(userIDMetadataKey, n.UserID)
	msg.Metadata.Set(typeMetadataKey, string(n.Type))

	err = s.publisher.Publish(s.topic, msg)
	if err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	return nil
}

// Relay consumes a watermill topic and forwards each notification to a Sink, typically the
// Broker of an API process.
type Relay struct {
	subscriber message.Subscriber
	topic      string
	target     Sink
	logger     *slog.Logger
}

func NewRelay(subscriber message.Subscriber, topic string, target Sink, logger *slog.Logger) *Relay {
	if topic == "" {
		topic = Topic
	}

	return &Relay{subscriber: subscriber, topic: topic, target: target, logger: logger}
}

// Run forwards messages until ctx is cancelled or the subscription closes.
func (r *Relay) Run(ctx context.Context) error {
	messages, err := r.subscriber.Subscribe(ctx, r.topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.topic, err)
	}

	for msg := range messages {
		var n models.Notification

		err := json.Unmarshal(msg.Payload, &n)
		if err != nil {
			// Malformed payloads are acked so they are never redelivered.
			r.logger.ErrorContext(ctx, "Dropping malformed notification", "message_id", msg.UUID, "error", err)
			msg.Ack()

			continue
		}

		err = r.target.Notify(ctx, &n)
		if err != nil {
			r.logger.WarnContext(ctx, "Failed to relay notification", "message_id", msg.UUID, "error", err)
			msg.Nack()

			continue
		}

		msg.Ack()
	}

	return ctx.Err()
}
