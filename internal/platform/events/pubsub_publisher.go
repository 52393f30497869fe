package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/Sushant736/propscholar-monorepo-sub000/internal/platform/textutil"
	"github.com/Sushant736/propscholar-monorepo-sub000/internal/services"
)

// PubSubPublisher publishes order events to a Pub/Sub topic. Messages for one order share
// an ordering key so subscribers see them in publish order when the topic enables ordering.
type PubSubPublisher struct {
	topic *pubsub.Topic
}

// NewPubSubPublisher wraps topic. Message ordering is enabled on the topic handle.
func NewPubSubPublisher(topic *pubsub.Topic) (*PubSubPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub publisher: topic is required")
	}
	topic.EnableMessageOrdering = true
	return &PubSubPublisher{topic: topic}, nil
}

// PublishOrderEvent publishes event and waits for the server acknowledgement.
func (p *PubSubPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub publisher: not initialised")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:        data,
		Attributes:  attributes(event),
		OrderingKey: event.OrderID,
	})
	if _, err := result.Get(ctx); err != nil {
		// A failed publish pauses the ordering key until resumed.
		p.topic.ResumePublish(event.OrderID)
		return fmt.Errorf("publish order event %s: %w", event.Type, err)
	}
	return nil
}

// Stop flushes pending messages.
func (p *PubSubPublisher) Stop() {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
}

func attributes(event services.OrderEvent) map[string]string {
	return textutil.CompactAttributes(map[string]string{
		"eventId":       event.ID,
		"type":          event.Type,
		"orderId":       event.OrderID,
		"orderNumber":   event.OrderNumber,
		"status":        event.Status,
		"paymentStatus": event.PaymentStatus,
		"source":        event.Source,
	})
}
