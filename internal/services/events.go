package services

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Order event types.
const (
	EventOrderCreated        = "order.created"
	EventOrderPaymentUpdated = "order.payment.updated"
	EventOrderConfirmed      = "order.confirmed"
	EventOrderCancelled      = "order.cancelled"
)

// OrderEvent is the payload published for order lifecycle changes.
type OrderEvent struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	OrderID       string         `json:"orderId"`
	OrderNumber   string         `json:"orderNumber"`
	UserID        string         `json:"userId"`
	Status        string         `json:"status"`
	PaymentStatus string         `json:"paymentStatus"`
	Amount        int64          `json:"amount"`
	Currency      string         `json:"currency"`
	Source        string         `json:"source,omitempty"`
	OccurredAt    time.Time      `json:"occurredAt"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

func newOrderEvent(eventType string, order Order, source string, now time.Time) OrderEvent {
	return OrderEvent{
		ID:            uuid.NewString(),
		Type:          eventType,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		Status:        string(order.Status),
		PaymentStatus: string(order.Payment.Status),
		Amount:        order.Payment.Amount,
		Currency:      order.Payment.Currency,
		Source:        source,
		OccurredAt:    now.UTC(),
	}
}

// publishEvents is best effort; failures are logged and never returned.
func publishEvents(ctx context.Context, publisher OrderEventPublisher, logger Logger, events ...OrderEvent) {
	for _, event := range events {
		if err := publisher.PublishOrderEvent(ctx, event); err != nil {
			logger(ctx, "orders.event_publish_failed", map[string]any{
				"eventType": event.Type,
				"orderId":   event.OrderID,
				"error":     err.Error(),
			})
		}
	}
}
