package domain

import (
	"strings"
	"time"
)

const defaultFailureReason = "payment failed"

// PaymentOutcome is a normalised gateway observation of an order's payment, from a callback or a poll.
type PaymentOutcome struct {
	Status            PaymentStatus
	GatewayOrderID    string
	TransactionID     string
	ErrorCode         string
	DetailedErrorCode string
	PaymentTimestamp  *time.Time
	Raw               map[string]any
	ObservedAt        time.Time
}

// PaymentTransition describes what applying an outcome changed.
type PaymentTransition struct {
	PreviousStatus        OrderStatus
	PreviousPaymentStatus PaymentStatus
	StatusChanged         bool
	PaymentChanged        bool
	// SideEffects is true only for the pending to confirmed transition, which must decrement
	// stock and clear the cart exactly once.
	SideEffects bool
}

// ApplyPaymentOutcome returns the order after applying outcome together with a description of the
// transition. Terminal orders and already-completed payments only receive the audit fields.
func ApplyPaymentOutcome(order Order, outcome PaymentOutcome) (Order, PaymentTransition) {
	transition := PaymentTransition{
		PreviousStatus:        order.Status,
		PreviousPaymentStatus: order.Payment.Status,
	}

	if outcome.Raw != nil {
		order.Payment.GatewayRawResponse = outcome.Raw
	}
	if !outcome.ObservedAt.IsZero() {
		order.UpdatedAt = outcome.ObservedAt
	}
	if order.Payment.GatewayOrderID == "" {
		order.Payment.GatewayOrderID = strings.TrimSpace(outcome.GatewayOrderID)
	}

	if order.Status.IsTerminal() || order.Payment.Status == PaymentStatusCompleted {
		return order, transition
	}

	switch outcome.Status {
	case PaymentStatusCompleted:
		order.Payment.Status = PaymentStatusCompleted
		order.Payment.FailureReason = ""
		if txn := strings.TrimSpace(outcome.TransactionID); txn != "" {
			order.Payment.GatewayTransactionID = txn
		}
		order.Payment.PaymentTimestamp = outcomeTimestamp(outcome)
		if order.Status == OrderStatusPending {
			confirmedAt := outcome.ObservedAt
			order.Status = OrderStatusConfirmed
			order.ConfirmedAt = &confirmedAt
			transition.SideEffects = true
		}
	case PaymentStatusFailed:
		order.Payment.Status = PaymentStatusFailed
		order.Payment.FailureReason = failureReason(outcome)
		order.Payment.PaymentTimestamp = outcomeTimestamp(outcome)
		cancelledAt := outcome.ObservedAt
		order.Status = OrderStatusCancelled
		order.CancelledAt = &cancelledAt
		if order.CancelReason == "" {
			order.CancelReason = order.Payment.FailureReason
		}
	case PaymentStatusCancelled:
		order.Payment.Status = PaymentStatusCancelled
	case PaymentStatusPending, PaymentStatusProcessing:
		order.Payment.Status = outcome.Status
	}

	transition.StatusChanged = order.Status != transition.PreviousStatus
	transition.PaymentChanged = order.Payment.Status != transition.PreviousPaymentStatus
	return order, transition
}

// GatewayOrder is the gateway's answer to a payment order creation.
type GatewayOrder struct {
	GatewayOrderID string
	RedirectURL    string
	ExpireAt       *time.Time
	Raw            map[string]any
	RecordedAt     time.Time
}

// RecordGatewayOrder merges the gateway order fields into the stored order. Order and payment
// status are never changed, and the raw response is kept only while the payment is pending so
// an earlier callback's payload survives.
func RecordGatewayOrder(order Order, gw GatewayOrder) Order {
	if id := strings.TrimSpace(gw.GatewayOrderID); id != "" && order.Payment.GatewayOrderID == "" {
		order.Payment.GatewayOrderID = id
	}
	if url := strings.TrimSpace(gw.RedirectURL); url != "" {
		order.Payment.RedirectURL = url
	}
	if gw.ExpireAt != nil {
		order.Payment.ExpireAt = gw.ExpireAt
	}
	if gw.Raw != nil && order.Payment.Status == PaymentStatusPending {
		order.Payment.GatewayRawResponse = gw.Raw
	}
	if !gw.RecordedAt.IsZero() {
		order.UpdatedAt = gw.RecordedAt
	}
	return order
}

// MarkPaymentInitFailed marks the payment failed after the gateway order could not be created.
// It reports false and leaves the order untouched once the order or payment has moved on.
func MarkPaymentInitFailed(order Order, reason string, now time.Time) (Order, bool) {
	if order.Status != OrderStatusPending || order.Payment.Status != PaymentStatusPending {
		return order, false
	}
	order.Payment.Status = PaymentStatusFailed
	order.Payment.FailureReason = strings.TrimSpace(reason)
	if order.Payment.FailureReason == "" {
		order.Payment.FailureReason = defaultFailureReason
	}
	if !now.IsZero() {
		order.UpdatedAt = now
	}
	return order, true
}

// CancelEligible reports whether a user or staff member may cancel the order.
func CancelEligible(order Order) bool {
	return order.Payment.Status != PaymentStatusCompleted && order.Status != OrderStatusCancelled && !order.Status.IsTerminal()
}

// StockLines returns the stock decrements implied by the order's items.
func (o Order) StockLines() []StockLine {
	lines := make([]StockLine, 0, len(o.Items))
	for _, item := range o.Items {
		lines = append(lines, StockLine{ProductID: item.ProductID, VariantID: item.VariantID, Quantity: item.Quantity})
	}
	return lines
}

func failureReason(outcome PaymentOutcome) string {
	if code := strings.TrimSpace(outcome.ErrorCode); code != "" {
		return code
	}
	if code := strings.TrimSpace(outcome.DetailedErrorCode); code != "" {
		return code
	}
	return defaultFailureReason
}

func outcomeTimestamp(outcome PaymentOutcome) *time.Time {
	if outcome.PaymentTimestamp != nil {
		ts := outcome.PaymentTimestamp.UTC()
		return &ts
	}
	ts := outcome.ObservedAt
	return &ts
}
