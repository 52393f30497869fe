package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/Sushant736/propscholar-monorepo-sub000/internal/domain"
)

// State is the order state reported by the payment gateway.
type State string

const (
	StatePending    State = "PENDING"
	StateProcessing State = "PROCESSING"
	StateCompleted  State = "COMPLETED"
	StateFailed     State = "FAILED"
	StateCancelled  State = "CANCELLED"
)

var (
	// ErrInvalidCallbackSignature indicates the callback authorization did not match the configured credentials.
	ErrInvalidCallbackSignature = errors.New("payments: invalid callback signature")
	// ErrMalformedCallback indicates the callback body could not be parsed into a payment event.
	ErrMalformedCallback = errors.New("payments: malformed callback body")
	// ErrInvalidRequest indicates a gateway request was rejected before it was sent.
	ErrInvalidRequest = errors.New("payments: invalid request")
)

// Gateway isolates interaction with the remote payment gateway.
type Gateway interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (CreateOrderResult, error)
	GetOrderStatus(ctx context.Context, merchantOrderID string) (OrderStatusResult, error)
	ValidateCallback(ctx context.Context, authorization string, body []byte) (Callback, error)
}

// CreateOrderRequest describes a payment order to open on the gateway.
type CreateOrderRequest struct {
	MerchantOrderID string
	Amount          decimal.Decimal
	RedirectURL     string
}

// CreateOrderResult is the gateway response to a created payment order.
type CreateOrderResult struct {
	GatewayOrderID string
	RedirectURL    string
	ExpireAt       *time.Time
	State          State
	Raw            map[string]any
}

// PaymentAttempt describes one payment try recorded by the gateway for an order.
type PaymentAttempt struct {
	TransactionID     string
	PaymentMode       string
	State             State
	Amount            int64
	ErrorCode         string
	DetailedErrorCode string
	Timestamp         *time.Time
}

// OrderStatusResult is the gateway view of a payment order.
type OrderStatusResult struct {
	GatewayOrderID  string
	MerchantOrderID string
	State           State
	Amount          int64
	ExpireAt        *time.Time
	Attempts        []PaymentAttempt
	Raw             map[string]any
}

// LatestAttempt returns the attempt matching the order state, falling back to the most recent one.
func (r OrderStatusResult) LatestAttempt() (PaymentAttempt, bool) {
	return latestAttempt(r.State, r.Attempts)
}

// CallbackPayload is the normalised body of a gateway webhook.
type CallbackPayload struct {
	GatewayOrderID    string
	MerchantOrderID   string
	TransactionID     string
	Amount            int64
	State             State
	ErrorCode         string
	DetailedErrorCode string
	PaymentMode       string
	Timestamp         *time.Time
}

// Callback is a validated gateway webhook.
type Callback struct {
	Type    string
	Payload CallbackPayload
	Raw     map[string]any
}

// GatewayError reports a failed call to the gateway API, distinct from a gateway-reported payment failure.
type GatewayError struct {
	Op         string
	StatusCode int
	Code       string
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("payments: ")
	b.WriteString(e.Op)
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Code != "" {
		b.WriteString(": ")
		b.WriteString(e.Code)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes the transport error, if any.
func (e *GatewayError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Logger receives structured gateway events.
type Logger func(ctx context.Context, event string, fields map[string]any)

var stateMapping = map[State]domain.PaymentStatus{
	StatePending:    domain.PaymentStatusPending,
	StateProcessing: domain.PaymentStatusProcessing,
	StateCompleted:  domain.PaymentStatusCompleted,
	StateFailed:     domain.PaymentStatusFailed,
	StateCancelled:  domain.PaymentStatusCancelled,
}

// MapState converts a gateway state into the local payment status. Unknown states map to pending.
func MapState(state State) domain.PaymentStatus {
	normalized := State(strings.ToUpper(strings.TrimSpace(string(state))))
	if status, ok := stateMapping[normalized]; ok {
		return status
	}
	return domain.PaymentStatusPending
}

func latestAttempt(state State, attempts []PaymentAttempt) (PaymentAttempt, bool) {
	if len(attempts) == 0 {
		return PaymentAttempt{}, false
	}
	for i := len(attempts) - 1; i >= 0; i-- {
		if strings.EqualFold(string(attempts[i].State), string(state)) {
			return attempts[i], true
		}
	}
	return attempts[len(attempts)-1], true
}
