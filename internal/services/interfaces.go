package services

import (
	"context"
	"time"

	domain "github.com/Sushant736/propscholar-monorepo-sub000/internal/domain"
	"github.com/Sushant736/propscholar-monorepo-sub000/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Order           = domain.Order
	OrderItem       = domain.OrderItem
	OrderStatus     = domain.OrderStatus
	PaymentStatus   = domain.PaymentStatus
	Pagination      = domain.Pagination
	Address         = domain.Address
	CustomerDetails = domain.CustomerDetails
	OrderStats      = domain.OrderStats
)

// Logger receives structured service events. Event names are dotted, e.g. "checkout.created".
type Logger func(ctx context.Context, event string, fields map[string]any)

// CheckoutService turns a user's cart into a pending order with an open gateway payment.
type CheckoutService interface {
	CreateOrderFromCart(ctx context.Context, cmd CreateOrderCommand) (CheckoutResult, error)
}

// PaymentReconciliationService brings local payment state in line with the gateway.
type PaymentReconciliationService interface {
	HandlePaymentCallback(ctx context.Context, authorization string, body []byte) (CallbackResult, error)
	// CheckPaymentStatus polls the gateway for an order owned by userID.
	CheckPaymentStatus(ctx context.Context, userID, orderID string) (PaymentStatusView, error)
	// ReconcileOrder polls the gateway for any order. Used by internal callers.
	ReconcileOrder(ctx context.Context, orderID string) (PaymentStatusView, error)
}

// OrderService exposes order reads and user cancellation.
type OrderService interface {
	GetOrder(ctx context.Context, orderID string) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.Page[Order], error)
	CancelOrder(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	Stats(ctx context.Context, userID string) (OrderStats, error)
}

// OrderNumberGenerator issues human-facing order numbers.
type OrderNumberGenerator interface {
	Generate(ctx context.Context) (string, error)
}

// OrderEventPublisher delivers order lifecycle events to downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// CallbackArchiver stores rejected or unmatched gateway callbacks for later inspection.
type CallbackArchiver interface {
	Archive(ctx context.Context, reason string, body []byte) (string, error)
}

// Metrics records business counters. observability.Metrics satisfies it.
type Metrics interface {
	OrderCreated(result string)
	PaymentReconciled(source, outcome string)
	CallbackRejected(reason string)
}

// CreateOrderCommand carries the checkout request. Nil details default from the user profile.
type CreateOrderCommand struct {
	UserID          string
	Customer        *CustomerDetails
	ShippingAddress *Address
	BillingAddress  *Address
	Notes           string
	RedirectURL     string
}

// CheckoutPayment is the gateway redirect information returned to the storefront.
type CheckoutPayment struct {
	RedirectURL     string
	MerchantOrderID string
	GatewayOrderID  string
	ExpireAt        *time.Time
}

// CheckoutResult is the created order together with its payment redirect.
type CheckoutResult struct {
	Order   Order
	Payment CheckoutPayment
}

// CallbackResult reports what a gateway callback did to the order.
type CallbackResult struct {
	Type           string
	Order          Order
	PreviousStatus OrderStatus
	Transitioned   bool
	SideEffects    bool
}

// PaymentStatusView is the poll response for an order's payment.
type PaymentStatusView struct {
	OrderID         string
	OrderNumber     string
	Status          OrderStatus
	PaymentStatus   PaymentStatus
	MerchantOrderID string
	GatewayOrderID  string
	TransactionID   string
	Amount          int64
	Advisory        string
}

// OrderListFilter narrows order listings. The zero UserID lists every user's orders.
type OrderListFilter = repositories.OrderListFilter

// CancelOrderCommand requests cancellation on behalf of ActorID.
type CancelOrderCommand struct {
	OrderID string
	ActorID string
	Reason  string
}

type noopMetrics struct{}

func (noopMetrics) OrderCreated(string)              {}
func (noopMetrics) PaymentReconciled(string, string) {}
func (noopMetrics) CallbackRejected(string)          {}

type noopPublisher struct{}

func (noopPublisher) PublishOrderEvent(context.Context, OrderEvent) error { return nil }

func noopLogger(context.Context, string, map[string]any) {}
