package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pagination defines offset based paging inputs for list operations.
type Pagination struct {
	Page  int
	Limit int
}

// Page packages list results with the offset pagination envelope.
type Page[T any] struct {
	Items []T
	Page  int
	Limit int
	Total int
	Pages int
}

// OrderStatus enumerates the order lifecycle states.
type OrderStatus string

const (
	// OrderStatusPending marks orders awaiting payment.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed marks orders whose payment completed.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusProcessing marks orders being prepared for fulfilment.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusCompleted marks fulfilled orders.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled marks cancelled orders.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusRefunded marks refunded orders.
	OrderStatusRefunded OrderStatus = "refunded"
)

// IsTerminal reports whether no further automatic transition may leave the status.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusCompleted, OrderStatusCancelled, OrderStatusRefunded:
		return true
	}
	return false
}

// Valid reports whether the status is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing,
		OrderStatusCompleted, OrderStatusCancelled, OrderStatusRefunded:
		return true
	}
	return false
}

// PaymentStatus enumerates the payment sub-record states.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
)

// Valid reports whether the status is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusProcessing, PaymentStatusCompleted,
		PaymentStatusFailed, PaymentStatusCancelled:
		return true
	}
	return false
}

// Order is the aggregate root persisted for every checkout attempt.
type Order struct {
	ID              string
	OrderNumber     string
	UserID          string
	Items           []OrderItem
	Pricing         Pricing
	Status          OrderStatus
	Payment         PaymentDetails
	Customer        CustomerDetails
	ShippingAddress *Address
	BillingAddress  *Address
	Notes           string
	CancelReason    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ConfirmedAt     *time.Time
	CancelledAt     *time.Time
}

// OrderItem snapshots a purchased line at order time.
type OrderItem struct {
	ProductID   string
	VariantID   string
	ProductName string
	VariantName string
	SKU         string
	Quantity    int
	UnitPrice   decimal.Decimal
	TotalPrice  decimal.Decimal
}

// Pricing holds the monetary summary of an order in major currency units.
type Pricing struct {
	Subtotal     decimal.Decimal
	Tax          decimal.Decimal
	Discount     decimal.Decimal
	ShippingCost decimal.Decimal
	Total        decimal.Decimal
}

// PaymentDetails is the payment sub-record embedded in an order.
type PaymentDetails struct {
	Method               string
	MerchantOrderID      string
	GatewayOrderID       string
	GatewayTransactionID string
	Amount               int64
	Currency             string
	Status               PaymentStatus
	FailureReason        string
	RedirectURL          string
	ExpireAt             *time.Time
	GatewayRawResponse   map[string]any
	PaymentTimestamp     *time.Time
}

// CustomerDetails snapshots the buyer contact information.
type CustomerDetails struct {
	Name  string
	Email string
	Phone string
}

// Address captures a postal address snapshot.
type Address struct {
	Name       string
	Phone      string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// Cart is the user's basket joined with the catalog entries it references.
type Cart struct {
	UserID    string
	Lines     []CartLine
	UpdatedAt time.Time
}

// CartLine pairs a cart entry with the product and variant it points at.
type CartLine struct {
	ProductID string
	VariantID string
	Quantity  int
	Product   *Product
	Variant   *Variant
}

// Product is the catalog product as far as ordering is concerned.
type Product struct {
	ID       string
	Name     string
	IsActive bool
}

// Variant is the purchasable unit of a product.
type Variant struct {
	ID        string
	ProductID string
	Name      string
	SKU       string
	Price     decimal.Decimal
	Stock     int
	IsActive  bool
}

// StockLine requests a stock decrement for a single variant.
type StockLine struct {
	ProductID string
	VariantID string
	Quantity  int
}

// UserProfile holds the account fields used to default customer details.
type UserProfile struct {
	ID    string
	Name  string
	Email string
	Phone string
}

// OrderStats summarises orders by lifecycle and payment status.
type OrderStats struct {
	Total           int
	ByStatus        map[OrderStatus]int
	ByPaymentStatus map[PaymentStatus]int
	Revenue         decimal.Decimal
}

const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
	HealthStatusError    = "error"
)

// HealthCheck is the outcome of a single dependency probe.
type HealthCheck struct {
	Status    string
	Detail    string
	Latency   time.Duration
	CheckedAt time.Time
}

// HealthReport aggregates dependency probes for the health endpoint.
type HealthReport struct {
	Status      string
	Checks      map[string]HealthCheck
	GeneratedAt time.Time
}
