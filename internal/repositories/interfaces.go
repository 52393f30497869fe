package repositories

import (
	"context"
	"time"

	domain "github.com/Sushant736/propscholar-monorepo-sub000/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Carts() CartRepository
	Users() UserRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderRepository persists order documents together with their unique key reservations.
type OrderRepository interface {
	// Insert creates the order and reserves its order number and merchant order id in one
	// transaction. A taken key yields a RepositoryError with IsConflict.
	Insert(ctx context.Context, order domain.Order) error
	// RecordGatewayOrder re-reads the order inside a transaction and stores the gateway order
	// fields without changing order or payment status.
	RecordGatewayOrder(ctx context.Context, orderID string, gw domain.GatewayOrder) (domain.Order, error)
	// MarkPaymentInitFailed re-reads the order inside a transaction and fails the payment only
	// while order and payment are still pending. The boolean reports whether it changed.
	MarkPaymentInitFailed(ctx context.Context, orderID, reason string, now time.Time) (domain.Order, bool, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	OrderNumberExists(ctx context.Context, orderNumber string) (bool, error)
	List(ctx context.Context, filter OrderListFilter) (domain.Page[domain.Order], error)
	// ApplyPaymentOutcome re-reads the order inside a transaction, applies the payment
	// transition and, on the pending to confirmed transition only, decrements stock and
	// clears the owner's cart in the same transaction.
	ApplyPaymentOutcome(ctx context.Context, merchantOrderID string, outcome domain.PaymentOutcome) (PaymentOutcomeResult, error)
	// Cancel re-checks eligibility inside a transaction. Ineligible orders yield ErrOrderNotCancellable.
	Cancel(ctx context.Context, orderID string, reason string, now time.Time) (domain.Order, error)
	Stats(ctx context.Context, userID string) (domain.OrderStats, error)
}

// OrderListFilter narrows order listings. Empty slices match every value.
type OrderListFilter struct {
	UserID        string
	Status        []domain.OrderStatus
	PaymentStatus []domain.PaymentStatus
	Pagination    domain.Pagination
}

// PaymentOutcomeResult reports the stored order after a payment outcome was applied.
type PaymentOutcomeResult struct {
	Order      domain.Order
	Transition domain.PaymentTransition
}

// CartRepository reads user carts. Carts are cleared by ApplyPaymentOutcome.
type CartRepository interface {
	// LoadWithCatalog returns the cart with each line's product and variant attached. Missing
	// catalog entries leave Product or Variant nil.
	LoadWithCatalog(ctx context.Context, userID string) (domain.Cart, error)
}

// UserRepository reads account profiles.
type UserRepository interface {
	FindProfile(ctx context.Context, userID string) (domain.UserProfile, error)
}

// HealthRepository exposes the status of downstream dependencies.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.HealthReport, error)
}
