package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/Sushant736/propscholar-monorepo-sub000/internal/domain"
	"github.com/Sushant736/propscholar-monorepo-sub000/internal/repositories"
)

const (
	defaultOrderPageLimit = 10
	maxOrderPageLimit     = 100
	defaultCancelReason   = "cancelled by customer"
	maxCancelReasonLength = 500
)

var (
	// ErrOrderInvalidInput indicates the caller supplied invalid input parameters.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order does not exist or is not visible to the caller.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates the order's current state forbids the operation.
	ErrOrderInvalidState = errors.New("order: invalid state")
	// ErrOrderUnavailable indicates the order store is currently unavailable.
	ErrOrderUnavailable = errors.New("order: unavailable")
)

// OrderServiceDeps wires the order query and cancellation service.
type OrderServiceDeps struct {
	Orders repositories.OrderRepository
	Events OrderEventPublisher
	Clock  func() time.Time
	Logger Logger
}

type orderService struct {
	orders repositories.OrderRepository
	events OrderEventPublisher
	now    func() time.Time
	logger Logger
}

// NewOrderService constructs an OrderService validating required dependencies.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	svc := &orderService{
		orders: deps.Orders,
		events: deps.Events,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: deps.Logger,
	}
	if svc.events == nil {
		svc.events = noopPublisher{}
	}
	if svc.logger == nil {
		svc.logger = noopLogger
	}
	return svc, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, translateOrderError(orderID, err)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.Page[Order], error) {
	for _, status := range filter.Status {
		if !status.Valid() {
			return domain.Page[Order]{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, status)
		}
	}
	for _, status := range filter.PaymentStatus {
		if !status.Valid() {
			return domain.Page[Order]{}, fmt.Errorf("%w: unknown payment status %q", ErrOrderInvalidInput, status)
		}
	}
	filter.UserID = strings.TrimSpace(filter.UserID)
	if filter.Pagination.Page < 1 {
		filter.Pagination.Page = 1
	}
	switch {
	case filter.Pagination.Limit <= 0:
		filter.Pagination.Limit = defaultOrderPageLimit
	case filter.Pagination.Limit > maxOrderPageLimit:
		filter.Pagination.Limit = maxOrderPageLimit
	}

	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.Page[Order]{}, fmt.Errorf("%w: %w", ErrOrderUnavailable, err)
	}
	if page.Items == nil {
		page.Items = []Order{}
	}
	return page, nil
}

// CancelOrder cancels an unpaid order. Eligibility is re-checked by the store.
func (s *orderService) CancelOrder(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	current, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, translateOrderError(orderID, err)
	}
	if err := cancelEligibility(current); err != nil {
		return Order{}, err
	}

	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		reason = defaultCancelReason
	}
	if len([]rune(reason)) > maxCancelReasonLength {
		reason = string([]rune(reason)[:maxCancelReasonLength])
	}

	cancelled, err := s.orders.Cancel(ctx, orderID, reason, s.now())
	if err != nil {
		if errors.Is(err, repositories.ErrOrderNotCancellable) {
			return Order{}, fmt.Errorf("%w: order changed before it could be cancelled", ErrOrderInvalidState)
		}
		return Order{}, translateOrderError(orderID, err)
	}

	s.logger(ctx, "orders.cancelled", map[string]any{
		"orderId": cancelled.ID,
		"actorId": strings.TrimSpace(cmd.ActorID),
		"reason":  reason,
	})
	publishEvents(ctx, s.events, s.logger, newOrderEvent(EventOrderCancelled, cancelled, "customer", cancelled.UpdatedAt))
	return cancelled, nil
}

func (s *orderService) Stats(ctx context.Context, userID string) (OrderStats, error) {
	stats, err := s.orders.Stats(ctx, strings.TrimSpace(userID))
	if err != nil {
		return OrderStats{}, fmt.Errorf("%w: %w", ErrOrderUnavailable, err)
	}
	return stats, nil
}

func cancelEligibility(order Order) error {
	switch {
	case order.Payment.Status == domain.PaymentStatusCompleted:
		return fmt.Errorf("%w: order is already paid", ErrOrderInvalidState)
	case order.Status == domain.OrderStatusCancelled:
		return fmt.Errorf("%w: order is already cancelled", ErrOrderInvalidState)
	case !domain.CancelEligible(order):
		return fmt.Errorf("%w: order is %s", ErrOrderInvalidState, order.Status)
	}
	return nil
}

func translateOrderError(orderID string, err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return fmt.Errorf("%w: %w", ErrOrderUnavailable, err)
}
