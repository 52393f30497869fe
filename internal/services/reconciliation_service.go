package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/Sushant736/propscholar-monorepo-sub000/internal/domain"
	"github.com/Sushant736/propscholar-monorepo-sub000/internal/payments"
	"github.com/Sushant736/propscholar-monorepo-sub000/internal/repositories"
)

const (
	// GatewayUnreachableAdvisory accompanies a poll response built from stored state only.
	GatewayUnreachableAdvisory = "payment gateway could not be reached; showing last known status"

	sourceCallback  = "callback"
	sourcePoll      = "poll"
	sourceReconcile = "reconcile"

	archiveReasonRejected  = "rejected"
	archiveReasonUnmatched = "unmatched"
)

var (
	// ErrCallbackRejected indicates a gateway callback failed authentication or parsing. The
	// underlying payments error stays reachable through errors.Is.
	ErrCallbackRejected = errors.New("reconciliation: callback rejected")
	// ErrReconciliationUnavailable indicates the order store could not apply the outcome.
	ErrReconciliationUnavailable = errors.New("reconciliation: unavailable")
)

// PaymentReconciliationServiceDeps wires the reconciliation service.
type PaymentReconciliationServiceDeps struct {
	Orders  repositories.OrderRepository
	Gateway payments.Gateway
	Events  OrderEventPublisher
	Metrics Metrics
	Archive CallbackArchiver
	Clock   func() time.Time
	Logger  Logger
}

type reconciliationService struct {
	orders  repositories.OrderRepository
	gateway payments.Gateway
	events  OrderEventPublisher
	metrics Metrics
	archive CallbackArchiver
	now     func() time.Time
	logger  Logger
}

// NewPaymentReconciliationService constructs the reconciliation service.
func NewPaymentReconciliationService(deps PaymentReconciliationServiceDeps) (PaymentReconciliationService, error) {
	if deps.Orders == nil {
		return nil, errors.New("reconciliation service: order repository is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("reconciliation service: payment gateway is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	svc := &reconciliationService{
		orders:  deps.Orders,
		gateway: deps.Gateway,
		events:  deps.Events,
		metrics: deps.Metrics,
		archive: deps.Archive,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: deps.Logger,
	}
	if svc.events == nil {
		svc.events = noopPublisher{}
	}
	if svc.metrics == nil {
		svc.metrics = noopMetrics{}
	}
	if svc.logger == nil {
		svc.logger = noopLogger
	}
	return svc, nil
}

// HandlePaymentCallback authenticates the webhook and applies its outcome to the matching order.
func (s *reconciliationService) HandlePaymentCallback(ctx context.Context, authorization string, body []byte) (CallbackResult, error) {
	callback, err := s.gateway.ValidateCallback(ctx, authorization, body)
	if err != nil {
		reason := "malformed"
		if errors.Is(err, payments.ErrInvalidCallbackSignature) {
			reason = "signature"
		}
		s.metrics.CallbackRejected(reason)
		s.logger(ctx, "payment.callback.rejected", map[string]any{
			"reason":    reason,
			"bodyBytes": len(body),
			"error":     err.Error(),
		})
		s.archiveBody(ctx, archiveReasonRejected, body)
		return CallbackResult{}, fmt.Errorf("%w: %w", ErrCallbackRejected, err)
	}

	merchantOrderID := callback.Payload.MerchantOrderID
	outcome := domain.PaymentOutcome{
		Status:            payments.MapState(callback.Payload.State),
		GatewayOrderID:    callback.Payload.GatewayOrderID,
		TransactionID:     callback.Payload.TransactionID,
		ErrorCode:         callback.Payload.ErrorCode,
		DetailedErrorCode: callback.Payload.DetailedErrorCode,
		PaymentTimestamp:  callback.Payload.Timestamp,
		Raw:               callback.Raw,
		ObservedAt:        s.now(),
	}

	result, err := s.orders.ApplyPaymentOutcome(ctx, merchantOrderID, outcome)
	if err != nil {
		if isNotFound(err) {
			s.metrics.PaymentReconciled(sourceCallback, "order_missing")
			s.logger(ctx, "payment.callback.order_missing", map[string]any{
				"merchantOrderId": merchantOrderID,
				"gatewayOrderId":  callback.Payload.GatewayOrderID,
				"state":           string(callback.Payload.State),
			})
			s.archiveBody(ctx, archiveReasonUnmatched, body)
			return CallbackResult{}, fmt.Errorf("%w: merchant order %s", ErrOrderNotFound, merchantOrderID)
		}
		s.logger(ctx, "payment.callback.apply_failed", map[string]any{
			"merchantOrderId": merchantOrderID,
			"error":           err.Error(),
		})
		return CallbackResult{}, fmt.Errorf("%w: %w", ErrReconciliationUnavailable, err)
	}

	// The outcome is still applied; a differing amount is flagged for manual review.
	if paid := callback.Payload.Amount; paid > 0 && paid != result.Order.Payment.Amount {
		s.logger(ctx, "payment.callback.amount_mismatch", map[string]any{
			"orderId":         result.Order.ID,
			"merchantOrderId": merchantOrderID,
			"expectedAmount":  result.Order.Payment.Amount,
			"callbackAmount":  paid,
		})
	}
	s.afterTransition(ctx, sourceCallback, result)
	return CallbackResult{
		Type:           callback.Type,
		Order:          result.Order,
		PreviousStatus: result.Transition.PreviousStatus,
		Transitioned:   result.Transition.StatusChanged || result.Transition.PaymentChanged,
		SideEffects:    result.Transition.SideEffects,
	}, nil
}

// CheckPaymentStatus polls the gateway for the caller's own order.
func (s *reconciliationService) CheckPaymentStatus(ctx context.Context, userID, orderID string) (PaymentStatusView, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return PaymentStatusView{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return PaymentStatusView{}, err
	}
	if order.UserID != userID {
		return PaymentStatusView{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return s.poll(ctx, sourcePoll, order)
}

// ReconcileOrder polls the gateway for any order.
func (s *reconciliationService) ReconcileOrder(ctx context.Context, orderID string) (PaymentStatusView, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return PaymentStatusView{}, err
	}
	return s.poll(ctx, sourceReconcile, order)
}

func (s *reconciliationService) loadOrder(ctx context.Context, orderID string) (Order, error) {
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

func (s *reconciliationService) poll(ctx context.Context, source string, order Order) (PaymentStatusView, error) {
	status, err := s.gateway.GetOrderStatus(ctx, order.Payment.MerchantOrderID)
	if err != nil {
		s.metrics.PaymentReconciled(source, "gateway_unreachable")
		s.logger(ctx, "payment.reconcile.gateway_unreachable", map[string]any{
			"orderId":         order.ID,
			"merchantOrderId": order.Payment.MerchantOrderID,
			"source":          source,
			"error":           err.Error(),
		})
		view := newPaymentStatusView(order)
		view.Advisory = GatewayUnreachableAdvisory
		return view, nil
	}

	outcome := domain.PaymentOutcome{
		Status:         payments.MapState(status.State),
		GatewayOrderID: status.GatewayOrderID,
		Raw:            status.Raw,
		ObservedAt:     s.now(),
	}
	if attempt, ok := status.LatestAttempt(); ok {
		outcome.TransactionID = attempt.TransactionID
		outcome.ErrorCode = attempt.ErrorCode
		outcome.DetailedErrorCode = attempt.DetailedErrorCode
		outcome.PaymentTimestamp = attempt.Timestamp
	}

	result, err := s.orders.ApplyPaymentOutcome(ctx, order.Payment.MerchantOrderID, outcome)
	if err != nil {
		if isNotFound(err) {
			return PaymentStatusView{}, fmt.Errorf("%w: %s", ErrOrderNotFound, order.ID)
		}
		s.logger(ctx, "payment.reconcile.apply_failed", map[string]any{
			"orderId": order.ID,
			"source":  source,
			"error":   err.Error(),
		})
		return PaymentStatusView{}, fmt.Errorf("%w: %w", ErrReconciliationUnavailable, err)
	}

	s.afterTransition(ctx, source, result)
	return newPaymentStatusView(result.Order), nil
}

func (s *reconciliationService) afterTransition(ctx context.Context, source string, result repositories.PaymentOutcomeResult) {
	order, transition := result.Order, result.Transition
	s.metrics.PaymentReconciled(source, reconciliationOutcome(order, transition))

	if !transition.StatusChanged && !transition.PaymentChanged {
		return
	}
	s.logger(ctx, "payment.reconciled", map[string]any{
		"orderId":               order.ID,
		"source":                source,
		"previousStatus":        string(transition.PreviousStatus),
		"status":                string(order.Status),
		"previousPaymentStatus": string(transition.PreviousPaymentStatus),
		"paymentStatus":         string(order.Payment.Status),
		"sideEffects":           transition.SideEffects,
	})

	now := order.UpdatedAt
	events := []OrderEvent{newOrderEvent(EventOrderPaymentUpdated, order, source, now)}
	if transition.StatusChanged {
		switch order.Status {
		case domain.OrderStatusConfirmed:
			events = append(events, newOrderEvent(EventOrderConfirmed, order, source, now))
		case domain.OrderStatusCancelled:
			events = append(events, newOrderEvent(EventOrderCancelled, order, source, now))
		}
	}
	publishEvents(ctx, s.events, s.logger, events...)
}

func (s *reconciliationService) archiveBody(ctx context.Context, reason string, body []byte) {
	if s.archive == nil || len(body) == 0 {
		return
	}
	object, err := s.archive.Archive(ctx, reason, body)
	if err != nil {
		s.logger(ctx, "payment.callback.archive_failed", map[string]any{"reason": reason, "error": err.Error()})
		return
	}
	s.logger(ctx, "payment.callback.archived", map[string]any{"reason": reason, "object": object})
}

func reconciliationOutcome(order Order, transition domain.PaymentTransition) string {
	switch {
	case transition.SideEffects:
		return "confirmed"
	case !transition.StatusChanged && !transition.PaymentChanged:
		return "unchanged"
	default:
		return string(order.Payment.Status)
	}
}

func newPaymentStatusView(order Order) PaymentStatusView {
	return PaymentStatusView{
		OrderID:         order.ID,
		OrderNumber:     order.OrderNumber,
		Status:          order.Status,
		PaymentStatus:   order.Payment.Status,
		MerchantOrderID: order.Payment.MerchantOrderID,
		GatewayOrderID:  order.Payment.GatewayOrderID,
		TransactionID:   order.Payment.GatewayTransactionID,
		Amount:          order.Payment.Amount,
	}
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
