package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	domain "github.com/Sushant736/propscholar-monorepo-sub000/internal/domain"
	"github.com/Sushant736/propscholar-monorepo-sub000/internal/payments"
)

type captureArchive struct {
	mu      sync.Mutex
	reasons []string
}

func (a *captureArchive) Archive(_ context.Context, reason string, body []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reasons = append(a.reasons, reason)
	return fmt.Sprintf("payment-callbacks/%s/%d.json", reason, len(body)), nil
}

type reconcileFixture struct {
	store     *memoryStore
	gateway   *stubGateway
	publisher *capturePublisher
	metrics   *captureMetrics
	logger    *captureLogger
	archive   *captureArchive
	svc       PaymentReconciliationService
}

func newReconcileFixture(t *testing.T) *reconcileFixture {
	t.Helper()
	f := &reconcileFixture{
		store:     newMemoryStore(),
		publisher: &capturePublisher{},
		metrics:   &captureMetrics{},
		logger:    &captureLogger{},
		archive:   &captureArchive{},
	}
	f.gateway = &stubGateway{
		validateFn: func(_ context.Context, authorization string, body []byte) (payments.Callback, error) {
			if authorization != "good" {
				return payments.Callback{}, payments.ErrInvalidCallbackSignature
			}
			var state payments.State
			var merchant string
			if _, err := fmt.Sscanf(string(body), "%s %s", &merchant, &state); err != nil {
				return payments.Callback{}, fmt.Errorf("%w: %v", payments.ErrMalformedCallback, err)
			}
			return payments.Callback{
				Type: "CHECKOUT_ORDER_COMPLETED",
				Payload: payments.CallbackPayload{
					MerchantOrderID: merchant,
					GatewayOrderID:  "OMO-" + merchant,
					TransactionID:   "TXN-1",
					State:           state,
					ErrorCode:       "TXN_DECLINED",
				},
				Raw: map[string]any{"merchantOrderId": merchant, "state": string(state)},
			}, nil
		},
	}
	svc, err := NewPaymentReconciliationService(PaymentReconciliationServiceDeps{
		Orders:  f.store,
		Gateway: f.gateway,
		Events:  f.publisher,
		Metrics: f.metrics,
		Archive: f.archive,
		Clock:   func() time.Time { return checkoutNow.Add(5 * time.Minute) },
		Logger:  f.logger.log,
	})
	if err != nil {
		t.Fatalf("new reconciliation service: %v", err)
	}
	f.svc = svc
	return f
}

// seedPendingOrder stores a pending order for 2 units of var-1 with stock 5 and a cart.
func (f *reconcileFixture) seedPendingOrder(t *testing.T) Order {
	t.Helper()
	f.store.seedCart("user-1", "var-1", 2, 5, "100")
	order := Order{
		ID:          "ord_1",
		OrderNumber: "10000001",
		UserID:      "user-1",
		Items: []OrderItem{{
			ProductID: "prod-1", VariantID: "var-1", Quantity: 2,
			UnitPrice: decimal.NewFromInt(100), TotalPrice: decimal.NewFromInt(200),
		}},
		Pricing: domain.NewPricing(decimal.NewFromInt(200), decimal.Zero, decimal.Zero, decimal.Zero),
		Status:  domain.OrderStatusPending,
		Payment: domain.PaymentDetails{
			Method: "phonepe", MerchantOrderID: "MO1", Amount: 20000, Currency: "INR", Status: domain.PaymentStatusPending,
		},
		CreatedAt: checkoutNow,
		UpdatedAt: checkoutNow,
	}
	if err := f.store.Insert(context.Background(), order); err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}

func TestCallbackCompletedConfirmsOrderOnce(t *testing.T) {
	f := newReconcileFixture(t)
	f.seedPendingOrder(t)
	ctx := context.Background()

	result, err := f.svc.HandlePaymentCallback(ctx, "good", []byte("MO1 COMPLETED"))
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if !result.SideEffects || result.Order.Status != domain.OrderStatusConfirmed || result.PreviousStatus != domain.OrderStatusPending {
		t.Fatalf("unexpected result %+v", result)
	}
	order := f.store.order("ord_1")
	if order.Payment.GatewayTransactionID != "TXN-1" || order.Payment.Status != domain.PaymentStatusCompleted {
		t.Fatalf("unexpected payment %+v", order.Payment)
	}
	if order.Payment.GatewayRawResponse["state"] != "COMPLETED" {
		t.Fatalf("expected raw payload to be recorded")
	}
	if f.store.stockOf("var-1") != 3 {
		t.Fatalf("expected stock 3, got %d", f.store.stockOf("var-1"))
	}
	cart, _ := f.store.LoadWithCatalog(ctx, "user-1")
	if len(cart.Lines) != 0 {
		t.Fatalf("expected cart to be cleared")
	}

	replay, err := f.svc.HandlePaymentCallback(ctx, "good", []byte("MO1 COMPLETED"))
	if err != nil {
		t.Fatalf("replayed callback: %v", err)
	}
	if replay.SideEffects || replay.Transitioned || replay.Order.Status != domain.OrderStatusConfirmed {
		t.Fatalf("replay must be a no-op, got %+v", replay)
	}
	if f.store.stockOf("var-1") != 3 || f.store.stockDecrements != 1 || f.store.cartClears != 1 {
		t.Fatalf("expected single side effect, got stock=%d decrements=%d clears=%d",
			f.store.stockOf("var-1"), f.store.stockDecrements, f.store.cartClears)
	}

	want := []string{EventOrderPaymentUpdated, EventOrderConfirmed}
	if diff := cmp.Diff(want, f.publisher.types()); diff != "" {
		t.Fatalf("unexpected events (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"callback:confirmed", "callback:unchanged"}, f.metrics.reconciled); diff != "" {
		t.Fatalf("unexpected metrics (-want +got):\n%s", diff)
	}
}

func TestConcurrentCompletionAppliesSideEffectsOnce(t *testing.T) {
	f := newReconcileFixture(t)
	f.seedPendingOrder(t)
	f.gateway.statusFn = func(context.Context, string) (payments.OrderStatusResult, error) {
		return payments.OrderStatusResult{State: payments.StateCompleted, Attempts: []payments.PaymentAttempt{{TransactionID: "TXN-1", State: payments.StateCompleted}}}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = f.svc.HandlePaymentCallback(context.Background(), "good", []byte("MO1 COMPLETED"))
		}()
		go func() {
			defer wg.Done()
			_, _ = f.svc.CheckPaymentStatus(context.Background(), "user-1", "ord_1")
		}()
	}
	wg.Wait()

	if f.store.stockOf("var-1") != 3 || f.store.stockDecrements != 1 || f.store.cartClears != 1 {
		t.Fatalf("expected exactly one side effect, got stock=%d decrements=%d clears=%d",
			f.store.stockOf("var-1"), f.store.stockDecrements, f.store.cartClears)
	}
}

// checkoutOn builds a checkout service sharing the fixture's store and gateway.
func (f *reconcileFixture) checkoutOn(t *testing.T) CheckoutService {
	t.Helper()
	svc, err := NewCheckoutService(CheckoutServiceDeps{
		Carts:   f.store,
		Users:   f.store,
		Orders:  f.store,
		Gateway: f.gateway,
		Numbers: &sequenceNumbers{values: []string{"20000001"}},
		Clock:   func() time.Time { return checkoutNow },
		IDGen:   sequentialIDs(),
		Logger:  f.logger.log,
	})
	if err != nil {
		t.Fatalf("new checkout service: %v", err)
	}
	return svc
}

func TestCallbackDuringCheckoutKeepsConfirmation(t *testing.T) {
	f := newReconcileFixture(t)
	f.store.seedCart("user-1", "var-1", 2, 5, "100")
	ctx := context.Background()
	f.gateway.createFn = func(ctx context.Context, req payments.CreateOrderRequest) (payments.CreateOrderResult, error) {
		if _, err := f.svc.HandlePaymentCallback(ctx, "good", []byte(req.MerchantOrderID+" COMPLETED")); err != nil {
			t.Errorf("early callback: %v", err)
		}
		return payments.CreateOrderResult{
			GatewayOrderID: "OMO-" + req.MerchantOrderID,
			RedirectURL:    "https://mercury.phonepe.com/transact/pay?token=abc",
			State:          payments.StatePending,
			Raw:            map[string]any{"state": "PENDING"},
		}, nil
	}

	result, err := f.checkoutOn(t).CreateOrderFromCart(ctx, CreateOrderCommand{UserID: "user-1", RedirectURL: "https://shop.example.com/return"})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	stored := f.store.order(result.Order.ID)
	if stored.Status != domain.OrderStatusConfirmed || stored.Payment.Status != domain.PaymentStatusCompleted {
		t.Fatalf("checkout reverted the confirmation to %s/%s", stored.Status, stored.Payment.Status)
	}
	if stored.Payment.GatewayOrderID != "OMO-"+stored.Payment.MerchantOrderID || stored.Payment.RedirectURL == "" {
		t.Fatalf("expected gateway fields to be merged, got %+v", stored.Payment)
	}
	if result.Order.Status != domain.OrderStatusConfirmed {
		t.Fatalf("expected result to carry the stored status, got %s", result.Order.Status)
	}

	if _, err := f.svc.HandlePaymentCallback(ctx, "good", []byte(stored.Payment.MerchantOrderID+" COMPLETED")); err != nil {
		t.Fatalf("replayed callback: %v", err)
	}
	if f.store.stockDecrements != 1 || f.store.cartClears != 1 || f.store.stockOf("var-1") != 3 {
		t.Fatalf("expected one side effect, got decrements=%d clears=%d stock=%d",
			f.store.stockDecrements, f.store.cartClears, f.store.stockOf("var-1"))
	}
}

func TestGatewayFailureAfterCallbackKeepsConfirmation(t *testing.T) {
	f := newReconcileFixture(t)
	f.store.seedCart("user-1", "var-1", 1, 5, "100")
	ctx := context.Background()
	var merchantOrderID string
	f.gateway.createFn = func(ctx context.Context, req payments.CreateOrderRequest) (payments.CreateOrderResult, error) {
		merchantOrderID = req.MerchantOrderID
		if _, err := f.svc.HandlePaymentCallback(ctx, "good", []byte(req.MerchantOrderID+" COMPLETED")); err != nil {
			t.Errorf("early callback: %v", err)
		}
		return payments.CreateOrderResult{}, &payments.GatewayError{Op: "create_order", StatusCode: 504, Code: "GATEWAY_TIMEOUT"}
	}

	if _, err := f.checkoutOn(t).CreateOrderFromCart(ctx, CreateOrderCommand{UserID: "user-1", RedirectURL: "https://shop.example.com/return"}); !errors.Is(err, ErrPaymentGatewayFailed) {
		t.Fatalf("expected gateway failure, got %v", err)
	}
	var stored Order
	for _, o := range f.store.orders {
		if o.Payment.MerchantOrderID == merchantOrderID {
			stored = o
		}
	}
	if stored.Status != domain.OrderStatusConfirmed || stored.Payment.Status != domain.PaymentStatusCompleted || stored.Payment.FailureReason != "" {
		t.Fatalf("gateway failure overwrote the confirmation: %s/%s %q", stored.Status, stored.Payment.Status, stored.Payment.FailureReason)
	}
	if f.store.stockDecrements != 1 {
		t.Fatalf("expected a single stock decrement, got %d", f.store.stockDecrements)
	}
}

func TestCallbackFailedCancelsOrder(t *testing.T) {
	f := newReconcileFixture(t)
	f.seedPendingOrder(t)

	result, err := f.svc.HandlePaymentCallback(context.Background(), "good", []byte("MO1 FAILED"))
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if result.Order.Status != domain.OrderStatusCancelled || result.Order.Payment.Status != domain.PaymentStatusFailed {
		t.Fatalf("expected cancelled/failed, got %s/%s", result.Order.Status, result.Order.Payment.Status)
	}
	if result.Order.Payment.FailureReason != "TXN_DECLINED" {
		t.Fatalf("unexpected failure reason %q", result.Order.Payment.FailureReason)
	}
	if f.store.stockOf("var-1") != 5 {
		t.Fatalf("failure must not decrement stock")
	}
	if diff := cmp.Diff([]string{EventOrderPaymentUpdated, EventOrderCancelled}, f.publisher.types()); diff != "" {
		t.Fatalf("unexpected events (-want +got):\n%s", diff)
	}

	late, err := f.svc.HandlePaymentCallback(context.Background(), "good", []byte("MO1 COMPLETED"))
	if err != nil {
		t.Fatalf("late callback: %v", err)
	}
	if late.Order.Status != domain.OrderStatusCancelled || late.SideEffects {
		t.Fatalf("completion after cancellation must be ignored, got %+v", late)
	}
}

func TestCallbackFailureUsesDetailedErrorCode(t *testing.T) {
	f := newReconcileFixture(t)
	f.seedPendingOrder(t)
	f.gateway.validateFn = func(context.Context, string, []byte) (payments.Callback, error) {
		return payments.Callback{
			Type: "CHECKOUT_ORDER_FAILED",
			Payload: payments.CallbackPayload{
				MerchantOrderID:   "MO1",
				State:             payments.StateFailed,
				DetailedErrorCode: "ZM",
			},
		}, nil
	}

	result, err := f.svc.HandlePaymentCallback(context.Background(), "good", []byte("{}"))
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if result.Order.Payment.FailureReason != "ZM" {
		t.Fatalf("expected detailed error code as reason, got %q", result.Order.Payment.FailureReason)
	}
}

func TestCallbackAmountMismatchIsLogged(t *testing.T) {
	f := newReconcileFixture(t)
	f.seedPendingOrder(t)
	validate := f.gateway.validateFn
	amount := int64(20000)
	f.gateway.validateFn = func(ctx context.Context, authorization string, body []byte) (payments.Callback, error) {
		callback, err := validate(ctx, authorization, body)
		callback.Payload.Amount = amount
		return callback, err
	}

	if _, err := f.svc.HandlePaymentCallback(context.Background(), "good", []byte("MO1 PENDING")); err != nil {
		t.Fatalf("callback: %v", err)
	}
	if f.logger.has("payment.callback.amount_mismatch") {
		t.Fatalf("matching amount must not be flagged")
	}

	amount = 100
	result, err := f.svc.HandlePaymentCallback(context.Background(), "good", []byte("MO1 COMPLETED"))
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if !f.logger.has("payment.callback.amount_mismatch") {
		t.Fatalf("expected amount mismatch to be logged")
	}
	if result.Order.Status != domain.OrderStatusConfirmed {
		t.Fatalf("expected outcome to still apply, got %s", result.Order.Status)
	}
}

func TestCallbackRejectsInvalidSignature(t *testing.T) {
	f := newReconcileFixture(t)
	f.seedPendingOrder(t)

	_, err := f.svc.HandlePaymentCallback(context.Background(), "bad", []byte("MO1 COMPLETED"))
	if !errors.Is(err, ErrCallbackRejected) || !errors.Is(err, payments.ErrInvalidCallbackSignature) {
		t.Fatalf("expected rejected signature, got %v", err)
	}
	if f.store.order("ord_1").Status != domain.OrderStatusPending {
		t.Fatalf("rejected callback must not mutate the order")
	}
	if !f.logger.has("payment.callback.rejected") {
		t.Fatalf("expected rejection to be logged")
	}
	if diff := cmp.Diff([]string{"signature"}, f.metrics.rejected); diff != "" {
		t.Fatalf("unexpected rejection metrics (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{archiveReasonRejected}, f.archive.reasons); diff != "" {
		t.Fatalf("unexpected archive (-want +got):\n%s", diff)
	}

	_, err = f.svc.HandlePaymentCallback(context.Background(), "good", []byte("garbage"))
	if !errors.Is(err, ErrCallbackRejected) || !errors.Is(err, payments.ErrMalformedCallback) {
		t.Fatalf("expected malformed rejection, got %v", err)
	}
}

func TestCallbackForUnknownOrder(t *testing.T) {
	f := newReconcileFixture(t)

	_, err := f.svc.HandlePaymentCallback(context.Background(), "good", []byte("MO404 COMPLETED"))
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected order not found, got %v", err)
	}
	if !f.logger.has("payment.callback.order_missing") {
		t.Fatalf("expected missing order to be logged")
	}
	if diff := cmp.Diff([]string{archiveReasonUnmatched}, f.archive.reasons); diff != "" {
		t.Fatalf("unexpected archive (-want +got):\n%s", diff)
	}
}

func TestCheckPaymentStatusPendingLeavesOrderUnchanged(t *testing.T) {
	f := newReconcileFixture(t)
	f.seedPendingOrder(t)
	f.gateway.statusFn = func(_ context.Context, merchantOrderID string) (payments.OrderStatusResult, error) {
		if merchantOrderID != "MO1" {
			t.Fatalf("unexpected merchant order id %s", merchantOrderID)
		}
		return payments.OrderStatusResult{GatewayOrderID: "OMO1", State: payments.StatePending, Amount: 20000}, nil
	}

	view, err := f.svc.CheckPaymentStatus(context.Background(), "user-1", "ord_1")
	if err != nil {
		t.Fatalf("check status: %v", err)
	}
	want := PaymentStatusView{
		OrderID:         "ord_1",
		OrderNumber:     "10000001",
		Status:          domain.OrderStatusPending,
		PaymentStatus:   domain.PaymentStatusPending,
		MerchantOrderID: "MO1",
		GatewayOrderID:  "OMO1",
		Amount:          20000,
	}
	if diff := cmp.Diff(want, view); diff != "" {
		t.Fatalf("unexpected view (-want +got):\n%s", diff)
	}
	if f.store.stockDecrements != 0 || len(f.publisher.types()) != 0 {
		t.Fatalf("pending poll must not trigger side effects or events")
	}
}

func TestCheckPaymentStatusCompletesOrder(t *testing.T) {
	f := newReconcileFixture(t)
	f.seedPendingOrder(t)
	paidAt := checkoutNow.Add(2 * time.Minute)
	f.gateway.statusFn = func(context.Context, string) (payments.OrderStatusResult, error) {
		return payments.OrderStatusResult{
			State: payments.StateCompleted,
			Attempts: []payments.PaymentAttempt{
				{TransactionID: "TXN-0", State: payments.StateFailed},
				{TransactionID: "TXN-9", State: payments.StateCompleted, Timestamp: &paidAt},
			},
		}, nil
	}

	view, err := f.svc.CheckPaymentStatus(context.Background(), "user-1", "ord_1")
	if err != nil {
		t.Fatalf("check status: %v", err)
	}
	if view.Status != domain.OrderStatusConfirmed || view.TransactionID != "TXN-9" {
		t.Fatalf("unexpected view %+v", view)
	}
	if got := f.store.order("ord_1").Payment.PaymentTimestamp; got == nil || !got.Equal(paidAt) {
		t.Fatalf("expected gateway payment timestamp, got %v", got)
	}
	if _, err := f.svc.CheckPaymentStatus(context.Background(), "user-1", "ord_1"); err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if f.store.stockDecrements != 1 {
		t.Fatalf("repeated polls must not decrement twice, got %d", f.store.stockDecrements)
	}
}

func TestCheckPaymentStatusGatewayUnreachable(t *testing.T) {
	f := newReconcileFixture(t)
	f.seedPendingOrder(t)
	f.gateway.statusFn = func(context.Context, string) (payments.OrderStatusResult, error) {
		return payments.OrderStatusResult{}, &payments.GatewayError{Op: "order_status", Err: context.DeadlineExceeded}
	}

	view, err := f.svc.CheckPaymentStatus(context.Background(), "user-1", "ord_1")
	if err != nil {
		t.Fatalf("expected degraded response, got %v", err)
	}
	if view.Advisory != GatewayUnreachableAdvisory || view.Status != domain.OrderStatusPending {
		t.Fatalf("unexpected degraded view %+v", view)
	}
	if !f.logger.has("payment.reconcile.gateway_unreachable") {
		t.Fatalf("expected unreachable gateway to be logged")
	}
}

func TestCheckPaymentStatusEnforcesOwnership(t *testing.T) {
	f := newReconcileFixture(t)
	f.seedPendingOrder(t)
	f.gateway.statusFn = func(context.Context, string) (payments.OrderStatusResult, error) {
		t.Fatalf("gateway must not be queried for foreign orders")
		return payments.OrderStatusResult{}, nil
	}

	if _, err := f.svc.CheckPaymentStatus(context.Background(), "user-2", "ord_1"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found for foreign order, got %v", err)
	}
	if _, err := f.svc.CheckPaymentStatus(context.Background(), "user-1", "ord_missing"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found for missing order, got %v", err)
	}
}

func TestReconcileOrderSkipsOwnership(t *testing.T) {
	f := newReconcileFixture(t)
	f.seedPendingOrder(t)
	f.gateway.statusFn = func(context.Context, string) (payments.OrderStatusResult, error) {
		return payments.OrderStatusResult{State: payments.StateCancelled}, nil
	}

	view, err := f.svc.ReconcileOrder(context.Background(), "ord_1")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if view.Status != domain.OrderStatusPending || view.PaymentStatus != domain.PaymentStatusCancelled {
		t.Fatalf("expected pending/cancelled, got %s/%s", view.Status, view.PaymentStatus)
	}
	if diff := cmp.Diff([]string{"reconcile:cancelled"}, f.metrics.reconciled); diff != "" {
		t.Fatalf("unexpected metrics (-want +got):\n%s", diff)
	}
}

func TestTerminalOrdersIgnoreGatewayStates(t *testing.T) {
	for _, state := range []payments.State{payments.StateCompleted, payments.StateFailed, payments.StatePending, "REFUNDED"} {
		t.Run(string(state), func(t *testing.T) {
			f := newReconcileFixture(t)
			f.seedPendingOrder(t)
			order := f.store.order("ord_1")
			order.Status = domain.OrderStatusCompleted
			order.Payment.Status = domain.PaymentStatusCompleted
			f.store.put(order)
			f.gateway.statusFn = func(context.Context, string) (payments.OrderStatusResult, error) {
				return payments.OrderStatusResult{State: state}, nil
			}
			view, err := f.svc.ReconcileOrder(context.Background(), "ord_1")
			if err != nil {
				t.Fatalf("reconcile: %v", err)
			}
			if view.Status != domain.OrderStatusCompleted || view.PaymentStatus != domain.PaymentStatusCompleted {
				t.Fatalf("terminal order changed to %s/%s", view.Status, view.PaymentStatus)
			}
			if f.store.stockDecrements != 0 {
				t.Fatalf("terminal order must not trigger side effects")
			}
		})
	}
}
