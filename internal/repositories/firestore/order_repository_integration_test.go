//go:build integration

package firestore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	domain "github.com/Sushant736/propscholar-monorepo-sub000/internal/domain"
	"github.com/Sushant736/propscholar-monorepo-sub000/internal/platform/firestore/firestoretest"
	"github.com/Sushant736/propscholar-monorepo-sub000/internal/repositories"
)

func TestOrderRepositoryIntegration(t *testing.T) {
	provider := firestoretest.Start(t)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client, err := provider.Client(ctx)
	if err != nil {
		t.Fatalf("provider client: %v", err)
	}

	if _, err := client.Collection(productsCollection).Doc("p1").Set(ctx, productDocument{Name: "Mock Test", IsActive: true}); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	if _, err := variantRef(client, "p1", "v1").Set(ctx, variantDocument{Name: "Standard", SKU: "MT-1", Price: 499.0, Stock: 3, IsActive: true}); err != nil {
		t.Fatalf("seed variant: %v", err)
	}
	if _, err := client.Collection(cartsCollection).Doc("user-1").Set(ctx, cartDocument{
		Lines:     []cartLineDocument{{ProductID: "p1", VariantID: "v1", Quantity: 2}, {ProductID: "p1", VariantID: "missing", Quantity: 1}},
		UpdatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed cart: %v", err)
	}

	registry, err := NewRegistry(provider)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	orders := registry.Orders()

	cart, err := registry.Carts().LoadWithCatalog(ctx, "user-1")
	if err != nil {
		t.Fatalf("load cart: %v", err)
	}
	if len(cart.Lines) != 2 || cart.Lines[0].Variant == nil || cart.Lines[0].Product == nil || cart.Lines[1].Variant != nil {
		t.Fatalf("unexpected cart join: %+v", cart.Lines)
	}
	if !cart.Lines[0].Variant.Price.Equal(decimal.RequireFromString("499.00")) {
		t.Fatalf("unexpected variant price %s", cart.Lines[0].Variant.Price)
	}

	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	order := domain.Order{
		ID:          "ord_1",
		OrderNumber: "00000001",
		UserID:      "user-1",
		Items: []domain.OrderItem{{
			ProductID: "p1", VariantID: "v1", ProductName: "Mock Test", Quantity: 2,
			UnitPrice: decimal.RequireFromString("499"), TotalPrice: decimal.RequireFromString("998"),
		}},
		Pricing: domain.Pricing{Subtotal: decimal.RequireFromString("998"), Total: decimal.RequireFromString("998")},
		Status:  domain.OrderStatusPending,
		Payment: domain.PaymentDetails{
			Method: "phonepe", MerchantOrderID: "MO1", Amount: 99800, Currency: "INR", Status: domain.PaymentStatusPending,
		},
		Customer:  domain.CustomerDetails{Name: "Asha", Email: "asha@example.com"},
		CreatedAt: created,
		UpdatedAt: created,
	}
	if err := orders.Insert(ctx, order); err != nil {
		t.Fatalf("insert: %v", err)
	}

	dup := order
	dup.ID = "ord_2"
	dup.Payment.MerchantOrderID = "MO2"
	err = orders.Insert(ctx, dup)
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsConflict() || !errors.Is(err, repositories.ErrDuplicateOrderNumber) {
		t.Fatalf("expected order number conflict, got %v", err)
	}
	dup.OrderNumber = "00000002"
	dup.Payment.MerchantOrderID = "MO1"
	if err := orders.Insert(ctx, dup); !errors.Is(err, repositories.ErrDuplicateMerchantOrderID) {
		t.Fatalf("expected merchant order conflict, got %v", err)
	}

	exists, err := orders.OrderNumberExists(ctx, "00000001")
	if err != nil || !exists {
		t.Fatalf("expected order number to exist, got %v %v", exists, err)
	}
	exists, err = orders.OrderNumberExists(ctx, "99999999")
	if err != nil || exists {
		t.Fatalf("expected order number to be free, got %v %v", exists, err)
	}

	loaded, err := orders.RecordGatewayOrder(ctx, "ord_1", domain.GatewayOrder{GatewayOrderID: "OMO1", RedirectURL: "https://pay.example/1"})
	if err != nil {
		t.Fatalf("record gateway order: %v", err)
	}
	if loaded.Payment.GatewayOrderID != "OMO1" || loaded.Payment.Status != domain.PaymentStatusPending {
		t.Fatalf("unexpected gateway patch %+v", loaded.Payment)
	}
	if diff := cmp.Diff(order.Pricing.Total.StringFixed(2), loaded.Pricing.Total.StringFixed(2)); diff != "" {
		t.Fatalf("pricing mismatch (-want +got):\n%s", diff)
	}

	completed := domain.PaymentOutcome{Status: domain.PaymentStatusCompleted, TransactionID: "T1", ObservedAt: created.Add(time.Minute)}
	first, err := orders.ApplyPaymentOutcome(ctx, "MO1", completed)
	if err != nil {
		t.Fatalf("apply outcome: %v", err)
	}
	if !first.Transition.SideEffects || first.Order.Status != domain.OrderStatusConfirmed {
		t.Fatalf("expected confirmation with side effects, got %+v", first.Transition)
	}
	second, err := orders.ApplyPaymentOutcome(ctx, "MO1", completed)
	if err != nil {
		t.Fatalf("replay outcome: %v", err)
	}
	if second.Transition.SideEffects {
		t.Fatalf("replayed completion must not repeat side effects")
	}

	kept, changed, err := orders.MarkPaymentInitFailed(ctx, "ord_1", "INTERNAL_SERVER_ERROR", time.Now())
	if err != nil {
		t.Fatalf("mark init failed: %v", err)
	}
	if changed || kept.Status != domain.OrderStatusConfirmed || kept.Payment.Status != domain.PaymentStatusCompleted {
		t.Fatalf("confirmed order must not be marked failed, got changed=%v %+v", changed, kept.Payment)
	}

	snap, err := variantRef(client, "p1", "v1").Get(ctx)
	if err != nil {
		t.Fatalf("read variant: %v", err)
	}
	var variant variantDocument
	if err := snap.DataTo(&variant); err != nil {
		t.Fatalf("decode variant: %v", err)
	}
	if variant.Stock != 1 {
		t.Fatalf("expected stock 1 after a single decrement, got %d", variant.Stock)
	}
	cart, err = registry.Carts().LoadWithCatalog(ctx, "user-1")
	if err != nil || len(cart.Lines) != 0 {
		t.Fatalf("expected cleared cart, got %+v %v", cart.Lines, err)
	}

	if _, err := orders.Cancel(ctx, "ord_1", "changed mind", time.Now()); !errors.Is(err, repositories.ErrOrderNotCancellable) {
		t.Fatalf("expected paid order to be rejected, got %v", err)
	}

	if _, err := orders.ApplyPaymentOutcome(ctx, "missing", completed); !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected not found for unknown merchant order, got %v", err)
	}

	later := order
	later.ID, later.OrderNumber, later.Payment.MerchantOrderID = "ord_3", "00000003", "MO3"
	later.CreatedAt = created.Add(time.Hour)
	later.UpdatedAt = later.CreatedAt
	if err := orders.Insert(ctx, later); err != nil {
		t.Fatalf("insert second: %v", err)
	}
	cancelled, err := orders.Cancel(ctx, "ord_3", "changed mind", created.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled || cancelled.Payment.Status != domain.PaymentStatusCancelled || cancelled.CancelReason != "changed mind" {
		t.Fatalf("unexpected cancelled order %+v", cancelled)
	}

	page, err := orders.List(ctx, repositories.OrderListFilter{UserID: "user-1", Pagination: domain.Pagination{Page: 1, Limit: 1}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 2 || page.Pages != 2 || len(page.Items) != 1 || page.Items[0].ID != "ord_3" {
		t.Fatalf("unexpected page %+v", page)
	}
	page, err = orders.List(ctx, repositories.OrderListFilter{Status: []domain.OrderStatus{domain.OrderStatusConfirmed}})
	if err != nil || page.Total != 1 || page.Items[0].ID != "ord_1" {
		t.Fatalf("unexpected filtered page %+v %v", page, err)
	}

	stats, err := orders.Stats(ctx, "")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 2 || stats.ByStatus[domain.OrderStatusConfirmed] != 1 || !stats.Revenue.Equal(decimal.RequireFromString("998")) {
		t.Fatalf("unexpected stats %+v", stats)
	}

	report, err := registry.Health().Collect(ctx)
	if err != nil || report.Status != domain.HealthStatusOK {
		t.Fatalf("unexpected health %+v %v", report, err)
	}
}
