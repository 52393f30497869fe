package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	domain "github.com/Sushant736/propscholar-monorepo-sub000/internal/domain"
	pfirestore "github.com/Sushant736/propscholar-monorepo-sub000/internal/platform/firestore"
	"github.com/Sushant736/propscholar-monorepo-sub000/internal/platform/pagination"
	"github.com/Sushant736/propscholar-monorepo-sub000/internal/repositories"
)

const (
	defaultListLimit = pagination.DefaultLimit
	maxListLimit     = pagination.MaxLimit
	// Firestore caps the number of values in an "in" filter.
	maxInFilterValues = 30
)

// OrderRepository stores orders in orders/{id} with key reservations in orderNumbers and
// merchantOrders.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.Collection[orderDocument]
	clock    func() time.Time
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewCollection[orderDocument](provider, ordersCollection),
		clock:    time.Now,
	}, nil
}

// Insert creates the order together with its order number and merchant order id reservations.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if err := r.ready(); err != nil {
		return err
	}
	orderID := strings.TrimSpace(order.ID)
	number := strings.TrimSpace(order.OrderNumber)
	merchantID := strings.TrimSpace(order.Payment.MerchantOrderID)
	if orderID == "" || number == "" || merchantID == "" {
		return errors.New("order insert: id, order number and merchant order id are required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}

	now := r.clock().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}
	doc := newOrderDocument(order)
	reservation := keyReservationDocument{OrderID: orderID, CreatedAt: order.CreatedAt.UTC()}

	orderRef := client.Collection(ordersCollection).Doc(orderID)
	numberRef := client.Collection(orderNumbersCollection).Doc(number)
	merchantRef := client.Collection(merchantOrdersCollection).Doc(merchantID)

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snaps, err := tx.GetAll([]*firestore.DocumentRef{numberRef, merchantRef, orderRef})
		if err != nil {
			return err
		}
		if snaps[0].Exists() {
			return pfirestore.Conflict("orders.insert", fmt.Errorf("%w: %s", repositories.ErrDuplicateOrderNumber, number))
		}
		if snaps[1].Exists() {
			return pfirestore.Conflict("orders.insert", fmt.Errorf("%w: %s", repositories.ErrDuplicateMerchantOrderID, merchantID))
		}
		if snaps[2].Exists() {
			return pfirestore.Conflict("orders.insert", fmt.Errorf("order %s already exists", orderID))
		}
		if err := tx.Create(numberRef, reservation); err != nil {
			return err
		}
		if err := tx.Create(merchantRef, reservation); err != nil {
			return err
		}
		return tx.Create(orderRef, doc)
	})
	return pfirestore.WrapError("orders.insert", err)
}

// RecordGatewayOrder stores the gateway order fields on the current stored order. Status fields
// written concurrently by a callback or poll are preserved.
func (r *OrderRepository) RecordGatewayOrder(ctx context.Context, orderID string, gw domain.GatewayOrder) (domain.Order, error) {
	if gw.RecordedAt.IsZero() {
		gw.RecordedAt = r.clock().UTC()
	}
	order, _, err := r.patch(ctx, "orders.recordGatewayOrder", orderID, func(current domain.Order) (domain.Order, bool) {
		return domain.RecordGatewayOrder(current, gw), true
	})
	return order, err
}

// MarkPaymentInitFailed fails the payment only while the stored order and payment are pending.
// The boolean reports whether the stored order changed.
func (r *OrderRepository) MarkPaymentInitFailed(ctx context.Context, orderID, reason string, now time.Time) (domain.Order, bool, error) {
	if now.IsZero() {
		now = r.clock()
	}
	return r.patch(ctx, "orders.markPaymentInitFailed", orderID, func(current domain.Order) (domain.Order, bool) {
		return domain.MarkPaymentInitFailed(current, reason, now.UTC())
	})
}

// patch re-reads the order inside a transaction and writes fn's result when it reports a change.
func (r *OrderRepository) patch(ctx context.Context, op, orderID string, fn func(domain.Order) (domain.Order, bool)) (domain.Order, bool, error) {
	if err := r.ready(); err != nil {
		return domain.Order{}, false, err
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, false, errors.New("order id is required")
	}
	ref, err := r.orders.Doc(ctx, orderID)
	if err != nil {
		return domain.Order{}, false, err
	}

	var (
		result  domain.Order
		changed bool
	)
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}
		current, err := doc.toDomain(orderID)
		if err != nil {
			return err
		}
		result, changed = fn(current)
		if !changed {
			return nil
		}
		return tx.Set(ref, newOrderDocument(result))
	})
	if err != nil {
		return domain.Order{}, false, pfirestore.WrapError(op, err)
	}
	return result, changed, nil
}

// FindByID loads a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if err := r.ready(); err != nil {
		return domain.Order{}, err
	}
	doc, err := r.orders.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID)
}

// OrderNumberExists reports whether the order number is already reserved.
func (r *OrderRepository) OrderNumberExists(ctx context.Context, orderNumber string) (bool, error) {
	if err := r.ready(); err != nil {
		return false, err
	}
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return false, errors.New("order number is required")
	}
	reservations := pfirestore.NewCollection[keyReservationDocument](r.provider, orderNumbersCollection)
	if _, err := reservations.Get(ctx, orderNumber); err != nil {
		if pfirestore.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// List returns orders newest first with the total count for the filter.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	if err := r.ready(); err != nil {
		return domain.Page[domain.Order]{}, err
	}
	if len(filter.Status) > maxInFilterValues || len(filter.PaymentStatus) > maxInFilterValues {
		return domain.Page[domain.Order]{}, fmt.Errorf("order list: at most %d status values are supported", maxInFilterValues)
	}

	page, limit := normalisePagination(filter.Pagination)
	where := func(q firestore.Query) firestore.Query {
		if userID := strings.TrimSpace(filter.UserID); userID != "" {
			q = q.Where("userId", "==", userID)
		}
		q = applyInFilter(q, "status", lo.Map(filter.Status, func(s domain.OrderStatus, _ int) string { return string(s) }))
		q = applyInFilter(q, "paymentDetails.status", lo.Map(filter.PaymentStatus, func(s domain.PaymentStatus, _ int) string { return string(s) }))
		return q
	}

	total, err := r.orders.Count(ctx, where)
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}

	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return where(q).OrderBy("createdAt", firestore.Desc).Offset((page - 1) * limit).Limit(limit)
	})
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}

	items := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		order, err := doc.Data.toDomain(doc.ID)
		if err != nil {
			return domain.Page[domain.Order]{}, err
		}
		items = append(items, order)
	}

	return domain.Page[domain.Order]{Items: items, Page: page, Limit: limit, Total: total, Pages: pagination.Pages(total, limit)}, nil
}

// ApplyPaymentOutcome applies outcome to the order in a single transaction. Stock and cart
// side effects are written only when the stored order moves from pending to confirmed.
func (r *OrderRepository) ApplyPaymentOutcome(ctx context.Context, merchantOrderID string, outcome domain.PaymentOutcome) (repositories.PaymentOutcomeResult, error) {
	if err := r.ready(); err != nil {
		return repositories.PaymentOutcomeResult{}, err
	}
	merchantOrderID = strings.TrimSpace(merchantOrderID)
	if merchantOrderID == "" {
		return repositories.PaymentOutcomeResult{}, errors.New("merchant order id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return repositories.PaymentOutcomeResult{}, err
	}
	if outcome.ObservedAt.IsZero() {
		outcome.ObservedAt = r.clock().UTC()
	}

	var result repositories.PaymentOutcomeResult
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		result = repositories.PaymentOutcomeResult{}

		reservationSnap, err := tx.Get(client.Collection(merchantOrdersCollection).Doc(merchantOrderID))
		if err != nil {
			return err
		}
		var reservation keyReservationDocument
		if err := reservationSnap.DataTo(&reservation); err != nil {
			return fmt.Errorf("decode merchant order %s: %w", merchantOrderID, err)
		}
		orderRef := client.Collection(ordersCollection).Doc(reservation.OrderID)
		orderSnap, err := tx.Get(orderRef)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := orderSnap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", reservation.OrderID, err)
		}
		current, err := doc.toDomain(reservation.OrderID)
		if err != nil {
			return err
		}

		updated, transition := domain.ApplyPaymentOutcome(current, outcome)

		if transition.SideEffects {
			plan, err := planStockDecrement(tx, client, updated.StockLines())
			if err != nil {
				return err
			}
			if err := applyStockDecrement(tx, plan, outcome.ObservedAt); err != nil {
				return err
			}
			if err := clearCartInTx(tx, client, updated.UserID, outcome.ObservedAt); err != nil {
				return err
			}
		}
		if err := tx.Set(orderRef, newOrderDocument(updated)); err != nil {
			return err
		}
		result = repositories.PaymentOutcomeResult{Order: updated, Transition: transition}
		return nil
	})
	if err != nil {
		return repositories.PaymentOutcomeResult{}, pfirestore.WrapError("orders.applyPaymentOutcome", err)
	}
	return result, nil
}

// Cancel moves an eligible order to cancelled. Eligibility is checked against the stored state.
func (r *OrderRepository) Cancel(ctx context.Context, orderID string, reason string, now time.Time) (domain.Order, error) {
	if err := r.ready(); err != nil {
		return domain.Order{}, err
	}
	ref, err := r.orders.Doc(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	if now.IsZero() {
		now = r.clock()
	}
	now = now.UTC()

	var cancelled domain.Order
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", ref.ID, err)
		}
		order, err := doc.toDomain(ref.ID)
		if err != nil {
			return err
		}
		if !domain.CancelEligible(order) {
			return pfirestore.Conflict("orders.cancel", fmt.Errorf("%w: status %s, payment %s",
				repositories.ErrOrderNotCancellable, order.Status, order.Payment.Status))
		}
		order.Status = domain.OrderStatusCancelled
		order.Payment.Status = domain.PaymentStatusCancelled
		order.CancelReason = strings.TrimSpace(reason)
		order.CancelledAt = &now
		order.UpdatedAt = now
		if err := tx.Set(ref, newOrderDocument(order)); err != nil {
			return err
		}
		cancelled = order
		return nil
	})
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.cancel", err)
	}
	return cancelled, nil
}

// Stats aggregates order counts and confirmed revenue, optionally for a single user.
func (r *OrderRepository) Stats(ctx context.Context, userID string) (domain.OrderStats, error) {
	if err := r.ready(); err != nil {
		return domain.OrderStats{}, err
	}
	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Select("status", "paymentDetails.status", "pricing.total")
		if userID = strings.TrimSpace(userID); userID != "" {
			q = q.Where("userId", "==", userID)
		}
		return q
	})
	if err != nil {
		return domain.OrderStats{}, err
	}

	stats := domain.OrderStats{
		ByStatus:        make(map[domain.OrderStatus]int),
		ByPaymentStatus: make(map[domain.PaymentStatus]int),
		Revenue:         decimal.Zero,
	}
	for _, doc := range docs {
		stats.Total++
		status := domain.OrderStatus(doc.Data.Status)
		stats.ByStatus[status]++
		stats.ByPaymentStatus[domain.PaymentStatus(doc.Data.Payment.Status)]++
		if status == domain.OrderStatusConfirmed || status == domain.OrderStatusCompleted {
			total, err := parseMoney("total", doc.Data.Pricing.Total)
			if err != nil {
				return domain.OrderStats{}, fmt.Errorf("order %s: %w", doc.ID, err)
			}
			stats.Revenue = stats.Revenue.Add(total)
		}
	}
	return stats, nil
}

func (r *OrderRepository) ready() error {
	if r == nil || r.provider == nil || r.orders == nil {
		return errors.New("order repository not initialised")
	}
	return nil
}

func applyInFilter(q firestore.Query, path string, values []string) firestore.Query {
	values = lo.Uniq(lo.Compact(values))
	switch len(values) {
	case 0:
		return q
	case 1:
		return q.Where(path, "==", values[0])
	default:
		return q.Where(path, "in", values)
	}
}

func normalisePagination(p domain.Pagination) (int, int) {
	page, limit := p.Page, p.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return page, limit
}
