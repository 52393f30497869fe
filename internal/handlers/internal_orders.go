package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Sushant736/propscholar-monorepo-sub000/internal/platform/auth"
	"github.com/Sushant736/propscholar-monorepo-sub000/internal/platform/httpx"
	"github.com/Sushant736/propscholar-monorepo-sub000/internal/platform/requestctx"
	"github.com/Sushant736/propscholar-monorepo-sub000/internal/services"
)

// InternalOrderHandlers serves scheduler and operator calls behind OIDC.
type InternalOrderHandlers struct {
	payments services.PaymentReconciliationService
	orders   services.OrderService
}

// NewInternalOrderHandlers constructs InternalOrderHandlers.
func NewInternalOrderHandlers(payments services.PaymentReconciliationService, orders services.OrderService) *InternalOrderHandlers {
	return &InternalOrderHandlers{payments: payments, orders: orders}
}

// Routes registers /internal/orders endpoints.
func (h *InternalOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/orders/{orderID}/reconcile", h.reconcile)
	r.Get("/orders/stats", h.stats)
}

func (h *InternalOrderHandlers) reconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("reconciliation_unavailable", "payment reconciliation unavailable", http.StatusServiceUnavailable))
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	view, err := h.payments.ReconcileOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	if caller, ok := auth.ServiceIdentityFromContext(ctx); ok {
		requestctx.Logger(ctx).Info("orders.reconcile.requested",
			zap.String("orderId", orderID),
			zap.String("caller", caller.Email),
			zap.String("paymentStatus", string(view.PaymentStatus)),
		)
	}
	httpx.WriteJSON(w, http.StatusOK, buildPaymentStatus(view))
}

type orderStatsResponse struct {
	Total           int             `json:"total"`
	ByStatus        map[string]int  `json:"byStatus"`
	ByPaymentStatus map[string]int  `json:"byPaymentStatus"`
	Revenue         decimal.Decimal `json:"revenue"`
}

func (h *InternalOrderHandlers) stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	stats, err := h.orders.Stats(ctx, r.URL.Query().Get("userId"))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	resp := orderStatsResponse{
		Total:           stats.Total,
		ByStatus:        make(map[string]int, len(stats.ByStatus)),
		ByPaymentStatus: make(map[string]int, len(stats.ByPaymentStatus)),
		Revenue:         stats.Revenue,
	}
	for status, count := range stats.ByStatus {
		resp.ByStatus[string(status)] = count
	}
	for status, count := range stats.ByPaymentStatus {
		resp.ByPaymentStatus[string(status)] = count
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}
