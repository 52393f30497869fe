package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	domain "github.com/Sushant736/propscholar-monorepo-sub000/internal/domain"
	"github.com/Sushant736/propscholar-monorepo-sub000/internal/payments"
	"github.com/Sushant736/propscholar-monorepo-sub000/internal/platform/auth"
	"github.com/Sushant736/propscholar-monorepo-sub000/internal/platform/httpx"
	"github.com/Sushant736/propscholar-monorepo-sub000/internal/platform/pagination"
	"github.com/Sushant736/propscholar-monorepo-sub000/internal/platform/requestctx"
	"github.com/Sushant736/propscholar-monorepo-sub000/internal/services"
)

const maxCallbackBodySize int64 = 256 << 10

// OrderHandlers exposes the storefront order endpoints and the gateway callback.
type OrderHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
	orders   services.OrderService
	payments services.PaymentReconciliationService
}

// OrderHandlersDeps wires OrderHandlers.
type OrderHandlersDeps struct {
	Authenticator  *auth.Authenticator
	Checkout       services.CheckoutService
	Orders         services.OrderService
	Reconciliation services.PaymentReconciliationService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(deps OrderHandlersDeps) *OrderHandlers {
	return &OrderHandlers{
		authn:    deps.Authenticator,
		checkout: deps.Checkout,
		orders:   deps.Orders,
		payments: deps.Reconciliation,
	}
}

// Routes registers the /orders endpoints. The gateway callback is unauthenticated; its
// signature is checked by the reconciliation service.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payment-callback", h.paymentCallback)
	r.Group(func(user chi.Router) {
		if h.authn != nil {
			user.Use(h.authn.RequireUser())
		}
		user.Post("/", h.createOrder)
		user.Get("/", h.listOrders)
		user.Get("/{orderID}", h.getOrder)
		user.Get("/{orderID}/payment-status", h.paymentStatus)
		user.Put("/{orderID}/cancel", h.cancelOrder)
	})
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req createOrderRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	result, err := h.checkout.CreateOrderFromCart(ctx, req.command(identity.UID))
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, createOrderResponse{
		Order: buildOrderPayload(result.Order),
		Payment: checkoutPaymentPayload{
			RedirectURL:     result.Payment.RedirectURL,
			MerchantOrderID: result.Payment.MerchantOrderID,
			GatewayOrderID:  result.Payment.GatewayOrderID,
			ExpireAt:        formatTimePointer(result.Payment.ExpireAt),
		},
	})
}

func (h *OrderHandlers) paymentCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("reconciliation_unavailable", "payment reconciliation unavailable", http.StatusServiceUnavailable))
		return
	}
	body, err := httpx.ReadBody(w, r, maxCallbackBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	if _, err := h.payments.HandlePaymentCallback(ctx, r.Header.Get("Authorization"), body); err != nil {
		switch {
		case errors.Is(err, payments.ErrInvalidCallbackSignature):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "callback signature is invalid", http.StatusUnauthorized))
		case errors.Is(err, services.ErrCallbackRejected):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_callback", "callback body is malformed", http.StatusBadRequest))
		case errors.Is(err, services.ErrOrderNotFound):
			httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		default:
			requestctx.Logger(ctx).Error("payment.callback.failed", zap.Error(err))
			httpx.WriteError(ctx, w, httpx.NewError("callback_failed", "failed to process callback", http.StatusInternalServerError))
		}
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	query := r.URL.Query()
	params, err := pagination.Parse(query)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	filter := services.OrderListFilter{
		UserID:     identity.UID,
		Pagination: domain.Pagination{Page: params.Page, Limit: params.Limit},
	}
	for _, raw := range pagination.Values(query, "status") {
		filter.Status = append(filter.Status, domain.OrderStatus(strings.ToLower(raw)))
	}
	for _, raw := range pagination.Values(query, "paymentStatus") {
		filter.PaymentStatus = append(filter.PaymentStatus, domain.PaymentStatus(strings.ToLower(raw)))
	}

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderSummaryPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderSummary(order))
	}
	httpx.WriteJSON(w, http.StatusOK, orderListResponse{
		Items: items,
		Pagination: paginationPayload{
			Page:  page.Page,
			Limit: page.Limit,
			Total: page.Total,
			Pages: page.Pages,
		},
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	order, ok := h.loadOwnedOrder(ctx, w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) paymentStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("reconciliation_unavailable", "payment reconciliation unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))

	var (
		view services.PaymentStatusView
		err  error
	)
	if identity.IsStaff() {
		view, err = h.payments.ReconcileOrder(ctx, orderID)
	} else {
		view, err = h.payments.CheckPaymentStatus(ctx, identity.UID, orderID)
	}
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildPaymentStatus(view))
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req cancelOrderRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	order, ok := h.loadOwnedOrder(ctx, w, r)
	if !ok {
		return
	}
	identity, _ := auth.IdentityFromContext(ctx)

	cancelled, err := h.orders.CancelOrder(ctx, services.CancelOrderCommand{
		OrderID: order.ID,
		ActorID: identity.UID,
		Reason:  req.Reason,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(cancelled)})
}

// loadOwnedOrder fetches the path order and hides orders the caller may not see.
func (h *OrderHandlers) loadOwnedOrder(ctx context.Context, w http.ResponseWriter, r *http.Request) (services.Order, bool) {
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return services.Order{}, false
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return services.Order{}, false
	}
	order, err := h.orders.GetOrder(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		writeOrderError(ctx, w, err)
		return services.Order{}, false
	}
	if !identity.CanAccess(order.UserID) {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return services.Order{}, false
	}
	return order, true
}

func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, httpx.ErrBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
	}
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("empty_cart", "cart is empty", http.StatusBadRequest))
	case errors.Is(err, services.ErrProductUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("product_unavailable", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentGatewayFailed):
		requestctx.Logger(ctx).Error("checkout.gateway_failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("payment_gateway_error", "payment could not be initiated; the order was saved", http.StatusInternalServerError))
	case errors.Is(err, services.ErrCheckoutUnavailable):
		requestctx.Logger(ctx).Error("checkout.unavailable", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout is temporarily unavailable", http.StatusServiceUnavailable))
	default:
		requestctx.Logger(ctx).Error("checkout.failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "failed to create order", http.StatusInternalServerError))
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderUnavailable), errors.Is(err, services.ErrReconciliationUnavailable):
		requestctx.Logger(ctx).Error("orders.unavailable", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("order_unavailable", "orders are temporarily unavailable", http.StatusServiceUnavailable))
	default:
		requestctx.Logger(ctx).Error("orders.failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
