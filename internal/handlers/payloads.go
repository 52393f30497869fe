package handlers

import (
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	domain "github.com/Sushant736/propscholar-monorepo-sub000/internal/domain"
	"github.com/Sushant736/propscholar-monorepo-sub000/internal/services"
)

type addressPayload struct {
	Name       string `json:"name,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

type customerPayload struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type createOrderRequest struct {
	CustomerDetails *customerPayload `json:"customerDetails"`
	ShippingAddress *addressPayload  `json:"shippingAddress"`
	BillingAddress  *addressPayload  `json:"billingAddress"`
	Notes           string           `json:"notes"`
	RedirectURL     string           `json:"redirectUrl"`
}

func (req createOrderRequest) command(userID string) services.CreateOrderCommand {
	cmd := services.CreateOrderCommand{
		UserID:          userID,
		ShippingAddress: req.ShippingAddress.toDomain(),
		BillingAddress:  req.BillingAddress.toDomain(),
		Notes:           req.Notes,
		RedirectURL:     strings.TrimSpace(req.RedirectURL),
	}
	if req.CustomerDetails != nil {
		cmd.Customer = &services.CustomerDetails{
			Name:  req.CustomerDetails.Name,
			Email: req.CustomerDetails.Email,
			Phone: req.CustomerDetails.Phone,
		}
	}
	return cmd
}

func (a *addressPayload) toDomain() *services.Address {
	if a == nil {
		return nil
	}
	return &services.Address{
		Name:       a.Name,
		Phone:      a.Phone,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

func buildAddressPayload(a *services.Address) *addressPayload {
	if a == nil {
		return nil
	}
	return &addressPayload{
		Name:       a.Name,
		Phone:      a.Phone,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

type orderItemPayload struct {
	ProductID   string          `json:"productId"`
	VariantID   string          `json:"variantId"`
	ProductName string          `json:"productName,omitempty"`
	VariantName string          `json:"variantName,omitempty"`
	SKU         string          `json:"sku,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	TotalPrice  decimal.Decimal `json:"totalPrice"`
}

type pricingPayload struct {
	Subtotal     decimal.Decimal `json:"subtotal"`
	Tax          decimal.Decimal `json:"tax"`
	Discount     decimal.Decimal `json:"discount"`
	ShippingCost decimal.Decimal `json:"shippingCost"`
	Total        decimal.Decimal `json:"total"`
}

type paymentPayload struct {
	Method          string `json:"method"`
	MerchantOrderID string `json:"merchantOrderId"`
	GatewayOrderID  string `json:"gatewayOrderId,omitempty"`
	TransactionID   string `json:"transactionId,omitempty"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	Status          string `json:"status"`
	FailureReason   string `json:"failureReason,omitempty"`
	RedirectURL     string `json:"redirectUrl,omitempty"`
	ExpireAt        string `json:"expireAt,omitempty"`
	PaidAt          string `json:"paymentTimestamp,omitempty"`
}

type orderPayload struct {
	ID              string             `json:"id"`
	OrderNumber     string             `json:"orderNumber"`
	UserID          string             `json:"userId"`
	Status          string             `json:"status"`
	Items           []orderItemPayload `json:"items"`
	Pricing         pricingPayload     `json:"pricing"`
	Payment         paymentPayload     `json:"payment"`
	Customer        customerPayload    `json:"customerDetails"`
	ShippingAddress *addressPayload    `json:"shippingAddress,omitempty"`
	BillingAddress  *addressPayload    `json:"billingAddress,omitempty"`
	Notes           string             `json:"notes,omitempty"`
	CancelReason    string             `json:"cancelReason,omitempty"`
	CreatedAt       string             `json:"createdAt"`
	UpdatedAt       string             `json:"updatedAt,omitempty"`
	ConfirmedAt     string             `json:"confirmedAt,omitempty"`
	CancelledAt     string             `json:"cancelledAt,omitempty"`
}

func buildOrderPayload(order services.Order) orderPayload {
	return orderPayload{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Status:      string(order.Status),
		Items: lo.Map(order.Items, func(item services.OrderItem, _ int) orderItemPayload {
			return orderItemPayload{
				ProductID:   item.ProductID,
				VariantID:   item.VariantID,
				ProductName: item.ProductName,
				VariantName: item.VariantName,
				SKU:         item.SKU,
				Quantity:    item.Quantity,
				UnitPrice:   item.UnitPrice,
				TotalPrice:  item.TotalPrice,
			}
		}),
		Pricing: pricingPayload{
			Subtotal:     order.Pricing.Subtotal,
			Tax:          order.Pricing.Tax,
			Discount:     order.Pricing.Discount,
			ShippingCost: order.Pricing.ShippingCost,
			Total:        order.Pricing.Total,
		},
		Payment: buildPaymentPayload(order.Payment),
		Customer: customerPayload{
			Name:  order.Customer.Name,
			Email: order.Customer.Email,
			Phone: order.Customer.Phone,
		},
		ShippingAddress: buildAddressPayload(order.ShippingAddress),
		BillingAddress:  buildAddressPayload(order.BillingAddress),
		Notes:           order.Notes,
		CancelReason:    order.CancelReason,
		CreatedAt:       formatTime(order.CreatedAt),
		UpdatedAt:       formatTime(order.UpdatedAt),
		ConfirmedAt:     formatTimePointer(order.ConfirmedAt),
		CancelledAt:     formatTimePointer(order.CancelledAt),
	}
}

func buildPaymentPayload(p domain.PaymentDetails) paymentPayload {
	return paymentPayload{
		Method:          p.Method,
		MerchantOrderID: p.MerchantOrderID,
		GatewayOrderID:  p.GatewayOrderID,
		TransactionID:   p.GatewayTransactionID,
		Amount:          p.Amount,
		Currency:        p.Currency,
		Status:          string(p.Status),
		FailureReason:   p.FailureReason,
		RedirectURL:     p.RedirectURL,
		ExpireAt:        formatTimePointer(p.ExpireAt),
		PaidAt:          formatTimePointer(p.PaymentTimestamp),
	}
}

type orderSummaryPayload struct {
	ID            string          `json:"id"`
	OrderNumber   string          `json:"orderNumber"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"paymentStatus"`
	ItemCount     int             `json:"itemCount"`
	Total         decimal.Decimal `json:"total"`
	Currency      string          `json:"currency"`
	CreatedAt     string          `json:"createdAt"`
}

func buildOrderSummary(order services.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:            order.ID,
		OrderNumber:   order.OrderNumber,
		Status:        string(order.Status),
		PaymentStatus: string(order.Payment.Status),
		ItemCount:     lo.SumBy(order.Items, func(item services.OrderItem) int { return item.Quantity }),
		Total:         order.Pricing.Total,
		Currency:      order.Payment.Currency,
		CreatedAt:     formatTime(order.CreatedAt),
	}
}

type paginationPayload struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type orderListResponse struct {
	Items      []orderSummaryPayload `json:"items"`
	Pagination paginationPayload     `json:"pagination"`
}

type checkoutPaymentPayload struct {
	RedirectURL     string `json:"redirectUrl"`
	MerchantOrderID string `json:"merchantOrderId"`
	GatewayOrderID  string `json:"gatewayOrderId,omitempty"`
	ExpireAt        string `json:"expireAt,omitempty"`
}

type createOrderResponse struct {
	Order   orderPayload           `json:"order"`
	Payment checkoutPaymentPayload `json:"payment"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type paymentStatusResponse struct {
	OrderID         string `json:"orderId"`
	OrderNumber     string `json:"orderNumber"`
	Status          string `json:"status"`
	PaymentStatus   string `json:"paymentStatus"`
	MerchantOrderID string `json:"merchantOrderId"`
	GatewayOrderID  string `json:"gatewayOrderId,omitempty"`
	TransactionID   string `json:"transactionId,omitempty"`
	Amount          int64  `json:"amount"`
	Advisory        string `json:"advisory,omitempty"`
}

func buildPaymentStatus(view services.PaymentStatusView) paymentStatusResponse {
	return paymentStatusResponse{
		OrderID:         view.OrderID,
		OrderNumber:     view.OrderNumber,
		Status:          string(view.Status),
		PaymentStatus:   string(view.PaymentStatus),
		MerchantOrderID: view.MerchantOrderID,
		GatewayOrderID:  view.GatewayOrderID,
		TransactionID:   view.TransactionID,
		Amount:          view.Amount,
		Advisory:        view.Advisory,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePointer(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
