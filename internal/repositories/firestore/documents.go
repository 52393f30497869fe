package firestore

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	domain "github.com/Sushant736/propscholar-monorepo-sub000/internal/domain"
)

const (
	ordersCollection         = "orders"
	orderNumbersCollection   = "orderNumbers"
	merchantOrdersCollection = "merchantOrders"
	cartsCollection          = "carts"
	productsCollection       = "products"
	variantsCollection       = "variants"
	usersCollection          = "users"
)

type orderDocument struct {
	OrderNumber     string              `firestore:"orderNumber"`
	UserID          string              `firestore:"userId"`
	Items           []orderItemDocument `firestore:"items"`
	Pricing         pricingDocument     `firestore:"pricing"`
	Status          string              `firestore:"status"`
	Payment         paymentDocument     `firestore:"paymentDetails"`
	Customer        customerDocument    `firestore:"customerDetails"`
	ShippingAddress *addressDocument    `firestore:"shippingAddress,omitempty"`
	BillingAddress  *addressDocument    `firestore:"billingAddress,omitempty"`
	Notes           string              `firestore:"notes,omitempty"`
	CancelReason    string              `firestore:"cancelReason,omitempty"`
	CreatedAt       time.Time           `firestore:"createdAt"`
	UpdatedAt       time.Time           `firestore:"updatedAt"`
	ConfirmedAt     *time.Time          `firestore:"confirmedAt,omitempty"`
	CancelledAt     *time.Time          `firestore:"cancelledAt,omitempty"`
}

type orderItemDocument struct {
	ProductID   string `firestore:"productId"`
	VariantID   string `firestore:"variantId"`
	ProductName string `firestore:"productName"`
	VariantName string `firestore:"variantName,omitempty"`
	SKU         string `firestore:"sku,omitempty"`
	Quantity    int    `firestore:"quantity"`
	UnitPrice   string `firestore:"unitPrice"`
	TotalPrice  string `firestore:"totalPrice"`
}

// Money is stored as fixed two-place strings so no precision is lost through float64.
type pricingDocument struct {
	Subtotal     string `firestore:"subtotal"`
	Tax          string `firestore:"tax"`
	Discount     string `firestore:"discount"`
	ShippingCost string `firestore:"shippingCost"`
	Total        string `firestore:"total"`
}

type paymentDocument struct {
	Method               string         `firestore:"paymentMethod"`
	MerchantOrderID      string         `firestore:"merchantOrderId"`
	GatewayOrderID       string         `firestore:"gatewayOrderId,omitempty"`
	GatewayTransactionID string         `firestore:"gatewayTransactionId,omitempty"`
	Amount               int64          `firestore:"amount"`
	Currency             string         `firestore:"currency"`
	Status               string         `firestore:"status"`
	FailureReason        string         `firestore:"failureReason,omitempty"`
	RedirectURL          string         `firestore:"redirectUrl,omitempty"`
	ExpireAt             *time.Time     `firestore:"expireAt,omitempty"`
	GatewayRawResponse   map[string]any `firestore:"gatewayRawResponse,omitempty"`
	PaymentTimestamp     *time.Time     `firestore:"paymentTimestamp,omitempty"`
}

type customerDocument struct {
	Name  string `firestore:"name"`
	Email string `firestore:"email"`
	Phone string `firestore:"phone,omitempty"`
}

type addressDocument struct {
	Name       string `firestore:"name,omitempty"`
	Phone      string `firestore:"phone,omitempty"`
	Line1      string `firestore:"line1"`
	Line2      string `firestore:"line2,omitempty"`
	City       string `firestore:"city"`
	State      string `firestore:"state,omitempty"`
	PostalCode string `firestore:"postalCode"`
	Country    string `firestore:"country"`
}

type keyReservationDocument struct {
	OrderID   string    `firestore:"orderId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

type cartDocument struct {
	Lines     []cartLineDocument `firestore:"lines"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartLineDocument struct {
	ProductID string `firestore:"productId"`
	VariantID string `firestore:"variantId"`
	Quantity  int    `firestore:"quantity"`
}

type productDocument struct {
	Name     string `firestore:"name"`
	IsActive bool   `firestore:"isActive"`
}

type variantDocument struct {
	Name     string  `firestore:"name"`
	SKU      string  `firestore:"sku"`
	Price    float64 `firestore:"price"`
	Stock    int     `firestore:"stock"`
	IsActive bool    `firestore:"isActive"`
}

type userDocument struct {
	DisplayName string `firestore:"displayName"`
	Email       string `firestore:"email"`
	Phone       string `firestore:"phoneNumber"`
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func parseMoney(field, value string) (decimal.Decimal, error) {
	if strings.TrimSpace(value) == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("decode %s: %w", field, err)
	}
	return d, nil
}

func newOrderDocument(order domain.Order) orderDocument {
	return orderDocument{
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Items: lo.Map(order.Items, func(item domain.OrderItem, _ int) orderItemDocument {
			return orderItemDocument{
				ProductID:   item.ProductID,
				VariantID:   item.VariantID,
				ProductName: item.ProductName,
				VariantName: item.VariantName,
				SKU:         item.SKU,
				Quantity:    item.Quantity,
				UnitPrice:   money(item.UnitPrice),
				TotalPrice:  money(item.TotalPrice),
			}
		}),
		Pricing: pricingDocument{
			Subtotal:     money(order.Pricing.Subtotal),
			Tax:          money(order.Pricing.Tax),
			Discount:     money(order.Pricing.Discount),
			ShippingCost: money(order.Pricing.ShippingCost),
			Total:        money(order.Pricing.Total),
		},
		Status: string(order.Status),
		Payment: paymentDocument{
			Method:               order.Payment.Method,
			MerchantOrderID:      order.Payment.MerchantOrderID,
			GatewayOrderID:       order.Payment.GatewayOrderID,
			GatewayTransactionID: order.Payment.GatewayTransactionID,
			Amount:               order.Payment.Amount,
			Currency:             order.Payment.Currency,
			Status:               string(order.Payment.Status),
			FailureReason:        order.Payment.FailureReason,
			RedirectURL:          order.Payment.RedirectURL,
			ExpireAt:             order.Payment.ExpireAt,
			GatewayRawResponse:   order.Payment.GatewayRawResponse,
			PaymentTimestamp:     order.Payment.PaymentTimestamp,
		},
		Customer: customerDocument{
			Name:  order.Customer.Name,
			Email: order.Customer.Email,
			Phone: order.Customer.Phone,
		},
		ShippingAddress: newAddressDocument(order.ShippingAddress),
		BillingAddress:  newAddressDocument(order.BillingAddress),
		Notes:           order.Notes,
		CancelReason:    order.CancelReason,
		CreatedAt:       order.CreatedAt.UTC(),
		UpdatedAt:       order.UpdatedAt.UTC(),
		ConfirmedAt:     order.ConfirmedAt,
		CancelledAt:     order.CancelledAt,
	}
}

func (d orderDocument) toDomain(id string) (domain.Order, error) {
	items := make([]domain.OrderItem, 0, len(d.Items))
	for _, item := range d.Items {
		unit, err := parseMoney("unitPrice", item.UnitPrice)
		if err != nil {
			return domain.Order{}, err
		}
		total, err := parseMoney("totalPrice", item.TotalPrice)
		if err != nil {
			return domain.Order{}, err
		}
		items = append(items, domain.OrderItem{
			ProductID:   item.ProductID,
			VariantID:   item.VariantID,
			ProductName: item.ProductName,
			VariantName: item.VariantName,
			SKU:         item.SKU,
			Quantity:    item.Quantity,
			UnitPrice:   unit,
			TotalPrice:  total,
		})
	}

	var pricing domain.Pricing
	for _, field := range []struct {
		name  string
		raw   string
		value *decimal.Decimal
	}{
		{"subtotal", d.Pricing.Subtotal, &pricing.Subtotal},
		{"tax", d.Pricing.Tax, &pricing.Tax},
		{"discount", d.Pricing.Discount, &pricing.Discount},
		{"shippingCost", d.Pricing.ShippingCost, &pricing.ShippingCost},
		{"total", d.Pricing.Total, &pricing.Total},
	} {
		parsed, err := parseMoney(field.name, field.raw)
		if err != nil {
			return domain.Order{}, err
		}
		*field.value = parsed
	}

	return domain.Order{
		ID:          id,
		OrderNumber: d.OrderNumber,
		UserID:      d.UserID,
		Items:       items,
		Pricing:     pricing,
		Status:      domain.OrderStatus(d.Status),
		Payment: domain.PaymentDetails{
			Method:               d.Payment.Method,
			MerchantOrderID:      d.Payment.MerchantOrderID,
			GatewayOrderID:       d.Payment.GatewayOrderID,
			GatewayTransactionID: d.Payment.GatewayTransactionID,
			Amount:               d.Payment.Amount,
			Currency:             d.Payment.Currency,
			Status:               domain.PaymentStatus(d.Payment.Status),
			FailureReason:        d.Payment.FailureReason,
			RedirectURL:          d.Payment.RedirectURL,
			ExpireAt:             utcPtr(d.Payment.ExpireAt),
			GatewayRawResponse:   d.Payment.GatewayRawResponse,
			PaymentTimestamp:     utcPtr(d.Payment.PaymentTimestamp),
		},
		Customer: domain.CustomerDetails{
			Name:  d.Customer.Name,
			Email: d.Customer.Email,
			Phone: d.Customer.Phone,
		},
		ShippingAddress: d.ShippingAddress.toDomain(),
		BillingAddress:  d.BillingAddress.toDomain(),
		Notes:           d.Notes,
		CancelReason:    d.CancelReason,
		CreatedAt:       d.CreatedAt.UTC(),
		UpdatedAt:       d.UpdatedAt.UTC(),
		ConfirmedAt:     utcPtr(d.ConfirmedAt),
		CancelledAt:     utcPtr(d.CancelledAt),
	}, nil
}

func newAddressDocument(addr *domain.Address) *addressDocument {
	if addr == nil {
		return nil
	}
	return &addressDocument{
		Name:       addr.Name,
		Phone:      addr.Phone,
		Line1:      addr.Line1,
		Line2:      addr.Line2,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
	}
}

func (d *addressDocument) toDomain() *domain.Address {
	if d == nil {
		return nil
	}
	return &domain.Address{
		Name:       d.Name,
		Phone:      d.Phone,
		Line1:      d.Line1,
		Line2:      d.Line2,
		City:       d.City,
		State:      d.State,
		PostalCode: d.PostalCode,
		Country:    d.Country,
	}
}

func (d variantDocument) toDomain(productID, id string) domain.Variant {
	return domain.Variant{
		ID:        id,
		ProductID: productID,
		Name:      d.Name,
		SKU:       d.SKU,
		Price:     decimal.NewFromFloat(d.Price).Round(2),
		Stock:     d.Stock,
		IsActive:  d.IsActive,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
