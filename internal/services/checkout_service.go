package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	domain "github.com/Sushant736/propscholar-monorepo-sub000/internal/domain"
	"github.com/Sushant736/propscholar-monorepo-sub000/internal/payments"
	"github.com/Sushant736/propscholar-monorepo-sub000/internal/platform/textutil"
	"github.com/Sushant736/propscholar-monorepo-sub000/internal/repositories"
)

const (
	orderIDPrefix         = "ord_"
	merchantOrderIDPrefix = "MO"
	paymentMethodPhonePe  = "phonepe"
	defaultOrderCurrency  = "INR"

	maxNotesLength        = 1000
	maxAddressFieldLength = 200
	maxNameLength         = 120

	gatewayUnavailableReason = "payment gateway unavailable"
)

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
	// ErrEmptyCart indicates the cart has no lines.
	ErrEmptyCart = errors.New("checkout: cart is empty")
	// ErrProductUnavailable indicates a cart line references an inactive or missing product or variant.
	ErrProductUnavailable = errors.New("checkout: product unavailable")
	// ErrInsufficientStock indicates a cart line asks for more than the variant's stock.
	ErrInsufficientStock = errors.New("checkout: insufficient stock")
	// ErrPaymentGatewayFailed indicates the gateway payment order could not be created. The order is kept.
	ErrPaymentGatewayFailed = errors.New("checkout: payment gateway failed")
)

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Carts    repositories.CartRepository
	Users    repositories.UserRepository
	Orders   repositories.OrderRepository
	Gateway  payments.Gateway
	Numbers  OrderNumberGenerator
	Events   OrderEventPublisher
	Metrics  Metrics
	Currency string
	Clock    func() time.Time
	IDGen    func() string
	Logger   Logger
}

type checkoutService struct {
	carts    repositories.CartRepository
	users    repositories.UserRepository
	orders   repositories.OrderRepository
	gateway  payments.Gateway
	numbers  OrderNumberGenerator
	events   OrderEventPublisher
	metrics  Metrics
	currency string
	now      func() time.Time
	newID    func() string
	logger   Logger
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Carts == nil {
		return nil, errors.New("checkout service: cart repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("checkout service: payment gateway is required")
	}
	numbers := deps.Numbers
	if numbers == nil {
		generator, err := NewOrderNumberGenerator(OrderNumberGeneratorDeps{Orders: deps.Orders})
		if err != nil {
			return nil, err
		}
		numbers = generator
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = defaultOrderCurrency
	}

	svc := &checkoutService{
		carts:    deps.Carts,
		users:    deps.Users,
		orders:   deps.Orders,
		gateway:  deps.Gateway,
		numbers:  numbers,
		events:   deps.Events,
		metrics:  deps.Metrics,
		currency: currency,
		now: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
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

// CreateOrderFromCart validates the cart, persists a pending order and opens a gateway payment
// for it. A gateway failure leaves the order stored with a failed payment.
func (s *checkoutService) CreateOrderFromCart(ctx context.Context, cmd CreateOrderCommand) (CheckoutResult, error) {
	cmd, err := normaliseCreateOrderCommand(cmd)
	if err != nil {
		return CheckoutResult{}, err
	}

	cart, err := s.carts.LoadWithCatalog(ctx, cmd.UserID)
	if err != nil {
		s.logger(ctx, "checkout.cart_load_failed", map[string]any{"userId": cmd.UserID, "error": err.Error()})
		return CheckoutResult{}, fmt.Errorf("%w: load cart", ErrCheckoutUnavailable)
	}
	items, err := priceCartLines(cart.Lines)
	if err != nil {
		s.metrics.OrderCreated("rejected")
		return CheckoutResult{}, err
	}

	pricing := domain.NewPricing(domain.SumItems(items), decimal.Zero, decimal.Zero, decimal.Zero)
	if !pricing.Balanced() || !pricing.Total.IsPositive() {
		return CheckoutResult{}, fmt.Errorf("%w: order total must be positive", ErrCheckoutInvalidInput)
	}

	customer := s.resolveCustomer(ctx, cmd)
	now := s.now()
	order := Order{
		ID:      orderIDPrefix + s.newID(),
		UserID:  cmd.UserID,
		Items:   items,
		Pricing: pricing,
		Status:  domain.OrderStatusPending,
		Payment: domain.PaymentDetails{
			Method:          paymentMethodPhonePe,
			MerchantOrderID: merchantOrderIDPrefix + s.newID(),
			Amount:          payments.ToMinorUnits(pricing.Total),
			Currency:        s.currency,
			Status:          domain.PaymentStatusPending,
		},
		Customer:        customer,
		ShippingAddress: cmd.ShippingAddress,
		BillingAddress:  cmd.BillingAddress,
		Notes:           cmd.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if order, err = s.insertWithOrderNumber(ctx, order); err != nil {
		return CheckoutResult{}, err
	}

	created, err := s.gateway.CreateOrder(ctx, payments.CreateOrderRequest{
		MerchantOrderID: order.Payment.MerchantOrderID,
		Amount:          pricing.Total,
		RedirectURL:     cmd.RedirectURL,
	})
	if err != nil {
		return CheckoutResult{}, s.recordGatewayFailure(ctx, order, err)
	}

	gw := domain.GatewayOrder{
		GatewayOrderID: strings.TrimSpace(created.GatewayOrderID),
		RedirectURL:    strings.TrimSpace(created.RedirectURL),
		ExpireAt:       created.ExpireAt,
		Raw:            created.Raw,
		RecordedAt:     s.now(),
	}
	// A callback may already have settled the order; the stored copy wins.
	stored, err := s.orders.RecordGatewayOrder(ctx, order.ID, gw)
	if err != nil {
		// Callbacks still resolve the order through the merchant order id reservation.
		s.logger(ctx, "checkout.gateway_order_persist_failed", map[string]any{
			"orderId":         order.ID,
			"merchantOrderId": order.Payment.MerchantOrderID,
			"error":           err.Error(),
		})
		stored = domain.RecordGatewayOrder(order, gw)
	}
	order = stored

	s.metrics.OrderCreated("success")
	s.logger(ctx, "checkout.order_created", map[string]any{
		"orderId":         order.ID,
		"orderNumber":     order.OrderNumber,
		"merchantOrderId": order.Payment.MerchantOrderID,
		"amount":          order.Payment.Amount,
	})
	publishEvents(ctx, s.events, s.logger, newOrderEvent(EventOrderCreated, order, "checkout", order.UpdatedAt))

	return CheckoutResult{
		Order: order,
		Payment: CheckoutPayment{
			RedirectURL:     order.Payment.RedirectURL,
			MerchantOrderID: order.Payment.MerchantOrderID,
			GatewayOrderID:  order.Payment.GatewayOrderID,
			ExpireAt:        order.Payment.ExpireAt,
		},
	}, nil
}

// insertWithOrderNumber assigns an order number and inserts the order, regenerating the number
// once when a concurrent checkout reserved it first.
func (s *checkoutService) insertWithOrderNumber(ctx context.Context, order Order) (Order, error) {
	for attempt := 0; attempt < 2; attempt++ {
		number, err := s.numbers.Generate(ctx)
		if err != nil {
			s.logger(ctx, "checkout.order_number_failed", map[string]any{"userId": order.UserID, "error": err.Error()})
			if errors.Is(err, ErrOrderNumberExhausted) {
				return Order{}, fmt.Errorf("%w: %w", ErrCheckoutUnavailable, err)
			}
			return Order{}, fmt.Errorf("%w: order number", ErrCheckoutUnavailable)
		}
		order.OrderNumber = number

		err = s.orders.Insert(ctx, order)
		if err == nil {
			return order, nil
		}
		if attempt == 0 && errors.Is(err, repositories.ErrDuplicateOrderNumber) {
			s.logger(ctx, "checkout.order_number_collision", map[string]any{"orderNumber": number})
			continue
		}
		s.logger(ctx, "checkout.order_insert_failed", map[string]any{
			"orderId":     order.ID,
			"orderNumber": number,
			"error":       err.Error(),
		})
		return Order{}, fmt.Errorf("%w: persist order", ErrCheckoutUnavailable)
	}
	return Order{}, fmt.Errorf("%w: order number collision", ErrCheckoutUnavailable)
}

func (s *checkoutService) recordGatewayFailure(ctx context.Context, order Order, cause error) error {
	reason := gatewayFailureReason(cause)
	fields := map[string]any{
		"orderId":         order.ID,
		"merchantOrderId": order.Payment.MerchantOrderID,
		"reason":          reason,
		"error":           cause.Error(),
	}
	stored, changed, err := s.orders.MarkPaymentInitFailed(ctx, order.ID, reason, s.now())
	switch {
	case err != nil:
		fields["persistError"] = err.Error()
	case !changed:
		fields["keptStatus"] = string(stored.Payment.Status)
	}
	s.logger(ctx, "checkout.payment_gateway_failed", fields)
	s.metrics.OrderCreated("gateway_failed")
	return fmt.Errorf("%w: %w", ErrPaymentGatewayFailed, cause)
}

func (s *checkoutService) resolveCustomer(ctx context.Context, cmd CreateOrderCommand) CustomerDetails {
	var customer CustomerDetails
	if cmd.Customer != nil {
		customer = *cmd.Customer
	}
	if customer.Name != "" && customer.Email != "" && customer.Phone != "" {
		return customer
	}
	if s.users == nil {
		return customer
	}
	profile, err := s.users.FindProfile(ctx, cmd.UserID)
	if err != nil {
		s.logger(ctx, "checkout.profile_lookup_failed", map[string]any{"userId": cmd.UserID, "error": err.Error()})
		return customer
	}
	customer.Name = lo.CoalesceOrEmpty(customer.Name, textutil.PlainText(profile.Name, maxNameLength))
	customer.Email = lo.CoalesceOrEmpty(customer.Email, profile.Email)
	customer.Phone = lo.CoalesceOrEmpty(customer.Phone, profile.Phone)
	return customer
}

// priceCartLines validates every line before any write and snapshots live variant pricing.
func priceCartLines(lines []domain.CartLine) ([]OrderItem, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}
	items := make([]OrderItem, 0, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for %s must be positive", ErrCheckoutInvalidInput, line.VariantID)
		}
		if line.Product == nil || !line.Product.IsActive || line.Variant == nil || !line.Variant.IsActive {
			return nil, fmt.Errorf("%w: %s/%s", ErrProductUnavailable, line.ProductID, line.VariantID)
		}
		if line.Quantity > line.Variant.Stock {
			return nil, fmt.Errorf("%w: %s has %d, requested %d", ErrInsufficientStock, line.VariantID, line.Variant.Stock, line.Quantity)
		}
		unit := line.Variant.Price.Round(2)
		if unit.IsNegative() {
			return nil, fmt.Errorf("%w: %s", ErrProductUnavailable, line.VariantID)
		}
		items = append(items, OrderItem{
			ProductID:   line.ProductID,
			VariantID:   line.VariantID,
			ProductName: line.Product.Name,
			VariantName: line.Variant.Name,
			SKU:         line.Variant.SKU,
			Quantity:    line.Quantity,
			UnitPrice:   unit,
			TotalPrice:  domain.LineTotal(unit, line.Quantity),
		})
	}
	return items, nil
}

func normaliseCreateOrderCommand(cmd CreateOrderCommand) (CreateOrderCommand, error) {
	cmd.UserID = strings.TrimSpace(cmd.UserID)
	if cmd.UserID == "" {
		return cmd, fmt.Errorf("%w: user id is required", ErrCheckoutInvalidInput)
	}
	cmd.RedirectURL = strings.TrimSpace(cmd.RedirectURL)
	parsed, err := url.Parse(cmd.RedirectURL)
	if cmd.RedirectURL == "" || err != nil || !parsed.IsAbs() || parsed.Host == "" ||
		(parsed.Scheme != "http" && parsed.Scheme != "https") {
		return cmd, fmt.Errorf("%w: redirectUrl must be an absolute http(s) url", ErrCheckoutInvalidInput)
	}

	if cmd.Customer != nil {
		customer := CustomerDetails{
			Name:  textutil.PlainText(cmd.Customer.Name, maxNameLength),
			Email: strings.TrimSpace(cmd.Customer.Email),
			Phone: strings.TrimSpace(cmd.Customer.Phone),
		}
		cmd.Customer = &customer
	}
	for _, field := range []struct {
		name string
		addr **Address
	}{
		{"shippingAddress", &cmd.ShippingAddress},
		{"billingAddress", &cmd.BillingAddress},
	} {
		if *field.addr == nil {
			continue
		}
		cleaned := sanitiseAddress(**field.addr)
		if cleaned.Line1 == "" || cleaned.City == "" || cleaned.PostalCode == "" || cleaned.Country == "" {
			return cmd, fmt.Errorf("%w: %s requires line1, city, postalCode and country", ErrCheckoutInvalidInput, field.name)
		}
		*field.addr = &cleaned
	}
	cmd.Notes = textutil.PlainText(cmd.Notes, maxNotesLength)
	return cmd, nil
}

func sanitiseAddress(addr Address) Address {
	clean := func(s string) string { return textutil.PlainText(s, maxAddressFieldLength) }
	return Address{
		Name:       clean(addr.Name),
		Phone:      strings.TrimSpace(addr.Phone),
		Line1:      clean(addr.Line1),
		Line2:      clean(addr.Line2),
		City:       clean(addr.City),
		State:      clean(addr.State),
		PostalCode: clean(addr.PostalCode),
		Country:    strings.ToUpper(clean(addr.Country)),
	}
}

func gatewayFailureReason(err error) string {
	var gatewayErr *payments.GatewayError
	if errors.As(err, &gatewayErr) {
		if code := strings.TrimSpace(gatewayErr.Code); code != "" {
			return code
		}
		if gatewayErr.StatusCode > 0 {
			return fmt.Sprintf("gateway status %d", gatewayErr.StatusCode)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "payment gateway timeout"
	}
	if errors.Is(err, payments.ErrInvalidRequest) {
		return "payment request rejected"
	}
	return gatewayUnavailableReason
}
