package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sushant736/propscholar-monorepo-sub000/internal/payments"
	"github.com/Sushant736/propscholar-monorepo-sub000/internal/platform/config"
	"github.com/Sushant736/propscholar-monorepo-sub000/internal/repositories"
	"github.com/Sushant736/propscholar-monorepo-sub000/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Checkout       services.CheckoutService
	Orders         services.OrderService
	Reconciliation services.PaymentReconciliationService
}

// Infrastructure carries the adapters built outside the container. Nil fields fall back to
// the services' no-op defaults, except Gateway, which is built from cfg.PhonePe when unset.
type Infrastructure struct {
	Gateway payments.Gateway
	Events  services.OrderEventPublisher
	Archive services.CallbackArchiver
	Metrics services.Metrics
	Logger  services.Logger
	Clock   func() time.Time
	// Closers run in reverse order before the repositories are closed.
	Closers []func(context.Context) error
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
	Gateway      payments.Gateway

	closers []func(context.Context) error
}

// NewContainer constructs the runtime dependencies. Tests can supply in-memory registries
// and a stub gateway through infra.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, infra Infrastructure) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	gateway := infra.Gateway
	if gateway == nil {
		provider, err := payments.NewPhonePeProvider(payments.PhonePeConfig{
			ClientID:         cfg.PhonePe.ClientID,
			ClientSecret:     cfg.PhonePe.ClientSecret,
			ClientVersion:    cfg.PhonePe.ClientVersion,
			Environment:      cfg.PhonePe.Environment,
			BaseURL:          cfg.PhonePe.BaseURL,
			AuthURL:          cfg.PhonePe.AuthURL,
			CallbackUsername: cfg.PhonePe.CallbackUsername,
			CallbackPassword: cfg.PhonePe.CallbackPassword,
			Timeout:          cfg.PhonePe.Timeout,
			Clock:            infra.Clock,
			Logger:           payments.Logger(infra.Logger),
		})
		if err != nil {
			return nil, fmt.Errorf("phonepe gateway: %w", err)
		}
		gateway = provider
	}

	svc, err := buildServices(ctx, reg, cfg, gateway, infra)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
		Gateway:      gateway,
		closers:      infra.Closers,
	}, nil
}

// Close releases adapters registered as closers, then the repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if c.closers[i] == nil {
			continue
		}
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Repositories != nil {
		if err := c.Repositories.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, gateway payments.Gateway, infra Infrastructure) (Services, error) {
	var svc Services

	numbers, err := services.NewOrderNumberGenerator(services.OrderNumberGeneratorDeps{
		Orders: reg.Orders(),
	})
	if err != nil {
		return svc, fmt.Errorf("order number generator: %w", err)
	}

	checkout, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Carts:    reg.Carts(),
		Users:    reg.Users(),
		Orders:   reg.Orders(),
		Gateway:  gateway,
		Numbers:  numbers,
		Events:   infra.Events,
		Metrics:  infra.Metrics,
		Currency: cfg.Orders.Currency,
		Clock:    infra.Clock,
		Logger:   infra.Logger,
	})
	if err != nil {
		return svc, fmt.Errorf("checkout service: %w", err)
	}
	svc.Checkout = checkout

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders: reg.Orders(),
		Events: infra.Events,
		Clock:  infra.Clock,
		Logger: infra.Logger,
	})
	if err != nil {
		return svc, fmt.Errorf("order service: %w", err)
	}
	svc.Orders = orders

	reconciliation, err := services.NewPaymentReconciliationService(services.PaymentReconciliationServiceDeps{
		Orders:  reg.Orders(),
		Gateway: gateway,
		Events:  infra.Events,
		Metrics: infra.Metrics,
		Archive: infra.Archive,
		Clock:   infra.Clock,
		Logger:  infra.Logger,
	})
	if err != nil {
		return svc, fmt.Errorf("reconciliation service: %w", err)
	}
	svc.Reconciliation = reconciliation

	return svc, nil
}
