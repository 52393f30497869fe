package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	pfirestore "github.com/Sushant736/propscholar-monorepo-sub000/internal/platform/firestore"
	"github.com/Sushant736/propscholar-monorepo-sub000/internal/repositories"
)

// Registry bundles the Firestore repositories behind repositories.Registry.
type Registry struct {
	provider *pfirestore.Provider
	orders   *OrderRepository
	carts    *CartRepository
	users    *UserRepository
	health   repositories.HealthRepository
}

// NewRegistry builds every repository on the shared provider. Extra probes are appended to the
// Firestore health check.
func NewRegistry(provider *pfirestore.Provider, checks ...repositories.DependencyCheck) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	carts, err := NewCartRepository(provider)
	if err != nil {
		return nil, err
	}
	users, err := NewUserRepository(provider)
	if err != nil {
		return nil, err
	}

	probes := append([]repositories.DependencyCheck{{
		Name:    "firestore",
		Timeout: 2 * time.Second,
		Check:   provider.Ping,
	}}, checks...)
	health, err := repositories.NewDependencyHealthRepository(probes, time.Now)
	if err != nil {
		return nil, fmt.Errorf("health repository: %w", err)
	}

	return &Registry{
		provider: provider,
		orders:   orders,
		carts:    carts,
		users:    users,
		health:   health,
	}, nil
}

func (r *Registry) Close(ctx context.Context) error { return r.provider.Close(ctx) }

func (r *Registry) Orders() repositories.OrderRepository  { return r.orders }
func (r *Registry) Carts() repositories.CartRepository    { return r.carts }
func (r *Registry) Users() repositories.UserRepository    { return r.users }
func (r *Registry) Health() repositories.HealthRepository { return r.health }

var _ repositories.Registry = (*Registry)(nil)
