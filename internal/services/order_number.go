package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

const (
	orderNumberSpace        = 100_000_000
	defaultOrderNumberTries = 10
)

// ErrOrderNumberExhausted indicates no free order number was found within the attempt budget.
var ErrOrderNumberExhausted = errors.New("orders: order number attempts exhausted")

type orderNumberLookup interface {
	OrderNumberExists(ctx context.Context, orderNumber string) (bool, error)
}

// OrderNumberGeneratorDeps wires the order number generator.
type OrderNumberGeneratorDeps struct {
	Orders orderNumberLookup
	// Random returns a uniform value in [0, n). Defaults to crypto/rand.
	Random   func(n int64) (int64, error)
	Attempts int
}

type orderNumberGenerator struct {
	orders   orderNumberLookup
	random   func(n int64) (int64, error)
	attempts int
}

// NewOrderNumberGenerator constructs a generator of 8-digit numeric order numbers.
func NewOrderNumberGenerator(deps OrderNumberGeneratorDeps) (OrderNumberGenerator, error) {
	if deps.Orders == nil {
		return nil, errors.New("order number generator: order repository is required")
	}
	random := deps.Random
	if random == nil {
		random = cryptoRandom
	}
	attempts := deps.Attempts
	if attempts <= 0 {
		attempts = defaultOrderNumberTries
	}
	return &orderNumberGenerator{orders: deps.Orders, random: random, attempts: attempts}, nil
}

// Generate returns a number not yet reserved. Concurrent generators may still pick the same
// number; the order insert reservation rejects the loser.
func (g *orderNumberGenerator) Generate(ctx context.Context) (string, error) {
	for i := 0; i < g.attempts; i++ {
		n, err := g.random(orderNumberSpace)
		if err != nil {
			return "", fmt.Errorf("orders: random order number: %w", err)
		}
		candidate := fmt.Sprintf("%08d", n%orderNumberSpace)
		exists, err := g.orders.OrderNumberExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w after %d attempts", ErrOrderNumberExhausted, g.attempts)
}

func cryptoRandom(n int64) (int64, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		return 0, err
	}
	return v.Int64(), nil
}
