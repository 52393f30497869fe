package services

import (
	"context"
	"errors"
	"regexp"
	"testing"
)

type stubNumberLookup struct {
	taken map[string]bool
	err   error
	calls int
}

func (s *stubNumberLookup) OrderNumberExists(_ context.Context, number string) (bool, error) {
	s.calls++
	if s.err != nil {
		return false, s.err
	}
	return s.taken[number], nil
}

func fixedRandom(values ...int64) func(int64) (int64, error) {
	i := 0
	return func(int64) (int64, error) {
		v := values[i%len(values)]
		i++
		return v, nil
	}
}

func TestOrderNumberGeneratorSkipsTakenNumbers(t *testing.T) {
	lookup := &stubNumberLookup{taken: map[string]bool{"00000042": true}}
	gen, err := NewOrderNumberGenerator(OrderNumberGeneratorDeps{Orders: lookup, Random: fixedRandom(42, 7)})
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	number, err := gen.Generate(context.Background())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if number != "00000007" || lookup.calls != 2 {
		t.Fatalf("expected second candidate after one collision, got %s after %d lookups", number, lookup.calls)
	}
}

func TestOrderNumberGeneratorExhaustsAttempts(t *testing.T) {
	lookup := &stubNumberLookup{taken: map[string]bool{"00000001": true}}
	gen, _ := NewOrderNumberGenerator(OrderNumberGeneratorDeps{Orders: lookup, Random: fixedRandom(1)})
	if _, err := gen.Generate(context.Background()); !errors.Is(err, ErrOrderNumberExhausted) {
		t.Fatalf("expected exhaustion, got %v", err)
	}
	if lookup.calls != defaultOrderNumberTries {
		t.Fatalf("expected %d attempts, got %d", defaultOrderNumberTries, lookup.calls)
	}
}

func TestOrderNumberGeneratorPropagatesLookupErrors(t *testing.T) {
	boom := errors.New("firestore down")
	gen, _ := NewOrderNumberGenerator(OrderNumberGeneratorDeps{Orders: &stubNumberLookup{err: boom}, Random: fixedRandom(5)})
	if _, err := gen.Generate(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected lookup error, got %v", err)
	}
}

func TestOrderNumberGeneratorDefaultRandomIsEightDigits(t *testing.T) {
	gen, _ := NewOrderNumberGenerator(OrderNumberGeneratorDeps{Orders: &stubNumberLookup{}})
	pattern := regexp.MustCompile(`^\d{8}$`)
	for i := 0; i < 50; i++ {
		number, err := gen.Generate(context.Background())
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if !pattern.MatchString(number) {
			t.Fatalf("expected 8 digits, got %q", number)
		}
	}
}
