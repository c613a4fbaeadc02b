package deduplication

import (
	"context"
	"fmt"
	"time"

	"hookbridge/pkg/circuitbreaker"
)

// CircuitBreakerStore guards a remote Store so that an unreachable cache
// fails fast instead of stalling webhook acknowledgments.
type CircuitBreakerStore struct {
	store Store
	cb    *circuitbreaker.Wrapper
}

func NewCircuitBreakerStore(store Store, overrides circuitbreaker.Overrides) *CircuitBreakerStore {
	return &CircuitBreakerStore{
		store: store,
		cb:    circuitbreaker.NewOptional("dedup-store", overrides),
	}
}

func (s *CircuitBreakerStore) Exists(ctx context.Context, key string) (bool, error) {
	return executeTyped[bool](ctx, s.cb, func() (bool, error) {
		return s.store.Exists(ctx, key)
	})
}

func (s *CircuitBreakerStore) SetWithExpiry(ctx context.Context, key string, value int64, ttl time.Duration) error {
	_, err := s.cb.Execute(ctx, func() (interface{}, error) {
		return nil, s.store.SetWithExpiry(ctx, key, value, ttl)
	})
	return err
}

func (s *CircuitBreakerStore) SetNX(ctx context.Context, key string, value int64, ttl time.Duration) (bool, error) {
	return executeTyped[bool](ctx, s.cb, func() (bool, error) {
		return s.store.SetNX(ctx, key, value, ttl)
	})
}

func (s *CircuitBreakerStore) Delete(ctx context.Context, key string) error {
	_, err := s.cb.Execute(ctx, func() (interface{}, error) {
		return nil, s.store.Delete(ctx, key)
	})
	return err
}

func (s *CircuitBreakerStore) Size(ctx context.Context, prefix string) (int, error) {
	return executeTyped[int](ctx, s.cb, func() (int, error) {
		return s.store.Size(ctx, prefix)
	})
}

func (s *CircuitBreakerStore) State() string {
	if s.cb == nil {
		return "disabled"
	}
	return s.cb.State().String()
}

func executeTyped[T any](ctx context.Context, cb *circuitbreaker.Wrapper, fn func() (T, error)) (T, error) {
	var zero T
	result, err := cb.Execute(ctx, func() (interface{}, error) {
		v, err := fn()
		return v, err
	})
	if err != nil {
		return zero, err
	}
	v, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("store returned invalid result type %T", result)
	}
	return v, nil
}
