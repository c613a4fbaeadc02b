package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"hookbridge/pkg/metrics"
)

var ErrOpen = errors.New("circuit breaker is open")

type Config struct {
	Name          string
	MaxRequests   uint32
	Interval      time.Duration
	Timeout       time.Duration
	ReadyToTrip   func(counts gobreaker.Counts) bool
	OnStateChange func(name string, from, to gobreaker.State)
}

// Overrides carries the tunables exposed through configuration. Zero
// values keep the defaults.
type Overrides struct {
	Enabled      bool
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	FailureRatio float64
	MinRequests  uint32
}

func DefaultConfig(name string) Config {
	return Config{
		Name:        name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.5
		},
	}
}

// ConfigFor applies o on top of DefaultConfig(name).
func ConfigFor(name string, o Overrides) Config {
	cfg := DefaultConfig(name)
	if o.MaxRequests > 0 {
		cfg.MaxRequests = o.MaxRequests
	}
	if o.Interval > 0 {
		cfg.Interval = o.Interval
	}
	if o.Timeout > 0 {
		cfg.Timeout = o.Timeout
	}
	if o.FailureRatio > 0 && o.MinRequests > 0 {
		ratio, minRequests := o.FailureRatio, o.MinRequests
		cfg.ReadyToTrip = func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= ratio
		}
	}
	return cfg
}

type Wrapper struct {
	cb *gobreaker.CircuitBreaker
}

func NewWrapper(cfg Config) *Wrapper {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
	}

	if cfg.ReadyToTrip != nil {
		settings.ReadyToTrip = cfg.ReadyToTrip
	}

	settings.OnStateChange = func(name string, from, to gobreaker.State) {
		updateStateMetric(name, to)
		if cfg.OnStateChange != nil {
			cfg.OnStateChange(name, from, to)
		}
	}

	cb := gobreaker.NewCircuitBreaker(settings)
	updateStateMetric(cfg.Name, cb.State())

	return &Wrapper{cb: cb}
}

// NewOptional returns nil when the breaker is disabled. All Wrapper methods
// are nil-safe and degrade to a direct call.
func NewOptional(name string, o Overrides) *Wrapper {
	if !o.Enabled {
		return nil
	}
	return NewWrapper(ConfigFor(name, o))
}

// Execute runs fn under breaker protection and records the request. An
// open or half-open-saturated breaker yields an error wrapping ErrOpen.
func (w *Wrapper) Execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if w == nil {
		return fn()
	}

	result, err := w.cb.Execute(func() (interface{}, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return fn()
	})
	w.recordRequest(err == nil)

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w for %s: %v", ErrOpen, w.cb.Name(), err)
	}
	return result, err
}

func (w *Wrapper) State() gobreaker.State {
	if w == nil {
		return gobreaker.StateClosed
	}
	return w.cb.State()
}

func (w *Wrapper) Name() string {
	if w == nil {
		return ""
	}
	return w.cb.Name()
}

func (w *Wrapper) IsOpen() bool {
	return w != nil && w.cb.State() == gobreaker.StateOpen
}

func updateStateMetric(name string, state gobreaker.State) {
	var stateValue float64
	switch state {
	case gobreaker.StateClosed:
		stateValue = 0
	case gobreaker.StateHalfOpen:
		stateValue = 1
	case gobreaker.StateOpen:
		stateValue = 2
	}
	metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue)
}

func (w *Wrapper) recordRequest(success bool) {
	metrics.CircuitBreakerRequests.WithLabelValues(w.cb.Name(), w.cb.State().String()).Inc()
	if !success {
		metrics.CircuitBreakerFailures.WithLabelValues(w.cb.Name()).Inc()
	}
}
