// Package resilience guards database calls with a circuit breaker so a
// struggling Postgres gets shed load instead of a pile of queued requests.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	pgx "github.com/jackc/pgx/v4"

	"github.com/AlibekovAA/safecheck/internal/common/clock"
	commonerrors "github.com/AlibekovAA/safecheck/internal/common/errors"
	"github.com/AlibekovAA/safecheck/internal/common/logger"
	"github.com/AlibekovAA/safecheck/internal/observability/metrics"
)

type Breaker interface {
	Call(ctx context.Context, fn func(context.Context) error) error
}

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

type CircuitBreakerConfig struct {
	// Threshold is the number of consecutive failures that opens the circuit.
	Threshold int32
	// Timeout bounds every call made through the breaker.
	Timeout time.Duration
	// ResetAfter is how long the circuit stays open before one trial call is
	// let through.
	ResetAfter time.Duration
	Name       string
	Logger     *logger.Logger
	Clock      clock.Clock
}

// CircuitBreaker is closed until Threshold consecutive failures, then open for
// ResetAfter. After that a single trial call runs half-open: success closes
// the circuit, failure opens it again.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu       sync.Mutex
	state    State
	failures int32
	openedAt time.Time
	trial    bool
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.Clock == nil {
		cfg.Clock = clock.NewRealClock()
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 1
	}
	cb := &CircuitBreaker{cfg: cfg}
	cb.report()
	return cb
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.advance()
	return cb.state
}

func (cb *CircuitBreaker) Call(ctx context.Context, fn func(context.Context) error) error {
	if !cb.admit() {
		cb.warnf("circuit is open, rejecting call")
		return commonerrors.ErrCircuitOpen
	}

	callCtx, cancel := context.WithTimeout(ctx, cb.cfg.Timeout)
	defer cancel()

	err := fn(callCtx)
	cb.settle(err)
	return err
}

func (cb *CircuitBreaker) admit() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.advance()

	switch cb.state {
	case StateOpen:
		return false
	case StateHalfOpen:
		if cb.trial {
			return false
		}
		cb.trial = true
	}
	return true
}

// advance moves an expired open circuit to half-open. Callers hold mu.
func (cb *CircuitBreaker) advance() {
	if cb.state == StateOpen && cb.cfg.Clock.Since(cb.openedAt) >= cb.cfg.ResetAfter {
		cb.transition(StateHalfOpen)
	}
}

func (cb *CircuitBreaker) settle(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	wasTrial := cb.state == StateHalfOpen
	cb.trial = false

	if err == nil || !countsAsFailure(err) {
		if err == nil || wasTrial {
			cb.failures = 0
			if cb.state != StateClosed {
				cb.transition(StateClosed)
			}
		}
		return
	}

	cb.failures++
	if cb.cfg.Name != "" {
		metrics.CircuitBreakerFailures.WithLabelValues(cb.cfg.Name).Inc()
	}

	if wasTrial || cb.failures >= cb.cfg.Threshold {
		cb.openedAt = cb.cfg.Clock.Now()
		if cb.state != StateOpen {
			cb.transition(StateOpen)
		}
	}
}

// transition is called with mu held.
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	cb.state = to
	cb.report()
	cb.warnf("state %s -> %s after %d failures", from, to, cb.failures)
}

func (cb *CircuitBreaker) report() {
	if cb.cfg.Name == "" {
		return
	}
	var v float64
	if cb.state == StateOpen {
		v = 1
	}
	metrics.CircuitBreakerState.WithLabelValues(cb.cfg.Name).Set(v)
}

func (cb *CircuitBreaker) warnf(format string, args ...any) {
	if cb.cfg.Logger == nil {
		return
	}
	cb.cfg.Logger.WithFields(context.Background(), logger.Fields{
		"breaker": cb.cfg.Name,
	}).Warnf(format, args...)
}

// countsAsFailure keeps caller mistakes (unknown user, bad input, conflicts)
// and cancellations from opening the circuit.
func countsAsFailure(err error) bool {
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, context.Canceled) {
		return false
	}
	if de, ok := commonerrors.AsDomainError(err); ok {
		switch de.Category() {
		case commonerrors.CategoryNotFound, commonerrors.CategoryValidation,
			commonerrors.CategoryConflict, commonerrors.CategoryUnauthorized:
			return false
		}
	}
	return true
}
