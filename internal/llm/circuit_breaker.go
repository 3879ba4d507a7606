package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned when the circuit breaker is open and rejects
// requests to prevent cascading failures.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig holds the configuration for the circuit breaker.
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures that trips the circuit.
	// Default: 3
	MaxFailures uint32

	// Timeout is how long the circuit stays open before going half-open.
	// Default: 30 seconds
	Timeout time.Duration

	// HalfOpenMaxSuccesses is the number of successes in half-open state
	// required to close the circuit again.
	// Default: 2
	HalfOpenMaxSuccesses uint32
}

func (c CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	if c.MaxFailures == 0 {
		c.MaxFailures = 3
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.HalfOpenMaxSuccesses == 0 {
		c.HalfOpenMaxSuccesses = 2
	}
	return c
}

// GuardedGenerator wraps a TextGenerator with a gobreaker circuit breaker and
// a per-call timeout. Generation is never retried: a failure is returned to
// the caller as is.
type GuardedGenerator struct {
	next    TextGenerator
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
}

// NewGuardedGenerator wraps next. A timeout <= 0 leaves the caller's context
// deadline in charge.
func NewGuardedGenerator(next TextGenerator, timeout time.Duration, cfg CircuitBreakerConfig, logger *slog.Logger) *GuardedGenerator {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	name := "llm:" + next.GetModel()

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenMaxSuccesses,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("llm: circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &GuardedGenerator{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker(settings),
		timeout: timeout,
	}
}

// Complete runs the wrapped generator through the breaker.
func (g *GuardedGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.next.Complete(ctx, prompt)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%s: %w", g.next.GetModel(), ErrCircuitOpen)
		}
		return "", err
	}
	return result.(string), nil
}

// GetModel returns the wrapped generator's model.
func (g *GuardedGenerator) GetModel() string {
	return g.next.GetModel()
}

// State returns "closed", "open" or "half-open".
func (g *GuardedGenerator) State() string {
	return g.breaker.State().String()
}

var _ TextGenerator = (*GuardedGenerator)(nil)
