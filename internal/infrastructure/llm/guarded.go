// Package llm holds adapters shared by relationship guesser providers.
package llm

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/domain/ports"
	"github.com/ersonp/kin-core/internal/infrastructure/config"
)

// ErrCircuitOpen is returned while the guesser is considered unavailable.
var ErrCircuitOpen = errors.New("relationship guesser circuit is open")

// Guarded wraps a RelationshipGuesser with a rate limiter and a circuit breaker.
// Suggestion generation treats any error as "no guess", so a tripped breaker
// only removes the fallback labels until the provider recovers.
type Guarded struct {
	next    ports.RelationshipGuesser
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewGuarded wraps next using the limits in cfg.
func NewGuarded(next ports.RelationshipGuesser, cfg config.LLMConfig, log *logrus.Entry) *Guarded {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "guesser")

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	timeout := cfg.OpenTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        "relationship-guesser",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// Cancellation by the caller says nothing about the provider.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"from": from.String(),
				"to":   to.String(),
			}).Warn("Guesser circuit changed state")
		},
	}

	return &Guarded{
		next:    next,
		limiter: rate.NewLimiter(limit, burst),
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Infer waits for a rate limit token and calls the wrapped guesser through the breaker.
func (g *Guarded) Infer(ctx context.Context, a, b *entities.Person) (*ports.Guess, error) {
	if g.breaker.State() == gobreaker.StateOpen {
		return nil, ErrCircuitOpen
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.next.Infer(ctx, a, b)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitOpen
		}
		return nil, err
	}

	guess, _ := result.(*ports.Guess)
	return guess, nil
}

// State returns the breaker state as "closed", "half-open" or "open".
func (g *Guarded) State() string {
	return g.breaker.State().String()
}
