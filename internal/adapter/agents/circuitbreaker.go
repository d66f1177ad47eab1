package agents

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"lucius-ai/internal/domain"
)

// Default breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// BreakerSettings configures a Breaker.
type BreakerSettings struct {
	// MaxFailures is the number of consecutive failures before the
	// circuit opens.
	MaxFailures uint32
	// Timeout is how long the circuit stays open before half-open.
	Timeout time.Duration
	// Interval is the cyclic period of the closed state for clearing
	// failure counts. If 0, failures never reset until the circuit opens.
	Interval time.Duration
}

// Breaker wraps an agent with circuit breaker protection. When the
// wrapped agent fails repeatedly, the circuit opens and subsequent
// calls fail fast without reaching it.
type Breaker struct {
	inner   domain.Agent
	breaker *gobreaker.CircuitBreaker[domain.Response]
	logger  *slog.Logger
}

// NewBreaker wraps inner with a circuit breaker. Zero-valued settings
// fall back to defaults.
func NewBreaker(inner domain.Agent, cfg BreakerSettings, logger *slog.Logger) *Breaker {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}

	name := inner.Identity().Name
	cb := gobreaker.NewCircuitBreaker[domain.Response](gobreaker.Settings{
		Name:        "agent:" + name,
		MaxRequests: 1, // allow 1 probe in half-open state
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})

	return &Breaker{
		inner:   inner,
		breaker: cb,
		logger:  logger,
	}
}

// Identity implements domain.Agent.
func (b *Breaker) Identity() domain.AgentIdentity { return b.inner.Identity() }

// Process implements domain.Agent. Calls route through the breaker; an
// open circuit surfaces as an agent error the dispatcher already maps
// onto an apology.
func (b *Breaker) Process(ctx context.Context, message string, tctx domain.TaskContext) (domain.Response, error) {
	resp, err := b.breaker.Execute(func() (domain.Response, error) {
		return b.inner.Process(ctx, message, tctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return domain.Response{}, domain.NewDomainError("Breaker.Process", err, b.inner.Identity().Name)
		}
		return domain.Response{}, err
	}
	return resp, nil
}

// State returns the current breaker state for monitoring.
func (b *Breaker) State() gobreaker.State { return b.breaker.State() }

var _ domain.Agent = (*Breaker)(nil)
