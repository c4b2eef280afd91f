package media

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/aaronBIOO/QuickChat/internal/domain"
	"github.com/aaronBIOO/QuickChat/internal/logging"
	"github.com/aaronBIOO/QuickChat/internal/metrics"
)

type BreakerConfig struct {
	Name string
	// Trips after this many consecutive upstream failures.
	ConsecutiveFailures uint32
	// Time spent open before a half-open trial request.
	Timeout time.Duration
}

// Breaker fails uploads fast while the wrapped uploader keeps failing.
// Rejected input does not count against the upstream.
type Breaker struct {
	next Uploader
	cb   *gobreaker.CircuitBreaker[string]
	name string
}

var _ Uploader = (*Breaker)(nil)

func NewBreaker(next Uploader, cfg BreakerConfig) *Breaker {
	if cfg.Name == "" {
		cfg.Name = "media"
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	metrics.BreakerState.WithLabelValues(cfg.Name).Set(0)

	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("media breaker state change")
			metrics.BreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})
	return &Breaker{next: next, cb: cb, name: cfg.Name}
}

func (b *Breaker) Upload(ctx context.Context, data string) (string, error) {
	uri, err := b.cb.Execute(func() (string, error) {
		return b.next.Upload(ctx, data)
	})
	switch {
	case err == nil:
		metrics.MediaUploads.WithLabelValues("ok").Inc()
		return uri, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.MediaUploads.WithLabelValues("rejected").Inc()
		return "", fmt.Errorf("%w: media host unavailable", domain.ErrUpstream)
	case errors.Is(err, domain.ErrInvalidInput):
		metrics.MediaUploads.WithLabelValues("rejected").Inc()
		return "", err
	default:
		metrics.MediaUploads.WithLabelValues("failed").Inc()
		return "", err
	}
}

// State reports the current breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
