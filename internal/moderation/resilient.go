package moderation

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/debatehub/backend/pkg/logger"
	"github.com/sony/gobreaker"
)

// NewBreaker builds the per-provider circuit breaker. It opens after the
// given number of consecutive failed calls and half-opens after openTimeout.
func NewBreaker(name string, consecutiveFailures uint32, openTimeout time.Duration) *gobreaker.CircuitBreaker {
	if consecutiveFailures == 0 {
		consecutiveFailures = 5
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= consecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("[Moderation] Circuit breaker state change")
		},
	})
}

// call runs completion and parsing as one operation, so a garbage answer is
// retried like a transport error. Retries stop at ctx's deadline.
func (a *Adapter) call(ctx context.Context, prompt string) (Verdict, int, error) {
	var (
		verdict  Verdict
		attempts int
	)

	operation := func() error {
		attempts++
		v, err := a.attempt(ctx, prompt)
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		verdict = v
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = 0

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(a.retries)), ctx))
	return verdict, attempts, err
}

func (a *Adapter) attempt(ctx context.Context, prompt string) (Verdict, error) {
	run := func() (Verdict, error) {
		text, err := a.completer.Complete(ctx, prompt)
		if err != nil {
			return Verdict{}, err
		}
		return ParseVerdict(text)
	}

	if a.breaker == nil {
		return run()
	}

	out, err := a.breaker.Execute(func() (interface{}, error) {
		return run()
	})
	if err != nil {
		return Verdict{}, err
	}
	return out.(Verdict), nil
}
