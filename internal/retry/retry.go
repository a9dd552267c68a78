// Package retry runs provider calls with bounded, exponential, unjittered
// backoff. Only errors classified as transient by types.IsTransient are
// retried; once the attempt budget is spent the caller gets a
// KindProviderUnavailable error carrying the last provider failure.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"podcastgen/internal/types"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 2 * time.Second
	DefaultMultiplier  = 2.0
)

// Policy describes how a remote call is retried. The delay after attempt k
// (1-based) is BaseDelay * Multiplier^(k-1), i.e. 2s, 4s, 8s with defaults.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64

	// NewTimer supplies the wait timer for one call. Nil uses a real timer.
	NewTimer func() backoff.Timer
	Log      *logrus.Entry
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		Multiplier:  DefaultMultiplier,
	}
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p Policy) backOff(ctx context.Context) backoff.BackOffContext {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.BaseDelay
	if eb.InitialInterval <= 0 {
		eb.InitialInterval = DefaultBaseDelay
	}
	eb.Multiplier = p.Multiplier
	if eb.Multiplier < 1 {
		eb.Multiplier = DefaultMultiplier
	}
	eb.RandomizationFactor = 0
	eb.MaxInterval = 24 * time.Hour
	eb.MaxElapsedTime = 0
	eb.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.attempts()-1)), ctx)
}

// Do calls fn until it succeeds, fails permanently, or the attempt budget is
// exhausted. op names the call in logs and in the returned error.
func (p Policy) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	log := p.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("op", op)

	attempts := 0
	var lastErr error
	operation := func() error {
		attempts++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !types.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.WithFields(logrus.Fields{
			"attempt": attempts,
			"wait":    wait.String(),
			"error":   err.Error(),
		}).Warn("transient provider failure, backing off")
	}

	var timer backoff.Timer
	if p.NewTimer != nil {
		timer = p.NewTimer()
	}
	err := backoff.RetryNotifyWithTimer(operation, p.backOff(ctx), notify, timer)
	if err == nil {
		if attempts > 1 {
			log.WithField("attempts", attempts).Info("provider call succeeded after retry")
		}
		return nil
	}
	if lastErr == nil || !types.IsTransient(lastErr) {
		// permanent failure, or the context ended before the first call
		if lastErr == nil {
			return err
		}
		return lastErr
	}
	if ctxErr := ctx.Err(); ctxErr != nil && attempts < p.attempts() {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	log.WithField("attempts", attempts).Error("provider retry budget exhausted")
	return &types.Error{
		Kind:     types.KindProviderUnavailable,
		Op:       op,
		Message:  fmt.Sprintf("gave up after %d attempts", attempts),
		Attempts: attempts,
		Err:      lastErr,
	}
}

// Value is Do for calls that return a result.
func Value[T any](ctx context.Context, p Policy, op string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
