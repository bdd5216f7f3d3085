package platform

import (
	"context"
	"errors"
	"time"

	"ctpy/internal/classify"
	"ctpy/internal/metrics"
	"ctpy/internal/storage"
)

// RetryPolicy bounds how often a failed unit of work is re-run from scratch.
type RetryPolicy struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	MaxAttempts    int
}

type permanentError struct {
	err error
}

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func defaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     200 * time.Millisecond,
		BackoffFactor:  2.0,
		MaxAttempts:    3,
	}
}

func normalizeRetryPolicy(policy RetryPolicy) RetryPolicy {
	def := defaultRetryPolicy()
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = def.InitialBackoff
	}
	if policy.MaxBackoff <= 0 {
		policy.MaxBackoff = def.MaxBackoff
	}
	if policy.MaxBackoff < policy.InitialBackoff {
		policy.MaxBackoff = policy.InitialBackoff
	}
	if policy.BackoffFactor < 1 {
		policy.BackoffFactor = def.BackoffFactor
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = def.MaxAttempts
	}
	return policy
}

// isPermanent reports errors that another attempt cannot fix: missing
// definitions, malformed data and version skew.
func isPermanent(err error) bool {
	var perm permanentError
	switch {
	case errors.As(err, &perm):
		return true
	case errors.Is(err, classify.ErrModeDefinitionNotFound),
		errors.Is(err, classify.ErrUnclassifiable),
		errors.Is(err, classify.ErrDimensionMismatch),
		errors.Is(err, storage.ErrVersionMismatch),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return true
	}
	return false
}

// Do runs unit until it succeeds, fails permanently, or exhausts MaxAttempts.
// Every attempt starts from scratch; the unit must not leave partial results behind.
func (p RetryPolicy) Do(ctx context.Context, stage string, rec *metrics.Recorder, unit func(ctx context.Context) error) error {
	p = normalizeRetryPolicy(p)
	backoff := p.InitialBackoff
	started := time.Now()

	for attempt := 1; ; attempt++ {
		err := unit(ctx)
		if err == nil {
			rec.Unit(stage, time.Since(started), nil)
			return nil
		}
		if ctx.Err() != nil || isPermanent(err) || attempt >= p.MaxAttempts {
			rec.Unit(stage, time.Since(started), err)
			return err
		}
		rec.Retry(stage)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			rec.Unit(stage, time.Since(started), ctx.Err())
			return ctx.Err()
		case <-timer.C:
		}
		next := time.Duration(float64(backoff) * p.BackoffFactor)
		if next > p.MaxBackoff {
			next = p.MaxBackoff
		}
		backoff = next
	}
}
