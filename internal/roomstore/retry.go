package roomstore

import (
	"context"
	"encoding/json"
	"time"
)

// Retry wraps a Store with capped exponential backoff on rate-limited
// transport failures. Non-transient errors propagate immediately, untouched.
//
// The retry budget lives at this boundary only; callers above it see either
// a confirmed result or a final error.
type Retry struct {
	inner       Store
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	sleep       func(context.Context, time.Duration) error
}

const (
	defaultMaxAttempts = 5
	defaultBaseDelay   = 100 * time.Millisecond
	defaultMaxDelay    = 5 * time.Second
)

// RetryOption configures a Retry wrapper.
type RetryOption func(*Retry)

// WithMaxAttempts sets the total attempt budget (first try included).
func WithMaxAttempts(n int) RetryOption {
	return func(r *Retry) {
		r.maxAttempts = n
	}
}

// WithDelays sets the base and cap for the exponential backoff schedule.
func WithDelays(base, max time.Duration) RetryOption {
	return func(r *Retry) {
		r.baseDelay = base
		r.maxDelay = max
	}
}

// withSleep replaces the sleep function. Used by tests to avoid real delays.
func withSleep(fn func(context.Context, time.Duration) error) RetryOption {
	return func(r *Retry) {
		r.sleep = fn
	}
}

// NewRetry wraps inner with backoff-on-rate-limit behavior.
func NewRetry(inner Store, opts ...RetryOption) *Retry {
	r := &Retry{
		inner:       inner,
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		maxDelay:    defaultMaxDelay,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AppendTimelineEvent retries rate-limited appends with backoff.
func (r *Retry) AppendTimelineEvent(ctx context.Context, roomID, eventType string, payload json.RawMessage) (string, error) {
	var eventID string
	err := r.do(ctx, func() error {
		var err error
		eventID, err = r.inner.AppendTimelineEvent(ctx, roomID, eventType, payload)
		return err
	})
	return eventID, err
}

// WriteState retries rate-limited writes with backoff.
func (r *Retry) WriteState(ctx context.Context, roomID, eventType, stateKey string, payload json.RawMessage) error {
	return r.do(ctx, func() error {
		return r.inner.WriteState(ctx, roomID, eventType, stateKey, payload)
	})
}

// ReadState retries rate-limited reads with backoff.
func (r *Retry) ReadState(ctx context.Context, roomID, eventType, stateKey string) (json.RawMessage, error) {
	var payload json.RawMessage
	err := r.do(ctx, func() error {
		var err error
		payload, err = r.inner.ReadState(ctx, roomID, eventType, stateKey)
		return err
	})
	return payload, err
}

// ReadTimeline retries rate-limited reads with backoff.
func (r *Retry) ReadTimeline(ctx context.Context, roomID, eventType string) ([]TimelineEvent, error) {
	var events []TimelineEvent
	err := r.do(ctx, func() error {
		var err error
		events, err = r.inner.ReadTimeline(ctx, roomID, eventType)
		return err
	})
	return events, err
}

// do runs fn up to maxAttempts times, sleeping between rate-limited
// failures. The delay doubles each attempt and is capped at maxDelay.
func (r *Retry) do(ctx context.Context, fn func() error) error {
	delay := r.baseDelay
	var lastErr error

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsRateLimited(lastErr) {
			return lastErr
		}
		if attempt == r.maxAttempts {
			break
		}
		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
		delay *= 2
		if delay > r.maxDelay {
			delay = r.maxDelay
		}
	}
	return lastErr
}

// sleepContext sleeps for d or until the context is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
