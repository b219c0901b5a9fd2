package roomstore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

// flakyStore fails the first failures calls to AppendTimelineEvent with the
// configured error, then delegates to an in-memory store.
type flakyStore struct {
	*Memory
	failures int
	err      error
	calls    int
}

func (f *flakyStore) AppendTimelineEvent(ctx context.Context, roomID, eventType string, payload json.RawMessage) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", f.err
	}
	return f.Memory.AppendTimelineEvent(ctx, roomID, eventType, payload)
}

func noSleep(context.Context, time.Duration) error { return nil }

func TestRetryRecoversFromRateLimiting(t *testing.T) {
	inner := &flakyStore{
		Memory:   NewMemory(),
		failures: 2,
		err:      &TransportError{Op: "append_timeline_event", RoomID: "!case:one", RateLimited: true, Err: errors.New("429")},
	}
	store := NewRetry(inner, WithMaxAttempts(5), withSleep(noSleep))

	id, err := store.AppendTimelineEvent(context.Background(), "!case:one", "app.caseledger.op", json.RawMessage(`{"n":1}`))
	if err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if id == "" {
		t.Fatal("expected event id after recovery")
	}
	if inner.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", inner.calls)
	}
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	rateLimited := &TransportError{Op: "append_timeline_event", RoomID: "!case:one", RateLimited: true, Err: errors.New("429")}
	inner := &flakyStore{Memory: NewMemory(), failures: 100, err: rateLimited}
	store := NewRetry(inner, WithMaxAttempts(3), withSleep(noSleep))

	_, err := store.AppendTimelineEvent(context.Background(), "!case:one", "app.caseledger.op", json.RawMessage(`{"n":1}`))
	if !IsRateLimited(err) {
		t.Fatalf("expected final rate-limited error, got %v", err)
	}
	if inner.calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", inner.calls)
	}
}

func TestRetryDoesNotRetryNonTransientFailures(t *testing.T) {
	hardFailure := &TransportError{Op: "append_timeline_event", RoomID: "!case:one", Err: errors.New("403")}
	inner := &flakyStore{Memory: NewMemory(), failures: 100, err: hardFailure}
	store := NewRetry(inner, WithMaxAttempts(5), withSleep(noSleep))

	_, err := store.AppendTimelineEvent(context.Background(), "!case:one", "app.caseledger.op", json.RawMessage(`{"n":1}`))
	if err == nil {
		t.Fatal("expected propagated failure")
	}
	if IsRateLimited(err) {
		t.Fatalf("failure misclassified as rate limited: %v", err)
	}
	if !IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected a single attempt, got %d", inner.calls)
	}
}

func TestRetryBackoffDoublesAndCaps(t *testing.T) {
	rateLimited := &TransportError{Op: "append_timeline_event", RoomID: "!case:one", RateLimited: true, Err: errors.New("429")}
	inner := &flakyStore{Memory: NewMemory(), failures: 100, err: rateLimited}

	var delays []time.Duration
	store := NewRetry(inner,
		WithMaxAttempts(5),
		WithDelays(100*time.Millisecond, 300*time.Millisecond),
		withSleep(func(_ context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		}),
	)

	_, _ = store.AppendTimelineEvent(context.Background(), "!case:one", "app.caseledger.op", json.RawMessage(`{"n":1}`))

	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond}
	if len(delays) != len(want) {
		t.Fatalf("expected %d sleeps, got %d", len(want), len(delays))
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("sleep %d: expected %v, got %v", i, want[i], delays[i])
		}
	}
}

func TestRetryStopsWhenContextCancelled(t *testing.T) {
	rateLimited := &TransportError{Op: "append_timeline_event", RoomID: "!case:one", RateLimited: true, Err: errors.New("429")}
	inner := &flakyStore{Memory: NewMemory(), failures: 100, err: rateLimited}

	ctx, cancel := context.WithCancel(context.Background())
	store := NewRetry(inner, WithMaxAttempts(5), withSleep(func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	_, err := store.AppendTimelineEvent(ctx, "!case:one", "app.caseledger.op", json.RawMessage(`{"n":1}`))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected a single attempt before cancellation, got %d", inner.calls)
	}
}
