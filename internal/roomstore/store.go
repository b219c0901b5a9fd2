package roomstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Store is the external room store surface. Payloads are JSON documents;
// callers own their serialization (the operation log writes canonical JSON,
// state writers use plain encoding/json).
type Store interface {
	// AppendTimelineEvent durably appends an event to a room's timeline and
	// returns the store-assigned event id.
	AppendTimelineEvent(ctx context.Context, roomID, eventType string, payload json.RawMessage) (string, error)

	// WriteState upserts a keyed state snapshot in a room.
	WriteState(ctx context.Context, roomID, eventType, stateKey string, payload json.RawMessage) error

	// ReadState fetches the current snapshot for a key. Returns (nil, nil)
	// when no snapshot exists; absence is not an error.
	ReadState(ctx context.Context, roomID, eventType, stateKey string) (json.RawMessage, error)

	// ReadTimeline returns a room's timeline events of one type in the order
	// the store assigned them. This is the store's native history read; the
	// projector and audit tooling replay from it.
	ReadTimeline(ctx context.Context, roomID, eventType string) ([]TimelineEvent, error)
}

// TimelineEvent is one appended event as the store returns it.
type TimelineEvent struct {
	EventID string          `json:"event_id"`
	RoomID  string          `json:"room_id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	// Seq is the store-assigned position within the room. Monotonic per
	// room; gaps are allowed.
	Seq int64 `json:"seq"`
}

// TransportError wraps a failure reaching the store. RateLimited failures
// are transient and safe to retry with backoff; everything else propagates
// immediately.
type TransportError struct {
	Op          string // "append_timeline_event", "write_state", "read_state", "read_timeline"
	RoomID      string
	RateLimited bool
	Err         error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	kind := "transport failure"
	if e.RateLimited {
		kind = "rate limited"
	}
	return fmt.Sprintf("%s: %s (room=%s): %v", e.Op, kind, e.RoomID, e.Err)
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsRateLimited reports whether err is a rate-limited transport failure.
// Uses errors.As to handle wrapped errors.
func IsRateLimited(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.RateLimited
	}
	return false
}

// IsTransport reports whether err is any transport failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
