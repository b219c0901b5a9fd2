package roomstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process Store. Used by tests, the scenario harness, and
// single-process tooling. Safe for concurrent use.
type Memory struct {
	mu       sync.Mutex
	nextSeq  int64
	timeline map[string][]TimelineEvent // room id -> events in append order
	state    map[stateKey]json.RawMessage
}

type stateKey struct {
	roomID    string
	eventType string
	key       string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		timeline: make(map[string][]TimelineEvent),
		state:    make(map[stateKey]json.RawMessage),
	}
}

// AppendTimelineEvent appends to the room's timeline and returns a fresh
// event id. Seq numbers are global across rooms, matching a homeserver's
// stream ordering.
func (m *Memory) AppendTimelineEvent(ctx context.Context, roomID, eventType string, payload json.RawMessage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !json.Valid(payload) {
		return "", fmt.Errorf("append timeline event: payload is not valid JSON")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSeq++
	ev := TimelineEvent{
		EventID: "$" + uuid.Must(uuid.NewV7()).String(),
		RoomID:  roomID,
		Type:    eventType,
		Payload: append(json.RawMessage(nil), payload...),
		Seq:     m.nextSeq,
	}
	m.timeline[roomID] = append(m.timeline[roomID], ev)
	return ev.EventID, nil
}

// WriteState upserts the keyed snapshot.
func (m *Memory) WriteState(ctx context.Context, roomID, eventType, key string, payload json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !json.Valid(payload) {
		return fmt.Errorf("write state: payload is not valid JSON")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.state[stateKey{roomID, eventType, key}] = append(json.RawMessage(nil), payload...)
	return nil
}

// ReadState returns the current snapshot, or (nil, nil) when absent.
func (m *Memory) ReadState(ctx context.Context, roomID, eventType, key string) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	payload, ok := m.state[stateKey{roomID, eventType, key}]
	if !ok {
		return nil, nil
	}
	return append(json.RawMessage(nil), payload...), nil
}

// ReadTimeline returns the room's events of one type in append order.
func (m *Memory) ReadTimeline(ctx context.Context, roomID, eventType string) ([]TimelineEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	events := []TimelineEvent{}
	for _, ev := range m.timeline[roomID] {
		if ev.Type == eventType {
			copied := ev
			copied.Payload = append(json.RawMessage(nil), ev.Payload...)
			events = append(events, copied)
		}
	}
	return events, nil
}
