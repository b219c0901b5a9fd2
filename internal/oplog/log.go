package oplog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"caseledger/internal/op"
	"caseledger/internal/roomstore"
)

// EventType is the room timeline event type operation records are
// appended under.
const EventType = "app.caseledger.op"

// Clock supplies Unix-millisecond timestamps for record stamping.
type Clock interface {
	NowUnixMilli() int64
}

type systemClock struct{}

func (systemClock) NowUnixMilli() int64 { return time.Now().UnixMilli() }

// Log appends operation records to room timelines, maintaining the session
// provenance chain and notifying the bus on confirmed appends.
type Log struct {
	store  roomstore.Store
	chain  *Chain
	bus    *Bus
	ids    op.IDGenerator
	clock  Clock
	actor  string
	origin string
}

// Option configures a Log.
type Option func(*Log)

// WithBus attaches a notification bus. Without one, confirmed appends are
// not announced.
func WithBus(b *Bus) Option {
	return func(l *Log) { l.bus = b }
}

// WithIDGenerator replaces the UUIDv7 generator. Used by golden tests.
func WithIDGenerator(g op.IDGenerator) Option {
	return func(l *Log) { l.ids = g }
}

// WithClock replaces the wall clock. Used by golden tests.
func WithClock(c Clock) Option {
	return func(l *Log) { l.clock = c }
}

// NewLog creates an operation log writing as the given actor from the given
// origin server. The chain is injected so callers control session scope.
func NewLog(store roomstore.Store, chain *Chain, actor, origin string, opts ...Option) *Log {
	l := &Log{
		store:  store,
		chain:  chain,
		ids:    op.UUIDv7Generator{},
		clock:  systemClock{},
		actor:  actor,
		origin: origin,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append records one operation on (room, target).
//
// The record's provenance is extraProvenance followed by the session's last
// op id for the same (room, target), when one exists. The chain pointer
// advances once the record is constructed, before persistence is attempted:
// a record that failed to persist still happened from the session's point
// of view, so the pointer moves to a synthetic "failed:<id>" marker rather
// than silently reusing the old predecessor.
//
// A nil record with a nil error means the append was not confirmed durable;
// the failure has been logged and the caller decides whether to surface it.
// A non-nil error means the inputs were structurally invalid and nothing
// was recorded.
func (l *Log) Append(ctx context.Context, room string, operator op.Operator, target string, operand op.Operand, frame op.Frame, extraProvenance ...string) (*op.Record, error) {
	provenance := append([]string(nil), extraProvenance...)
	if last, ok := l.chain.Last(room, target); ok {
		provenance = append(provenance, last.ID)
	}

	record := op.Record{
		ID:           l.ids.NewID(),
		Op:           operator,
		Target:       target,
		Operand:      operand,
		Frame:        frame,
		Provenance:   provenance,
		CreatedBy:    l.actor,
		OriginServer: l.origin,
		TS:           l.clock.NowUnixMilli(),
	}
	if errs := record.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid operation record: %w", errors.Join(errs...))
	}

	payload, err := record.CanonicalPayload()
	if err != nil {
		return nil, fmt.Errorf("canonical payload for %s: %w", record.ID, err)
	}
	encoded, err := op.MarshalCanonical(payload)
	if err != nil {
		return nil, fmt.Errorf("encode record %s: %w", record.ID, err)
	}

	if _, err := l.store.AppendTimelineEvent(ctx, room, EventType, encoded); err != nil {
		l.chain.Advance(room, target, operator, "failed:"+l.ids.NewID())
		slog.Error("operation append not confirmed",
			"room", room,
			"target", target,
			"op", operator.String(),
			"record_id", record.ID,
			"error", err,
		)
		return nil, nil
	}

	l.chain.Advance(room, target, operator, record.ID)
	slog.Debug("operation appended",
		"room", room,
		"target", target,
		"op", operator.String(),
		"record_id", record.ID,
		"provenance_len", len(record.Provenance),
	)

	if l.bus != nil {
		l.bus.Publish(Notification{Room: room, Record: record})
	}
	return &record, nil
}

// ReadRecords replays a room's operation timeline into decoded records, in
// store order. Undecodable events fail the read rather than being skipped;
// a corrupted history must be surfaced, not projected around.
func ReadRecords(ctx context.Context, store roomstore.Store, room string) ([]op.Record, error) {
	events, err := store.ReadTimeline(ctx, room, EventType)
	if err != nil {
		return nil, fmt.Errorf("read operation timeline for %s: %w", room, err)
	}

	records := make([]op.Record, 0, len(events))
	for _, ev := range events {
		var payload op.VObject
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return nil, fmt.Errorf("decode event %s: %w", ev.EventID, err)
		}
		record, err := op.RecordFromPayload(payload)
		if err != nil {
			return nil, fmt.Errorf("decode event %s: %w", ev.EventID, err)
		}
		records = append(records, record)
	}
	return records, nil
}
