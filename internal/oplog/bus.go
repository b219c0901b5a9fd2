package oplog

import (
	"log/slog"
	"sync/atomic"

	"caseledger/internal/op"
)

// Notification announces a confirmed append to in-process listeners.
type Notification struct {
	Room   string
	Record op.Record
}

// Bus is a bounded notification queue for confirmed appends. Publishing
// never blocks the writer: when the queue is full the notification is
// dropped, counted, and logged. Listeners that need a complete history
// must replay the room timeline, not rely on the bus.
type Bus struct {
	ch      chan Notification
	dropped atomic.Int64
}

// NewBus creates a bus with the given queue capacity.
func NewBus(capacity int) *Bus {
	return &Bus{ch: make(chan Notification, capacity)}
}

// Publish enqueues a notification without blocking. Returns false if the
// queue was full and the notification was dropped.
func (b *Bus) Publish(n Notification) bool {
	select {
	case b.ch <- n:
		return true
	default:
		dropped := b.dropped.Add(1)
		slog.Warn("notification bus full, dropping",
			"room", n.Room,
			"record_id", n.Record.ID,
			"dropped_total", dropped,
		)
		return false
	}
}

// Events returns the receive side of the queue.
func (b *Bus) Events() <-chan Notification {
	return b.ch
}

// Dropped returns the number of notifications dropped since creation.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}
