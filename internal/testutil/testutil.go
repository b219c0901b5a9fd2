// Package testutil provides deterministic clocks and id generators for
// tests and the scenario harness.
package testutil

import (
	"fmt"
	"sync"
)

// FixedClock hands out Unix-millisecond timestamps from a fixed start,
// advancing by a fixed step per call. Deterministic across runs.
type FixedClock struct {
	mu   sync.Mutex
	next int64
	step int64
}

// NewFixedClock creates a clock that returns start, start+step, start+2*step...
func NewFixedClock(start, step int64) *FixedClock {
	return &FixedClock{next: start, step: step}
}

// NowUnixMilli returns the next timestamp.
func (c *FixedClock) NowUnixMilli() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := c.next
	c.next += c.step
	return ts
}

// SequenceIDs generates "<prefix>-1", "<prefix>-2", ... Deterministic
// replacement for UUIDv7 generation in golden tests.
type SequenceIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceIDs creates a generator with the given prefix.
func NewSequenceIDs(prefix string) *SequenceIDs {
	return &SequenceIDs{prefix: prefix}
}

// NewID returns the next id in the sequence.
func (g *SequenceIDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
