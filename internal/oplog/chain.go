package oplog

import (
	"sync"

	"caseledger/internal/op"
)

// chainKey scopes a provenance pointer to one entity field in one room.
type chainKey struct {
	room   string
	target string
}

// Entry is the last operation recorded on a (room, target) in this session.
type Entry struct {
	Op op.Operator
	ID string
}

// Chain tracks the last operation id per (room, target) for one session.
// It lives for the process (or session) lifetime and is never persisted;
// a restart starts fresh chains, so the first record after a restart has
// no local predecessor even when the room's timeline does.
//
// Chains are injected into each Log rather than shared globally, so two
// concurrent sessions writing the same target fork the provenance exactly
// as two independent writers would.
type Chain struct {
	mu   sync.Mutex
	last map[chainKey]Entry
}

// NewChain creates an empty session chain.
func NewChain() *Chain {
	return &Chain{last: make(map[chainKey]Entry)}
}

// Last returns the most recent entry for (room, target) and whether one
// exists.
func (c *Chain) Last(room, target string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.last[chainKey{room, target}]
	return e, ok
}

// Advance moves the pointer for (room, target). Called after every record
// construction, whether or not the append was confirmed durable.
func (c *Chain) Advance(room, target string, operator op.Operator, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last[chainKey{room, target}] = Entry{Op: operator, ID: id}
}
