// Package oplog is the append-only operation log. Every change to case
// state is recorded as an operator-tagged record with a provenance chain
// linking it to the previous local operation on the same (room, target).
//
// The log never mutates or deletes: current state is always a projection
// over the recorded history (see internal/projector). Chains are held per
// session and are not durable; the store's event order is the ultimate
// arbiter when concurrent sessions fork a chain.
package oplog
