// Package roomstore is the boundary to the external room store: per-room
// keyed state snapshots plus an append-only per-room timeline. The rest of
// the system consumes exactly this surface and never re-implements
// replication or conflict resolution on top of it.
//
// Two implementations are provided: Memory for tests and single-process
// tooling, and SQLite for durable local deployments. Retry wraps any Store
// with capped exponential backoff for rate-limited transport failures.
package roomstore
