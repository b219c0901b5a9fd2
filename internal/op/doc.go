// Package op defines the operation record vocabulary: the immutable unit of
// the append-only log, the closed nine-operator set, and the canonical JSON
// serialization used for durable payloads and content fingerprints.
//
// Everything else in the system is a consumer of these types. The package has
// no behavior beyond construction, validation, and serialization; appending,
// chaining, and projection live in internal/oplog and internal/projector.
package op
