// Package projector replays operation records into a field-state map.
//
// Projection is recomputed on demand from the full history: there is no
// incremental state to corrupt, and a fixed record set always projects to
// the same map. Records are filtered to one frame type first, so facts
// recorded under different interpretive contexts never collapse into one
// value.
package projector
