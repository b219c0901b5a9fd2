package op

import (
	"github.com/google/uuid"
)

// IDGenerator produces fresh record ids. Implemented by UUIDv7Generator for
// production and testutil.FixedIDGenerator for deterministic tests.
type IDGenerator interface {
	NewID() string
}

// UUIDv7Generator generates time-sortable UUIDv7 ids.
//
// UUIDv7 embeds a timestamp in the most significant bits, so record ids sort
// roughly by creation time, which keeps audit views readable without an
// extra column.
//
// Stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// NewID returns a hyphenated UUIDv7 string.
// Panics if UUID generation fails, which does not happen in practice.
func (UUIDv7Generator) NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
