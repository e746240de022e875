package channel

import "errors"

// Domain errors for the channel registry.
var (
	// ErrNoChannels is returned when a registry is built from an empty table.
	ErrNoChannels = errors.New("channel table is empty")

	// ErrInvalidID is returned for ids that are zero or negative.
	// Zero is reserved for broadcast.
	ErrInvalidID = errors.New("channel id must be positive")

	// ErrInvalidPin is returned when a binding has no pin name.
	ErrInvalidPin = errors.New("channel pin is required")

	// ErrDuplicateID is returned when two bindings share an id.
	ErrDuplicateID = errors.New("duplicate channel id")

	// ErrDuplicatePin is returned when two bindings share a pin.
	ErrDuplicatePin = errors.New("duplicate channel pin")

	// ErrNotFound is returned when an id does not name a registered channel.
	ErrNotFound = errors.New("channel not found")
)
