package command

import "errors"

// Domain errors for the command table and handlers.
var (
	// ErrEmptyType is returned when registering a handler without a type.
	ErrEmptyType = errors.New("command type is required")

	// ErrDuplicateType is returned when a type already has a handler.
	ErrDuplicateType = errors.New("command type already registered")

	// ErrNilHandler is returned when registering a nil handler.
	ErrNilHandler = errors.New("command handler is nil")

	// ErrInvalidValue is returned when a command value cannot be parsed.
	ErrInvalidValue = errors.New("invalid command value")
)
