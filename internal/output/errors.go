package output

import "errors"

// Domain errors for output drivers.
var (
	// ErrUnknownDriver is returned by New for an unrecognised driver name.
	ErrUnknownDriver = errors.New("unknown output driver")

	// ErrUnknownPin is returned when a pin name does not resolve on the host,
	// or was not declared when the driver was created.
	ErrUnknownPin = errors.New("unknown output pin")

	// ErrHostInit is returned when periph.io cannot initialise the host.
	ErrHostInit = errors.New("initialising host drivers")
)
