package influxdb

import (
	"errors"
	"fmt"
)

var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	ErrDisabled = errors.New("influxdb: telemetry disabled")

	// ErrNoDevice is returned by Connect without a device ID to tag points
	// with.
	ErrNoDevice = errors.New("influxdb: device id required")

	// ErrUnreachable means the server did not answer a ping.
	ErrUnreachable = errors.New("influxdb: server unreachable")

	// ErrClosed is returned by HealthCheck after Close.
	ErrClosed = errors.New("influxdb: sink closed")

	errServerUnhealthy = errors.New("server reported unhealthy")
)

// WriteError is passed to the SetOnError callback when a background batch
// is rejected or cannot be delivered. The points in that batch are lost
// once the retry buffer gives up on them.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("influxdb: batch write failed: %v", e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
