package session

import "errors"

// Domain errors for the session manager.
var (
	// ErrNoTransport is returned by New when Options.Transport is nil.
	ErrNoTransport = errors.New("session transport is required")

	// ErrNoDispatcher is returned by New when Options.Dispatcher is nil.
	ErrNoDispatcher = errors.New("session dispatcher is required")

	// ErrNoCommandTopic is returned by New when Options.CommandTopic is empty.
	ErrNoCommandTopic = errors.New("command topic is required")

	// ErrSessionLost records a session dropped by the broker or network.
	ErrSessionLost = errors.New("broker session lost")

	// ErrSubscribeFailed wraps a subscription failure after a successful connect.
	ErrSubscribeFailed = errors.New("subscribing to command topic failed")
)
