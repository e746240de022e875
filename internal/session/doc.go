// Package session owns the broker session for the command pipeline.
//
// A Manager walks the connection state machine
//
//	Disconnected → Connecting → Connected → Disconnected (on loss)
//
// and, while connected, drains inbound messages from the Transport. Each
// message is decoded, offered to the command Dispatcher, and then
// republished byte-for-byte to the audit address, exactly once, whatever
// the decode or dispatch outcome.
//
// Connection attempts are exposed as a single step (AttemptConnect, Step)
// returning a Result with the delay before the next attempt, so a host
// loop decides how to wait. Poll keeps the blocking contract: it retries
// with the fixed delay until a session is up, then drains once.
//
// All state changes happen under one lock held for the duration of a
// step. Read-only callers use View to run under the same lock, or Status
// for a lock-free snapshot.
package session
