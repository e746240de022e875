// Package channel implements the channel registry: the fixed table of
// addressable light outputs, each bound to one hardware pin and carrying
// the last state commanded to it.
//
// The registry is built once at boot from configuration and never changes
// shape afterwards. Channel ids are positive integers; id 0 is reserved as
// the broadcast target and is never registered.
//
// Every state mutation updates the stored state and then drives the pin
// through an Output. Registries are not safe for concurrent use; the
// session manager owns the single registry and serialises access to it.
package channel
