package channel

import (
	"errors"
	"fmt"
)

// State is the logical level of a channel output.
type State bool

const (
	// Deasserted is the low level. Every channel starts here unless its
	// binding says otherwise.
	Deasserted State = false

	// Asserted is the high level.
	Asserted State = true
)

// Complement returns the opposite state.
func (s State) Complement() State {
	return !s
}

// String returns "asserted" or "deasserted".
func (s State) String() string {
	if s {
		return "asserted"
	}
	return "deasserted"
}

// Int returns 1 for Asserted and 0 for Deasserted.
func (s State) Int() int {
	if s {
		return 1
	}
	return 0
}

// ParseState converts a configuration value into a State.
// The empty string maps to Deasserted.
func ParseState(s string) (State, error) {
	switch s {
	case "", "deasserted", "low", "0":
		return Deasserted, nil
	case "asserted", "high", "1":
		return Asserted, nil
	default:
		return Deasserted, fmt.Errorf("unknown channel state %q", s)
	}
}

// Binding describes one row of the channel table.
type Binding struct {
	ID      int
	Pin     string
	Initial State
}

// Channel is a registered output and its last commanded state.
type Channel struct {
	ID    int
	Pin   string
	State State
}

// Output drives a hardware pin.
type Output interface {
	SetOutput(pin string, asserted bool) error
}

// Logger defines the logging interface used by the registry.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// ChangeFunc is called after a channel's stored state changes.
type ChangeFunc func(ch Channel, previous State)

// Registry is the fixed id → channel table.
type Registry struct {
	channels []Channel
	index    map[int]int
	out      Output
	logger   Logger
	onChange ChangeFunc
}

// NewRegistry validates the bindings and builds a registry.
//
// Bindings must be non-empty with positive, unique ids and unique pins.
// Channels keep the order of the bindings. Pins are not driven until Sync
// is called.
//
// Parameters:
//   - bindings: The channel table
//   - out: Hardware output driver
//
// Returns:
//   - *Registry: The registry
//   - error: ErrNoChannels, ErrInvalidID, ErrInvalidPin, ErrDuplicateID or ErrDuplicatePin
func NewRegistry(bindings []Binding, out Output) (*Registry, error) {
	if len(bindings) == 0 {
		return nil, ErrNoChannels
	}

	r := &Registry{
		channels: make([]Channel, 0, len(bindings)),
		index:    make(map[int]int, len(bindings)),
		out:      out,
		logger:   noopLogger{},
	}
	pins := make(map[string]int, len(bindings))

	for _, b := range bindings {
		if b.ID <= 0 {
			return nil, fmt.Errorf("%w: %d", ErrInvalidID, b.ID)
		}
		if b.Pin == "" {
			return nil, fmt.Errorf("%w: channel %d", ErrInvalidPin, b.ID)
		}
		if _, ok := r.index[b.ID]; ok {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateID, b.ID)
		}
		if other, ok := pins[b.Pin]; ok {
			return nil, fmt.Errorf("%w: %s used by channels %d and %d", ErrDuplicatePin, b.Pin, other, b.ID)
		}

		pins[b.Pin] = b.ID
		r.index[b.ID] = len(r.channels)
		r.channels = append(r.channels, Channel{ID: b.ID, Pin: b.Pin, State: b.Initial})
	}

	return r, nil
}

// SetLogger sets the logger used for hardware write failures.
func (r *Registry) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// SetOnChange registers a callback fired after a stored state changes.
func (r *Registry) SetOnChange(fn ChangeFunc) {
	r.onChange = fn
}

// Len returns the number of registered channels.
func (r *Registry) Len() int {
	return len(r.channels)
}

// Lookup returns the channel with the given id.
func (r *Registry) Lookup(id int) (Channel, bool) {
	i, ok := r.index[id]
	if !ok {
		return Channel{}, false
	}
	return r.channels[i], true
}

// Channels returns a copy of every channel in table order.
func (r *Registry) Channels() []Channel {
	out := make([]Channel, len(r.channels))
	copy(out, r.channels)
	return out
}

// Set stores state for channel id and drives its pin.
//
// The stored state is updated even when the hardware write fails; the
// write error is logged and returned.
func (r *Registry) Set(id int, state State) error {
	i, ok := r.index[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return r.apply(i, state)
}

// Complement flips the stored state of channel id, drives its pin and
// returns the new state.
func (r *Registry) Complement(id int) (State, error) {
	i, ok := r.index[id]
	if !ok {
		return Deasserted, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	next := r.channels[i].State.Complement()
	return next, r.apply(i, next)
}

// SetAll drives every channel to state. A failing pin does not stop the
// remaining channels; all write errors are joined.
func (r *Registry) SetAll(state State) error {
	var errs []error
	for i := range r.channels {
		if err := r.apply(i, state); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Restore overwrites stored states without driving pins. Unknown ids are
// ignored. Call Sync afterwards to push the restored states to hardware.
func (r *Registry) Restore(states map[int]State) {
	for id, s := range states {
		if i, ok := r.index[id]; ok {
			r.channels[i].State = s
		}
	}
}

// Sync drives every pin to its stored state.
func (r *Registry) Sync() error {
	var errs []error
	for _, ch := range r.channels {
		if err := r.write(ch); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) apply(i int, state State) error {
	previous := r.channels[i].State
	r.channels[i].State = state
	ch := r.channels[i]

	err := r.write(ch)

	if previous != state && r.onChange != nil {
		r.onChange(ch, previous)
	}
	return err
}

func (r *Registry) write(ch Channel) error {
	if r.out == nil {
		return nil
	}
	if err := r.out.SetOutput(ch.Pin, bool(ch.State)); err != nil {
		r.logger.Warn("channel output write failed",
			"channel", ch.ID,
			"pin", ch.Pin,
			"error", err,
		)
		return fmt.Errorf("driving channel %d on %s: %w", ch.ID, ch.Pin, err)
	}
	return nil
}
