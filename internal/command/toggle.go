package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/lightmanager/lightmanager/internal/channel"
	"github.com/lightmanager/lightmanager/internal/event"
)

// TypeToggle is the event type handled by Toggle.
const TypeToggle = "TOGGLE"

// BroadcastTarget addresses every channel.
const BroadcastTarget = 0

// ToggleValue is the parameter document carried in a TOGGLE event's value.
type ToggleValue struct {
	Target int `json:"target"`
	State  int `json:"state"`
}

// ParseToggleValue parses {"target": <int>, "state": <int>}.
//
// Missing or non-numeric fields are 0; fractional numbers are truncated.
// When the value is not a JSON object the zero ToggleValue is returned
// together with an ErrInvalidValue error, so callers may still proceed
// with the defaults.
func ParseToggleValue(value string) (ToggleValue, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(value), &fields); err != nil {
		return ToggleValue{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	if fields == nil {
		return ToggleValue{}, fmt.Errorf("%w: not an object", ErrInvalidValue)
	}

	return ToggleValue{
		Target: parseInt(fields["target"]),
		State:  parseInt(fields["state"]),
	}, nil
}

func parseInt(raw json.RawMessage) int {
	if raw == nil {
		return 0
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		// Values outside int range fall back to the default like any
		// other malformed field.
		if f < math.MinInt || f >= -float64(math.MinInt) {
			return 0
		}
		return int(f)
	}
	return 0
}

// BroadcastState maps the state field of a broadcast toggle to the level
// every channel is set to: 1 turns channels off, anything else turns
// them on.
func BroadcastState(state int) channel.State {
	if state == 1 {
		return channel.Deasserted
	}
	return channel.Asserted
}

// Channels is the part of the channel registry the toggle handler drives.
type Channels interface {
	Complement(id int) (channel.State, error)
	SetAll(state channel.State) error
}

// Toggle switches lighting channels.
//
// A broadcast (target 0) sets every channel to BroadcastState(state).
// Any other target complements that one channel and ignores state.
type Toggle struct {
	channels Channels
	logger   Logger
}

// NewToggle creates a toggle handler over channels.
func NewToggle(channels Channels) *Toggle {
	return &Toggle{
		channels: channels,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the handler.
func (t *Toggle) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	t.logger = logger
}

// Accepts reports whether e is a TOGGLE command.
func (t *Toggle) Accepts(e event.Event) bool {
	return e.Type == TypeToggle
}

// Handle applies a TOGGLE command to the channels.
func (t *Toggle) Handle(_ context.Context, e event.Event) {
	v, err := ParseToggleValue(e.Value)
	if err != nil {
		t.logger.Warn("toggle value unreadable, using defaults",
			"uuid", e.UUID,
			"value", e.Value,
			"error", err,
		)
	}

	if v.Target == BroadcastTarget {
		state := BroadcastState(v.State)
		if err := t.channels.SetAll(state); err != nil {
			t.logger.Error("broadcast toggle incomplete", "uuid", e.UUID, "error", err)
			return
		}
		t.logger.Info("broadcast toggle applied", "uuid", e.UUID, "state", state.String())
		return
	}

	state, err := t.channels.Complement(v.Target)
	switch {
	case errors.Is(err, channel.ErrNotFound):
		t.logger.Debug("toggle target not registered", "uuid", e.UUID, "target", v.Target)
	case err != nil:
		t.logger.Error("toggle output write failed",
			"uuid", e.UUID,
			"target", v.Target,
			"state", state.String(),
			"error", err,
		)
	default:
		t.logger.Info("channel toggled", "uuid", e.UUID, "target", v.Target, "state", state.String())
	}
}
