package channel

import (
	"errors"
	"testing"
)

// recordingOutput records every hardware write and can fail selected pins.
type recordingOutput struct {
	writes []write
	fail   map[string]error
}

type write struct {
	pin      string
	asserted bool
}

func (o *recordingOutput) SetOutput(pin string, asserted bool) error {
	o.writes = append(o.writes, write{pin: pin, asserted: asserted})
	if err, ok := o.fail[pin]; ok {
		return err
	}
	return nil
}

func testBindings() []Binding {
	return []Binding{
		{ID: 1, Pin: "D1", Initial: Asserted},
		{ID: 2, Pin: "D2"},
		{ID: 3, Pin: "D3"},
	}
}

func newTestRegistry(t *testing.T) (*Registry, *recordingOutput) {
	t.Helper()
	out := &recordingOutput{}
	r, err := NewRegistry(testBindings(), out)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return r, out
}

func TestNewRegistry_Validation(t *testing.T) {
	tests := []struct {
		name     string
		bindings []Binding
		wantErr  error
	}{
		{"empty table", nil, ErrNoChannels},
		{"zero id", []Binding{{ID: 0, Pin: "D1"}}, ErrInvalidID},
		{"negative id", []Binding{{ID: -4, Pin: "D1"}}, ErrInvalidID},
		{"empty pin", []Binding{{ID: 1}}, ErrInvalidPin},
		{"duplicate id", []Binding{{ID: 1, Pin: "D1"}, {ID: 1, Pin: "D2"}}, ErrDuplicateID},
		{"duplicate pin", []Binding{{ID: 1, Pin: "D1"}, {ID: 2, Pin: "D1"}}, ErrDuplicatePin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.bindings, &recordingOutput{})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewRegistry() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewRegistry_DoesNotDrivePins(t *testing.T) {
	_, out := newTestRegistry(t)
	if len(out.writes) != 0 {
		t.Errorf("writes = %d, want 0 before Sync", len(out.writes))
	}
}

func TestRegistry_LookupAndChannels(t *testing.T) {
	r, _ := newTestRegistry(t)

	if r.Len() != 3 {
		t.Errorf("Len() = %d, want 3", r.Len())
	}

	ch, ok := r.Lookup(1)
	if !ok || ch.Pin != "D1" || ch.State != Asserted {
		t.Errorf("Lookup(1) = %+v, %v; want D1 asserted", ch, ok)
	}

	if _, ok := r.Lookup(0); ok {
		t.Error("Lookup(0) found a channel; broadcast id must never be registered")
	}

	chans := r.Channels()
	for i, want := range []int{1, 2, 3} {
		if chans[i].ID != want {
			t.Errorf("Channels()[%d].ID = %d, want %d", i, chans[i].ID, want)
		}
	}

	// Returned slice is a copy.
	chans[0].State = Deasserted
	if ch, _ := r.Lookup(1); ch.State != Asserted {
		t.Error("mutating Channels() result changed the registry")
	}
}

func TestRegistry_Complement(t *testing.T) {
	r, out := newTestRegistry(t)

	got, err := r.Complement(1)
	if err != nil {
		t.Fatalf("Complement(1) error = %v", err)
	}
	if got != Deasserted {
		t.Errorf("Complement(1) = %v, want deasserted", got)
	}

	if len(out.writes) != 1 || out.writes[0] != (write{pin: "D1", asserted: false}) {
		t.Errorf("writes = %+v, want one write D1=false", out.writes)
	}

	for _, id := range []int{2, 3} {
		if ch, _ := r.Lookup(id); ch.State != Deasserted {
			t.Errorf("channel %d changed to %v", id, ch.State)
		}
	}
}

func TestRegistry_UnknownID(t *testing.T) {
	r, out := newTestRegistry(t)
	before := r.Channels()

	if _, err := r.Complement(99); !errors.Is(err, ErrNotFound) {
		t.Errorf("Complement(99) error = %v, want ErrNotFound", err)
	}
	if err := r.Set(99, Asserted); !errors.Is(err, ErrNotFound) {
		t.Errorf("Set(99) error = %v, want ErrNotFound", err)
	}

	if len(out.writes) != 0 {
		t.Errorf("writes = %d, want 0", len(out.writes))
	}
	for i, ch := range r.Channels() {
		if ch != before[i] {
			t.Errorf("channel %d changed: %+v -> %+v", ch.ID, before[i], ch)
		}
	}
}

func TestRegistry_SetAll(t *testing.T) {
	r, out := newTestRegistry(t)

	if err := r.SetAll(Deasserted); err != nil {
		t.Fatalf("SetAll() error = %v", err)
	}

	for _, ch := range r.Channels() {
		if ch.State != Deasserted {
			t.Errorf("channel %d = %v, want deasserted", ch.ID, ch.State)
		}
	}
	if len(out.writes) != 3 {
		t.Errorf("writes = %d, want one per channel", len(out.writes))
	}
}

func TestRegistry_WriteFailureKeepsState(t *testing.T) {
	boom := errors.New("gpio busy")
	out := &recordingOutput{fail: map[string]error{"D2": boom}}
	r, err := NewRegistry(testBindings(), out)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	err = r.SetAll(Asserted)
	if !errors.Is(err, boom) {
		t.Errorf("SetAll() error = %v, want wrapped %v", err, boom)
	}

	// Every channel is attempted and stored despite the failing pin.
	if len(out.writes) != 3 {
		t.Errorf("writes = %d, want 3", len(out.writes))
	}
	if ch, _ := r.Lookup(2); ch.State != Asserted {
		t.Errorf("channel 2 = %v, want asserted", ch.State)
	}
}

func TestRegistry_OnChange(t *testing.T) {
	r, _ := newTestRegistry(t)

	type change struct {
		id       int
		previous State
		current  State
	}
	var changes []change
	r.SetOnChange(func(ch Channel, previous State) {
		changes = append(changes, change{ch.ID, previous, ch.State})
	})

	// Channel 1 already asserted: only 2 and 3 change.
	if err := r.SetAll(Asserted); err != nil {
		t.Fatalf("SetAll() error = %v", err)
	}

	if len(changes) != 2 {
		t.Fatalf("changes = %+v, want 2", changes)
	}
	for _, c := range changes {
		if c.previous != Deasserted || c.current != Asserted {
			t.Errorf("change %+v, want deasserted -> asserted", c)
		}
	}
}

func TestRegistry_RestoreAndSync(t *testing.T) {
	r, out := newTestRegistry(t)

	r.Restore(map[int]State{2: Asserted, 42: Asserted})
	if len(out.writes) != 0 {
		t.Fatalf("Restore drove %d pins, want 0", len(out.writes))
	}

	if err := r.Sync(); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	want := []write{
		{pin: "D1", asserted: true},
		{pin: "D2", asserted: true},
		{pin: "D3", asserted: false},
	}
	if len(out.writes) != len(want) {
		t.Fatalf("writes = %+v, want %+v", out.writes, want)
	}
	for i := range want {
		if out.writes[i] != want[i] {
			t.Errorf("writes[%d] = %+v, want %+v", i, out.writes[i], want[i])
		}
	}
}

func TestParseState(t *testing.T) {
	tests := []struct {
		in      string
		want    State
		wantErr bool
	}{
		{"", Deasserted, false},
		{"deasserted", Deasserted, false},
		{"asserted", Asserted, false},
		{"high", Asserted, false},
		{"0", Deasserted, false},
		{"on", Deasserted, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseState(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseState(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseState(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestState_Helpers(t *testing.T) {
	if Asserted.Complement() != Deasserted || Deasserted.Complement() != Asserted {
		t.Error("Complement() is not an involution over the two states")
	}
	if Asserted.String() != "asserted" || Deasserted.String() != "deasserted" {
		t.Error("String() mismatch")
	}
	if Asserted.Int() != 1 || Deasserted.Int() != 0 {
		t.Error("Int() mismatch")
	}
}
