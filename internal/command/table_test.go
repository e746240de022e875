package command

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/lightmanager/lightmanager/internal/event"
)

// stubHandler records calls and accepts according to a fixed answer.
type stubHandler struct {
	accept  bool
	handled []event.Event
}

func (h *stubHandler) Accepts(event.Event) bool { return h.accept }

func (h *stubHandler) Handle(_ context.Context, e event.Event) {
	h.handled = append(h.handled, e)
}

func TestTable_Register(t *testing.T) {
	table := NewTable()

	if err := table.Register("", &stubHandler{}); !errors.Is(err, ErrEmptyType) {
		t.Errorf("Register(\"\") error = %v, want ErrEmptyType", err)
	}
	if err := table.Register("PING", nil); !errors.Is(err, ErrNilHandler) {
		t.Errorf("Register(nil) error = %v, want ErrNilHandler", err)
	}
	if err := table.Register("PING", &stubHandler{}); err != nil {
		t.Fatalf("Register(PING) error = %v", err)
	}
	if err := table.Register("PING", &stubHandler{}); !errors.Is(err, ErrDuplicateType) {
		t.Errorf("second Register(PING) error = %v, want ErrDuplicateType", err)
	}
	if err := table.Register(TypeToggle, &stubHandler{}); err != nil {
		t.Fatalf("Register(TOGGLE) error = %v", err)
	}

	if got, want := table.Types(), []string{"PING", TypeToggle}; !reflect.DeepEqual(got, want) {
		t.Errorf("Types() = %v, want %v", got, want)
	}
	if _, ok := table.Lookup("PING"); !ok {
		t.Error("Lookup(PING) not found")
	}
	if _, ok := table.Lookup("DIM"); ok {
		t.Error("Lookup(DIM) found an unregistered type")
	}
}

func TestTable_Dispatch(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		eventType   string
		accept      bool
		wantHandled bool
	}{
		{"registered and accepted", "PING", true, true},
		{"registered but rejected", "PING", false, false},
		{"unregistered type", "DIM", true, false},
		{"empty type", "", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &stubHandler{accept: tt.accept}
			table := NewTable()
			if err := table.Register("PING", h); err != nil {
				t.Fatalf("Register() error = %v", err)
			}

			got := table.Dispatch(ctx, event.Event{Type: tt.eventType})
			if got != tt.wantHandled {
				t.Errorf("Dispatch() = %v, want %v", got, tt.wantHandled)
			}

			wantCalls := 0
			if tt.wantHandled {
				wantCalls = 1
			}
			if len(h.handled) != wantCalls {
				t.Errorf("Handle calls = %d, want %d", len(h.handled), wantCalls)
			}
		})
	}
}
