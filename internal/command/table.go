// Package command holds the command handlers and the table that routes
// decoded events to them by type.
package command

import (
	"context"
	"fmt"
	"sort"

	"github.com/lightmanager/lightmanager/internal/event"
)

// Handler applies one kind of command.
//
// Accepts must be a pure predicate on the event. Handle is only called for
// events Accepts returned true for, and must not fail the pipeline: any
// problem is logged by the handler itself.
type Handler interface {
	Accepts(e event.Event) bool
	Handle(ctx context.Context, e event.Event)
}

// Logger defines the logging interface used by handlers.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Table maps event types to handlers.
//
// Registration happens during startup; after that the table is read-only
// and safe for concurrent lookups.
type Table struct {
	handlers map[string]Handler
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{handlers: make(map[string]Handler)}
}

// Register binds handler to eventType.
func (t *Table) Register(eventType string, handler Handler) error {
	if eventType == "" {
		return ErrEmptyType
	}
	if handler == nil {
		return fmt.Errorf("%w: %s", ErrNilHandler, eventType)
	}
	if _, exists := t.handlers[eventType]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateType, eventType)
	}
	t.handlers[eventType] = handler
	return nil
}

// Lookup returns the handler registered for eventType.
func (t *Table) Lookup(eventType string) (Handler, bool) {
	h, ok := t.handlers[eventType]
	return h, ok
}

// Types returns the registered types in sorted order.
func (t *Table) Types() []string {
	types := make([]string, 0, len(t.handlers))
	for k := range t.handlers {
		types = append(types, k)
	}
	sort.Strings(types)
	return types
}

// Dispatch routes e to the handler registered for its type, running
// Handle only if the handler accepts the event. It reports whether a
// handler ran.
func (t *Table) Dispatch(ctx context.Context, e event.Event) bool {
	h, ok := t.handlers[e.Type]
	if !ok || !h.Accepts(e) {
		return false
	}
	h.Handle(ctx, e)
	return true
}
