package output

import "sync"

// Memory records output levels without touching hardware.
type Memory struct {
	mu     sync.Mutex
	levels map[string]bool
	writes int
	faults map[string]error
}

// NewMemory creates an empty in-memory driver. Any pin name is accepted.
func NewMemory() *Memory {
	return &Memory{
		levels: make(map[string]bool),
		faults: make(map[string]error),
	}
}

// SetOutput records the level of pin, or returns the injected fault.
func (m *Memory) SetOutput(pin string, asserted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.faults[pin]; err != nil {
		return err
	}
	m.levels[pin] = asserted
	m.writes++
	return nil
}

// Level returns the last level written to pin and whether it was written.
func (m *Memory) Level(pin string) (asserted, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	asserted, ok = m.levels[pin]
	return asserted, ok
}

// Writes returns the number of successful writes.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Fail makes every write to pin return err. A nil err clears the fault.
func (m *Memory) Fail(pin string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.faults, pin)
		return
	}
	m.faults[pin] = err
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
