package output

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// GPIO drives host pins through periph.io.
type GPIO struct {
	mu   sync.Mutex
	pins map[string]gpio.PinOut
}

// NewGPIO initialises the host drivers and resolves every named pin
// (for example "GPIO17" on a Raspberry Pi).
func NewGPIO(names []string) (*GPIO, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHostInit, err)
	}
	return newGPIO(names, func(name string) gpio.PinOut {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil
		}
		return p
	})
}

// newGPIO resolves names with lookup. A nil result means the pin does not
// exist on this host.
func newGPIO(names []string, lookup func(name string) gpio.PinOut) (*GPIO, error) {
	g := &GPIO{pins: make(map[string]gpio.PinOut, len(names))}
	for _, name := range names {
		p := lookup(name)
		if p == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPin, name)
		}
		g.pins[name] = p
	}
	return g, nil
}

// SetOutput drives pin high when asserted, low otherwise.
func (g *GPIO) SetOutput(pin string, asserted bool) error {
	g.mu.Lock()
	p, ok := g.pins[pin]
	g.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPin, pin)
	}

	level := gpio.Low
	if asserted {
		level = gpio.High
	}
	if err := p.Out(level); err != nil {
		return fmt.Errorf("setting %s %s: %w", pin, level, err)
	}
	return nil
}

// Close halts every claimed pin. Levels are left as they are.
func (g *GPIO) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var firstErr error
	for name, p := range g.pins {
		if err := p.Halt(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("halting %s: %w", name, err)
		}
	}
	return firstErr
}
