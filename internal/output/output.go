package output

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lightmanager/lightmanager/internal/infrastructure/config"
)

// Driver names accepted in output.driver.
const (
	DriverGPIO   = "gpio"
	DriverMemory = "memory"
)

// Startup indicator timing.
const (
	BlinkCount  = 3
	BlinkPeriod = time.Second
)

// Driver sets output levels on named pins.
type Driver interface {
	SetOutput(pin string, asserted bool) error
	Close() error
}

// New creates the driver selected by cfg, claiming pins. The status pin,
// when configured, is claimed as well.
//
// Parameters:
//   - cfg: Output section of config.yaml
//   - pins: Every channel pin the registry will drive
//
// Returns:
//   - Driver: Ready driver; the caller must Close it
//   - error: ErrUnknownDriver, ErrHostInit or ErrUnknownPin
func New(cfg config.OutputConfig, pins []string) (Driver, error) {
	all := append([]string(nil), pins...)
	if cfg.StatusPin != "" {
		all = append(all, cfg.StatusPin)
	}

	switch strings.ToLower(cfg.Driver) {
	case DriverGPIO:
		return NewGPIO(all)
	case DriverMemory, "":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// Setter is the subset of Driver used by Blink.
type Setter interface {
	SetOutput(pin string, asserted bool) error
}

// Blink pulses pin count times, asserting for period then releasing for
// period. It stops early when ctx is cancelled and always leaves the pin
// released.
func Blink(ctx context.Context, out Setter, pin string, count int, period time.Duration) error {
	wait := func() error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(period):
			return nil
		}
	}

	for range count {
		if err := out.SetOutput(pin, true); err != nil {
			return fmt.Errorf("blinking %s: %w", pin, err)
		}
		if err := wait(); err != nil {
			_ = out.SetOutput(pin, false) //nolint:errcheck // Best effort on cancel
			return err
		}
		if err := out.SetOutput(pin, false); err != nil {
			return fmt.Errorf("blinking %s: %w", pin, err)
		}
		if err := wait(); err != nil {
			return err
		}
	}
	return nil
}
