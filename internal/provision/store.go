// Package provision manages the persisted broker settings document that
// field provisioning writes: {"mqttHost": "...", "mqttPort": "1883"}.
//
// When present, its values take precedence over the broker host and port
// in config.yaml.
//
// The controller itself only reads the document (Load, GetConfig). Save is
// the write half used by the provisioning portal, which ships separately;
// nothing in this binary calls it.
package provision

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"sync"

	"github.com/google/renameio/v2"

	"github.com/lightmanager/lightmanager/internal/infrastructure/config"
)

// Field limits and defaults of the settings document.
const (
	MaxHostLength = 39
	MaxPortLength = 5
	DefaultPort   = "1883"

	filePermissions = 0o600
)

var (
	// ErrMalformed is returned when the settings file is not valid JSON.
	ErrMalformed = errors.New("malformed settings document")

	// ErrInvalidSettings is returned for values outside the field limits.
	ErrInvalidSettings = errors.New("invalid settings")
)

// Settings holds the provisioned broker address.
type Settings struct {
	Host string `json:"mqttHost"`
	Port string `json:"mqttPort"`
}

// Validate checks field lengths and that Port, when set, is a TCP port.
func (s Settings) Validate() error {
	if len(s.Host) > MaxHostLength {
		return fmt.Errorf("%w: host longer than %d bytes", ErrInvalidSettings, MaxHostLength)
	}
	if len(s.Port) > MaxPortLength {
		return fmt.Errorf("%w: port longer than %d bytes", ErrInvalidSettings, MaxPortLength)
	}
	if s.Port != "" {
		if _, err := s.PortNumber(); err != nil {
			return err
		}
	}
	return nil
}

// PortNumber parses Port.
func (s Settings) PortNumber() (int, error) {
	n, err := strconv.Atoi(s.Port)
	if err != nil || n < 1 || n > 65535 {
		return 0, fmt.Errorf("%w: port %q", ErrInvalidSettings, s.Port)
	}
	return n, nil
}

// ApplyTo overrides broker host and port with the provisioned values that
// are set. It reports whether anything was overridden.
func (s Settings) ApplyTo(b *config.MQTTBrokerConfig) bool {
	changed := false
	if s.Host != "" {
		b.Host = s.Host
		changed = true
	}
	if port, err := s.PortNumber(); err == nil && s.Host != "" {
		b.Port = port
		changed = true
	}
	return changed
}

// Store loads and saves the settings document.
type Store struct {
	path string

	mu      sync.RWMutex
	current Settings
}

// NewStore creates a store for the document at path. Call Load before
// GetConfig.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the document location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the document. A missing file yields empty settings and no
// error. A missing mqttPort defaults to 1883. On error the current settings
// are left empty.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.set(Settings{})
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading settings: %w", err)
	}

	var loaded Settings
	if err := json.Unmarshal(data, &loaded); err != nil {
		s.set(Settings{})
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if loaded.Port == "" {
		loaded.Port = DefaultPort
	}
	if err := loaded.Validate(); err != nil {
		s.set(Settings{})
		return err
	}

	s.set(loaded)
	return nil
}

// GetConfig returns the current settings.
func (s *Store) GetConfig() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Save writes next atomically when it differs from the current settings.
// It is the entry point for the provisioning portal, not the controller.
//
// Returns:
//   - updated: true when the document was rewritten
//   - error: ErrInvalidSettings, or a write failure (current settings kept)
func (s *Store) Save(next Settings) (updated bool, err error) {
	if err := next.Validate(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if next == s.current {
		return false, nil
	}

	data, err := json.Marshal(next)
	if err != nil {
		return false, fmt.Errorf("encoding settings: %w", err)
	}
	if err := renameio.WriteFile(s.path, data, filePermissions); err != nil {
		return false, fmt.Errorf("writing settings: %w", err)
	}

	s.current = next
	return true, nil
}

func (s *Store) set(v Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = v
}
