package proxymock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/timnaher/ds8r/internal/stimulator"
)

// State is the persisted device-side view of the emulated DS8R.
type State struct {
	Parameters  stimulator.Parameters `json:"parameters"`
	Uploads     int                   `json:"uploads"`
	Triggers    int                   `json:"triggers"`
	LastTrigger *time.Time            `json:"lastTrigger,omitempty"`
}

// DefaultStatePath returns the state file used when DS8R_MOCK_STATE is unset.
func DefaultStatePath() string {
	return filepath.Join(os.TempDir(), "ds8r-proxy-mock.json")
}

// LoadState reads the state file. A missing file yields a fresh device.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &State{Parameters: stimulator.DefaultParameters()}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to parse state file %s: %w", path, err)
	}
	return &st, nil
}

// Save writes the state file atomically.
func (s *State) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return os.Rename(tmp, path)
}
