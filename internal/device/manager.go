package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/timnaher/ds8r/internal/stimulator"
)

// Device statuses.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
	StatusUnknown = "unknown"
)

// Device is the descriptor served by GET /device.
type Device struct {
	ID           string                  `json:"id"`
	Model        string                  `json:"model"`
	Status       string                  `json:"status"`
	Parameters   *stimulator.Parameters  `json:"parameters,omitempty"`
	State        *stimulator.DeviceState `json:"state,omitempty"`
	LastTrigger  *time.Time              `json:"lastTrigger,omitempty"`
	TriggerCount int                     `json:"triggerCount"`
	LastError    string                  `json:"lastError,omitempty"`
	LastSeen     time.Time               `json:"lastSeen,omitempty"`
}

// Manager manages the device record and its adapter.
type Manager struct {
	mu      sync.RWMutex
	device  Device
	adapter stimulator.IStimulatorAdapter
}

// NewManager creates a manager for one device.
func NewManager(id string, a stimulator.IStimulatorAdapter) *Manager {
	return &Manager{
		device: Device{
			ID:     id,
			Model:  "DS8R",
			Status: StatusUnknown,
		},
		adapter: a,
	}
}

// Adapter returns the adapter driving the device.
func (m *Manager) Adapter() stimulator.IStimulatorAdapter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.adapter
}

// ID returns the device identifier.
func (m *Manager) ID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.device.ID
}

// Probe reads the device state once, e.g. at startup.
func (m *Manager) Probe(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	state, err := m.Adapter().GetState(ctx)
	if err != nil {
		m.RecordError(err)
		m.SyncStatus()
		return fmt.Errorf("failed to probe device %s: %w", m.ID(), err)
	}
	m.RecordState(state)
	m.SyncStatus()
	return nil
}

// SyncStatus copies the status the adapter last observed into the device record.
// Adapters without status tracking, and an unknown status, leave the record as is.
func (m *Manager) SyncStatus() {
	r, ok := m.Adapter().(stimulator.StatusReporter)
	if !ok {
		return
	}
	status := r.CurrentStatus()
	if status == StatusUnknown {
		return
	}
	if err := m.UpdateStatus(status); err != nil {
		m.RecordError(err)
	}
}

// Get returns a copy of the device record.
func (m *Manager) Get() Device {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d := m.device
	if d.Parameters != nil {
		p := *d.Parameters
		d.Parameters = &p
	}
	if d.State != nil {
		s := *d.State
		d.State = &s
	}
	if d.LastTrigger != nil {
		t := *d.LastTrigger
		d.LastTrigger = &t
	}
	return d
}

// LastParameters returns the record last accepted by the device.
func (m *Manager) LastParameters() (stimulator.Parameters, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.device.Parameters != nil {
		return *m.device.Parameters, true
	}
	if m.device.State != nil {
		return m.device.State.Parameters, true
	}
	return stimulator.Parameters{}, false
}

// RecordUpload stores an accepted parameter record.
func (m *Manager) RecordUpload(p stimulator.Parameters) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.device.Parameters = &p
	m.markSeen()
}

// RecordTrigger counts a delivered trigger.
func (m *Manager) RecordTrigger(at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.device.LastTrigger = &at
	m.device.TriggerCount++
	m.markSeen()
}

// RecordState stores the state reported by the device.
func (m *Manager) RecordState(state *stimulator.DeviceState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state != nil {
		s := *state
		m.device.State = &s
	}
	m.markSeen()
}

// RecordError stores a failed call. Unavailable devices are marked offline.
func (m *Manager) RecordError(err error) {
	if err == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.device.LastError = err.Error()
	if errors.Is(err, stimulator.ErrUnavailable) {
		m.device.Status = StatusOffline
	}
}

// UpdateStatus overrides the device status.
func (m *Manager) UpdateStatus(status string) error {
	switch status {
	case StatusOnline, StatusOffline, StatusUnknown:
	default:
		return fmt.Errorf("invalid status %q", status)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.device.Status = status
	return nil
}

// markSeen must be called with the lock held.
func (m *Manager) markSeen() {
	m.device.Status = StatusOnline
	m.device.LastError = ""
	m.device.LastSeen = time.Now()
}
