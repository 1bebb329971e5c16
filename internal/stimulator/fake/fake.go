// Package fake provides an in-memory stimulator adapter for tests and dry runs.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/timnaher/ds8r/internal/stimulator"
)

// FakeAdapter implements IStimulatorAdapter without touching hardware.
type FakeAdapter struct {
	stimulator.AdapterBase

	mu sync.Mutex
	id string

	// Device-side state
	current   stimulator.Parameters
	uploads   int
	triggers  int
	delivered []stimulator.Parameters

	// Vendor return code reported by every call
	returnCode int

	// Error simulation
	simulateErrors bool
	errorType      string
}

// NewFakeAdapter creates a new fake adapter holding the default parameters.
func NewFakeAdapter(deviceID string) *FakeAdapter {
	f := &FakeAdapter{id: deviceID, current: stimulator.DefaultParameters()}
	f.SetStatus("online")
	return f
}

// Upload stores the parameters as the device would.
func (f *FakeAdapter) Upload(ctx context.Context, p stimulator.Parameters) (stimulator.Result, error) {
	select {
	case <-ctx.Done():
		return stimulator.Result{}, ctx.Err()
	default:
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.simulateErrors {
		return stimulator.Result{}, f.getSimulatedError()
	}

	// The device rejects what the DLL would reject.
	if err := p.Validate(); err != nil {
		return stimulator.Result{}, fmt.Errorf("PARAMETER_OUT_OF_RANGE: %v", err)
	}

	f.current = p
	f.uploads++
	return stimulator.Result{
		ReturnCode: f.returnCode,
		Output:     fmt.Sprintf("DGD128_Set returned: %d", f.returnCode),
	}, nil
}

// Trigger records a pulse with the current parameters.
func (f *FakeAdapter) Trigger(ctx context.Context) (stimulator.Result, error) {
	select {
	case <-ctx.Done():
		return stimulator.Result{}, ctx.Err()
	default:
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.simulateErrors {
		return stimulator.Result{}, f.getSimulatedError()
	}

	f.triggers++
	if f.current.IsEnabled() {
		f.delivered = append(f.delivered, f.current)
	}
	return stimulator.Result{
		ReturnCode: f.returnCode,
		Output:     fmt.Sprintf("DGD128_Trigger returned: %d", f.returnCode),
	}, nil
}

// GetState returns the current device parameters.
func (f *FakeAdapter) GetState(ctx context.Context) (*stimulator.DeviceState, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.simulateErrors {
		return nil, f.getSimulatedError()
	}

	return &stimulator.DeviceState{
		Parameters: f.current,
		ReturnCode: f.returnCode,
	}, nil
}

// Helper methods for testing

// SetErrorSimulation makes every call fail with the given normalized code name.
func (f *FakeAdapter) SetErrorSimulation(errorType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.simulateErrors = true
	f.errorType = errorType
	if errorType == "UNAVAILABLE" {
		f.SetStatus("offline")
	}
}

// DisableErrorSimulation disables error simulation.
func (f *FakeAdapter) DisableErrorSimulation() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.simulateErrors = false
	f.errorType = ""
	f.SetStatus("online")
}

// SetReturnCode sets the vendor return code reported by subsequent calls.
func (f *FakeAdapter) SetReturnCode(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.returnCode = code
}

// getSimulatedError returns a vendor-style error for the configured error type.
func (f *FakeAdapter) getSimulatedError() error {
	switch f.errorType {
	case "INVALID_RANGE":
		return fmt.Errorf("PARAMETER_OUT_OF_RANGE: %s: simulated range error", f.id)
	case "BUSY":
		return fmt.Errorf("DEVICE_BUSY: %s: simulated busy error", f.id)
	case "UNAVAILABLE":
		return fmt.Errorf("DEVICE_NOT_FOUND: %s: simulated unavailable error", f.id)
	default:
		return fmt.Errorf("%s: simulated internal error", f.id)
	}
}

// Counts returns the number of uploads and triggers seen.
func (f *FakeAdapter) Counts() (uploads, triggers int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads, f.triggers
}

// Delivered returns the parameters of every enabled pulse triggered so far.
func (f *FakeAdapter) Delivered() []stimulator.Parameters {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]stimulator.Parameters, len(f.delivered))
	copy(out, f.delivered)
	return out
}

// SetCurrent overwrites the device-side parameters without counting an upload.
func (f *FakeAdapter) SetCurrent(p stimulator.Parameters) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = p
}
