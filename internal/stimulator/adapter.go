package stimulator

import (
	"context"
	"sync"
)

// Result is what a single proxy call reports back.
type Result struct {
	// ReturnCode is the integer returned by the vendor DLL function.
	ReturnCode int `json:"returnCode"`

	// Output holds the raw proxy output, trimmed.
	Output string `json:"output,omitempty"`
}

// DeviceState is the parameter record as reported by the device.
type DeviceState struct {
	Parameters
	ReturnCode int `json:"returnCode"`
}

// IStimulatorAdapter defines the stable southbound adapter contract.
// Upload maps to DGD128_Set, Trigger to DGD128_Trigger and GetState to DGD128_Get.
type IStimulatorAdapter interface {
	// Upload sends parameters to the device without triggering a pulse.
	Upload(ctx context.Context, p Parameters) (Result, error)

	// Trigger fires one pulse using the parameters last uploaded.
	Trigger(ctx context.Context) (Result, error)

	// GetState reads the current device settings.
	GetState(ctx context.Context) (*DeviceState, error)
}

// StatusReporter is implemented by adapters that track device reachability.
type StatusReporter interface {
	// CurrentStatus returns online, offline or unknown.
	CurrentStatus() string
}

// AdapterBase tracks the status an adapter last observed.
type AdapterBase struct {
	mu     sync.RWMutex
	status string
}

// CurrentStatus returns the last observed status, unknown before the first call.
func (a *AdapterBase) CurrentStatus() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.status == "" {
		return "unknown"
	}
	return a.status
}

// SetStatus records the device status.
func (a *AdapterBase) SetStatus(status string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = status
}
