package command

import (
	"context"
	"fmt"
	"time"

	"github.com/timnaher/ds8r/internal/device"
	"github.com/timnaher/ds8r/internal/stimulator"
)

// OrchestratorPort defines what the API, CLI and TUI need from the orchestrator.
type OrchestratorPort interface {
	Upload(ctx context.Context, p stimulator.Parameters) (stimulator.Result, error)
	Trigger(ctx context.Context) (stimulator.Result, error)
	Run(ctx context.Context, p stimulator.Parameters, force bool) (*RunResult, error)
	SetEnabled(ctx context.Context, enabled bool) (stimulator.Result, error)
	GetState(ctx context.Context) (*stimulator.DeviceState, error)
	Validate(p stimulator.Parameters) ([]string, error)
	CheckSafety(p stimulator.Parameters, force bool) error
	Defaults() stimulator.Parameters
	SafeDemand() int
}

// DeviceManager is the device record the orchestrator keeps current.
type DeviceManager interface {
	ID() string
	Adapter() stimulator.IStimulatorAdapter
	LastParameters() (stimulator.Parameters, bool)
	RecordUpload(p stimulator.Parameters)
	RecordTrigger(at time.Time)
	RecordState(state *stimulator.DeviceState)
	RecordError(err error)
}

// AuditLogger interface for writing audit records.
type AuditLogger interface {
	LogControlAction(ctx context.Context, action, deviceID string, params map[string]interface{}, returnCode *int, latency time.Duration, err error)
}

// Compile-time assertion that device.Manager implements DeviceManager
var _ DeviceManager = (*device.Manager)(nil)

// ErrSafetyLimit indicates a demand above the configured safe limit without force.
// It wraps ErrInvalidRange.
var ErrSafetyLimit = fmt.Errorf("SAFETY_LIMIT: %w", stimulator.ErrInvalidRange)

// RunResult carries the vendor results of the upload and trigger of a run.
type RunResult struct {
	Upload  stimulator.Result `json:"upload"`
	Trigger stimulator.Result `json:"trigger"`
}
