package api

import (
	"context"
	"net/http"

	"github.com/timnaher/ds8r/internal/audit"
	"github.com/timnaher/ds8r/internal/command"
	"github.com/timnaher/ds8r/internal/device"
	"github.com/timnaher/ds8r/internal/metrics"
	"github.com/timnaher/ds8r/internal/stimulator"
)

// OrchestratorPort defines the minimal interface the API needs from the orchestrator.
type OrchestratorPort interface {
	Upload(ctx context.Context, p stimulator.Parameters) (stimulator.Result, error)
	Trigger(ctx context.Context) (stimulator.Result, error)
	Run(ctx context.Context, p stimulator.Parameters, force bool) (*command.RunResult, error)
	SetEnabled(ctx context.Context, enabled bool) (stimulator.Result, error)
	GetState(ctx context.Context) (*stimulator.DeviceState, error)
	Validate(p stimulator.Parameters) ([]string, error)
	CheckSafety(p stimulator.Parameters, force bool) error
	Defaults() stimulator.Parameters
	SafeDemand() int
}

// DeviceReadPort defines the minimal interface for reading the device record.
type DeviceReadPort interface {
	Get() device.Device
	LastParameters() (stimulator.Parameters, bool)
}

// MetricsPort exposes the Prometheus handler.
type MetricsPort interface {
	Handler() http.Handler
}

// AuditReadPort reads recent audit entries.
type AuditReadPort interface {
	Recent(n int) ([]audit.AuditEntry, error)
}

// Compile-time assertions for port conformance
var _ OrchestratorPort = (*command.Orchestrator)(nil)
var _ DeviceReadPort = (*device.Manager)(nil)
var _ MetricsPort = (*metrics.Metrics)(nil)
var _ AuditReadPort = (*audit.Logger)(nil)
