package command

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/timnaher/ds8r/internal/audit"
	"github.com/timnaher/ds8r/internal/config"
	"github.com/timnaher/ds8r/internal/metrics"
	"github.com/timnaher/ds8r/internal/stimulator"
)

// LowDemandWarning is reported for demands the device may not deliver accurately.
const LowDemandWarning = "demand below 2.0 mA may not be delivered accurately by the device"

// Orchestrator routes validated intents to the device adapter.
type Orchestrator struct {
	// One proxy call at a time
	mu sync.Mutex

	manager    DeviceManager
	timing     config.TimingConfig
	safeDemand int
	defaults   stimulator.Parameters

	auditLogger AuditLogger
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

// Compile-time assertion that Orchestrator implements OrchestratorPort
var _ OrchestratorPort = (*Orchestrator)(nil)

// NewOrchestrator creates a new command orchestrator. manager must not be nil.
func NewOrchestrator(manager DeviceManager, cfg *config.Config) *Orchestrator {
	return &Orchestrator{
		manager:    manager,
		timing:     cfg.Timing,
		safeDemand: cfg.Safety.SafeDemand,
		defaults:   cfg.Defaults,
		logger:     zerolog.Nop(),
	}
}

// SetAuditLogger sets the audit logger.
func (o *Orchestrator) SetAuditLogger(logger AuditLogger) {
	o.auditLogger = logger
}

// SetMetrics sets the metrics collector.
func (o *Orchestrator) SetMetrics(m *metrics.Metrics) {
	o.metrics = m
}

// SetLogger sets the structured logger.
func (o *Orchestrator) SetLogger(l zerolog.Logger) {
	o.logger = l.With().Str("component", "orchestrator").Logger()
}

// Defaults returns the configured default record.
func (o *Orchestrator) Defaults() stimulator.Parameters {
	return o.defaults
}

// SafeDemand returns the largest demand run without force.
func (o *Orchestrator) SafeDemand() int {
	return o.safeDemand
}

// Validate checks p against the hardware ranges and returns non-fatal warnings.
func (o *Orchestrator) Validate(p stimulator.Parameters) ([]string, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	var warnings []string
	if p.LowDemand() {
		warnings = append(warnings, LowDemandWarning)
	}
	return warnings, nil
}

// CheckSafety returns ErrSafetyLimit when p exceeds the safe demand and force is off.
func (o *Orchestrator) CheckSafety(p stimulator.Parameters, force bool) error {
	if p.Demand <= o.safeDemand || force {
		return nil
	}
	limit := stimulator.Parameters{Demand: o.safeDemand}
	return fmt.Errorf("%w: demand %d (%.1f mA) exceeds safe limit of %d (%.1f mA); use force to apply a higher current",
		ErrSafetyLimit, p.Demand, p.DemandMilliamps(), o.safeDemand, limit.DemandMilliamps())
}

// Upload validates p and sends it to the device without triggering.
func (o *Orchestrator) Upload(ctx context.Context, p stimulator.Parameters) (stimulator.Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	start := time.Now()
	if err := o.validate(p); err != nil {
		o.logAudit(ctx, "upload", p.Map(), nil, time.Since(start), err)
		return stimulator.Result{}, err
	}

	res, err := o.upload(ctx, p)
	o.logAudit(ctx, "upload", p.Map(), returnCode(res, err), time.Since(start), err)
	return res, err
}

// Trigger fires one pulse with the parameters last uploaded.
func (o *Orchestrator) Trigger(ctx context.Context) (stimulator.Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	start := time.Now()
	var params map[string]interface{}
	if p, ok := o.manager.LastParameters(); ok {
		params = p.Map()
	}

	res, err := o.trigger(ctx)
	o.logAudit(ctx, "trigger", params, returnCode(res, err), time.Since(start), err)
	return res, err
}

// Run validates p, applies the safety limit, then uploads and triggers.
func (o *Orchestrator) Run(ctx context.Context, p stimulator.Parameters, force bool) (*RunResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	start := time.Now()
	params := p.Map()
	params["force"] = force

	if err := o.validate(p); err != nil {
		o.logAudit(ctx, "run", params, nil, time.Since(start), err)
		return nil, err
	}

	if err := o.CheckSafety(p, force); err != nil {
		o.reject(audit.CodeSafetyLimit)
		o.logger.Warn().Int("demand", p.Demand).Int("safeDemand", o.safeDemand).Msg("run refused by safety limit")
		o.logAudit(ctx, "run", params, nil, time.Since(start), err)
		return nil, err
	}
	if force && p.Demand > o.safeDemand {
		o.logger.Warn().Int("demand", p.Demand).Float64("mA", p.DemandMilliamps()).Msg("safety limit overridden with force")
	}

	result := &RunResult{}
	var err error
	if result.Upload, err = o.upload(ctx, p); err == nil {
		result.Trigger, err = o.trigger(ctx)
	}

	o.logAudit(ctx, "run", params, returnCode(result.Trigger, err), time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SetEnabled uploads the last known record with only the enabled flag changed.
func (o *Orchestrator) SetEnabled(ctx context.Context, enabled bool) (stimulator.Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	action := "disable"
	if enabled {
		action = "enable"
	}

	start := time.Now()
	p, ok := o.manager.LastParameters()
	if !ok {
		state, err := o.getState(ctx)
		if err != nil {
			o.logger.Debug().Err(err).Msg("device state unavailable, using defaults")
			p = o.defaults
		} else {
			p = state.Parameters
		}
	}

	p.Enabled = 0
	if enabled {
		p.Enabled = 1
	}

	if err := o.validate(p); err != nil {
		o.logAudit(ctx, action, p.Map(), nil, time.Since(start), err)
		return stimulator.Result{}, err
	}

	res, err := o.upload(ctx, p)
	o.logAudit(ctx, action, p.Map(), returnCode(res, err), time.Since(start), err)
	return res, err
}

// GetState reads the device settings and records them.
func (o *Orchestrator) GetState(ctx context.Context) (*stimulator.DeviceState, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	start := time.Now()
	state, err := o.getState(ctx)

	var rc *int
	var params map[string]interface{}
	if err == nil {
		rc = &state.ReturnCode
		params = state.Parameters.Map()
	}
	o.logAudit(ctx, "getState", params, rc, time.Since(start), err)
	return state, err
}

// validate wraps Parameters.Validate with metrics and the low demand warning.
func (o *Orchestrator) validate(p stimulator.Parameters) error {
	warnings, err := o.Validate(p)
	if err != nil {
		o.reject(audit.CodeInvalidRange)
		o.logger.Info().Err(err).Msg("parameters rejected")
		return err
	}
	for _, w := range warnings {
		o.logger.Warn().Int("demand", p.Demand).Msg(w)
	}
	return nil
}

func (o *Orchestrator) upload(ctx context.Context, p stimulator.Parameters) (stimulator.Result, error) {
	a, err := o.adapter()
	if err != nil {
		return stimulator.Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, o.timing.Upload)
	defer cancel()

	start := time.Now()
	res, err := a.Upload(ctx, p)
	o.observe("upload", time.Since(start))
	if err != nil {
		return res, o.fail("upload", err)
	}

	o.manager.RecordUpload(p)
	if o.metrics != nil {
		o.metrics.Uploaded(p.DemandMilliamps(), p.IsEnabled())
	}
	o.logger.Info().
		Int("demand", p.Demand).
		Int("pulseWidth", p.PulseWidth).
		Stringer("mode", p.Mode).
		Bool("enabled", p.IsEnabled()).
		Int("returnCode", res.ReturnCode).
		Msg("parameters uploaded")
	return res, nil
}

func (o *Orchestrator) trigger(ctx context.Context) (stimulator.Result, error) {
	a, err := o.adapter()
	if err != nil {
		return stimulator.Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, o.timing.Trigger)
	defer cancel()

	start := time.Now()
	res, err := a.Trigger(ctx)
	o.observe("trigger", time.Since(start))
	if err != nil {
		return res, o.fail("trigger", err)
	}

	o.manager.RecordTrigger(time.Now().UTC())
	if o.metrics != nil {
		o.metrics.Triggered()
	}
	o.logger.Info().Int("returnCode", res.ReturnCode).Msg("pulse triggered")
	return res, nil
}

func (o *Orchestrator) getState(ctx context.Context) (*stimulator.DeviceState, error) {
	a, err := o.adapter()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, o.timing.GetState)
	defer cancel()

	start := time.Now()
	state, err := a.GetState(ctx)
	o.observe("getState", time.Since(start))
	if err != nil {
		return nil, o.fail("getState", err)
	}

	o.manager.RecordState(state)
	return state, nil
}

func (o *Orchestrator) adapter() (stimulator.IStimulatorAdapter, error) {
	if o.manager.Adapter() == nil {
		return nil, &stimulator.VendorError{Code: stimulator.ErrUnavailable, Original: errors.New("no stimulator adapter configured")}
	}
	return o.manager.Adapter(), nil
}

// fail normalizes an adapter error and records it.
func (o *Orchestrator) fail(op string, err error) error {
	normalized := stimulator.NormalizeVendorErrorWithVendor(err, nil, stimulator.DefaultVendorID)
	o.manager.RecordError(normalized)
	if o.metrics != nil {
		o.metrics.ProxyError(audit.CodeFromError(normalized))
	}
	o.logger.Error().Err(normalized).Str("op", op).Msg("proxy call failed")
	return normalized
}

func (o *Orchestrator) reject(reason string) {
	if o.metrics != nil {
		o.metrics.Rejected(reason)
	}
}

func (o *Orchestrator) observe(op string, d time.Duration) {
	if o.metrics != nil {
		o.metrics.ObserveCall(op, d)
	}
}

// logAudit logs an audit entry.
func (o *Orchestrator) logAudit(ctx context.Context, action string, params map[string]interface{}, rc *int, latency time.Duration, err error) {
	if o.auditLogger != nil {
		o.auditLogger.LogControlAction(ctx, action, o.manager.ID(), params, rc, latency, err)
	}
}

func returnCode(res stimulator.Result, err error) *int {
	if err != nil {
		return nil
	}
	rc := res.ReturnCode
	return &rc
}
