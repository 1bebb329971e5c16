package fake

import (
	"context"
	"errors"
	"testing"

	"github.com/timnaher/ds8r/internal/stimulator"
	"github.com/timnaher/ds8r/internal/stimulatortest"
)

// TestFakeAdapterConformance runs the complete conformance test suite on the fake adapter.
func TestFakeAdapterConformance(t *testing.T) {
	capabilities := stimulatortest.Capabilities{
		MaxDemand: stimulator.MaxDemand,
		Faults: func(a stimulator.IStimulatorAdapter, code string) bool {
			a.(*FakeAdapter).SetErrorSimulation(code)
			return true
		},
	}

	stimulatortest.RunConformance(t, func() stimulator.IStimulatorAdapter {
		return NewFakeAdapter("fake-ds8r-01")
	}, capabilities)
}

// TestFakeAdapterBasicFunctionality tests upload, trigger and state readback.
func TestFakeAdapterBasicFunctionality(t *testing.T) {
	adapter := NewFakeAdapter("test-ds8r")
	ctx := context.Background()

	state, err := adapter.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if state.Parameters != stimulator.DefaultParameters() {
		t.Errorf("Expected default parameters, got %+v", state.Parameters)
	}

	p := stimulator.DefaultParameters()
	p.Demand = 55
	p.Mode = stimulator.ModeBiphasic
	if _, err := adapter.Upload(ctx, p); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	state, err = adapter.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState after Upload failed: %v", err)
	}
	if state.Demand != 55 || state.Mode != stimulator.ModeBiphasic {
		t.Errorf("Expected uploaded parameters, got %+v", state.Parameters)
	}

	if _, err := adapter.Trigger(ctx); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}

	uploads, triggers := adapter.Counts()
	if uploads != 1 || triggers != 1 {
		t.Errorf("Expected 1 upload and 1 trigger, got %d and %d", uploads, triggers)
	}
	if delivered := adapter.Delivered(); len(delivered) != 1 || delivered[0].Demand != 55 {
		t.Errorf("Expected one delivered pulse at demand 55, got %+v", delivered)
	}
}

// TestFakeAdapterDisabledOutput checks that a disabled output triggers without delivering.
func TestFakeAdapterDisabledOutput(t *testing.T) {
	adapter := NewFakeAdapter("test-ds8r")
	ctx := context.Background()

	p := stimulator.DefaultParameters()
	p.Enabled = 0
	if _, err := adapter.Upload(ctx, p); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if _, err := adapter.Trigger(ctx); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}

	if delivered := adapter.Delivered(); len(delivered) != 0 {
		t.Errorf("Expected no delivered pulses, got %d", len(delivered))
	}
}

// TestFakeAdapterErrorSimulation tests error simulation functionality.
func TestFakeAdapterErrorSimulation(t *testing.T) {
	adapter := NewFakeAdapter("test-ds8r")
	ctx := context.Background()

	adapter.SetErrorSimulation("BUSY")
	_, err := adapter.Trigger(ctx)
	if err == nil {
		t.Fatal("Expected error when error simulation is enabled")
	}
	normalized := stimulator.NormalizeVendorErrorWithVendor(err, nil, "ds8r")
	if !errors.Is(normalized, stimulator.ErrBusy) {
		t.Errorf("Expected BUSY after normalization, got %v", normalized)
	}

	adapter.SetErrorSimulation("UNAVAILABLE")
	_, err = adapter.GetState(ctx)
	normalized = stimulator.NormalizeVendorErrorWithVendor(err, nil, "ds8r")
	if !errors.Is(normalized, stimulator.ErrUnavailable) {
		t.Errorf("Expected UNAVAILABLE after normalization, got %v", normalized)
	}

	adapter.DisableErrorSimulation()
	if _, err := adapter.GetState(ctx); err != nil {
		t.Errorf("Expected no error when error simulation is disabled, got: %v", err)
	}
}

// TestFakeAdapterValidation tests device-side rejection of invalid records.
func TestFakeAdapterValidation(t *testing.T) {
	adapter := NewFakeAdapter("test-ds8r")
	ctx := context.Background()

	p := stimulator.DefaultParameters()
	p.PulseWidth = 55
	_, err := adapter.Upload(ctx, p)
	if err == nil {
		t.Fatal("Expected error for pulse width 55")
	}

	normalized := stimulator.NormalizeVendorErrorWithVendor(err, nil, "ds8r")
	if !errors.Is(normalized, stimulator.ErrInvalidRange) {
		t.Errorf("Expected INVALID_RANGE, got %v", normalized)
	}

	if uploads, _ := adapter.Counts(); uploads != 0 {
		t.Errorf("Rejected upload must not be counted, got %d", uploads)
	}
}

// TestFakeAdapterReturnCode checks that configured return codes are reported.
func TestFakeAdapterReturnCode(t *testing.T) {
	adapter := NewFakeAdapter("test-ds8r")
	adapter.SetReturnCode(7)

	res, err := adapter.Trigger(context.Background())
	if err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	if res.ReturnCode != 7 {
		t.Errorf("Expected return code 7, got %d", res.ReturnCode)
	}
	if res.Output != "DGD128_Trigger returned: 7" {
		t.Errorf("Unexpected output %q", res.Output)
	}
}

// TestFakeAdapterCancelledContext checks context handling.
func TestFakeAdapterCancelledContext(t *testing.T) {
	adapter := NewFakeAdapter("test-ds8r")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := adapter.Upload(ctx, stimulator.DefaultParameters()); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled from Upload, got %v", err)
	}
	if _, err := adapter.Trigger(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled from Trigger, got %v", err)
	}
	if _, err := adapter.GetState(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled from GetState, got %v", err)
	}
}

// TestFakeAdapterStatus tests that unavailable simulation is reported as offline.
func TestFakeAdapterStatus(t *testing.T) {
	adapter := NewFakeAdapter("test-ds8r")
	if got := adapter.CurrentStatus(); got != "online" {
		t.Errorf("Expected online, got %s", got)
	}

	adapter.SetErrorSimulation("UNAVAILABLE")
	if got := adapter.CurrentStatus(); got != "offline" {
		t.Errorf("Expected offline, got %s", got)
	}

	adapter.DisableErrorSimulation()
	if got := adapter.CurrentStatus(); got != "online" {
		t.Errorf("Expected online after recovery, got %s", got)
	}
}
