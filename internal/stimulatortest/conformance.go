// Package stimulatortest provides vendor-agnostic conformance testing for stimulator adapters.
//
// Every adapter must accept the full hardware range, round-trip uploads through
// GetState, and fail with errors that normalize to INVALID_RANGE, BUSY,
// UNAVAILABLE or INTERNAL.
package stimulatortest

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/timnaher/ds8r/internal/stimulator"
)

// Capabilities defines the expected capabilities for conformance testing.
type Capabilities struct {
	// MaxDemand is the largest demand the adapter must accept. Zero means stimulator.MaxDemand.
	MaxDemand int

	// Vendor selects the normalization table applied to adapter errors.
	Vendor string

	// Faults injects a failure so that subsequent calls return the given normalized
	// code name (INVALID_RANGE, BUSY, UNAVAILABLE). It returns false when the adapter
	// cannot simulate that code. Nil skips the failure mapping tests.
	Faults func(a stimulator.IStimulatorAdapter, code string) bool
}

// ConformanceResult represents the result of a conformance test.
type ConformanceResult struct {
	TestName string
	Passed   bool
	Error    string
	Duration time.Duration
	Details  map[string]interface{}
}

// ConformanceReport represents the complete conformance test report.
type ConformanceReport struct {
	AdapterName   string
	TotalTests    int
	PassedTests   int
	FailedTests   int
	Results       []ConformanceResult
	OverallPassed bool
	Duration      time.Duration
}

// RunConformance runs the complete conformance test suite for an adapter.
func RunConformance(t *testing.T, newAdapter func() stimulator.IStimulatorAdapter, caps Capabilities) {
	t.Helper()
	startTime := time.Now()

	if caps.MaxDemand == 0 {
		caps.MaxDemand = stimulator.MaxDemand
	}
	if caps.Vendor == "" {
		caps.Vendor = stimulator.DefaultVendorID
	}

	report := &ConformanceReport{
		AdapterName:   fmt.Sprintf("%T", newAdapter()),
		Results:       []ConformanceResult{},
		OverallPassed: true,
	}

	runGetStateTests(newAdapter, report)
	runUploadTests(newAdapter, caps, report)
	runRoundTripTests(newAdapter, report)
	runTriggerTests(newAdapter, report)
	runCancellationTests(newAdapter, report)
	runFailureMappingTests(newAdapter, caps, report)
	runIdempotencyTests(newAdapter, report)

	report.Duration = time.Since(startTime)

	printConformanceReport(t, report)

	if !report.OverallPassed {
		t.Fatalf("Adapter conformance test failed: %d/%d tests passed", report.PassedTests, report.TotalTests)
	}
}

func runGetStateTests(newAdapter func() stimulator.IStimulatorAdapter, report *ConformanceReport) {
	a := newAdapter()

	result := ConformanceResult{TestName: "GetState_Basic", Details: make(map[string]interface{})}
	start := time.Now()

	state, err := a.GetState(context.Background())
	result.Duration = time.Since(start)

	switch {
	case err != nil:
		result.Error = fmt.Sprintf("GetState failed: %v", err)
	case state == nil:
		result.Error = "GetState returned nil state"
	default:
		result.Passed = true
		result.Details["demand"] = state.Demand
		result.Details["returnCode"] = state.ReturnCode
	}

	report.addResult(result)
}

func runUploadTests(newAdapter func() stimulator.IStimulatorAdapter, caps Capabilities, report *ConformanceReport) {
	a := newAdapter()
	ctx := context.Background()

	valid := map[string]func(p *stimulator.Parameters){
		"Default":       func(p *stimulator.Parameters) {},
		"MinDemand":     func(p *stimulator.Parameters) { p.Demand = stimulator.MinDemand },
		"MaxDemand":     func(p *stimulator.Parameters) { p.Demand = caps.MaxDemand },
		"MaxPulseWidth": func(p *stimulator.Parameters) { p.PulseWidth = stimulator.MaxPulseWidth },
		"Biphasic": func(p *stimulator.Parameters) {
			p.Mode = stimulator.ModeBiphasic
			p.Dwell = stimulator.MaxDwell
			p.Recovery = stimulator.MinRecovery
		},
		"Disabled": func(p *stimulator.Parameters) { p.Enabled = 0 },
	}

	for _, name := range sortedKeys(valid) {
		p := stimulator.DefaultParameters()
		valid[name](&p)

		result := ConformanceResult{TestName: "Upload_Valid_" + name, Details: make(map[string]interface{})}
		start := time.Now()

		res, err := a.Upload(ctx, p)
		result.Duration = time.Since(start)

		if err != nil {
			result.Error = fmt.Sprintf("Upload(%+v) failed: %v", p, err)
		} else {
			result.Passed = true
			result.Details["returnCode"] = res.ReturnCode
		}
		report.addResult(result)
	}

	invalid := map[string]func(p *stimulator.Parameters){
		"DemandAboveMax":  func(p *stimulator.Parameters) { p.Demand = stimulator.MaxDemand + 1 },
		"PulseWidthStep":  func(p *stimulator.Parameters) { p.PulseWidth = 105 },
		"RecoveryTooLow":  func(p *stimulator.Parameters) { p.Recovery = stimulator.MinRecovery - 1 },
		"UnknownPolarity": func(p *stimulator.Parameters) { p.Polarity = 9 },
	}

	for _, name := range sortedKeys(invalid) {
		p := stimulator.DefaultParameters()
		invalid[name](&p)

		result := ConformanceResult{TestName: "Upload_Invalid_" + name, Details: make(map[string]interface{})}
		start := time.Now()

		_, err := a.Upload(ctx, p)
		result.Duration = time.Since(start)

		normalized := stimulator.NormalizeVendorErrorWithVendor(err, nil, caps.Vendor)
		switch {
		case err == nil:
			result.Error = fmt.Sprintf("Upload(%+v) should have failed but succeeded", p)
		case !errors.Is(normalized, stimulator.ErrInvalidRange):
			result.Error = fmt.Sprintf("Upload(%+v) should return INVALID_RANGE, got: %v", p, err)
		default:
			result.Passed = true
			result.Details["actualError"] = err.Error()
		}
		report.addResult(result)
	}
}

func runRoundTripTests(newAdapter func() stimulator.IStimulatorAdapter, report *ConformanceReport) {
	a := newAdapter()
	ctx := context.Background()

	p := stimulator.Parameters{
		Mode:       stimulator.ModeBiphasic,
		Polarity:   stimulator.PolarityAlternating,
		Source:     stimulator.SourceInternal,
		Demand:     42,
		PulseWidth: 250,
		Dwell:      20,
		Recovery:   50,
		Enabled:    1,
	}

	result := ConformanceResult{TestName: "GetState_RoundTrip", Details: make(map[string]interface{})}
	start := time.Now()

	_, err := a.Upload(ctx, p)
	var state *stimulator.DeviceState
	if err == nil {
		state, err = a.GetState(ctx)
	}
	result.Duration = time.Since(start)

	switch {
	case err != nil:
		result.Error = fmt.Sprintf("round trip failed: %v", err)
	case state.Parameters != p:
		result.Error = fmt.Sprintf("GetState returned %+v, uploaded %+v", state.Parameters, p)
	default:
		result.Passed = true
	}
	report.addResult(result)
}

func runTriggerTests(newAdapter func() stimulator.IStimulatorAdapter, report *ConformanceReport) {
	a := newAdapter()
	ctx := context.Background()

	result := ConformanceResult{TestName: "Trigger_AfterUpload", Details: make(map[string]interface{})}
	start := time.Now()

	_, err := a.Upload(ctx, stimulator.DefaultParameters())
	var res stimulator.Result
	if err == nil {
		res, err = a.Trigger(ctx)
	}
	result.Duration = time.Since(start)

	if err != nil {
		result.Error = fmt.Sprintf("Trigger failed: %v", err)
	} else {
		result.Passed = true
		result.Details["returnCode"] = res.ReturnCode
	}
	report.addResult(result)
}

func runCancellationTests(newAdapter func() stimulator.IStimulatorAdapter, report *ConformanceReport) {
	a := newAdapter()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := map[string]func() error{
		"Upload": func() error {
			_, err := a.Upload(ctx, stimulator.DefaultParameters())
			return err
		},
		"Trigger": func() error {
			_, err := a.Trigger(ctx)
			return err
		},
		"GetState": func() error {
			_, err := a.GetState(ctx)
			return err
		},
	}

	for _, name := range sortedKeys(calls) {
		result := ConformanceResult{TestName: "Cancelled_" + name, Details: make(map[string]interface{})}
		start := time.Now()
		err := calls[name]()
		result.Duration = time.Since(start)

		if err == nil {
			result.Error = name + " with cancelled context should have failed"
		} else {
			result.Passed = true
			result.Details["error"] = err.Error()
		}
		report.addResult(result)
	}
}

func runFailureMappingTests(newAdapter func() stimulator.IStimulatorAdapter, caps Capabilities, report *ConformanceReport) {
	if caps.Faults == nil {
		return
	}

	expected := []struct {
		code string
		want error
	}{
		{"INVALID_RANGE", stimulator.ErrInvalidRange},
		{"BUSY", stimulator.ErrBusy},
		{"UNAVAILABLE", stimulator.ErrUnavailable},
	}

	for _, e := range expected {
		a := newAdapter()
		if !caps.Faults(a, e.code) {
			continue
		}

		result := ConformanceResult{TestName: "FailureMapping_" + e.code, Details: make(map[string]interface{})}
		start := time.Now()

		_, err := a.Trigger(context.Background())
		result.Duration = time.Since(start)

		normalized := stimulator.NormalizeVendorErrorWithVendor(err, nil, caps.Vendor)
		switch {
		case err == nil:
			result.Error = "simulated " + e.code + " did not fail"
		case !errors.Is(normalized, e.want):
			result.Error = fmt.Sprintf("expected %v, got %v", e.want, normalized)
		default:
			result.Passed = true
			result.Details["error"] = err.Error()
		}
		report.addResult(result)
	}
}

func runIdempotencyTests(newAdapter func() stimulator.IStimulatorAdapter, report *ConformanceReport) {
	a := newAdapter()
	ctx := context.Background()
	p := stimulator.DefaultParameters()
	p.Demand = 30

	result := ConformanceResult{TestName: "Idempotency_UploadSame", Details: make(map[string]interface{})}
	start := time.Now()

	_, err1 := a.Upload(ctx, p)
	_, err2 := a.Upload(ctx, p)
	state, err3 := a.GetState(ctx)
	result.Duration = time.Since(start)

	switch {
	case err1 != nil:
		result.Error = fmt.Sprintf("first Upload failed: %v", err1)
	case err2 != nil:
		result.Error = fmt.Sprintf("second Upload failed: %v", err2)
	case err3 != nil:
		result.Error = fmt.Sprintf("GetState failed: %v", err3)
	case state.Demand != p.Demand:
		result.Error = fmt.Sprintf("demand %d after repeated upload of %d", state.Demand, p.Demand)
	default:
		result.Passed = true
	}
	report.addResult(result)
}

// Helper functions

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}

func (r *ConformanceReport) addResult(result ConformanceResult) {
	r.TotalTests++
	if result.Passed {
		r.PassedTests++
	} else {
		r.FailedTests++
		r.OverallPassed = false
	}
	r.Results = append(r.Results, result)
}

func printConformanceReport(t *testing.T, report *ConformanceReport) {
	t.Helper()
	t.Logf("\n%s", strings.Repeat("=", 80))
	t.Logf("STIMULATOR ADAPTER CONFORMANCE REPORT")
	t.Logf("%s", strings.Repeat("=", 80))
	t.Logf("Adapter: %s", report.AdapterName)
	t.Logf("Total Tests: %d", report.TotalTests)
	t.Logf("Passed: %d", report.PassedTests)
	t.Logf("Failed: %d", report.FailedTests)
	t.Logf("Overall: %s", map[bool]string{true: "PASS", false: "FAIL"}[report.OverallPassed])
	t.Logf("Duration: %v", report.Duration)
	t.Logf("%s", strings.Repeat("-", 80))

	t.Logf("%-32s %-8s %-12s %-s", "TEST NAME", "RESULT", "DURATION", "DETAILS")
	t.Logf("%s", strings.Repeat("-", 80))

	for _, result := range report.Results {
		status := "PASS"
		if !result.Passed {
			status = "FAIL"
		}

		details := result.Error
		if details == "" && len(result.Details) > 0 {
			var parts []string
			for _, k := range sortedKeys(result.Details) {
				parts = append(parts, fmt.Sprintf("%s=%v", k, result.Details[k]))
			}
			details = strings.Join(parts, ", ")
		}

		t.Logf("%-32s %-8s %-12s %-s", result.TestName, status, result.Duration.String(), details)
	}

	t.Logf("%s", strings.Repeat("=", 80))
}
