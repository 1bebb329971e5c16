package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timnaher/ds8r/internal/audit"
	"github.com/timnaher/ds8r/internal/proxymock"
)

// TestMain doubles as the vendor proxy when the CLI re-executes the test binary.
func TestMain(m *testing.M) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") == "1" {
		env, err := proxymock.EnvFromOS()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(proxymock.ExitBadInput)
		}
		os.Exit(proxymock.Main(os.Args[1:], env, os.Stdout, os.Stderr))
	}
	os.Exit(m.Run())
}

// setup isolates config and audit output and returns the audit directory.
func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DS8R_CONFIG", "")
	t.Setenv("DS8R_AUDIT_DIR", filepath.Join(dir, "audit"))
	t.Setenv("DS8R_LOG_LEVEL", "error")
	return filepath.Join(dir, "audit")
}

// useMockProxy points the CLI at the test binary acting as the proxy.
func useMockProxy(t *testing.T, extra ...string) string {
	t.Helper()
	exe, err := os.Executable()
	require.NoError(t, err)

	t.Setenv("GO_WANT_HELPER_PROCESS", "1")
	t.Setenv("DS8R_MOCK_STATE", filepath.Join(t.TempDir(), "state.json"))
	for i := 0; i+1 < len(extra); i += 2 {
		t.Setenv(extra[i], extra[i+1])
	}
	return fmt.Sprintf("'%s'", exe)
}

func runCLI(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestVersion(t *testing.T) {
	code, out, _ := runCLI("version")
	assert.Equal(t, ExitOK, code)
	assert.Equal(t, "ds8r dev\n", out)
}

func TestUsageErrors(t *testing.T) {
	setup(t)

	tests := []struct {
		name string
		args []string
	}{
		{"no verb", nil},
		{"unknown verb", []string{"zap"}},
		{"unknown global flag", []string{"-loud", "run"}},
		{"unknown verb flag", []string{"-dry-run", "trigger", "-force"}},
		{"extra arguments", []string{"-dry-run", "state", "now"}},
		{"bad mode", []string{"validate", "-mode", "triphasic"}},
		{"bad demand", []string{"validate", "-demand", "lots"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, _ := runCLI(tt.args...)
			assert.Equal(t, ExitUsage, code)
		})
	}
}

func TestValidate(t *testing.T) {
	setup(t)

	code, out, _ := runCLI("validate", "-demand", "24", "-mode", "biphasic", "-dwell", "10")
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, out, "valid: biphasic positive 2.4 mA")

	code, out, _ = runCLI("validate", "-demand", "120")
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, out, "note: SAFETY_LIMIT")

	code, out, _ = runCLI("validate", "-demand", "10")
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, out, "warning: demand below 2.0 mA")

	code, out, _ = runCLI("validate", "-demand", "500", "-pulse-width", "105")
	assert.Equal(t, ExitInvalid, code)
	assert.Contains(t, out, "invalid: demand=500")
	assert.Contains(t, out, "invalid: pulseWidth=105")
}

func TestDryRunSafetyLimit(t *testing.T) {
	setup(t)

	code, _, errOut := runCLI("-dry-run", "run", "-demand", "120")
	assert.Equal(t, ExitInvalid, code)
	assert.Contains(t, errOut, "use force")

	code, out, _ := runCLI("-dry-run", "run", "-demand", "120", "-force")
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, out, "trigger: return code 0")
}

func TestProxyRunAndState(t *testing.T) {
	auditDir := setup(t)
	proxyCmd := useMockProxy(t)

	code, out, errOut := runCLI("-proxy", proxyCmd, "run", "-demand", "24", "-pulse-width", "200")
	require.Equal(t, ExitOK, code, errOut)
	assert.Contains(t, out, "upload: return code 0")
	assert.Contains(t, out, "trigger: return code 0")

	// The mock persists state between invocations, like the device.
	code, out, errOut = runCLI("-proxy", proxyCmd, "state")
	require.Equal(t, ExitOK, code, errOut)
	var state map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &state))
	assert.EqualValues(t, 24, state["demand"])
	assert.EqualValues(t, 200, state["pulseWidth"])

	code, _, errOut = runCLI("-proxy", proxyCmd, "disable")
	require.Equal(t, ExitOK, code, errOut)

	code, out, _ = runCLI("-proxy", proxyCmd, "state")
	require.Equal(t, ExitOK, code)
	require.NoError(t, json.Unmarshal([]byte(out), &state))
	assert.EqualValues(t, 0, state["enabled"])
	assert.EqualValues(t, 24, state["demand"], "disable keeps the other parameters")

	code, _, _ = runCLI("-proxy", proxyCmd, "trigger")
	assert.Equal(t, ExitOK, code)

	al, err := audit.NewLogger(audit.Options{Dir: auditDir})
	require.NoError(t, err)
	defer al.Close()
	entries, err := al.Recent(0)
	require.NoError(t, err)

	var actions []string
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []string{"run", "getState", "disable", "getState", "trigger"}, actions)
}

func TestProxyDeviceError(t *testing.T) {
	setup(t)
	proxyCmd := useMockProxy(t, "DS8R_MOCK_FAULT", "DEVICE_NOT_FOUND")

	code, _, errOut := runCLI("-proxy", proxyCmd, "trigger")
	assert.Equal(t, ExitDeviceError, code)
	assert.Contains(t, errOut, "UNAVAILABLE")
}

func TestProxyRangeRejectedBeforeDevice(t *testing.T) {
	setup(t)
	proxyCmd := useMockProxy(t)

	code, _, _ := runCLI("-proxy", proxyCmd, "upload", "-recovery", "5")
	assert.Equal(t, ExitInvalid, code)
}

func TestMissingDLL(t *testing.T) {
	setup(t)
	proxyCmd := useMockProxy(t)

	code, _, errOut := runCLI("-proxy", proxyCmd, "-dll", filepath.Join(t.TempDir(), "missing.dll"), "trigger")
	assert.Equal(t, ExitDeviceError, code)
	assert.Contains(t, errOut, "DLL_NOT_FOUND")
}
