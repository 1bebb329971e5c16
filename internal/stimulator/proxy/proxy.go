// Package proxy drives the vendor D128RProxy executable.
//
// Every adapter call is one synchronous process invocation. The executable
// loads D128RProxy.dll and performs the device communication; this package
// only renders arguments, parses the "<fn> returned: <n>" lines and
// normalizes failures.
package proxy

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/rs/zerolog"

	"github.com/timnaher/ds8r/internal/stimulator"
)

// VendorID selects the error normalization table.
const VendorID = stimulator.DefaultVendorID

// Options configures the proxy adapter.
type Options struct {
	// DeviceID names the device in logs and audit records.
	DeviceID string

	// Command is the proxy command line, e.g. "wine D128RProxy.exe".
	Command string

	// DLLPath is passed as --dll when set. It must exist.
	DLLPath string

	// StrictReturnCodes turns non-zero vendor return codes into errors.
	StrictReturnCodes bool

	// Env is appended to the inherited process environment.
	Env []string

	Logger zerolog.Logger
}

// Adapter implements IStimulatorAdapter on top of the proxy executable.
type Adapter struct {
	stimulator.AdapterBase

	argv    []string
	dllPath string
	strict  bool
	env     []string
	logger  zerolog.Logger
}

var _ stimulator.IStimulatorAdapter = (*Adapter)(nil)

var returnedRe = regexp.MustCompile(`^(DGD128_\w+) returned:\s*(-?\d+)`)

// stateKeys are the key=value names printed by "get", in argument order.
var stateKeys = []string{"mode", "polarity", "source", "demand", "pulse_width", "dwell", "recovery", "enabled"}

// New creates a proxy adapter. The DLL path, when given, is checked up front.
func New(opts Options) (*Adapter, error) {
	argv, err := shlex.Split(opts.Command)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy command %q: %w", opts.Command, err)
	}
	if len(argv) == 0 {
		return nil, errors.New("proxy command is empty")
	}

	if opts.DLLPath != "" {
		if _, err := os.Stat(opts.DLLPath); err != nil {
			return nil, &stimulator.VendorError{
				Code:     stimulator.ErrUnavailable,
				Original: fmt.Errorf("DLL_NOT_FOUND: %s: %w", opts.DLLPath, err),
			}
		}
	}

	if opts.DeviceID == "" {
		opts.DeviceID = "ds8r"
	}

	return &Adapter{
		argv:    argv,
		dllPath: opts.DLLPath,
		strict:  opts.StrictReturnCodes,
		env:     opts.Env,
		logger:  opts.Logger.With().Str("component", "proxy").Str("device", opts.DeviceID).Logger(),
	}, nil
}

// Upload sends the parameter record with "set".
func (a *Adapter) Upload(ctx context.Context, p stimulator.Parameters) (stimulator.Result, error) {
	out, err := a.invoke(ctx, append([]string{"set"}, p.Args()...)...)
	if err != nil {
		return stimulator.Result{}, err
	}
	return a.result(out, "DGD128_Set")
}

// Trigger fires one pulse with "trigger".
func (a *Adapter) Trigger(ctx context.Context) (stimulator.Result, error) {
	out, err := a.invoke(ctx, "trigger")
	if err != nil {
		return stimulator.Result{}, err
	}
	return a.result(out, "DGD128_Trigger")
}

// GetState reads the device settings with "get".
func (a *Adapter) GetState(ctx context.Context) (*stimulator.DeviceState, error) {
	out, err := a.invoke(ctx, "get")
	if err != nil {
		return nil, err
	}

	res, err := a.result(out, "DGD128_Get")
	if err != nil {
		return nil, err
	}

	p, err := parseState(out)
	if err != nil {
		return nil, &stimulator.VendorError{Code: stimulator.ErrInternal, Original: err, Details: res.Output}
	}
	return &stimulator.DeviceState{Parameters: p, ReturnCode: res.ReturnCode}, nil
}

// invoke runs the proxy once and returns its stdout.
func (a *Adapter) invoke(ctx context.Context, verb ...string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", contextError(verb[0], err)
	}

	args := append([]string{}, a.argv[1:]...)
	if a.dllPath != "" {
		args = append(args, "--dll", a.dllPath)
	}
	args = append(args, verb...)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, a.argv[0], args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if len(a.env) > 0 {
		cmd.Env = append(os.Environ(), a.env...)
	}

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	a.logLines("stdout", stdout.String())
	a.logLines("stderr", stderr.String())
	a.logger.Debug().Str("verb", verb[0]).Dur("elapsed", elapsed).Msg("proxy call finished")

	if err == nil {
		a.SetStatus("online")
		return stdout.String(), nil
	}

	switch {
	case ctx.Err() != nil:
		return "", contextError(verb[0], ctx.Err())
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, os.ErrNotExist):
		a.SetStatus("offline")
		return "", &stimulator.VendorError{
			Code:     stimulator.ErrUnavailable,
			Original: fmt.Errorf("proxy executable %q not found: %w", a.argv[0], err),
		}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		if msg == "" {
			msg = exitErr.Error()
		}
		normalized := stimulator.NormalizeVendorErrorWithVendor(errors.New(msg), exitErr.ExitCode(), VendorID)
		if errors.Is(normalized, stimulator.ErrUnavailable) {
			a.SetStatus("offline")
		}
		return "", normalized
	}

	return "", &stimulator.VendorError{Code: stimulator.ErrInternal, Original: err}
}

// contextError maps an expired deadline to BUSY, like a device that did not answer in time.
func contextError(verb string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &stimulator.VendorError{
			Code:     stimulator.ErrBusy,
			Original: fmt.Errorf("TIMEOUT: proxy %s did not finish within deadline: %w", verb, err),
		}
	}
	return err
}

// result extracts the vendor return code for fn from the proxy output.
func (a *Adapter) result(out, fn string) (stimulator.Result, error) {
	res := stimulator.Result{Output: strings.TrimSpace(out)}

	code, ok := parseReturned(out, fn)
	if !ok {
		return res, &stimulator.VendorError{
			Code:     stimulator.ErrInternal,
			Original: fmt.Errorf("proxy output has no %q return line", fn),
			Details:  res.Output,
		}
	}
	res.ReturnCode = code

	if code != 0 {
		a.logger.Warn().Str("function", fn).Int("returnCode", code).Msg("non-zero vendor return code")
		if a.strict {
			return res, &stimulator.VendorError{
				Code:     stimulator.ErrInternal,
				Original: fmt.Errorf("%s returned %d", fn, code),
				Details:  code,
			}
		}
	}
	return res, nil
}

func (a *Adapter) logLines(stream, text string) {
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			a.logger.Debug().Str("stream", stream).Msg(line)
		}
	}
}

func parseReturned(out, fn string) (int, bool) {
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		m := returnedRe.FindStringSubmatch(strings.TrimSpace(sc.Text()))
		if m == nil || m[1] != fn {
			continue
		}
		n, err := strconv.Atoi(m[2])
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

func parseState(out string) (stimulator.Parameters, error) {
	values := make(map[string]int, len(stateKeys))
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		key, val, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return stimulator.Parameters{}, fmt.Errorf("state value %s=%q is not an integer", key, val)
		}
		values[strings.ToLower(strings.TrimSpace(key))] = n
	}

	for _, k := range stateKeys {
		if _, ok := values[k]; !ok {
			return stimulator.Parameters{}, fmt.Errorf("state output is missing %q", k)
		}
	}

	return stimulator.Parameters{
		Mode:       stimulator.Mode(values["mode"]),
		Polarity:   stimulator.Polarity(values["polarity"]),
		Source:     stimulator.Source(values["source"]),
		Demand:     values["demand"],
		PulseWidth: values["pulse_width"],
		Dwell:      values["dwell"],
		Recovery:   values["recovery"],
		Enabled:    values["enabled"],
	}, nil
}
