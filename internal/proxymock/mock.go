package proxymock

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/timnaher/ds8r/internal/stimulator"
)

// Exit codes of the emulated proxy.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitBadInput = 2
)

// Env holds the environment knobs read by Main.
type Env struct {
	StatePath  string
	Fault      string
	ReturnCode int
	Delay      time.Duration
}

// EnvFromOS reads the DS8R_MOCK_* variables.
func EnvFromOS() (Env, error) {
	env := Env{
		StatePath: os.Getenv("DS8R_MOCK_STATE"),
		Fault:     os.Getenv("DS8R_MOCK_FAULT"),
	}
	if env.StatePath == "" {
		env.StatePath = DefaultStatePath()
	}
	if v := os.Getenv("DS8R_MOCK_RETURN_CODE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return env, fmt.Errorf("invalid DS8R_MOCK_RETURN_CODE %q", v)
		}
		env.ReturnCode = n
	}
	if v := os.Getenv("DS8R_MOCK_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return env, fmt.Errorf("invalid DS8R_MOCK_DELAY %q", v)
		}
		env.Delay = d
	}
	return env, nil
}

// Main runs one proxy invocation and returns the process exit code.
func Main(args []string, env Env, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ds8r-proxy-mock", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dll := fs.String("dll", "", "path to D128RProxy.dll")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(stderr, "INVALID_ARGUMENT: %v\n", err)
		return ExitBadInput
	}

	if env.Delay > 0 {
		time.Sleep(env.Delay)
	}

	if *dll != "" {
		if _, err := os.Stat(*dll); err != nil {
			fmt.Fprintf(stderr, "DLL_NOT_FOUND: %s\n", *dll)
			return ExitFailure
		}
	}

	if env.Fault != "" {
		fmt.Fprintf(stderr, "%s: simulated fault\n", env.Fault)
		return ExitFailure
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fmt.Fprintln(stderr, "INVALID_ARGUMENT: missing command (set|trigger|get)")
		return ExitBadInput
	}

	st, err := LoadState(env.StatePath)
	if err != nil {
		fmt.Fprintf(stderr, "OPEN_FAILED: %v\n", err)
		return ExitFailure
	}

	switch rest[0] {
	case "set":
		p, err := parseSetArgs(rest[1:])
		if err != nil {
			fmt.Fprintf(stderr, "INVALID_ARGUMENT: %v\n", err)
			return ExitBadInput
		}
		if err := p.Validate(); err != nil {
			fmt.Fprintf(stderr, "PARAMETER_OUT_OF_RANGE: %v\n", err)
			return ExitBadInput
		}
		st.Parameters = p
		st.Uploads++
		fmt.Fprintf(stdout, "DGD128_Set returned: %d\n", env.ReturnCode)

	case "trigger":
		now := time.Now().UTC()
		st.Triggers++
		st.LastTrigger = &now
		fmt.Fprintf(stdout, "DGD128_Trigger returned: %d\n", env.ReturnCode)

	case "get":
		fmt.Fprintf(stdout, "DGD128_Get returned: %d\n", env.ReturnCode)
		writeState(stdout, st.Parameters)
		return ExitOK

	default:
		fmt.Fprintf(stderr, "INVALID_ARGUMENT: unknown command %q\n", rest[0])
		return ExitBadInput
	}

	if err := st.Save(env.StatePath); err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return ExitFailure
	}
	return ExitOK
}

func parseSetArgs(args []string) (stimulator.Parameters, error) {
	var p stimulator.Parameters
	if len(args) != 8 {
		return p, fmt.Errorf("set expects 8 values, got %d", len(args))
	}

	vals := make([]int, len(args))
	for i, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil {
			return p, fmt.Errorf("value %d (%q) is not an integer", i+1, a)
		}
		vals[i] = n
	}

	p = stimulator.Parameters{
		Mode:       stimulator.Mode(vals[0]),
		Polarity:   stimulator.Polarity(vals[1]),
		Source:     stimulator.Source(vals[2]),
		Demand:     vals[3],
		PulseWidth: vals[4],
		Dwell:      vals[5],
		Recovery:   vals[6],
		Enabled:    vals[7],
	}
	return p, nil
}

func writeState(w io.Writer, p stimulator.Parameters) {
	fmt.Fprintf(w, "mode=%d\n", p.Mode)
	fmt.Fprintf(w, "polarity=%d\n", p.Polarity)
	fmt.Fprintf(w, "source=%d\n", p.Source)
	fmt.Fprintf(w, "demand=%d\n", p.Demand)
	fmt.Fprintf(w, "pulse_width=%d\n", p.PulseWidth)
	fmt.Fprintf(w, "dwell=%d\n", p.Dwell)
	fmt.Fprintf(w, "recovery=%d\n", p.Recovery)
	fmt.Fprintf(w, "enabled=%d\n", p.Enabled)
}
