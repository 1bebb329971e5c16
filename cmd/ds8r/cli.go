package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/timnaher/ds8r/internal/command"
	"github.com/timnaher/ds8r/internal/stimulator"
)

type globalFlags struct {
	config string
	proxy  string
	dll    string
	dryRun bool
}

const usageText = `usage: ds8r [-config file] [-proxy cmd] [-dll path] [-dry-run] <verb> [flags]

verbs:
  run [-force]   upload the parameters and trigger one pulse
  upload         upload the parameters without triggering
  trigger        trigger one pulse with the uploaded parameters
  state          read the parameters from the device
  enable         enable the output, keeping the other parameters
  disable        disable the output, keeping the other parameters
  validate       check parameters without touching the device
  serve [-addr]  serve the HTTP API
  tui            open the interactive panel
  version        print the version

parameter flags (run, upload, validate):
  -mode -polarity -source -demand -pulse-width -dwell -recovery -enabled
`

func run(args []string, stdout, stderr io.Writer) int {
	var g globalFlags
	fs := flag.NewFlagSet("ds8r", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usageText) }
	fs.StringVar(&g.config, "config", "", "config file (default ds8r.yaml or $DS8R_CONFIG)")
	fs.StringVar(&g.proxy, "proxy", "", "proxy command line, overrides proxy.command")
	fs.StringVar(&g.dll, "dll", "", "D128RProxy.dll path, overrides proxy.dllPath")
	fs.BoolVar(&g.dryRun, "dry-run", false, "use an in-memory device instead of the proxy")

	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return ExitUsage
	}

	verb, rest := fs.Arg(0), fs.Args()[1:]
	switch verb {
	case "version":
		fmt.Fprintf(stdout, "ds8r %s\n", Version)
		return ExitOK
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usageText)
		return ExitOK
	case "run", "upload", "trigger", "state", "enable", "disable", "validate", "serve", "tui":
	default:
		fmt.Fprintf(stderr, "unknown verb %q\n\n%s", verb, usageText)
		return ExitUsage
	}

	vfs := flag.NewFlagSet("ds8r "+verb, flag.ContinueOnError)
	vfs.SetOutput(stderr)
	var pf *paramFlags
	if verb == "run" || verb == "upload" || verb == "validate" {
		pf = registerParamFlags(vfs)
	}
	force := false
	if verb == "run" {
		vfs.BoolVar(&force, "force", false, "allow a demand above the safe limit")
	}
	var addr string
	if verb == "serve" {
		vfs.StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	}
	if err := vfs.Parse(rest); err != nil {
		return ExitUsage
	}
	if vfs.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected arguments: %s\n", strings.Join(vfs.Args(), " "))
		return ExitUsage
	}

	// validate never needs the device
	if verb == "validate" {
		g.dryRun = true
	}

	a, err := newApp(g, stderr, verb == "tui")
	if err != nil {
		fmt.Fprintf(stderr, "ds8r: %v\n", err)
		return exitCodeFor(err)
	}
	defer a.Close()

	var p stimulator.Parameters
	if pf != nil {
		if p, err = pf.apply(a.cfg.Defaults); err != nil {
			fmt.Fprintf(stderr, "ds8r: %v\n", err)
			return ExitUsage
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch verb {
	case "validate":
		err = doValidate(a.orch, p, stdout)
	case "run":
		err = doRun(ctx, a.orch, p, force, stdout)
	case "upload":
		err = printResult(stdout, "upload")(a.orch.Upload(ctx, p))
	case "trigger":
		err = printResult(stdout, "trigger")(a.orch.Trigger(ctx))
	case "enable", "disable":
		err = printResult(stdout, verb)(a.orch.SetEnabled(ctx, verb == "enable"))
	case "state":
		err = doState(ctx, a.orch, stdout)
	case "serve":
		err = a.serve(ctx, addr)
	case "tui":
		err = a.runTUI()
	}

	if err != nil {
		fmt.Fprintf(stderr, "ds8r: %v\n", err)
		return exitCodeFor(err)
	}
	return ExitOK
}

func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, errUsage):
		return ExitUsage
	case errors.Is(err, stimulator.ErrInvalidRange):
		return ExitInvalid
	default:
		return ExitDeviceError
	}
}

var errUsage = errors.New("usage")

func printResult(w io.Writer, op string) func(stimulator.Result, error) error {
	return func(res stimulator.Result, err error) error {
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s: return code %d\n", op, res.ReturnCode)
		return nil
	}
}

func doValidate(orch command.OrchestratorPort, p stimulator.Parameters, w io.Writer) error {
	warnings, err := orch.Validate(p)
	if err != nil {
		for _, f := range stimulator.FieldErrors(err) {
			fmt.Fprintf(w, "invalid: %s\n", f)
		}
		return err
	}
	for _, warning := range warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
	if err := orch.CheckSafety(p, false); err != nil {
		fmt.Fprintf(w, "note: %v\n", err)
	}
	fmt.Fprintf(w, "valid: %s %s %.1f mA, %d us\n", p.Mode, p.Polarity, p.DemandMilliamps(), p.PulseWidth)
	return nil
}

func doRun(ctx context.Context, orch command.OrchestratorPort, p stimulator.Parameters, force bool, w io.Writer) error {
	if warnings, err := orch.Validate(p); err == nil {
		for _, warning := range warnings {
			fmt.Fprintf(w, "warning: %s\n", warning)
		}
	}
	res, err := orch.Run(ctx, p, force)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "upload: return code %d\n", res.Upload.ReturnCode)
	fmt.Fprintf(w, "trigger: return code %d\n", res.Trigger.ReturnCode)
	return nil
}

func doState(ctx context.Context, orch command.OrchestratorPort, w io.Writer) error {
	state, err := orch.GetState(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(state)
}
