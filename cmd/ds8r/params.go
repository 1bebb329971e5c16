package main

import (
	"flag"
	"fmt"
	"strings"

	"github.com/timnaher/ds8r/internal/stimulator"
)

// paramFlags collects the parameter flags given on the command line.
// Unset flags keep the configured default.
type paramFlags struct {
	fs     *flag.FlagSet
	values map[string]*string
}

// flag name -> Parameters.Set field name
var paramFlagNames = []struct{ flag, field, usage string }{
	{"mode", "mode", "1|monophasic or 2|biphasic"},
	{"polarity", "polarity", "1|positive, 2|negative or 3|alternating"},
	{"source", "source", "1|internal or 2|external"},
	{"demand", "demand", "current in 0.1 mA units (1-150)"},
	{"pulse-width", "pulseWidth", "pulse width in us (50-2000, step 10)"},
	{"dwell", "dwell", "interphase interval in us (1-990)"},
	{"recovery", "recovery", "recovery ratio in percent (10-100)"},
	{"enabled", "enabled", "1|on or 0|off"},
}

func registerParamFlags(fs *flag.FlagSet) *paramFlags {
	pf := &paramFlags{fs: fs, values: map[string]*string{}}
	for _, n := range paramFlagNames {
		pf.values[n.flag] = fs.String(n.flag, "", n.usage)
	}
	return pf
}

// apply overlays the flags that were set onto defaults.
func (pf *paramFlags) apply(defaults stimulator.Parameters) (stimulator.Parameters, error) {
	p := defaults
	set := map[string]bool{}
	pf.fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	var errs []string
	for _, n := range paramFlagNames {
		if !set[n.flag] {
			continue
		}
		if err := p.Set(n.field, *pf.values[n.flag]); err != nil {
			errs = append(errs, fmt.Sprintf("-%s: %v", n.flag, err))
		}
	}
	if len(errs) > 0 {
		return p, fmt.Errorf("%w: %s", errUsage, strings.Join(errs, "; "))
	}
	return p, nil
}
