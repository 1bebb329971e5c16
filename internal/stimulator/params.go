package stimulator

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Mode selects monophasic or biphasic pulses.
type Mode int

// Polarity selects the pulse polarity.
type Polarity int

// Source selects where the pulse amplitude is controlled from.
type Source int

const (
	ModeMonophasic Mode = 1
	ModeBiphasic   Mode = 2

	PolarityPositive    Polarity = 1
	PolarityNegative    Polarity = 2
	PolarityAlternating Polarity = 3

	// SourceInternal is front panel control, including software.
	SourceInternal Source = 1
	// SourceExternal is external analogue voltage control.
	SourceExternal Source = 2
)

// Hardware limits for the DS8R parameter record.
const (
	MinDemand = 1
	MaxDemand = 150 // 15.0 mA

	// LowDemandThreshold marks the demand below which the device may not
	// deliver the requested current accurately (0.1 to 1.9 mA).
	LowDemandThreshold = 20

	MinPulseWidth  = 50
	MaxPulseWidth  = 2000
	PulseWidthStep = 10

	MinDwell = 1
	MaxDwell = 990

	MinRecovery = 10
	MaxRecovery = 100
)

// Parameters is the DS8R configuration record passed to DGD128_Set.
type Parameters struct {
	Mode     Mode     `json:"mode" yaml:"mode"`
	Polarity Polarity `json:"polarity" yaml:"polarity"`
	Source   Source   `json:"source" yaml:"source"`

	// Demand is the output current in 0.1 mA units (24 is 2.4 mA).
	Demand int `json:"demand" yaml:"demand"`

	// PulseWidth is the pulse duration in microseconds.
	PulseWidth int `json:"pulseWidth" yaml:"pulseWidth"`

	// Dwell is the interphase interval in biphasic mode, in microseconds.
	Dwell int `json:"dwell" yaml:"dwell"`

	// Recovery is the recovery phase ratio in biphasic mode, in percent.
	Recovery int `json:"recovery" yaml:"recovery"`

	// Enabled is 1 when the output will be triggered, 0 otherwise.
	Enabled int `json:"enabled" yaml:"enabled"`
}

// DefaultParameters returns the record a fresh controller starts with.
func DefaultParameters() Parameters {
	return Parameters{
		Mode:       ModeMonophasic,
		Polarity:   PolarityPositive,
		Source:     SourceInternal,
		Demand:     20,
		PulseWidth: 100,
		Dwell:      1,
		Recovery:   100,
		Enabled:    1,
	}
}

// FieldError describes a single out-of-range field.
type FieldError struct {
	Field  string `json:"field"`
	Value  int    `json:"value"`
	Reason string `json:"reason"`
}

func (e FieldError) String() string {
	return fmt.Sprintf("%s=%d %s", e.Field, e.Value, e.Reason)
}

// ValidationError lists every field that failed validation.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.String()
	}
	return fmt.Sprintf("%v: %s", ErrInvalidRange, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidRange
}

// Validate checks every field against the hardware ranges.
func (p Parameters) Validate() error {
	var fields []FieldError
	check := func(name string, value int, ok bool, reason string) {
		if !ok {
			fields = append(fields, FieldError{Field: name, Value: value, Reason: reason})
		}
	}

	check("mode", int(p.Mode), p.Mode.Valid(), "must be 1 (monophasic) or 2 (biphasic)")
	check("polarity", int(p.Polarity), p.Polarity.Valid(), "must be 1 (positive), 2 (negative) or 3 (alternating)")
	check("source", int(p.Source), p.Source.Valid(), "must be 1 (internal) or 2 (external)")
	check("demand", p.Demand, p.Demand >= MinDemand && p.Demand <= MaxDemand,
		fmt.Sprintf("must be between %d and %d", MinDemand, MaxDemand))
	check("pulseWidth", p.PulseWidth, p.PulseWidth >= MinPulseWidth && p.PulseWidth <= MaxPulseWidth,
		fmt.Sprintf("must be between %d and %d", MinPulseWidth, MaxPulseWidth))
	if p.PulseWidth >= MinPulseWidth && p.PulseWidth <= MaxPulseWidth {
		check("pulseWidth", p.PulseWidth, p.PulseWidth%PulseWidthStep == 0,
			fmt.Sprintf("must be a multiple of %d", PulseWidthStep))
	}
	check("dwell", p.Dwell, p.Dwell >= MinDwell && p.Dwell <= MaxDwell,
		fmt.Sprintf("must be between %d and %d", MinDwell, MaxDwell))
	check("recovery", p.Recovery, p.Recovery >= MinRecovery && p.Recovery <= MaxRecovery,
		fmt.Sprintf("must be between %d and %d", MinRecovery, MaxRecovery))
	check("enabled", p.Enabled, p.Enabled == 0 || p.Enabled == 1, "must be 0 or 1")

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// FieldErrors returns the per-field failures carried by err, if any.
func FieldErrors(err error) []FieldError {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Fields
	}
	return nil
}

// DemandMilliamps converts the demand to milliamps.
func (p Parameters) DemandMilliamps() float64 {
	return float64(p.Demand) / 10
}

// LowDemand reports whether the demand is in the range the device may not deliver accurately.
func (p Parameters) LowDemand() bool {
	return p.Demand >= MinDemand && p.Demand < LowDemandThreshold
}

// IsEnabled reports whether the output will be triggered.
func (p Parameters) IsEnabled() bool {
	return p.Enabled == 1
}

// Args renders the record in DGD128_Set argument order.
func (p Parameters) Args() []string {
	return []string{
		strconv.Itoa(int(p.Mode)),
		strconv.Itoa(int(p.Polarity)),
		strconv.Itoa(int(p.Source)),
		strconv.Itoa(p.Demand),
		strconv.Itoa(p.PulseWidth),
		strconv.Itoa(p.Dwell),
		strconv.Itoa(p.Recovery),
		strconv.Itoa(p.Enabled),
	}
}

// Map returns the record as a field map for audit entries.
func (p Parameters) Map() map[string]interface{} {
	return map[string]interface{}{
		"mode":       int(p.Mode),
		"polarity":   int(p.Polarity),
		"source":     int(p.Source),
		"demand":     p.Demand,
		"pulseWidth": p.PulseWidth,
		"dwell":      p.Dwell,
		"recovery":   p.Recovery,
		"enabled":    p.Enabled,
	}
}

// Set assigns a field by name from its string form. Names are matched case-insensitively
// and accept both camelCase and snake_case ("pulseWidth", "pulse_width").
func (p *Parameters) Set(field, value string) error {
	key := strings.ToLower(strings.ReplaceAll(strings.ReplaceAll(field, "_", ""), "-", ""))
	switch key {
	case "mode":
		m, err := ParseMode(value)
		if err != nil {
			return err
		}
		p.Mode = m
	case "polarity":
		pol, err := ParsePolarity(value)
		if err != nil {
			return err
		}
		p.Polarity = pol
	case "source":
		s, err := ParseSource(value)
		if err != nil {
			return err
		}
		p.Source = s
	case "enabled":
		switch strings.ToLower(value) {
		case "1", "true", "on", "yes":
			p.Enabled = 1
		case "0", "false", "off", "no":
			p.Enabled = 0
		default:
			return fmt.Errorf("invalid enabled value %q", value)
		}
	case "demand", "pulsewidth", "dwell", "recovery":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", field, value, err)
		}
		switch key {
		case "demand":
			p.Demand = n
		case "pulsewidth":
			p.PulseWidth = n
		case "dwell":
			p.Dwell = n
		case "recovery":
			p.Recovery = n
		}
	default:
		return fmt.Errorf("unknown parameter %q", field)
	}
	return nil
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeMonophasic || m == ModeBiphasic
}

func (m Mode) String() string {
	switch m {
	case ModeMonophasic:
		return "monophasic"
	case ModeBiphasic:
		return "biphasic"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Valid reports whether p is a known polarity.
func (p Polarity) Valid() bool {
	return p >= PolarityPositive && p <= PolarityAlternating
}

func (p Polarity) String() string {
	switch p {
	case PolarityPositive:
		return "positive"
	case PolarityNegative:
		return "negative"
	case PolarityAlternating:
		return "alternating"
	default:
		return fmt.Sprintf("Polarity(%d)", int(p))
	}
}

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	return s == SourceInternal || s == SourceExternal
}

func (s Source) String() string {
	switch s {
	case SourceInternal:
		return "internal"
	case SourceExternal:
		return "external"
	default:
		return fmt.Sprintf("Source(%d)", int(s))
	}
}

// ParseMode accepts "1", "2", "monophasic" or "biphasic".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "mono", "monophasic":
		return ModeMonophasic, nil
	case "2", "bi", "biphasic":
		return ModeBiphasic, nil
	}
	return 0, fmt.Errorf("invalid mode %q", s)
}

// ParsePolarity accepts "1".."3", "positive", "negative" or "alternating".
func ParsePolarity(s string) (Polarity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "pos", "positive":
		return PolarityPositive, nil
	case "2", "neg", "negative":
		return PolarityNegative, nil
	case "3", "alt", "alternating":
		return PolarityAlternating, nil
	}
	return 0, fmt.Errorf("invalid polarity %q", s)
}

// ParseSource accepts "1", "2", "internal" or "external".
func ParseSource(s string) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "int", "internal":
		return SourceInternal, nil
	case "2", "ext", "external":
		return SourceExternal, nil
	}
	return 0, fmt.Errorf("invalid source %q", s)
}
