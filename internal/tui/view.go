package tui

import (
	"fmt"
	"strings"

	"github.com/timnaher/ds8r/internal/device"
	"github.com/timnaher/ds8r/internal/stimulator"
)

type row struct {
	field string
	value int
	text  string
}

func rows(p stimulator.Parameters) []row {
	return []row{
		{"mode", int(p.Mode), p.Mode.String()},
		{"polarity", int(p.Polarity), p.Polarity.String()},
		{"source", int(p.Source), p.Source.String()},
		{"demand", p.Demand, fmt.Sprintf("%.1f mA", p.DemandMilliamps())},
		{"pulseWidth", p.PulseWidth, "us"},
		{"dwell", p.Dwell, "us"},
		{"recovery", p.Recovery, "%"},
		{"enabled", p.Enabled, map[bool]string{true: "on", false: "off"}[p.IsEnabled()]},
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("--- DS8R Stimulator ---"))
	b.WriteString("\n\n")

	d := m.snapshot
	last := "never"
	if d.LastTrigger != nil {
		last = d.LastTrigger.Local().Format("15:04:05")
	}
	fmt.Fprintf(&b, "Device %s (%s)  status: %s  triggers: %d  last: %s\n",
		d.ID, d.Model, statusText(d.Status), d.TriggerCount, last)
	if d.LastError != "" {
		b.WriteString(invalidStyle.Render("Last error: "+d.LastError) + "\n")
	}
	b.WriteString("\n")

	invalid := map[string]string{}
	for _, f := range stimulator.FieldErrors(m.pending.Validate()) {
		invalid[f.Field] = f.Reason
	}

	var uploaded map[string]int
	if m.uploaded != nil {
		uploaded = map[string]int{}
		for _, r := range rows(*m.uploaded) {
			uploaded[r.field] = r.value
		}
	}

	b.WriteString(dimStyle.Render("Pending parameters (highlighted = not yet uploaded)") + "\n")
	for _, r := range rows(m.pending) {
		line := fmt.Sprintf("  %-11s %6d  %s", r.field, r.value, r.text)
		switch {
		case invalid[r.field] != "":
			line = invalidStyle.Render(line + "  " + invalid[r.field])
		case uploaded == nil || uploaded[r.field] != r.value:
			line = changedStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}

	b.WriteString("\n")
	if m.ctrl.CheckSafety(m.pending, false) != nil {
		b.WriteString(warnStyle.Render(fmt.Sprintf("Demand above safe limit of %.1f mA: use run! to force",
			float64(m.ctrl.SafeDemand())/10)) + "\n")
	} else if m.pending.LowDemand() {
		b.WriteString(warnStyle.Render("Demand below 2.0 mA may not be delivered accurately") + "\n")
	}

	status := m.status
	if m.statusErr {
		status = invalidStyle.Render(status)
	}
	fmt.Fprintf(&b, "\n%s\n%s\n", m.textInput.View(), status)
	return b.String()
}

func statusText(s string) string {
	switch s {
	case device.StatusOnline:
		return okStyle.Render(s)
	case device.StatusOffline:
		return invalidStyle.Render(s)
	default:
		return warnStyle.Render(s)
	}
}
