// Package tui implements the interactive operator panel.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/timnaher/ds8r/internal/command"
	"github.com/timnaher/ds8r/internal/device"
	"github.com/timnaher/ds8r/internal/stimulator"
)

// Controller is what the panel drives.
type Controller interface {
	Upload(ctx context.Context, p stimulator.Parameters) (stimulator.Result, error)
	Trigger(ctx context.Context) (stimulator.Result, error)
	Run(ctx context.Context, p stimulator.Parameters, force bool) (*command.RunResult, error)
	SetEnabled(ctx context.Context, enabled bool) (stimulator.Result, error)
	GetState(ctx context.Context) (*stimulator.DeviceState, error)
	Validate(p stimulator.Parameters) ([]string, error)
	CheckSafety(p stimulator.Parameters, force bool) error
	Defaults() stimulator.Parameters
	SafeDemand() int
}

// DeviceReader returns the current device record.
type DeviceReader interface {
	Get() device.Device
}

var _ Controller = (*command.Orchestrator)(nil)
var _ DeviceReader = (*device.Manager)(nil)

const helpText = "set <field> <value> | upload | trigger | run | run! | enable | disable | state | reset | quit"

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	changedStyle = lipgloss.NewStyle().Reverse(true)
	invalidStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle     = lipgloss.NewStyle().Faint(true)
)

type tickMsg time.Time

// doneMsg reports the outcome of a device command.
type doneMsg struct {
	status string
	err    error
	// uploaded is set when the device accepted a new record
	uploaded *stimulator.Parameters
	// enabled carries the output flag after enable or disable
	enabled *int
}

// Model is the bubbletea model of the panel.
type Model struct {
	ctrl   Controller
	device DeviceReader

	pending  stimulator.Parameters
	uploaded *stimulator.Parameters
	snapshot device.Device

	textInput textinput.Model
	status    string
	statusErr bool
	busy      bool
	quitting  bool

	width, height int
}

// NewModel creates a panel with the controller defaults as the pending record.
func NewModel(ctrl Controller, dev DeviceReader) Model {
	ti := textinput.New()
	ti.Placeholder = "e.g. set demand 24 | run"
	ti.Focus()
	ti.CharLimit = 120
	ti.Width = 60

	m := Model{
		ctrl:      ctrl,
		device:    dev,
		pending:   ctrl.Defaults(),
		textInput: ti,
		status:    helpText,
	}
	if dev != nil {
		m.snapshot = dev.Get()
		if m.snapshot.Parameters != nil {
			p := *m.snapshot.Parameters
			m.uploaded = &p
			m.pending = p
		}
	}
	return m
}

// Pending returns the record that upload and run would send.
func (m Model) Pending() stimulator.Parameters {
	return m.pending
}

// Status returns the last status line.
func (m Model) Status() string {
	return m.status
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, doTick())
}

func doTick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			input := m.textInput.Value()
			m.textInput.SetValue("")
			return m.handleCommand(input)
		}
	case tickMsg:
		if m.device != nil {
			m.snapshot = m.device.Get()
		}
		return m, doTick()
	case doneMsg:
		m.busy = false
		if msg.uploaded != nil {
			m.uploaded = msg.uploaded
		}
		if msg.enabled != nil {
			m.pending.Enabled = *msg.enabled
		}
		if m.device != nil {
			m.snapshot = m.device.Get()
		}
		if msg.err != nil {
			m.setError(msg.err.Error())
		} else {
			m.setStatus(msg.status)
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	}

	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m *Model) setStatus(s string) {
	m.status = s
	m.statusErr = false
}

func (m *Model) setError(s string) {
	m.status = "Error: " + s
	m.statusErr = true
}

// handleCommand parses one panel command. Device commands run as tea.Cmds.
func (m Model) handleCommand(input string) (tea.Model, tea.Cmd) {
	parts := strings.Fields(strings.TrimSpace(input))
	if len(parts) == 0 {
		return m, nil
	}
	verb := strings.ToLower(parts[0])

	if m.busy && isDeviceCommand(verb) {
		m.setError("a device command is still running")
		return m, nil
	}

	switch verb {
	case "quit", "exit", "q":
		m.quitting = true
		return m, tea.Quit
	case "help", "?":
		m.setStatus(helpText)
		return m, nil
	case "set":
		if len(parts) != 3 {
			m.setError("usage: set <field> <value>")
			return m, nil
		}
		p := m.pending
		if err := p.Set(parts[1], parts[2]); err != nil {
			m.setError(err.Error())
			return m, nil
		}
		m.pending = p
		if err := p.Validate(); err != nil {
			m.setError(err.Error())
			return m, nil
		}
		m.setStatus(fmt.Sprintf("%s set to %s", parts[1], parts[2]))
		return m, nil
	case "reset":
		m.pending = m.ctrl.Defaults()
		m.setStatus("pending parameters reset to defaults")
		return m, nil
	case "upload":
		return m.start(m.uploadCmd(m.pending))
	case "trigger":
		return m.start(m.triggerCmd())
	case "run":
		return m.start(m.runCmd(m.pending, false))
	case "run!":
		return m.start(m.runCmd(m.pending, true))
	case "enable", "disable":
		return m.start(m.enabledCmd(verb == "enable"))
	case "state":
		return m.start(m.stateCmd())
	}

	m.setError(fmt.Sprintf("unknown command %q (%s)", verb, helpText))
	return m, nil
}

func isDeviceCommand(verb string) bool {
	switch verb {
	case "upload", "trigger", "run", "run!", "enable", "disable", "state":
		return true
	}
	return false
}

func (m Model) start(cmd tea.Cmd) (tea.Model, tea.Cmd) {
	m.busy = true
	m.setStatus("working...")
	return m, cmd
}

func (m Model) uploadCmd(p stimulator.Parameters) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		res, err := ctrl.Upload(context.Background(), p)
		if err != nil {
			return doneMsg{err: err}
		}
		return doneMsg{status: fmt.Sprintf("uploaded (return code %d)", res.ReturnCode), uploaded: &p}
	}
}

func (m Model) triggerCmd() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		res, err := ctrl.Trigger(context.Background())
		if err != nil {
			return doneMsg{err: err}
		}
		return doneMsg{status: fmt.Sprintf("triggered (return code %d)", res.ReturnCode)}
	}
}

func (m Model) runCmd(p stimulator.Parameters, force bool) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		res, err := ctrl.Run(context.Background(), p, force)
		if errors.Is(err, command.ErrSafetyLimit) {
			return doneMsg{err: fmt.Errorf("%w (type run! to force)", err)}
		}
		if err != nil {
			return doneMsg{err: err}
		}
		return doneMsg{
			status:   fmt.Sprintf("ran %.1f mA (upload %d, trigger %d)", p.DemandMilliamps(), res.Upload.ReturnCode, res.Trigger.ReturnCode),
			uploaded: &p,
		}
	}
}

// enabledCmd toggles the output. The pending record follows the flag so a
// later upload or run does not switch the output back.
func (m Model) enabledCmd(enabled bool) tea.Cmd {
	ctrl := m.ctrl
	dev := m.device
	return func() tea.Msg {
		res, err := ctrl.SetEnabled(context.Background(), enabled)
		if err != nil {
			return doneMsg{err: err}
		}
		flag, word := 0, "disabled"
		if enabled {
			flag, word = 1, "enabled"
		}
		msg := doneMsg{status: fmt.Sprintf("output %s (return code %d)", word, res.ReturnCode), enabled: &flag}
		if dev != nil {
			msg.uploaded = dev.Get().Parameters
		}
		return msg
	}
}

func (m Model) stateCmd() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		state, err := ctrl.GetState(context.Background())
		if err != nil {
			return doneMsg{err: err}
		}
		return doneMsg{status: fmt.Sprintf("device reports %s", describe(state.Parameters))}
	}
}

func describe(p stimulator.Parameters) string {
	return fmt.Sprintf("%s %s %.1f mA %d us, enabled=%d", p.Mode, p.Polarity, p.DemandMilliamps(), p.PulseWidth, p.Enabled)
}
