package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timnaher/ds8r/internal/command"
	"github.com/timnaher/ds8r/internal/config"
	"github.com/timnaher/ds8r/internal/device"
	"github.com/timnaher/ds8r/internal/stimulator/fake"
)

func newPanel(t *testing.T) (Model, *fake.FakeAdapter, *device.Manager) {
	t.Helper()
	a := fake.NewFakeAdapter("ds8r-test")
	mgr := device.NewManager("ds8r-test", a)

	cfg := config.Default()
	cfg.Timing.Upload = time.Second
	cfg.Timing.Trigger = time.Second
	cfg.Timing.GetState = time.Second

	return NewModel(command.NewOrchestrator(mgr, cfg), mgr), a, mgr
}

// enter types input, presses enter and feeds any device result back into the model.
func enter(t *testing.T, m Model, input string) (Model, tea.Cmd) {
	t.Helper()
	m.textInput.SetValue(input)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	assert.Empty(t, m.textInput.Value(), "input is cleared after enter")

	if cmd == nil {
		return m, nil
	}
	if msg, ok := cmd().(doneMsg); ok {
		assert.True(t, m.busy)
		next, cmd = m.Update(msg)
		m = next.(Model)
		assert.False(t, m.busy)
	}
	return m, cmd
}

func TestSetUpdatesPending(t *testing.T) {
	m, a, _ := newPanel(t)

	m, _ = enter(t, m, "set demand 35")
	m, _ = enter(t, m, "set mode biphasic")
	m, _ = enter(t, m, "set pulse_width 300")

	p := m.Pending()
	assert.Equal(t, 35, p.Demand)
	assert.EqualValues(t, 2, p.Mode)
	assert.Equal(t, 300, p.PulseWidth)
	assert.Contains(t, m.Status(), "pulse_width set to 300")

	uploads, _ := a.Counts()
	assert.Zero(t, uploads, "set only edits the pending record")
}

func TestSetErrors(t *testing.T) {
	m, _, _ := newPanel(t)

	m, _ = enter(t, m, "set demand")
	assert.True(t, m.statusErr)
	assert.Contains(t, m.Status(), "usage")

	m, _ = enter(t, m, "set voltage 3")
	assert.Contains(t, m.Status(), "unknown parameter")

	m, _ = enter(t, m, "set demand 500")
	assert.True(t, m.statusErr)
	assert.Contains(t, m.Status(), "INVALID_RANGE")
	assert.Equal(t, 500, m.Pending().Demand, "invalid values stay pending so they can be shown")

	view := m.View()
	assert.Contains(t, view, "must be between 1 and 150")
}

func TestUploadTriggerRun(t *testing.T) {
	m, a, mgr := newPanel(t)

	m, _ = enter(t, m, "set demand 40")
	m, _ = enter(t, m, "upload")
	assert.False(t, m.statusErr, m.Status())
	require.NotNil(t, m.uploaded)
	assert.Equal(t, 40, m.uploaded.Demand)

	m, _ = enter(t, m, "trigger")
	assert.Contains(t, m.Status(), "triggered")

	m, _ = enter(t, m, "run")
	assert.Contains(t, m.Status(), "ran 4.0 mA")

	uploads, triggers := a.Counts()
	assert.Equal(t, 2, uploads)
	assert.Equal(t, 2, triggers)
	assert.Equal(t, 2, mgr.Get().TriggerCount)
}

func TestRunSafetyLimitNeedsForce(t *testing.T) {
	m, a, _ := newPanel(t)

	m, _ = enter(t, m, "set demand 120")
	assert.Contains(t, m.View(), "use run! to force")

	m, _ = enter(t, m, "run")
	assert.True(t, m.statusErr)
	assert.Contains(t, m.Status(), "run! to force")

	_, triggers := a.Counts()
	assert.Zero(t, triggers)

	m, _ = enter(t, m, "run!")
	assert.False(t, m.statusErr, m.Status())

	_, triggers = a.Counts()
	assert.Equal(t, 1, triggers)
}

func TestEnableDisableStateReset(t *testing.T) {
	m, a, mgr := newPanel(t)

	m, _ = enter(t, m, "disable")
	assert.Contains(t, m.Status(), "output disabled")
	p, ok := mgr.LastParameters()
	require.True(t, ok)
	assert.Equal(t, 0, p.Enabled)

	m, _ = enter(t, m, "enable")
	assert.Contains(t, m.Status(), "output enabled")

	m, _ = enter(t, m, "state")
	assert.Contains(t, m.Status(), "device reports")

	m, _ = enter(t, m, "set demand 77")
	m, _ = enter(t, m, "reset")
	assert.Equal(t, 20, m.Pending().Demand)

	a.SetErrorSimulation("UNAVAILABLE")
	m, _ = enter(t, m, "state")
	assert.True(t, m.statusErr)
	assert.Contains(t, m.View(), "offline")
}

func TestDisableCarriesIntoRunAndUpload(t *testing.T) {
	m, a, _ := newPanel(t)

	m, _ = enter(t, m, "disable")
	assert.Equal(t, 0, m.Pending().Enabled)
	require.NotNil(t, m.uploaded)
	assert.Equal(t, 0, m.uploaded.Enabled)

	m, _ = enter(t, m, "run")
	assert.False(t, m.statusErr, m.Status())
	m, _ = enter(t, m, "upload")
	assert.False(t, m.statusErr, m.Status())

	_, triggers := a.Counts()
	assert.Equal(t, 1, triggers)
	assert.Empty(t, a.Delivered(), "a disabled output delivers no pulse")

	m, _ = enter(t, m, "enable")
	assert.Equal(t, 1, m.Pending().Enabled)
	m, _ = enter(t, m, "run")
	assert.Len(t, a.Delivered(), 1)
}

func TestBusyRejectsSecondCommand(t *testing.T) {
	m, _, _ := newPanel(t)

	m.textInput.SetValue("trigger")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	m = next.(Model)

	m, cmd = enter(t, m, "trigger")
	assert.Nil(t, cmd)
	assert.Contains(t, m.Status(), "still running")
}

func TestQuit(t *testing.T) {
	m, _, _ := newPanel(t)

	m, cmd := enter(t, m, "quit")
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, m.View())

	m2, _, _ := newPanel(t)
	_, cmd = m2.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestUnknownCommandAndHelp(t *testing.T) {
	m, _, _ := newPanel(t)

	m, _ = enter(t, m, "fire")
	assert.True(t, m.statusErr)
	assert.Contains(t, m.Status(), `unknown command "fire"`)

	m, _ = enter(t, m, "help")
	assert.False(t, m.statusErr)
	assert.True(t, strings.HasPrefix(m.Status(), "set <field>"))
}

func TestViewShowsDeviceAndHighlightsChanges(t *testing.T) {
	m, _, _ := newPanel(t)

	view := m.View()
	assert.Contains(t, view, "DS8R Stimulator")
	assert.Contains(t, view, "ds8r-test")
	assert.Contains(t, view, "2.0 mA")
	assert.Contains(t, view, "triggers: 0")

	next, cmd := m.Update(tickMsg(time.Now()))
	assert.NotNil(t, cmd)
	m = next.(Model)

	next, _ = m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	assert.Equal(t, 100, next.(Model).width)
}
