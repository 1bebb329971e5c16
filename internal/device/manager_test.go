package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timnaher/ds8r/internal/stimulator"
	"github.com/timnaher/ds8r/internal/stimulator/fake"
)

func TestNewManager(t *testing.T) {
	a := fake.NewFakeAdapter("ds8r-1")
	m := NewManager("ds8r-1", a)

	d := m.Get()
	assert.Equal(t, "ds8r-1", d.ID)
	assert.Equal(t, "DS8R", d.Model)
	assert.Equal(t, StatusUnknown, d.Status)
	assert.Nil(t, d.Parameters)
	assert.Same(t, a, m.Adapter())

	_, ok := m.LastParameters()
	assert.False(t, ok)
}

func TestProbe(t *testing.T) {
	a := fake.NewFakeAdapter("ds8r-1")
	m := NewManager("ds8r-1", a)

	require.NoError(t, m.Probe(context.Background(), time.Second))

	d := m.Get()
	assert.Equal(t, StatusOnline, d.Status)
	require.NotNil(t, d.State)
	assert.Equal(t, stimulator.DefaultParameters(), d.State.Parameters)

	p, ok := m.LastParameters()
	assert.True(t, ok)
	assert.Equal(t, stimulator.DefaultParameters(), p)
}

func TestProbeUnavailable(t *testing.T) {
	a := fake.NewFakeAdapter("ds8r-1")
	a.SetErrorSimulation("UNAVAILABLE")
	m := NewManager("ds8r-1", a)

	err := m.Probe(context.Background(), time.Second)
	require.Error(t, err)

	// The fake returns the raw vendor token; normalize as the orchestrator does.
	m.RecordError(stimulator.NormalizeVendorErrorWithVendor(err, nil, "ds8r"))

	d := m.Get()
	assert.Equal(t, StatusOffline, d.Status)
	assert.Contains(t, d.LastError, "DEVICE_NOT_FOUND")
}

func TestRecordUploadAndTrigger(t *testing.T) {
	m := NewManager("ds8r-1", fake.NewFakeAdapter("ds8r-1"))

	p := stimulator.DefaultParameters()
	p.Demand = 64
	m.RecordUpload(p)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m.RecordTrigger(at)
	m.RecordTrigger(at.Add(time.Second))

	d := m.Get()
	require.NotNil(t, d.Parameters)
	assert.Equal(t, 64, d.Parameters.Demand)
	assert.Equal(t, 2, d.TriggerCount)
	assert.Equal(t, at.Add(time.Second), *d.LastTrigger)
	assert.Equal(t, StatusOnline, d.Status)

	last, ok := m.LastParameters()
	assert.True(t, ok)
	assert.Equal(t, 64, last.Demand)
}

func TestGetReturnsCopy(t *testing.T) {
	m := NewManager("ds8r-1", nil)
	m.RecordUpload(stimulator.DefaultParameters())

	d := m.Get()
	d.Parameters.Demand = 150

	again := m.Get()
	assert.Equal(t, 20, again.Parameters.Demand)
}

func TestRecordErrorKeepsStatusForNonFatal(t *testing.T) {
	m := NewManager("ds8r-1", nil)
	m.RecordState(&stimulator.DeviceState{Parameters: stimulator.DefaultParameters()})

	m.RecordError(&stimulator.VendorError{Code: stimulator.ErrBusy, Original: errors.New("DEVICE_BUSY")})
	d := m.Get()
	assert.Equal(t, StatusOnline, d.Status)
	assert.Contains(t, d.LastError, "BUSY")

	m.RecordError(nil)
	assert.Contains(t, m.Get().LastError, "BUSY")
}

func TestUpdateStatus(t *testing.T) {
	m := NewManager("ds8r-1", nil)

	require.NoError(t, m.UpdateStatus(StatusOffline))
	assert.Equal(t, StatusOffline, m.Get().Status)

	assert.Error(t, m.UpdateStatus("sleeping"))
}

func TestProbeSyncsAdapterStatus(t *testing.T) {
	a := fake.NewFakeAdapter("ds8r-1")
	m := NewManager("ds8r-1", a)

	a.SetErrorSimulation("BUSY")
	a.SetStatus(StatusOffline)
	require.Error(t, m.Probe(context.Background(), time.Second))
	assert.Equal(t, StatusOffline, m.Get().Status, "busy alone does not mark offline, the adapter does")

	a.DisableErrorSimulation()
	require.NoError(t, m.Probe(context.Background(), time.Second))
	assert.Equal(t, StatusOnline, m.Get().Status)

	a.SetStatus("sleeping")
	m.SyncStatus()
	assert.Equal(t, StatusOnline, m.Get().Status)
	assert.Contains(t, m.Get().LastError, "invalid status")

	plain := NewManager("ds8r-2", nil)
	plain.SyncStatus()
	assert.Equal(t, StatusUnknown, plain.Get().Status)
}
