package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.Uploaded(2.4, true)
	m.Uploaded(3.0, false)
	m.Triggered()
	m.Rejected("INVALID_RANGE")
	m.Rejected("SAFETY_LIMIT")
	m.Rejected("SAFETY_LIMIT")
	m.ProxyError("BUSY")
	m.ObserveCall("upload", 30*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.uploads))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.triggers))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.lastDemand))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.enabled))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.rejections.WithLabelValues("SAFETY_LIMIT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.proxyErrors.WithLabelValues("BUSY")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.latency))
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.Triggered()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.triggers))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.triggers))
}

func TestHandler(t *testing.T) {
	m := New()
	m.Triggered()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "ds8r_triggers_total 1"), body)
}
