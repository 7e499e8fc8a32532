package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCountersAreConcurrencySafe(t *testing.T) {
	m := NewMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.IncrementCounter(ResponsesCreated)
		}()
	}
	wg.Wait()

	require.Equal(t, int64(50), m.GetCounters()[ResponsesCreated])
}

func TestTimerMinMax(t *testing.T) {
	m := NewMetrics()
	m.RecordTimer("search", 20*time.Millisecond)
	m.RecordTimer("search", 5*time.Millisecond)
	m.RecordTimer("search", 50*time.Millisecond)

	timer := m.GetTimers()["search"]
	require.Equal(t, int64(3), timer.Count)
	require.Equal(t, int64(5), timer.MinTimeMs)
	require.Equal(t, int64(50), timer.MaxTimeMs)
	require.InDelta(t, 25.0, timer.AverageTimeMs, 0.001)
}

func TestErrorRate(t *testing.T) {
	m := NewMetrics()
	m.RecordSuccess("notify")
	m.RecordSuccess("notify")
	m.RecordSuccess("notify")
	m.RecordError("notify")

	rate := m.GetErrorRates()["notify"]
	require.Equal(t, int64(4), rate.Total)
	require.InDelta(t, 25.0, rate.ErrorRate, 0.001)
}

func TestHealthChecks(t *testing.T) {
	m := NewMetrics()
	m.SetHealth("database", true)
	m.SetHealth("redis", false)

	checks := m.GetHealthChecks()
	require.True(t, checks["database"])
	require.False(t, checks["redis"])
}

func TestPrometheusHandlerExposesDomainCounters(t *testing.T) {
	m := NewMetrics()
	m.IncrementCounterBy(EventsClosed, 3)
	m.ObserveHTTP(http.MethodGet, "/api/v1/search", http.StatusOK, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	m.PrometheusHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics/prometheus", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.True(t, strings.Contains(body, `charity_domain_events_total{name="events_closed"} 3`))
	require.True(t, strings.Contains(body, "charity_http_requests_total"))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.IncrementCounter(ResponsesCreated)
		m.RecordTimer("x", time.Second)
		m.RecordError("x")
	})
}
