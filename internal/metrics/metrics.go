package metrics

import (
	"math"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metric names used across the service
const (
	ResponsesCreated    = "responses_created"
	ResponsesRejected   = "responses_rejected"
	ApprovalsGranted    = "approvals_granted"
	ApprovalsOverCap    = "approvals_capacity_exceeded"
	TokensConsumed      = "tokens_consumed"
	EventsClosed        = "events_closed"
	RemindersSent       = "reminders_sent"
	NotificationsFailed = "notifications_failed"
	SearchQueries       = "search_queries"
	DBQueries           = "db_queries"
	RateLimited         = "rate_limited"
)

// TimerMetric captures timing information
type TimerMetric struct {
	Count         int64   `json:"count"`
	TotalTimeMs   int64   `json:"total_time_ms"`
	AverageTimeMs float64 `json:"average_time_ms"`
	MinTimeMs     int64   `json:"min_time_ms"`
	MaxTimeMs     int64   `json:"max_time_ms"`
}

// ErrorRateMetric captures error rates
type ErrorRateMetric struct {
	Total     int64   `json:"total"`
	Errors    int64   `json:"errors"`
	ErrorRate float64 `json:"error_rate"`
}

type timerStat struct {
	count       int64
	totalTimeMs int64
	minTimeMs   int64
	maxTimeMs   int64
}

type errorStat struct {
	total  int64
	errors int64
}

// Metrics is the in-process collector. Counters and outcomes are mirrored
// into a Prometheus registry.
type Metrics struct {
	mu           sync.RWMutex
	counters     map[string]*int64
	gauges       map[string]*int64
	timers       map[string]*timerStat
	errorRates   map[string]*errorStat
	healthChecks map[string]*int64
	startTime    time.Time

	registry     *prometheus.Registry
	promCounters *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	promCounters := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "charity",
			Name:      "domain_events_total",
			Help:      "Domain outcomes such as responses, approvals and closures.",
		},
		[]string{"name"},
	)
	httpRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "charity",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "charity",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path"},
	)
	registry.MustRegister(promCounters, httpRequests, httpDuration)

	return &Metrics{
		counters:     make(map[string]*int64),
		gauges:       make(map[string]*int64),
		timers:       make(map[string]*timerStat),
		errorRates:   make(map[string]*errorStat),
		healthChecks: make(map[string]*int64),
		startTime:    time.Now(),
		registry:     registry,
		promCounters: promCounters,
		httpRequests: httpRequests,
		httpDuration: httpDuration,
	}
}

// int64Slot returns the slot for name in m, creating it if needed
func (m *Metrics) int64Slot(table map[string]*int64, name string) *int64 {
	m.mu.RLock()
	slot, exists := table[name]
	m.mu.RUnlock()
	if exists {
		return slot
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Check again to avoid race conditions
	if slot, exists = table[name]; !exists {
		slot = new(int64)
		table[name] = slot
	}
	return slot
}

// IncrementCounter increments a counter by 1
func (m *Metrics) IncrementCounter(name string) {
	m.IncrementCounterBy(name, 1)
}

// IncrementCounterBy increments a counter by the specified value
func (m *Metrics) IncrementCounterBy(name string, value int64) {
	if m == nil {
		return
	}
	atomic.AddInt64(m.int64Slot(m.counters, name), value)
	m.promCounters.WithLabelValues(name).Add(float64(value))
}

// SetGauge sets a gauge to a specific value
func (m *Metrics) SetGauge(name string, value int64) {
	if m == nil {
		return
	}
	atomic.StoreInt64(m.int64Slot(m.gauges, name), value)
}

// RecordTimer records a timing measurement
func (m *Metrics) RecordTimer(name string, d time.Duration) {
	if m == nil {
		return
	}
	durationMs := d.Milliseconds()

	m.mu.RLock()
	timer, exists := m.timers[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		if timer, exists = m.timers[name]; !exists {
			timer = &timerStat{minTimeMs: math.MaxInt64}
			m.timers[name] = timer
		}
		m.mu.Unlock()
	}

	atomic.AddInt64(&timer.count, 1)
	atomic.AddInt64(&timer.totalTimeMs, durationMs)

	for {
		currentMin := atomic.LoadInt64(&timer.minTimeMs)
		if durationMs >= currentMin || atomic.CompareAndSwapInt64(&timer.minTimeMs, currentMin, durationMs) {
			break
		}
	}
	for {
		currentMax := atomic.LoadInt64(&timer.maxTimeMs)
		if durationMs <= currentMax || atomic.CompareAndSwapInt64(&timer.maxTimeMs, currentMax, durationMs) {
			break
		}
	}
}

// RecordSuccess records a successful operation for error rate tracking
func (m *Metrics) RecordSuccess(name string) {
	m.recordErrorRate(name, false)
}

// RecordError records an error for error rate tracking
func (m *Metrics) RecordError(name string) {
	m.recordErrorRate(name, true)
}

func (m *Metrics) recordErrorRate(name string, isError bool) {
	if m == nil {
		return
	}
	m.mu.RLock()
	stat, exists := m.errorRates[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		if stat, exists = m.errorRates[name]; !exists {
			stat = &errorStat{}
			m.errorRates[name] = stat
		}
		m.mu.Unlock()
	}

	atomic.AddInt64(&stat.total, 1)
	if isError {
		atomic.AddInt64(&stat.errors, 1)
	}
}

// SetHealth sets the health status of a component
func (m *Metrics) SetHealth(component string, isHealthy bool) {
	if m == nil {
		return
	}
	var value int64
	if isHealthy {
		value = 1
	}
	atomic.StoreInt64(m.int64Slot(m.healthChecks, component), value)
}

// ObserveHTTP records one served request
func (m *Metrics) ObserveHTTP(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, path, http.StatusText(status)).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// PrometheusHandler exposes the Prometheus registry
func (m *Metrics) PrometheusHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// GetCounters returns all counters
func (m *Metrics) GetCounters() map[string]int64 {
	return m.snapshot(m.counters)
}

// GetGauges returns all gauges
func (m *Metrics) GetGauges() map[string]int64 {
	return m.snapshot(m.gauges)
}

func (m *Metrics) snapshot(table map[string]*int64) map[string]int64 {
	out := make(map[string]int64)

	m.mu.RLock()
	defer m.mu.RUnlock()

	for name, v := range table {
		out[name] = atomic.LoadInt64(v)
	}
	return out
}

// GetTimers returns all timers
func (m *Metrics) GetTimers() map[string]TimerMetric {
	timers := make(map[string]TimerMetric)

	m.mu.RLock()
	defer m.mu.RUnlock()

	for name, timer := range m.timers {
		count := atomic.LoadInt64(&timer.count)
		totalTime := atomic.LoadInt64(&timer.totalTimeMs)

		var average float64
		if count > 0 {
			average = float64(totalTime) / float64(count)
		}

		timers[name] = TimerMetric{
			Count:         count,
			TotalTimeMs:   totalTime,
			AverageTimeMs: average,
			MinTimeMs:     atomic.LoadInt64(&timer.minTimeMs),
			MaxTimeMs:     atomic.LoadInt64(&timer.maxTimeMs),
		}
	}

	return timers
}

// GetErrorRates returns all error rates
func (m *Metrics) GetErrorRates() map[string]ErrorRateMetric {
	errorRates := make(map[string]ErrorRateMetric)

	m.mu.RLock()
	defer m.mu.RUnlock()

	for name, er := range m.errorRates {
		total := atomic.LoadInt64(&er.total)
		errs := atomic.LoadInt64(&er.errors)

		var rate float64
		if total > 0 {
			rate = float64(errs) / float64(total) * 100.0
		}

		errorRates[name] = ErrorRateMetric{
			Total:     total,
			Errors:    errs,
			ErrorRate: rate,
		}
	}

	return errorRates
}

// GetHealthChecks returns all health checks
func (m *Metrics) GetHealthChecks() map[string]bool {
	checks := make(map[string]bool)

	m.mu.RLock()
	defer m.mu.RUnlock()

	for name, health := range m.healthChecks {
		checks[name] = atomic.LoadInt64(health) > 0
	}

	return checks
}

// GetUptimeSeconds returns the service uptime in seconds
func (m *Metrics) GetUptimeSeconds() int64 {
	return int64(time.Since(m.startTime).Seconds())
}

// GetAllMetrics returns all metrics in a structured format
func (m *Metrics) GetAllMetrics() map[string]interface{} {
	return map[string]interface{}{
		"uptime_seconds": m.GetUptimeSeconds(),
		"counters":       m.GetCounters(),
		"gauges":         m.GetGauges(),
		"timers":         m.GetTimers(),
		"error_rates":    m.GetErrorRates(),
		"health_checks":  m.GetHealthChecks(),
	}
}
