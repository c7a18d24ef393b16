package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Well-known metric names used across the service
const (
	AwardsSubmitted    = "awards_submitted"
	AwardsCancelled    = "awards_cancelled"
	RollupsExecuted    = "rollups_executed"
	QuoteStatusChanges = "quote_status_changes"
	ProjectionsIndexed = "projections_indexed"
	ProjectionsFailed  = "projections_failed"
	PurchaseOrdersMade = "purchase_orders_generated"
	MessagesProcessed  = "messages_processed"
)

// TimerMetric captures timing information for one named operation
type TimerMetric struct {
	Count         int64   `json:"count"`
	TotalTimeMs   int64   `json:"total_time_ms"`
	AverageTimeMs float64 `json:"average_time_ms"`
	MaxTimeMs     int64   `json:"max_time_ms"`
}

// ErrorRateMetric captures the error percentage of one named operation
type ErrorRateMetric struct {
	Total     int64   `json:"total"`
	Errors    int64   `json:"errors"`
	ErrorRate float64 `json:"error_rate"`
}

type timer struct {
	count       int64
	totalTimeMs int64
	maxTimeMs   int64
}

type errorRate struct {
	total  int64
	errors int64
}

// Metrics is an in-process metrics collector. Counters and gauges are plain
// atomics behind a map guarded for creation only, so the hot path is
// lock-free once a metric exists.
type Metrics struct {
	mu           sync.RWMutex
	counters     map[string]*int64
	gauges       map[string]*int64
	timers       map[string]*timer
	errorRates   map[string]*errorRate
	healthChecks map[string]*int64
	startTime    time.Time
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		counters:     make(map[string]*int64),
		gauges:       make(map[string]*int64),
		timers:       make(map[string]*timer),
		errorRates:   make(map[string]*errorRate),
		healthChecks: make(map[string]*int64),
		startTime:    time.Now(),
	}
}

func (m *Metrics) counter(name string) *int64 {
	m.mu.RLock()
	c, ok := m.counters[name]
	m.mu.RUnlock()
	if ok {
		return c
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok = m.counters[name]; !ok {
		c = new(int64)
		m.counters[name] = c
	}
	return c
}

// IncrementCounter increments a counter by 1
func (m *Metrics) IncrementCounter(name string) {
	m.IncrementCounterBy(name, 1)
}

// IncrementCounterBy increments a counter by the specified value
func (m *Metrics) IncrementCounterBy(name string, value int64) {
	atomic.AddInt64(m.counter(name), value)
}

// SetGauge sets a gauge to a specific value
func (m *Metrics) SetGauge(name string, value int64) {
	m.mu.RLock()
	g, ok := m.gauges[name]
	m.mu.RUnlock()
	if !ok {
		m.mu.Lock()
		if g, ok = m.gauges[name]; !ok {
			g = new(int64)
			m.gauges[name] = g
		}
		m.mu.Unlock()
	}
	atomic.StoreInt64(g, value)
}

// RecordTimer records a timing measurement
func (m *Metrics) RecordTimer(name string, durationMs int64) {
	m.mu.RLock()
	t, ok := m.timers[name]
	m.mu.RUnlock()
	if !ok {
		m.mu.Lock()
		if t, ok = m.timers[name]; !ok {
			t = &timer{}
			m.timers[name] = t
		}
		m.mu.Unlock()
	}

	atomic.AddInt64(&t.count, 1)
	atomic.AddInt64(&t.totalTimeMs, durationMs)
	for {
		max := atomic.LoadInt64(&t.maxTimeMs)
		if durationMs <= max || atomic.CompareAndSwapInt64(&t.maxTimeMs, max, durationMs) {
			break
		}
	}
}

// RecordSuccess records a successful operation for error rate tracking
func (m *Metrics) RecordSuccess(name string) {
	m.recordOutcome(name, false)
}

// RecordError records a failed operation for error rate tracking
func (m *Metrics) RecordError(name string) {
	m.recordOutcome(name, true)
}

func (m *Metrics) recordOutcome(name string, isError bool) {
	m.mu.RLock()
	er, ok := m.errorRates[name]
	m.mu.RUnlock()
	if !ok {
		m.mu.Lock()
		if er, ok = m.errorRates[name]; !ok {
			er = &errorRate{}
			m.errorRates[name] = er
		}
		m.mu.Unlock()
	}

	atomic.AddInt64(&er.total, 1)
	if isError {
		atomic.AddInt64(&er.errors, 1)
	}
}

// SetHealth sets the health status of a component
func (m *Metrics) SetHealth(component string, isHealthy bool) {
	var value int64
	if isHealthy {
		value = 1
	}

	m.mu.RLock()
	h, ok := m.healthChecks[component]
	m.mu.RUnlock()
	if !ok {
		m.mu.Lock()
		if h, ok = m.healthChecks[component]; !ok {
			h = new(int64)
			m.healthChecks[component] = h
		}
		m.mu.Unlock()
	}
	atomic.StoreInt64(h, value)
}

// GetCounters returns all counters
func (m *Metrics) GetCounters() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]int64, len(m.counters))
	for name, c := range m.counters {
		out[name] = atomic.LoadInt64(c)
	}
	return out
}

// GetGauges returns all gauges
func (m *Metrics) GetGauges() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]int64, len(m.gauges))
	for name, g := range m.gauges {
		out[name] = atomic.LoadInt64(g)
	}
	return out
}

// GetTimers returns all timers
func (m *Metrics) GetTimers() map[string]TimerMetric {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]TimerMetric, len(m.timers))
	for name, t := range m.timers {
		count := atomic.LoadInt64(&t.count)
		total := atomic.LoadInt64(&t.totalTimeMs)
		var avg float64
		if count > 0 {
			avg = float64(total) / float64(count)
		}
		out[name] = TimerMetric{
			Count:         count,
			TotalTimeMs:   total,
			AverageTimeMs: avg,
			MaxTimeMs:     atomic.LoadInt64(&t.maxTimeMs),
		}
	}
	return out
}

// GetErrorRates returns all error rates
func (m *Metrics) GetErrorRates() map[string]ErrorRateMetric {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]ErrorRateMetric, len(m.errorRates))
	for name, er := range m.errorRates {
		total := atomic.LoadInt64(&er.total)
		errs := atomic.LoadInt64(&er.errors)
		var rate float64
		if total > 0 {
			rate = float64(errs) / float64(total) * 100.0
		}
		out[name] = ErrorRateMetric{Total: total, Errors: errs, ErrorRate: rate}
	}
	return out
}

// GetHealthChecks returns all health checks
func (m *Metrics) GetHealthChecks() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]bool, len(m.healthChecks))
	for name, h := range m.healthChecks {
		out[name] = atomic.LoadInt64(h) > 0
	}
	return out
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
