// Package telemetry provides observability for the clinical record service
// using only standard library constructs. It exposes counters, gauges, a
// request duration histogram, and a Prometheus text exposition endpoint
// without importing a metrics SDK.
package telemetry

import (
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
)

// defaultDurationBuckets are histogram boundaries in seconds.
var defaultDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// ---------------------------------------------------------------------------
// histogram
// ---------------------------------------------------------------------------

type histogram struct {
	mu         sync.Mutex
	boundaries []float64
	counts     []int64
	sum        uint64 // float64 bits
	count      int64
}

func newHistogram(boundaries []float64) *histogram {
	return &histogram{
		boundaries: boundaries,
		counts:     make([]int64, len(boundaries)+1),
	}
}

func (h *histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	idx := len(h.boundaries)
	for i, b := range h.boundaries {
		if v <= b {
			idx = i
			break
		}
	}
	h.counts[idx]++
	h.count++
	atomicAddFloat64(&h.sum, v)
}

func (h *histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

func (h *histogram) Sum() float64 {
	return math.Float64frombits(atomic.LoadUint64(&h.sum))
}

// cumulativeBuckets returns running totals aligned with boundaries.
func (h *histogram) cumulativeBuckets() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	cum := make([]int64, len(h.boundaries))
	var running int64
	for i := range h.boundaries {
		running += h.counts[i]
		cum[i] = running
	}
	return cum
}

func atomicAddFloat64(addr *uint64, delta float64) {
	for {
		old := atomic.LoadUint64(addr)
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if atomic.CompareAndSwapUint64(addr, old, next) {
			return
		}
	}
}

// ---------------------------------------------------------------------------
// counterStore
// ---------------------------------------------------------------------------

type counterStore struct {
	mu     sync.RWMutex
	counts map[string]*int64
}

func newCounterStore() *counterStore {
	return &counterStore{counts: make(map[string]*int64)}
}

func (s *counterStore) inc(key string) {
	s.mu.RLock()
	p, ok := s.counts[key]
	s.mu.RUnlock()
	if ok {
		atomic.AddInt64(p, 1)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Double-check after acquiring write lock
	if p, ok := s.counts[key]; ok {
		atomic.AddInt64(p, 1)
		return
	}
	var v int64 = 1
	s.counts[key] = &v
}

func (s *counterStore) get(key string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.counts[key]; ok {
		return atomic.LoadInt64(p)
	}
	return 0
}

func (s *counterStore) snapshot() map[string]int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int64, len(s.counts))
	for k, p := range s.counts {
		out[k] = atomic.LoadInt64(p)
	}
	return out
}

// ---------------------------------------------------------------------------
// gaugeStore
// ---------------------------------------------------------------------------

type gaugeStore struct {
	mu     sync.RWMutex
	values map[string]*int64
}

func newGaugeStore() *gaugeStore {
	return &gaugeStore{values: make(map[string]*int64)}
}

func (s *gaugeStore) ptr(name string) *int64 {
	s.mu.RLock()
	p, ok := s.values[name]
	s.mu.RUnlock()
	if ok {
		return p
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.values[name]; ok {
		return p
	}
	var v int64
	s.values[name] = &v
	return &v
}

func (s *gaugeStore) set(name string, val int64) {
	atomic.StoreInt64(s.ptr(name), val)
}

func (s *gaugeStore) add(name string, delta int64) {
	atomic.AddInt64(s.ptr(name), delta)
}

func (s *gaugeStore) get(name string) int64 {
	return atomic.LoadInt64(s.ptr(name))
}

// ---------------------------------------------------------------------------
// Provider
// ---------------------------------------------------------------------------

// Provider aggregates the service's metrics.
type Provider struct {
	counters  *counterStore
	gauges    *gaugeStore
	durations *histogram
}

// NewProvider returns a metrics provider with empty state.
func NewProvider() *Provider {
	return &Provider{
		counters:  newCounterStore(),
		gauges:    newGaugeStore(),
		durations: newHistogram(defaultDurationBuckets),
	}
}

// EventEmitted records a successfully persisted clinical event.
func (p *Provider) EventEmitted(eventType string) {
	p.counters.inc("clinical.event.emitted|" + eventType)
}

// EmissionFailure records an event emission that failed after its entity
// write committed.
func (p *Provider) EmissionFailure(eventType string) {
	p.counters.inc("clinical.event.emission_failure|" + eventType)
}

// EmissionSkipped records an emission suppressed by the idempotency check.
func (p *Provider) EmissionSkipped(eventType string) {
	p.counters.inc("clinical.event.emission_skipped|" + eventType)
}

// TimelineQuery records a timeline read by query kind.
func (p *Provider) TimelineQuery(kind string) {
	p.counters.inc("timeline.query|" + kind)
}

// GetCounter returns the current value of a labeled counter. Intended for
// tests and diagnostics.
func (p *Provider) GetCounter(name, label string) int64 {
	return p.counters.get(name + "|" + label)
}

// SetDBPoolActive sets the active database pool connections gauge.
func (p *Provider) SetDBPoolActive(n int64) {
	p.gauges.set("db.pool.active_connections", n)
}

// SetDBPoolIdle sets the idle database pool connections gauge.
func (p *Provider) SetDBPoolIdle(n int64) {
	p.gauges.set("db.pool.idle_connections", n)
}

// ---------------------------------------------------------------------------
// MetricsMiddleware
// ---------------------------------------------------------------------------

// MetricsMiddleware returns an Echo middleware that records HTTP server
// metrics.
func (p *Provider) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p.gauges.add("http.server.active_requests", 1)
			start := time.Now()

			err := next(c)

			p.gauges.add("http.server.active_requests", -1)
			p.durations.Observe(time.Since(start).Seconds())

			route := c.Path()
			if route == "" {
				route = c.Request().URL.Path
			}
			p.counters.inc(fmt.Sprintf("http.server.requests|%s|%s|%d",
				c.Request().Method, route, c.Response().Status))

			return err
		}
	}
}

// ---------------------------------------------------------------------------
// PrometheusHandler
// ---------------------------------------------------------------------------

// PrometheusHandler returns an Echo handler serving metrics in Prometheus
// text exposition format.
func (p *Provider) PrometheusHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		var b strings.Builder

		writeHistogram(&b, "http_server_request_duration_seconds",
			"Duration of HTTP requests in seconds.", p.durations)

		b.WriteString("# HELP http_server_active_requests Number of active HTTP requests.\n")
		b.WriteString("# TYPE http_server_active_requests gauge\n")
		fmt.Fprintf(&b, "http_server_active_requests %d\n\n", p.gauges.get("http.server.active_requests"))

		counters := p.counters.snapshot()

		writeLabeledCounter(&b, counters, "http.server.requests", "http_server_requests_total",
			"Total HTTP requests by method, route and status.",
			[]string{"method", "route", "status_code"})
		writeLabeledCounter(&b, counters, "clinical.event.emitted", "clinical_event_emitted_total",
			"Total clinical events appended to the timeline by type.",
			[]string{"event_type"})
		writeLabeledCounter(&b, counters, "clinical.event.emission_failure", "clinical_event_emission_failures_total",
			"Total event emissions that failed after the entity write committed.",
			[]string{"event_type"})
		writeLabeledCounter(&b, counters, "clinical.event.emission_skipped", "clinical_event_emission_skipped_total",
			"Total event emissions suppressed by the idempotency check.",
			[]string{"event_type"})
		writeLabeledCounter(&b, counters, "timeline.query", "timeline_queries_total",
			"Total timeline reads by query kind.",
			[]string{"kind"})

		gauges := []struct {
			promName string
			name     string
			help     string
		}{
			{"db_pool_active_connections", "db.pool.active_connections", "Number of active database pool connections."},
			{"db_pool_idle_connections", "db.pool.idle_connections", "Number of idle database pool connections."},
		}
		for _, g := range gauges {
			fmt.Fprintf(&b, "# HELP %s %s\n", g.promName, g.help)
			fmt.Fprintf(&b, "# TYPE %s gauge\n", g.promName)
			fmt.Fprintf(&b, "%s %d\n\n", g.promName, p.gauges.get(g.name))
		}

		return c.String(http.StatusOK, b.String())
	}
}

func writeLabeledCounter(b *strings.Builder, counters map[string]int64,
	prefix, promName, help string, labelNames []string) {

	fmt.Fprintf(b, "# HELP %s %s\n", promName, help)
	fmt.Fprintf(b, "# TYPE %s counter\n", promName)
	for key, val := range counters {
		parts := strings.Split(key, "|")
		if parts[0] != prefix || len(parts) != len(labelNames)+1 {
			continue
		}
		labels := make([]string, len(labelNames))
		for i, ln := range labelNames {
			labels[i] = fmt.Sprintf("%s=%q", ln, parts[i+1])
		}
		fmt.Fprintf(b, "%s{%s} %d\n", promName, strings.Join(labels, ","), val)
	}
	b.WriteByte('\n')
}

func writeHistogram(b *strings.Builder, name, help string, h *histogram) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s histogram\n", name)

	cum := h.cumulativeBuckets()
	total := h.Count()
	for i, boundary := range h.boundaries {
		fmt.Fprintf(b, "%s_bucket{le=\"%g\"} %d\n", name, boundary, cum[i])
	}
	fmt.Fprintf(b, "%s_bucket{le=\"+Inf\"} %d\n", name, total)
	fmt.Fprintf(b, "%s_sum %g\n", name, h.Sum())
	fmt.Fprintf(b, "%s_count %d\n\n", name, total)
}
