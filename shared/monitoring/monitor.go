package monitoring

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Operation names the kind of work being recorded.
type Operation string

const (
	OpAnalysis Operation = "analysis"
	OpOverlay  Operation = "overlay"
	OpJob      Operation = "job"
)

type counters struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Monitor tracks recent outcomes for the health endpoints. Safe for
// concurrent use; requests and cron jobs record into the same instance.
type Monitor struct {
	mu             sync.Mutex
	started        time.Time
	lastRunSuccess bool
	lastRunTime    time.Time
	lastError      string
	counts         map[Operation]*counters
}

func NewMonitor() *Monitor {
	return &Monitor{
		started: time.Now(),
		counts:  make(map[Operation]*counters),
	}
}

func (m *Monitor) counter(op Operation) *counters {
	c, ok := m.counts[op]
	if !ok {
		c = &counters{}
		m.counts[op] = c
	}
	return c
}

func (m *Monitor) RecordSuccess(op Operation, summary string, duration time.Duration) {
	m.mu.Lock()
	m.counter(op).Succeeded++
	m.lastRunSuccess = true
	m.lastRunTime = time.Now()
	m.lastError = ""
	m.mu.Unlock()

	log.Printf("✅ %s completed - %s (took %v)", op, summary, duration)
}

// RecordPartialFailure counts a failure caused by the caller's input, such
// as an unusable URL. Health is left alone.
func (m *Monitor) RecordPartialFailure(op Operation, err error, duration time.Duration) {
	m.mu.Lock()
	m.counter(op).Failed++
	m.mu.Unlock()

	log.Printf("⚠️  %s failed: %s (Duration: %v)", op, err.Error(), duration)
}

// RecordCriticalFailure counts a provider or infrastructure failure and
// marks the service unhealthy until the next success.
func (m *Monitor) RecordCriticalFailure(op Operation, err error, duration time.Duration) {
	now := time.Now()
	m.mu.Lock()
	m.counter(op).Failed++
	m.lastRunSuccess = false
	m.lastRunTime = now
	m.lastError = err.Error()
	m.mu.Unlock()

	log.Printf("🚨 CRITICAL FAILURE (%s): %s (Duration: %v)", op, err.Error(), duration)
	log.Printf("Failure occurred at: %s", now.Format("2006-01-02 15:04:05"))
}

func (m *Monitor) IsHealthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isHealthyLocked()
}

func (m *Monitor) isHealthyLocked() bool {
	if m.lastRunTime.IsZero() {
		return true // nothing has run yet
	}
	return m.lastRunSuccess
}

func (m *Monitor) GetStatusSummary() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastRunTime.IsZero() {
		return "No runs yet"
	}
	if m.lastRunSuccess {
		return fmt.Sprintf("✅ Last run: %s", m.lastRunTime.Format("Jan 2 15:04"))
	}
	return fmt.Sprintf("❌ Last run failed: %s", m.lastRunTime.Format("Jan 2 15:04"))
}

// Status is the JSON body served on /status.
type Status struct {
	Healthy   bool                   `json:"healthy"`
	Summary   string                 `json:"summary"`
	LastRun   *time.Time             `json:"last_run,omitempty"`
	LastError string                 `json:"last_error,omitempty"`
	Uptime    string                 `json:"uptime"`
	Counts    map[Operation]counters `json:"counts"`
}

func (m *Monitor) Snapshot() Status {
	summary := m.GetStatusSummary()

	m.mu.Lock()
	defer m.mu.Unlock()

	s := Status{
		Healthy:   m.isHealthyLocked(),
		Summary:   summary,
		LastError: m.lastError,
		Uptime:    time.Since(m.started).Round(time.Second).String(),
		Counts:    make(map[Operation]counters, len(m.counts)),
	}
	if !m.lastRunTime.IsZero() {
		t := m.lastRunTime
		s.LastRun = &t
	}
	for op, c := range m.counts {
		s.Counts[op] = *c
	}
	return s
}
