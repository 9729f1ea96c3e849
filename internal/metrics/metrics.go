package metrics

import (
	"sync"
	"time"
)

// Metrics holds process-wide pipeline counters.
type Metrics struct {
	mu sync.RWMutex

	// Counters
	CyclesRun          int64
	CyclesSkipped      int64
	FeedsFetched       int64
	FeedsFailed        int64
	ItemsSeen          int64
	DuplicatesFiltered int64
	ItemsAdmitted      int64
	ItemsRejected      int64
	ClassifyFailures   int64
	Untradable         int64
	PostsSent          int64
	PostsFailed        int64
	ItemErrors         int64

	// Timings
	LastCycleDuration    time.Duration
	AverageCycleDuration time.Duration
	TotalCycleDuration   time.Duration

	// Status
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

func New() *Metrics {
	return &Metrics{IsHealthy: true}
}

func (m *Metrics) add(field *int64, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*field += n
}

func (m *Metrics) IncCyclesSkipped() { m.add(&m.CyclesSkipped, 1) }
func (m *Metrics) IncFeedsFetched() { m.add(&m.FeedsFetched, 1) }
func (m *Metrics) IncFeedsFailed() { m.add(&m.FeedsFailed, 1) }
func (m *Metrics) AddItemsSeen(n int) { m.add(&m.ItemsSeen, int64(n)) }
func (m *Metrics) IncDuplicatesFiltered() { m.add(&m.DuplicatesFiltered, 1) }
func (m *Metrics) IncItemsAdmitted() { m.add(&m.ItemsAdmitted, 1) }
func (m *Metrics) IncItemsRejected() { m.add(&m.ItemsRejected, 1) }
func (m *Metrics) IncClassifyFailures() { m.add(&m.ClassifyFailures, 1) }
func (m *Metrics) IncUntradable() { m.add(&m.Untradable, 1) }
func (m *Metrics) IncPostsSent() { m.add(&m.PostsSent, 1) }
func (m *Metrics) IncPostsFailed() { m.add(&m.PostsFailed, 1) }
func (m *Metrics) IncItemErrors() { m.add(&m.ItemErrors, 1) }

// RecordCycle stores the duration of a finished cycle and marks the
// service healthy again.
func (m *Metrics) RecordCycle(started time.Time, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CyclesRun++
	m.LastRunTime = started
	m.LastCycleDuration = duration
	m.TotalCycleDuration += duration
	m.AverageCycleDuration = m.TotalCycleDuration / time.Duration(m.CyclesRun)
	m.IsHealthy = true
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.IsHealthy
}

func (m *Metrics) LastRun() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRunTime
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := map[string]interface{}{
		"cycles_run":                m.CyclesRun,
		"cycles_skipped":            m.CyclesSkipped,
		"feeds_fetched":             m.FeedsFetched,
		"feeds_failed":              m.FeedsFailed,
		"items_seen":                m.ItemsSeen,
		"duplicates_filtered":       m.DuplicatesFiltered,
		"items_admitted":            m.ItemsAdmitted,
		"items_rejected":            m.ItemsRejected,
		"classify_failures":         m.ClassifyFailures,
		"untradable":                m.Untradable,
		"posts_sent":                m.PostsSent,
		"posts_failed":              m.PostsFailed,
		"item_errors":               m.ItemErrors,
		"last_cycle_duration_ms":    m.LastCycleDuration.Milliseconds(),
		"average_cycle_duration_ms": m.AverageCycleDuration.Milliseconds(),
		"last_error":                m.LastError,
		"is_healthy":                m.IsHealthy,
	}
	if !m.LastRunTime.IsZero() {
		stats["last_run_time"] = m.LastRunTime.Format(time.RFC3339)
	}
	if !m.LastErrorTime.IsZero() {
		stats["last_error_time"] = m.LastErrorTime.Format(time.RFC3339)
	}
	return stats
}
