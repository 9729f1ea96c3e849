package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCountersAndStats(t *testing.T) {
	m := New()
	m.IncPostsSent()
	m.IncPostsSent()
	m.AddItemsSeen(7)
	m.IncDuplicatesFiltered()

	stats := m.GetStats()
	assert.EqualValues(t, 2, stats["posts_sent"])
	assert.EqualValues(t, 7, stats["items_seen"])
	assert.EqualValues(t, 1, stats["duplicates_filtered"])
	assert.NotContains(t, stats, "last_run_time")
}

func TestRecordCycleAverages(t *testing.T) {
	m := New()
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m.RecordCycle(start, 2*time.Second)
	m.RecordCycle(start.Add(time.Minute), 4*time.Second)

	assert.EqualValues(t, 2, m.CyclesRun)
	assert.Equal(t, 3*time.Second, m.AverageCycleDuration)
	assert.Equal(t, start.Add(time.Minute), m.LastRun())
	assert.Equal(t, "2025-01-01T00:01:00Z", m.GetStats()["last_run_time"])
}

func TestErrorFlipsHealth(t *testing.T) {
	m := New()
	assert.True(t, m.Healthy())
	m.SetError("redis down")
	assert.False(t, m.Healthy())
	assert.Equal(t, "redis down", m.GetStats()["last_error"])

	m.RecordCycle(time.Now(), time.Second)
	assert.True(t, m.Healthy())
}
