package authflow

import "sync"

// MetricsRecorder increments counters for auth lifecycle events.
type MetricsRecorder interface {
	Increment(event string)
}

// CounterMetrics is an in-memory MetricsRecorder. The zero value is ready to
// use; tests read it back through Count and Snapshot.
type CounterMetrics struct {
	mutex  sync.RWMutex
	counts map[string]int64
}

func NewCounterMetrics() *CounterMetrics {
	return &CounterMetrics{}
}

// Increment adds one to the event's counter.
func (metrics *CounterMetrics) Increment(event string) {
	metrics.mutex.Lock()
	if metrics.counts == nil {
		metrics.counts = make(map[string]int64)
	}
	metrics.counts[event]++
	metrics.mutex.Unlock()
}

// Count reports the event's current counter value.
func (metrics *CounterMetrics) Count(event string) int64 {
	metrics.mutex.RLock()
	defer metrics.mutex.RUnlock()
	return metrics.counts[event]
}

// Snapshot copies every counter recorded so far.
func (metrics *CounterMetrics) Snapshot() map[string]int64 {
	metrics.mutex.RLock()
	defer metrics.mutex.RUnlock()
	snapshot := make(map[string]int64, len(metrics.counts))
	for event, count := range metrics.counts {
		snapshot[event] = count
	}
	return snapshot
}
