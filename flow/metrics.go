package flow

import (
	"time"

	"github.com/flowbridge/flowbridge/internal/syncutil"
)

// TopicMetrics holds the per-topic counters described in spec.md §3. All
// four fields are monotone non-decreasing under the registry lock, and
// LastMessageTime is updated iff MessageCount increments.
type TopicMetrics struct {
	MessageCount   int64
	TotalBytes     int64
	ErrorCount     int64
	LastMessageTime time.Time
}

// TopicMetricsSnapshot is the read-only view returned by GetMetrics,
// additionally carrying the derived rate.
type TopicMetricsSnapshot struct {
	MessageCount    int64     `json:"message_count"`
	TotalBytes      int64     `json:"total_bytes"`
	ErrorCount      int64     `json:"error_count"`
	LastMessageTime time.Time `json:"last_message_time"`
	RatePerSecond   float64   `json:"rate_per_second"`
}

// MetricsSnapshot is the shape returned by MetricsRegistry.GetMetrics and is
// what gets logged at shutdown (spec.md §6).
type MetricsSnapshot struct {
	UptimeSeconds    float64                         `json:"uptime_seconds"`
	SourceMetrics    map[string]TopicMetricsSnapshot `json:"source_metrics"`
	DestinationMetrics map[string]TopicMetricsSnapshot `json:"destination_metrics"`
}

// MetricsRegistry is the single mutable shared state of a flow: two
// mappings (source-side, destination-side) keyed by topic name, guarded by
// one mutex so concurrent readers observe an internally consistent
// snapshot of each topic's four fields (spec.md §5, "Shared-resource
// policy").
type MetricsRegistry struct {
	mu        *syncutil.SmartRWMutex
	startedAt time.Time
	source    map[string]*TopicMetrics
	dest      map[string]*TopicMetrics
}

// NewMetricsRegistry creates an empty registry with its clock started now.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		mu:        syncutil.NewSmartRWMutex(syncutil.MutexConfig{Name: "flow.metrics"}),
		startedAt: time.Now(),
		source:    make(map[string]*TopicMetrics),
		dest:      make(map[string]*TopicMetrics),
	}
}

// RecordSource increments the source-side counters for topic by one
// message and n bytes.
func (r *MetricsRegistry) RecordSource(topic string, bytes int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.getOrCreate(r.source, topic)
	m.MessageCount++
	m.TotalBytes += int64(bytes)
	m.LastMessageTime = time.Now()
}

// RecordSourceError increments the source-side error counter for topic.
func (r *MetricsRegistry) RecordSourceError(topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getOrCreate(r.source, topic).ErrorCount++
}

// RecordDestination increments the destination-side counters for topic by
// one message and n bytes.
func (r *MetricsRegistry) RecordDestination(topic string, bytes int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.getOrCreate(r.dest, topic)
	m.MessageCount++
	m.TotalBytes += int64(bytes)
	m.LastMessageTime = time.Now()
}

// RecordDestinationError increments the destination-side error counter for topic.
func (r *MetricsRegistry) RecordDestinationError(topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getOrCreate(r.dest, topic).ErrorCount++
}

func (r *MetricsRegistry) getOrCreate(m map[string]*TopicMetrics, topic string) *TopicMetrics {
	tm, ok := m[topic]
	if !ok {
		tm = &TopicMetrics{}
		m[topic] = tm
	}
	return tm
}

// GetMetrics returns a deep copy of the current source and destination
// metrics, plus uptime and the derived per-topic rate (spec.md §6).
func (r *MetricsRegistry) GetMetrics() MetricsSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	uptime := time.Since(r.startedAt).Seconds()

	return MetricsSnapshot{
		UptimeSeconds:      uptime,
		SourceMetrics:      snapshotSide(r.source, uptime),
		DestinationMetrics: snapshotSide(r.dest, uptime),
	}
}

func snapshotSide(m map[string]*TopicMetrics, uptime float64) map[string]TopicMetricsSnapshot {
	out := make(map[string]TopicMetricsSnapshot, len(m))
	for topic, tm := range m {
		rate := 0.0
		if uptime > 0 {
			rate = float64(tm.MessageCount) / uptime
		}
		out[topic] = TopicMetricsSnapshot{
			MessageCount:    tm.MessageCount,
			TotalBytes:      tm.TotalBytes,
			ErrorCount:      tm.ErrorCount,
			LastMessageTime: tm.LastMessageTime,
			RatePerSecond:   rate,
		}
	}
	return out
}
