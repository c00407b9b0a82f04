package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters for the mutation pipeline
// and the outbox worker, exposed read-only through Snapshot on the ops
// surface.
type Metrics struct {
	mu            sync.Mutex
	requestCount  map[string]int64
	requestMillis map[string]int64
	toolCount     map[string]int64
	errorCount    map[string]int64
	replayCount   map[string]int64
	outboxSent    int64
	outboxFailed  int64
	outboxDead    int64
	outboxClaimed int64
}

// RequestStat aggregates one route|method|status key. Mean latency is
// TotalMillis / Count.
type RequestStat struct {
	Count       int64 `json:"count"`
	TotalMillis int64 `json:"total_millis"`
}

// OutboxStat aggregates worker batch results since process start.
type OutboxStat struct {
	Claimed      int64 `json:"claimed"`
	Sent         int64 `json:"sent"`
	Failed       int64 `json:"failed"`
	DeadLettered int64 `json:"dead_lettered"`
}

// MetricsSnapshot is a point-in-time copy of every counter, safe to
// serialize while recording continues.
type MetricsSnapshot struct {
	Requests  map[string]RequestStat `json:"requests"`
	Mutations map[string]int64       `json:"mutations"`
	Replays   map[string]int64       `json:"replays"`
	Errors    map[string]int64       `json:"errors"`
	Outbox    OutboxStat             `json:"outbox"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:  make(map[string]int64),
		requestMillis: make(map[string]int64),
		toolCount:     make(map[string]int64),
		errorCount:    make(map[string]int64),
		replayCount:   make(map[string]int64),
	}
}

// RecordRequest accumulates count and latency per route|method|status.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := path + "|" + method + "|" + strconv.Itoa(status)
	m.requestCount[key]++
	m.requestMillis[key] += duration.Milliseconds()
}

// RecordMutation increments the per-tool mutation counter.
func (m *Metrics) RecordMutation(tool string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toolCount[tool]++
}

// RecordReplay increments the per-tool idempotent replay counter.
func (m *Metrics) RecordReplay(tool string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replayCount[tool]++
}

// RecordError increments the per-code error counter.
func (m *Metrics) RecordError(tool, code string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[tool+"|"+code]++
}

// RecordOutbox accumulates worker batch results.
func (m *Metrics) RecordOutbox(claimed, sent, failed, deadLettered int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outboxClaimed += int64(claimed)
	m.outboxSent += int64(sent)
	m.outboxFailed += int64(failed)
	m.outboxDead += int64(deadLettered)
}

// Snapshot copies every counter under the lock.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	requests := make(map[string]RequestStat, len(m.requestCount))
	for key, count := range m.requestCount {
		requests[key] = RequestStat{Count: count, TotalMillis: m.requestMillis[key]}
	}
	return MetricsSnapshot{
		Requests:  requests,
		Mutations: copyCounts(m.toolCount),
		Replays:   copyCounts(m.replayCount),
		Errors:    copyCounts(m.errorCount),
		Outbox: OutboxStat{
			Claimed:      m.outboxClaimed,
			Sent:         m.outboxSent,
			Failed:       m.outboxFailed,
			DeadLettered: m.outboxDead,
		},
	}
}

func copyCounts(counts map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(counts))
	for key, value := range counts {
		out[key] = value
	}
	return out
}
