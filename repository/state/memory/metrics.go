package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/touka-aoi/drawsync/application/state"
)

// LatencyStats はイベント種別ごとの処理時間の集計。
type LatencyStats struct {
	Count int           `json:"count"`
	Total time.Duration `json:"totalNs"`
	Max   time.Duration `json:"maxNs"`
}

// Mean は平均処理時間を返す。
func (s LatencyStats) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// MetricsSnapshot は Metrics のある時点でのコピー。
type MetricsSnapshot struct {
	Counters  map[string]int          `json:"counters"`
	Latencies map[string]LatencyStats `json:"latencies"`
}

// Names はカウンター名をソートして返す。
func (s MetricsSnapshot) Names() []string {
	names := make([]string, 0, len(s.Counters))
	for name := range s.Counters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Metrics はプロセス内で統計を集計する MetricsRecorder。
type Metrics struct {
	mu        sync.Mutex
	counters  map[string]int
	latencies map[string]LatencyStats
}

func NewMetrics() *Metrics {
	return &Metrics{
		counters:  make(map[string]int),
		latencies: make(map[string]LatencyStats),
	}
}

func (m *Metrics) RecordLatency(_ context.Context, event string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.latencies[event]
	s.Count++
	s.Total += duration
	if duration > s.Max {
		s.Max = duration
	}
	m.latencies[event] = s
}

func (m *Metrics) IncrementCounter(_ context.Context, name string, delta int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name] += delta
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := MetricsSnapshot{
		Counters:  make(map[string]int, len(m.counters)),
		Latencies: make(map[string]LatencyStats, len(m.latencies)),
	}
	for k, v := range m.counters {
		snap.Counters[k] = v
	}
	for k, v := range m.latencies {
		snap.Latencies[k] = v
	}
	return snap
}

var _ state.MetricsRecorder = (*Metrics)(nil)
