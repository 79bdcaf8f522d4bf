package rest

import (
	"net/http"

	"github.com/touka-aoi/drawsync/repository/state/memory"
)

type StatsResponse struct {
	Connections int                      `json:"connections"`
	ActiveRooms int                      `json:"activeRooms"`
	Counters    map[string]int           `json:"counters"`
	Latencies   map[string]LatencyReport `json:"latencies"`
}

type LatencyReport struct {
	Count  int     `json:"count"`
	MeanMs float64 `json:"meanMs"`
	MaxMs  float64 `json:"maxMs"`
}

// StatsHandler はイベント処理の統計と接続数を返す。
type StatsHandler struct {
	metrics     *memory.Metrics
	connections func() int
	activeRooms func() int
}

func NewStatsHandler(metrics *memory.Metrics, connections, activeRooms func() int) *StatsHandler {
	return &StatsHandler{metrics: metrics, connections: connections, activeRooms: activeRooms}
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snap := h.metrics.Snapshot()
	resp := StatsResponse{
		Connections: h.connections(),
		ActiveRooms: h.activeRooms(),
		Counters:    snap.Counters,
		Latencies:   make(map[string]LatencyReport, len(snap.Latencies)),
	}
	for name, l := range snap.Latencies {
		resp.Latencies[name] = LatencyReport{
			Count:  l.Count,
			MeanMs: float64(l.Mean().Microseconds()) / 1000,
			MaxMs:  float64(l.Max.Microseconds()) / 1000,
		}
	}
	writeJSON(w, r, http.StatusOK, resp)
}
