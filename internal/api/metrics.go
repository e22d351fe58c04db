package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics represents the complete process metrics response.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
	Link          LinkMetrics    `json:"link"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// LinkMetrics contains liveness counters taken from the link snapshot.
type LinkMetrics struct {
	Up             bool    `json:"up"`
	ProbesSent     uint64  `json:"probes_sent"`
	ProbesAnswered uint64  `json:"probes_answered"`
	ProbeTimeouts  uint64  `json:"probe_timeouts"`
	Reconnects     uint64  `json:"reconnects"`
	AnswerRatio    float64 `json:"answer_ratio"`
}

// handleMetrics returns runtime and liveness metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	snap := s.status.Snapshot()

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
		Link: LinkMetrics{
			Up:             snap.SessionState == "connected",
			ProbesSent:     snap.ProbesSent,
			ProbesAnswered: snap.ProbesAnswered,
			ProbeTimeouts:  snap.ProbeTimeouts,
			Reconnects:     snap.Reconnects,
		},
	}
	if snap.ProbesSent > 0 {
		metrics.Link.AnswerRatio = float64(snap.ProbesAnswered) / float64(snap.ProbesSent)
	}

	writeJSON(w, http.StatusOK, metrics)
}
