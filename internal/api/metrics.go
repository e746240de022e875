package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/lightmanager/lightmanager/internal/channel"
	"github.com/lightmanager/lightmanager/internal/session"
)

// SystemMetrics is the JSON summary returned by /api/v1/metrics.
// Prometheus scrapes /metrics instead.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	Session       session.Status `json:"session"`
	Channels      ChannelMetrics `json:"channels"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// ChannelMetrics counts channels by level.
type ChannelMetrics struct {
	Total      int `json:"total"`
	Asserted   int `json:"asserted"`
	Deasserted int `json:"deasserted"`
}

// handleMetrics returns a system summary.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

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
		Session: s.session.Status(),
	}

	for _, ch := range s.channels.Channels() {
		metrics.Channels.Total++
		if ch.State == channel.Asserted {
			metrics.Channels.Asserted++
		} else {
			metrics.Channels.Deasserted++
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
