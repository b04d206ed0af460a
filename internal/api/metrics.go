package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	WebSocket     WSMetrics       `json:"websocket"`
	Store         StoreMetrics    `json:"store"`
	MQTT          MQTTMetrics     `json:"mqtt"`
	Relay         *RelayMetrics   `json:"relay,omitempty"`
	Onboarding    *OnboardMetrics `json:"onboarding,omitempty"`
	Database      DatabaseMetrics `json:"database"`
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
	Subscriptions    int `json:"subscriptions"`
	PendingTickets   int `json:"pending_tickets"`
}

// StoreMetrics describes the change feed.
type StoreMetrics struct {
	FeedWatchers int `json:"feed_watchers"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// RelayMetrics contains change relay counters.
type RelayMetrics struct {
	Origin   string `json:"origin"`
	Sent     uint64 `json:"sent"`
	Received uint64 `json:"received"`
	Echoes   uint64 `json:"echoes"`
	Dropped  uint64 `json:"dropped"`
}

// OnboardMetrics counts live onboarding sessions.
type OnboardMetrics struct {
	Sessions int `json:"sessions"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns system metrics.
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
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
			Subscriptions:    s.hub.SubscriptionCount(),
			PendingTickets:   s.tickets.pending(),
		},
		Store: StoreMetrics{FeedWatchers: s.client.Feed().Len()},
	}

	if s.mqtt != nil {
		metrics.MQTT = MQTTMetrics{Connected: s.mqtt.IsConnected()}
	}

	if relay := s.client.Relay(); relay != nil {
		stats := relay.Stats()
		metrics.Relay = &RelayMetrics{
			Origin:   relay.Origin(),
			Sent:     stats.Sent,
			Received: stats.Received,
			Echoes:   stats.Echoes,
			Dropped:  stats.Dropped,
		}
	}

	if s.onboarding != nil {
		metrics.Onboarding = &OnboardMetrics{Sessions: s.onboarding.Len()}
	}

	dbStats := s.client.DBStats()
	metrics.Database = DatabaseMetrics{
		OpenConnections: dbStats.OpenConnections,
		InUse:           dbStats.InUse,
		Idle:            dbStats.Idle,
		WaitCount:       dbStats.WaitCount,
	}

	writeJSON(w, http.StatusOK, metrics)
}
