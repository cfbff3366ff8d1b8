package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"lesson-library/internal/logx"
)

// HealthStatus represents the overall health of the system
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentStatus represents the health of an individual component
type ComponentStatus string

const (
	ComponentStatusUp   ComponentStatus = "up"
	ComponentStatusDown ComponentStatus = "down"
)

// Health represents the complete health check response
type Health struct {
	Status     HealthStatus               `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Commit     string                     `json:"commit,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

// ComponentHealth represents the health of a single system component
type ComponentHealth struct {
	Status    ComponentStatus `json:"status"`
	Message   string          `json:"message,omitempty"`
	LatencyMs int64           `json:"latency_ms"`
}

// HandleHealth is the liveness probe: it answers as long as the process runs.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Health{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now().UTC(),
		Version:   s.build.Version,
		Commit:    s.build.Commit,
	})
}

// HandleReady is the readiness probe: the metadata store must answer a ping.
func (s *Server) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	start := time.Now()
	storeHealth := ComponentHealth{Status: ComponentStatusUp}
	if err := s.store.Ping(ctx); err != nil {
		logx.Warn("readiness: store ping failed", logx.Fields{"error": err.Error()})
		storeHealth = ComponentHealth{Status: ComponentStatusDown, Message: "store unavailable"}
	}
	storeHealth.LatencyMs = time.Since(start).Milliseconds()

	h := Health{
		Status:     HealthStatusHealthy,
		Timestamp:  time.Now().UTC(),
		Version:    s.build.Version,
		Components: map[string]ComponentHealth{"store": storeHealth},
	}
	status := http.StatusOK
	if storeHealth.Status == ComponentStatusDown {
		h.Status = HealthStatusUnhealthy
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
