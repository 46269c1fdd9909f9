package handler

import (
	"context"
	"net/http"
	"time"
)

// Pinger reports whether a storage backend is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// RuntimeStats is the live load reported by /health
type RuntimeStats struct {
	Contexts      int               `json:"contexts"`
	ActiveJobs    int               `json:"active_jobs"`
	QueuedCalls   int               `json:"queued_calls"`
	CircuitStates map[string]string `json:"circuit_states"`
}

// HealthHandler handles service health and readiness checks
type HealthHandler struct {
	storage     Pinger
	stats       func() RuntimeStats
	storageName string
	startTime   time.Time
	version     string
}

// NewHealthHandler creates a new health handler. stats may be nil.
func NewHealthHandler(storage Pinger, stats func() RuntimeStats, storageName, version string) *HealthHandler {
	return &HealthHandler{
		storage:     storage,
		stats:       stats,
		storageName: storageName,
		startTime:   time.Now(),
		version:     version,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Timestamp     string `json:"timestamp"`
	Storage       string `json:"storage"`
	StorageStatus string `json:"storage_status"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	Runtime *RuntimeStats `json:"runtime,omitempty"`
}

// ReadyResponse represents the readiness check response
type ReadyResponse struct {
	Ready         bool   `json:"ready"`
	StorageStatus string `json:"storage_status"`
}

func (h *HealthHandler) storageStatus(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := h.storage.Ping(ctx); err != nil {
		return "disconnected"
	}
	return "connected"
}

// Health returns the service health status
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "healthy",
		Version:       h.version,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Storage:       h.storageName,
		StorageStatus: h.storageStatus(r.Context()),
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	}
	if h.stats != nil {
		stats := h.stats()
		resp.Runtime = &stats
	}
	writeJSON(w, http.StatusOK, resp)
}

// Ready returns the service readiness status
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	status := h.storageStatus(r.Context())
	ready := status == "connected"

	statusCode := http.StatusOK
	if !ready {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, ReadyResponse{
		Ready:         ready,
		StorageStatus: status,
	})
}
