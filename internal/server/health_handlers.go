package server

import (
	"net/http"
	"os"
	"time"
)

// HealthStatus represents operational status for the /health endpoint.
type HealthStatus struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Database  string         `json:"database"`
	Storage   string         `json:"storage"`
	Encoder   string         `json:"encoder"`
	Projects  int            `json:"projectCount"`
	Effects   int            `json:"effectCount"`
	PublicURL string         `json:"publicUrl,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// availability is implemented by encoders that depend on an external binary.
type availability interface {
	Available() error
}

// handleHealthCheck returns basic liveness + dependency checks.
func (ms *MixServer) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	health := &HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Database:  "ok",
		Storage:   "ok",
		Encoder:   "ok",
		Details:   make(map[string]any),
	}

	if err := ms.db.Ping(); err != nil {
		health.Status = "unhealthy"
		health.Database = "error"
		health.Details["database_error"] = err.Error()
	} else if projects, err := ms.db.ListProjects(""); err != nil {
		health.Details["project_count_error"] = err.Error()
	} else {
		health.Projects = len(projects)
	}

	if err := ms.checkStorageHealth(); err != nil {
		health.Status = "unhealthy"
		health.Storage = "error"
		health.Details["storage_error"] = err.Error()
	}

	// Without an encoder binary exports fail but everything else works.
	if a, ok := ms.encoder.(availability); ok {
		if err := a.Available(); err != nil {
			health.Status = "degraded"
			health.Encoder = "unavailable"
			health.Details["encoder_error"] = err.Error()
		}
	}

	health.PublicURL = ms.tunnel.PublicURL()
	if ms.catalog != nil {
		health.Effects = len(ms.catalog.List())
	}

	status := http.StatusOK
	if health.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	ms.respondJSON(w, status, health)
}

// checkStorageHealth validates the media root is an accessible directory.
func (ms *MixServer) checkStorageHealth() error {
	info, err := os.Stat(ms.library.Root())
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &os.PathError{Op: "stat", Path: ms.library.Root(), Err: os.ErrInvalid}
	}
	return nil
}
