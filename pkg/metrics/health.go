package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// HealthStatus is the JSON body served by /health, /ready, and /live.
type HealthStatus struct {
	Status    string            `json:"status"` // "healthy", "degraded", "unhealthy", "ready", "not_ready"
	Timestamp time.Time         `json:"timestamp"`
	Volumes   map[string]string `json:"volumes,omitempty"`
	Message   string            `json:"message,omitempty"`
	Version   string            `json:"version,omitempty"`
	Uptime    string            `json:"uptime,omitempty"`
	StartTime time.Time         `json:"-"`
}

// checker derives /health and /ready from the same Source the
// Collector polls, so the endpoints report the pool's actual volume
// state instead of a hand-maintained component registry.
var checker = &healthChecker{startTime: time.Now()}

type healthChecker struct {
	mu        sync.RWMutex
	source    Source
	version   string
	startTime time.Time
	ready     atomic.Bool
}

// SetVersion records the build version reported by health endpoints.
func SetVersion(version string) {
	checker.mu.Lock()
	defer checker.mu.Unlock()
	checker.version = version
}

// SetSource wires the pool/tenant Source the health checker reads
// volume state from. Call once at startup, before the HTTP handlers
// begin serving traffic.
func SetSource(source Source) {
	checker.mu.Lock()
	defer checker.mu.Unlock()
	checker.source = source
}

// SetReady flips the readiness gate. The host calls this once, after
// the startup recovery sweep has finished and the reconciler loop has
// started, so /ready returns not_ready for the window in between.
func SetReady(ready bool) {
	checker.ready.Store(ready)
}

// GetHealth reports per-volume health pulled from the wired Source.
// Status is unhealthy if no Source is wired or every volume is
// unhealthy, degraded if some but not all volumes are unhealthy, and
// healthy otherwise.
func GetHealth() HealthStatus {
	checker.mu.RLock()
	source := checker.source
	version := checker.version
	checker.mu.RUnlock()

	volumes := make(map[string]string)
	healthyCount := 0
	if source != nil {
		for _, v := range source.Volumes() {
			if v.Healthy {
				healthyCount++
				volumes[v.VolumeID] = "healthy"
			} else {
				volumes[v.VolumeID] = "unhealthy"
			}
		}
	}

	status := "healthy"
	switch {
	case source == nil || len(volumes) == 0 || healthyCount == 0:
		status = "unhealthy"
	case healthyCount < len(volumes):
		status = "degraded"
	}

	return HealthStatus{
		Status:    status,
		Timestamp: time.Now(),
		Volumes:   volumes,
		Version:   version,
		Uptime:    time.Since(checker.startTime).String(),
		StartTime: checker.startTime,
	}
}

// GetReadiness reports whether the store can accept writes: the
// readiness gate must be set and at least one volume must be healthy.
func GetReadiness() HealthStatus {
	health := GetHealth()

	if !checker.ready.Load() {
		health.Status = "not_ready"
		health.Message = "waiting for startup recovery sweep"
		return health
	}
	if health.Status == "unhealthy" {
		health.Status = "not_ready"
		health.Message = "no healthy volume"
		return health
	}
	health.Status = "ready"
	return health
}

// HealthHandler serves /health.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := GetHealth()

		w.Header().Set("Content-Type", "application/json")
		statusCode := http.StatusOK
		if health.Status == "unhealthy" {
			statusCode = http.StatusServiceUnavailable
		}
		w.WriteHeader(statusCode)
		_ = json.NewEncoder(w).Encode(health)
	}
}

// ReadyHandler serves /ready.
func ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		readiness := GetReadiness()

		w.Header().Set("Content-Type", "application/json")
		statusCode := http.StatusOK
		if readiness.Status != "ready" {
			statusCode = http.StatusServiceUnavailable
		}
		w.WriteHeader(statusCode)
		_ = json.NewEncoder(w).Encode(readiness)
	}
}

// LivenessHandler serves /live: 200 as long as the process is running.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "alive",
			"uptime": time.Since(checker.startTime).String(),
		})
	}
}
