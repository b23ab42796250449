package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeSource struct {
	volumes []VolumeSnapshot
}

func (f fakeSource) Volumes() []VolumeSnapshot         { return f.volumes }
func (f fakeSource) QueueDepths() []QueueDepthSnapshot { return nil }

func resetChecker() {
	checker = &healthChecker{startTime: time.Now()}
}

func TestGetHealth_NoSourceIsUnhealthy(t *testing.T) {
	resetChecker()

	health := GetHealth()
	if health.Status != "unhealthy" {
		t.Errorf("expected status 'unhealthy', got '%s'", health.Status)
	}
}

func TestGetHealth_AllVolumesHealthy(t *testing.T) {
	resetChecker()
	SetVersion("1.0.0")
	SetSource(fakeSource{volumes: []VolumeSnapshot{
		{VolumeID: "v1", Healthy: true, AvailableSpace: 1024},
		{VolumeID: "v2", Healthy: true, AvailableSpace: 2048},
	}})

	health := GetHealth()
	if health.Status != "healthy" {
		t.Errorf("expected status 'healthy', got '%s'", health.Status)
	}
	if len(health.Volumes) != 2 {
		t.Errorf("expected 2 volumes, got %d", len(health.Volumes))
	}
	if health.Version != "1.0.0" {
		t.Errorf("expected version '1.0.0', got '%s'", health.Version)
	}
}

func TestGetHealth_OneVolumeUnhealthyIsDegraded(t *testing.T) {
	resetChecker()
	SetSource(fakeSource{volumes: []VolumeSnapshot{
		{VolumeID: "v1", Healthy: true},
		{VolumeID: "v2", Healthy: false},
	}})

	health := GetHealth()
	if health.Status != "degraded" {
		t.Errorf("expected status 'degraded', got '%s'", health.Status)
	}
	if health.Volumes["v2"] != "unhealthy" {
		t.Errorf("unexpected v2 status: %s", health.Volumes["v2"])
	}
}

func TestGetHealth_AllVolumesUnhealthyIsUnhealthy(t *testing.T) {
	resetChecker()
	SetSource(fakeSource{volumes: []VolumeSnapshot{
		{VolumeID: "v1", Healthy: false},
	}})

	health := GetHealth()
	if health.Status != "unhealthy" {
		t.Errorf("expected status 'unhealthy', got '%s'", health.Status)
	}
}

func TestGetReadiness_NotReadyBeforeGateSet(t *testing.T) {
	resetChecker()
	SetSource(fakeSource{volumes: []VolumeSnapshot{{VolumeID: "v1", Healthy: true}}})

	readiness := GetReadiness()
	if readiness.Status != "not_ready" {
		t.Errorf("expected status 'not_ready', got '%s'", readiness.Status)
	}
	if readiness.Message == "" {
		t.Error("expected message explaining why not ready")
	}
}

func TestGetReadiness_ReadyOnceGateSetAndVolumeHealthy(t *testing.T) {
	resetChecker()
	SetSource(fakeSource{volumes: []VolumeSnapshot{{VolumeID: "v1", Healthy: true}}})
	SetReady(true)

	readiness := GetReadiness()
	if readiness.Status != "ready" {
		t.Errorf("expected status 'ready', got '%s'", readiness.Status)
	}
}

func TestGetReadiness_NotReadyWhenNoHealthyVolume(t *testing.T) {
	resetChecker()
	SetSource(fakeSource{volumes: []VolumeSnapshot{{VolumeID: "v1", Healthy: false}}})
	SetReady(true)

	readiness := GetReadiness()
	if readiness.Status != "not_ready" {
		t.Errorf("expected status 'not_ready', got '%s'", readiness.Status)
	}
}

func TestHealthHandler(t *testing.T) {
	resetChecker()
	SetVersion("test")
	SetSource(fakeSource{volumes: []VolumeSnapshot{{VolumeID: "v1", Healthy: true}}})

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	HealthHandler()(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var health HealthStatus
	if err := json.NewDecoder(w.Body).Decode(&health); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if health.Status != "healthy" {
		t.Errorf("expected healthy status, got %s", health.Status)
	}
	if health.Version != "test" {
		t.Errorf("expected version 'test', got %s", health.Version)
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	resetChecker()

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	HealthHandler()(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}

	var health HealthStatus
	if err := json.NewDecoder(w.Body).Decode(&health); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if health.Status != "unhealthy" {
		t.Errorf("expected unhealthy status, got %s", health.Status)
	}
}

func TestReadyHandler(t *testing.T) {
	resetChecker()
	SetSource(fakeSource{volumes: []VolumeSnapshot{{VolumeID: "v1", Healthy: true}}})
	SetReady(true)

	req := httptest.NewRequest("GET", "/ready", nil)
	w := httptest.NewRecorder()
	ReadyHandler()(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var readiness HealthStatus
	if err := json.NewDecoder(w.Body).Decode(&readiness); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if readiness.Status != "ready" {
		t.Errorf("expected ready status, got %s", readiness.Status)
	}
}

func TestReadyHandler_NotReady(t *testing.T) {
	resetChecker()
	SetSource(fakeSource{volumes: []VolumeSnapshot{{VolumeID: "v1", Healthy: true}}})

	req := httptest.NewRequest("GET", "/ready", nil)
	w := httptest.NewRecorder()
	ReadyHandler()(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}

	var readiness HealthStatus
	if err := json.NewDecoder(w.Body).Decode(&readiness); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if readiness.Status != "not_ready" {
		t.Errorf("expected not_ready status, got %s", readiness.Status)
	}
}

func TestLivenessHandler(t *testing.T) {
	resetChecker()

	req := httptest.NewRequest("GET", "/live", nil)
	w := httptest.NewRecorder()
	LivenessHandler()(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var response map[string]string
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response["status"] != "alive" {
		t.Errorf("expected status 'alive', got '%s'", response["status"])
	}
	if response["uptime"] == "" {
		t.Error("uptime should not be empty")
	}
}
