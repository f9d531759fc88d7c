package observability

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// HealthChecker tracks liveness, readiness and the state of named
// dependencies (postgres, nats, ...).
type HealthChecker struct {
	ready     atomic.Bool
	startTime time.Time

	mu   sync.RWMutex
	deps map[string]string
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		startTime: time.Now(),
		deps:      make(map[string]string),
	}
}

// SetReady marks the service as ready to accept traffic.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// SetDependency records the status of a dependency. Any status other than
// "up" makes the service not ready.
func (h *HealthChecker) SetDependency(name, status string) {
	h.mu.Lock()
	h.deps[name] = status
	h.mu.Unlock()
}

func (h *HealthChecker) dependencies() (map[string]string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]string, len(h.deps))
	ok := true
	for name, status := range h.deps {
		out[name] = status
		if status != "up" {
			ok = false
		}
	}
	return out, ok
}

// LivenessHandler answers 200 while the process runs.
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "alive",
		"uptime": time.Since(h.startTime).String(),
	})
}

// ReadinessHandler answers 200 once recovery is done and every dependency
// is up, 503 otherwise.
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	deps, depsOK := h.dependencies()
	w.Header().Set("Content-Type", "application/json")
	if h.ready.Load() && depsOK {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":       "ready",
			"dependencies": deps,
		})
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":       "not_ready",
		"dependencies": deps,
	})
}
