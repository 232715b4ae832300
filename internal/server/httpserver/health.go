package httpserver

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Health tracks the outcome of the most recent sync session.
type Health struct {
	mu          sync.RWMutex
	started     time.Time
	lastSuccess time.Time
	lastErr     error
	sessions    uint64
}

// NewHealth creates a Health with no sessions recorded.
func NewHealth() *Health {
	return &Health{started: time.Now()}
}

// Report records the result of a session.
func (h *Health) Report(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions++
	h.lastErr = err
	if err == nil {
		h.lastSuccess = time.Now()
	}
}

// HealthStatus is the /healthz response body.
type HealthStatus struct {
	Status      string     `json:"status"`
	Sessions    uint64     `json:"sessions"`
	Uptime      string     `json:"uptime"`
	LastSuccess *time.Time `json:"last_success,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// Status returns the current status. It is "failing" while the most
// recent session failed and "ok" otherwise.
func (h *Health) Status() HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s := HealthStatus{
		Status:   "ok",
		Sessions: h.sessions,
		Uptime:   time.Since(h.started).Round(time.Second).String(),
	}
	if !h.lastSuccess.IsZero() {
		t := h.lastSuccess
		s.LastSuccess = &t
	}
	if h.lastErr != nil {
		s.Status = "failing"
		s.LastError = h.lastErr.Error()
	}
	return s
}

// ServeHTTP writes the status as JSON, with 503 while failing.
func (h *Health) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	s := h.Status()
	w.Header().Set("Content-Type", "application/json")
	if s.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(s)
}
