package health

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"
)

// Checker probes one backend and returns an error when it is unusable.
type Checker func(ctx context.Context) error

// Status is the state of the service or one of its backends.
type Status string

const (
	StatusUp   Status = "up"
	StatusDown Status = "down"
)

// Response is the JSON body served by both probes.
type Response struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult reports one backend.
type CheckResult struct {
	Status    Status `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// Handler serves liveness and readiness. Only the optional backends the
// process was configured with register a checker, so a storefront running
// on the in-memory signal broker is ready with no checks at all.
type Handler struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	timeout  time.Duration
}

// NewHandler creates a handler giving each readiness run a 5s budget.
func NewHandler() *Handler {
	return &Handler{checkers: make(map[string]Checker), timeout: 5 * time.Second}
}

// Register adds or replaces the checker called name.
func (h *Handler) Register(name string, checker Checker) {
	h.mu.Lock()
	h.checkers[name] = checker
	h.mu.Unlock()
}

// Names lists the registered checkers in sorted order.
func (h *Handler) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.checkers))
	for n := range h.checkers {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// LivenessHandler answers 200 for as long as the process can serve HTTP.
func (h *Handler) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeResponse(w, http.StatusOK, Response{Status: StatusUp, Timestamp: time.Now().UTC()})
	}
}

// ReadinessHandler answers 503 when any backend is down.
func (h *Handler) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := h.Check(r.Context())
		code := http.StatusOK
		if resp.Status != StatusUp {
			code = http.StatusServiceUnavailable
		}
		writeResponse(w, code, resp)
	}
}

type namedResult struct {
	name string
	CheckResult
}

// Check probes every backend concurrently.
func (h *Handler) Check(ctx context.Context) Response {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	h.mu.RLock()
	results := make(chan namedResult, len(h.checkers))
	for name, check := range h.checkers {
		go func() {
			start := time.Now()
			res := CheckResult{Status: StatusUp}
			if err := check(ctx); err != nil {
				res = CheckResult{Status: StatusDown, Error: err.Error()}
			}
			res.LatencyMS = time.Since(start).Milliseconds()
			results <- namedResult{name: name, CheckResult: res}
		}()
	}
	n := len(h.checkers)
	h.mu.RUnlock()

	resp := Response{Status: StatusUp, Checks: make(map[string]CheckResult, n)}
	for range n {
		r := <-results
		resp.Checks[r.name] = r.CheckResult
		if r.Status == StatusDown {
			resp.Status = StatusDown
		}
	}
	resp.Timestamp = time.Now().UTC()
	return resp
}

func writeResponse(w http.ResponseWriter, code int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
