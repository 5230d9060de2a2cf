package sink

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kolkov/affinity/internal/affinity/checker"
)

// Handler serves diagnostics for a running monitor:
//
//	GET /problems        collected problems, oldest first
//	GET /problems/{id}   one problem
//	GET /stats           checker snapshot
//	GET /metrics         prometheus exposition
type Handler struct {
	collector *Collector
	stats     func() checker.Stats
	gatherer  prometheus.Gatherer
}

// NewHandler returns the diagnostics handler. collector, stats and
// gatherer may each be nil, in which case their routes answer 404.
func NewHandler(collector *Collector, stats func() checker.Stats, gatherer prometheus.Gatherer) http.Handler {
	h := &Handler{collector: collector, stats: stats, gatherer: gatherer}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	h.Register(r)
	return r
}

// Register mounts the routes on r.
func (h *Handler) Register(r chi.Router) {
	if h.collector != nil {
		r.Get("/problems", h.handleListProblems)
		r.Get("/problems/{id}", h.handleGetProblem)
	}
	if h.stats != nil {
		r.Get("/stats", h.handleStats)
	}
	if h.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}
}

func (h *Handler) handleListProblems(w http.ResponseWriter, _ *http.Request) {
	problems := h.collector.Problems()
	records := make([]Record, 0, len(problems))
	for _, p := range problems {
		records = append(records, NewRecord(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":    h.collector.Total(),
		"problems": records,
	})
}

func (h *Handler) handleGetProblem(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid problem id"})
		return
	}
	p, ok := h.collector.Find(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "problem not found"})
		return
	}
	writeJSON(w, http.StatusOK, NewRecord(p))
}

func (h *Handler) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.stats())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
