package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dotlink-ops/nexus-ingest/internal/api/middleware"
	"github.com/go-chi/chi/v5"
)

// Pinger checks backing-store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ItemCounter reports how many items await processing.
type ItemCounter interface {
	CountUnprocessed(ctx context.Context) (int, error)
}

// SummaryCounter reports how many clients have a current summary.
type SummaryCounter interface {
	CountSummaries(ctx context.Context) (int, error)
}

// RouterConfig wires the ops endpoints of the worker daemon.
type RouterConfig struct {
	DB        Pinger
	Items     ItemCounter
	Summaries SummaryCounter
}

// NewRouter builds the ops HTTP surface: health and pipeline stats only.
// There is no CRUD or search API on this service.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if cfg.DB != nil {
			if err := cfg.DB.Ping(req.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
		pending, err := cfg.Items.CountUnprocessed(req.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		summaries, err := cfg.Summaries.CountSummaries(req.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{
			"pending_items":    pending,
			"client_summaries": summaries,
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
