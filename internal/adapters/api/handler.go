// Package api exposes the operator-facing admin HTTP surface: health,
// Prometheus metrics, blocklist statistics, and an on-demand blocklist
// reload. It intentionally does not expose per-zone CRUD over HTTP —
// zones are managed via zone files and RFC 2136 dynamic update, not a
// REST API.
package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/heimdall-dns/heimdall/internal/blocklist"
	"github.com/heimdall-dns/heimdall/internal/core/ports"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// BlocklistStats is the subset of the blocklist manager's surface the
// admin API needs; satisfied by *blocklist.Manager.
type BlocklistStats interface {
	Stats() blocklist.BuildStats
	Count() int
	Reload() error
}

// APIHandler serves the admin HTTP surface.
type APIHandler struct {
	svc        ports.ZoneService
	blocklist  BlocklistStats
	adminToken string
}

// NewAPIHandler creates and returns a new APIHandler instance. blocklist
// may be nil if domain blocking is disabled.
func NewAPIHandler(svc ports.ZoneService, blocklist BlocklistStats, adminToken string) *APIHandler {
	return &APIHandler{svc: svc, blocklist: blocklist, adminToken: adminToken}
}

// RegisterRoutes registers the admin routes with the provided ServeMux.
func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.HealthCheck)
	mux.HandleFunc("GET /metrics", h.Metrics)

	auth := AuthMiddleware(h.adminToken)
	admin := RequireRole("admin")

	mux.Handle("GET /blockstats", auth(http.HandlerFunc(h.BlockStats)))
	mux.Handle("POST /reload-blocklist", auth(admin(http.HandlerFunc(h.ReloadBlocklist))))
}

// Metrics handles Prometheus metrics scraping requests.
func (h *APIHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// HealthCheck handles health check requests.
func (h *APIHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "UP"
	details := make(map[string]string)
	checks := h.svc.HealthCheck(r.Context())

	for name, checkErr := range checks {
		if checkErr != nil {
			status = "DEGRADED"
			details[name] = checkErr.Error()
		} else {
			details[name] = "OK"
		}
	}

	resp := map[string]interface{}{
		"status":  status,
		"details": details,
	}

	w.Header().Set("Content-Type", "application/json")
	if status == "DEGRADED" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("failed to encode health check response: %v", err)
	}
}

// BlockStats reports blocklist matcher statistics.
func (h *APIHandler) BlockStats(w http.ResponseWriter, r *http.Request) {
	if h.blocklist == nil {
		http.Error(w, "blocking disabled", http.StatusNotFound)
		return
	}
	resp := struct {
		Active int                  `json:"active_entries"`
		Build  blocklist.BuildStats `json:"build"`
	}{
		Active: h.blocklist.Count(),
		Build:  h.blocklist.Stats(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("failed to encode blocklist stats: %v", err)
	}
}

// ReloadBlocklist triggers an out-of-band rebuild of the blocklist trie.
func (h *APIHandler) ReloadBlocklist(w http.ResponseWriter, r *http.Request) {
	if h.blocklist == nil {
		http.Error(w, "blocking disabled", http.StatusNotFound)
		return
	}
	if err := h.blocklist.Reload(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
