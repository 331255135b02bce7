package api

import (
	"net/http"
	"time"

	"github.com/medina-app/medina/internal/metrics"
)

const maxMetricWindow = 7 * 24 * time.Hour

func parseWindow(r *http.Request, def time.Duration) (time.Duration, bool) {
	raw := r.URL.Query().Get("window")
	if raw == "" {
		return def, true
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 || d > maxMetricWindow {
		return 0, false
	}
	return d, true
}

// HandleMetricSummary returns a handler for GET /api/v1/metrics/summary.
// Query params: name (required), window (default 1h), endpoint (optional).
func HandleMetricSummary(repo *metrics.Repo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		if name == "" {
			writeInvalidArgument(w, "name is required")
			return
		}
		window, ok := parseWindow(r, time.Hour)
		if !ok {
			writeInvalidArgument(w, "window must be a positive duration up to 168h")
			return
		}
		now := time.Now()
		s, err := repo.QuerySummary(name, now.Add(-window).UnixNano(), now.UnixNano(),
			r.URL.Query().Get("endpoint"))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "INTERNAL", "metric query failed")
			return
		}
		WriteJSON(w, http.StatusOK, s)
	}
}

// HandleCacheHitRate returns a handler for GET /api/v1/metrics/cache-hit-rate.
func HandleCacheHitRate(repo *metrics.Repo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		window, ok := parseWindow(r, time.Hour)
		if !ok {
			writeInvalidArgument(w, "window must be a positive duration up to 168h")
			return
		}
		now := time.Now()
		rate, hasData, err := repo.CacheHitRate(now.Add(-window).UnixNano(), now.UnixNano(),
			r.URL.Query().Get("endpoint"))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "INTERNAL", "metric query failed")
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"rate": rate, "hasData": hasData})
	}
}

// HandleErrorRate returns a handler for GET /api/v1/metrics/error-rate.
func HandleErrorRate(repo *metrics.Repo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		window, ok := parseWindow(r, time.Hour)
		if !ok {
			writeInvalidArgument(w, "window must be a positive duration up to 168h")
			return
		}
		now := time.Now()
		rate, hasData, err := repo.ErrorRate(now.Add(-window).UnixNano(), now.UnixNano())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "INTERNAL", "metric query failed")
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"rate": rate, "hasData": hasData})
	}
}
