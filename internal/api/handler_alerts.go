package api

import (
	"net/http"

	"github.com/medina-app/medina/internal/alerting"
)

// HandleListAlerts returns a handler for GET /api/v1/alerts.
func HandleListAlerts(repo *alerting.Repo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := parseLimit(r, 50)
		if !ok {
			writeInvalidArgument(w, "limit must be a positive integer")
			return
		}
		alerts, err := repo.ListRecent(limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to load alerts")
			return
		}
		items := make([]map[string]any, len(alerts))
		for i, a := range alerts {
			items[i] = map[string]any{
				"id":            a.ID,
				"thresholdKey":  a.ThresholdKey,
				"severity":      a.Severity,
				"message":       a.Message,
				"value":         a.Value,
				"triggeredAtNs": a.TriggeredAtNs,
				"resolvedAtNs":  a.ResolvedAtNs,
			}
		}
		WriteJSON(w, http.StatusOK, map[string]any{"items": items})
	}
}
