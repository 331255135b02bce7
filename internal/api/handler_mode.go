package api

import (
	"net/http"
	"strconv"

	"github.com/medina-app/medina/internal/servicemode"
)

// HandleGetMode returns a handler for GET /api/v1/mode.
func HandleGetMode(ctrl *servicemode.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := ctrl.Mode()
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to load service mode")
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"currentMode": rec.CurrentMode,
			"reason":      rec.Reason,
			"enteredAtNs": rec.EnteredAtNs,
			"updatedAtNs": rec.UpdatedAtNs,
			"triggers": map[string]bool{
				"providerHealthy": rec.ProviderHealthy,
				"budgetOk":        rec.BudgetOk,
				"latencyOk":       rec.LatencyOk,
				"breakerClosed":   rec.BreakerClosed,
			},
		})
	}
}

type setModeRequest struct {
	Mode   *int   `json:"mode"`
	Reason string `json:"reason"`
}

// HandleSetMode returns a handler for PUT /api/v1/mode. Manual overrides are
// recorded with a "manual_" reason prefix.
func HandleSetMode(ctrl *servicemode.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req setModeRequest
		if !decodeBodyOrWriteInvalid(w, r, &req) {
			return
		}
		if req.Mode == nil {
			writeInvalidArgument(w, "mode is required")
			return
		}
		reason := req.Reason
		if reason == "" {
			reason = "operator"
		}
		if err := ctrl.SetMode(*req.Mode, "manual_"+reason); err != nil {
			WriteError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
			return
		}
		rec, err := ctrl.Mode()
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to load service mode")
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"currentMode": rec.CurrentMode,
			"reason":      rec.Reason,
			"enteredAtNs": rec.EnteredAtNs,
		})
	}
}

// HandleModeHistory returns a handler for GET /api/v1/mode/history.
func HandleModeHistory(ctrl *servicemode.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 20
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				writeInvalidArgument(w, "limit must be a positive integer")
				return
			}
			limit = n
		}
		history, err := ctrl.History(limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to load mode history")
			return
		}
		items := make([]map[string]any, len(history))
		for i, t := range history {
			items[i] = map[string]any{
				"fromMode":         t.FromMode,
				"toMode":           t.ToMode,
				"reason":           t.Reason,
				"transitionedAtNs": t.TransitionedAtNs,
			}
		}
		WriteJSON(w, http.StatusOK, map[string]any{"items": items})
	}
}

// HandleListFlags returns a handler for GET /api/v1/flags.
func HandleListFlags(repo *servicemode.Repo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flags, err := repo.ListFlags()
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to load flags")
			return
		}
		items := make([]map[string]any, len(flags))
		for i, f := range flags {
			items[i] = map[string]any{
				"key":         f.Key,
				"enabled":     f.Enabled,
				"reason":      f.Reason,
				"updatedAtNs": f.UpdatedAtNs,
			}
		}
		WriteJSON(w, http.StatusOK, map[string]any{"items": items})
	}
}
