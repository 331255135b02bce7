package api

import (
	"net/http"

	"github.com/medina-app/medina/internal/buildinfo"
)

// HandleHealthz returns a handler for GET /healthz. This is process
// liveness only; provider health is reflected by the mode endpoints.
// No authentication is required.
func HandleHealthz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"version": buildinfo.Version,
		})
	}
}
