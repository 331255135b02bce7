package api

import (
	"net/http"

	"github.com/medina-app/medina/internal/loadshed"
)

// HandleLoadState returns a handler for GET /api/v1/load.
func HandleLoadState(shedder *loadshed.Shedder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, shedder.Snapshot())
	}
}
