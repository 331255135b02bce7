package api

import (
	"net/http"

	"github.com/medina-app/medina/internal/gateway"
	"github.com/medina-app/medina/internal/probe"
)

// HandleProviderRequest returns a handler for POST /api/v1/provider/request.
// The body is gateway.Params; the response is always the full ProviderResult
// envelope, with the HTTP status derived from the error code on failure.
func HandleProviderRequest(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var params gateway.Params
		if !decodeBodyOrWriteInvalid(w, r, &params) {
			return
		}
		result := gw.ProviderRequest(r.Context(), params)
		status := http.StatusOK
		if !result.Success && result.Error != nil {
			status = gatewayStatus(result.Error.Code)
		}
		WriteJSON(w, status, result)
	}
}

// HandleProviderProbe returns a handler for POST /api/v1/provider/probe.
// It runs one blocking health probe and returns the outcome, refreshing the
// provider health record as a side effect.
func HandleProviderProbe(prober *probe.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := prober.ProbeSync(r.Context())
		if err != nil {
			WriteError(w, http.StatusBadGateway, "BAD_GATEWAY", "probe failed: "+err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, res)
	}
}
