package api

import (
	"net/http"
	"net/netip"

	"github.com/medina-app/medina/internal/geoip"
)

// HandleGeoIPLookup returns a handler for GET /api/v1/geoip/lookup?ip=…
func HandleGeoIPLookup(svc *geoip.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.Query().Get("ip")
		if raw == "" {
			writeInvalidArgument(w, "ip is required")
			return
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			writeInvalidArgument(w, "ip must be a valid IP address")
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{
			"ip":   addr.String(),
			"city": svc.LookupCity(addr),
		})
	}
}

// HandleGeoIPStatus returns a handler for GET /api/v1/geoip/status.
func HandleGeoIPStatus(svc *geoip.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		last := svc.LastUpdated()
		resp := map[string]any{"loaded": !last.IsZero()}
		if !last.IsZero() {
			resp["lastUpdated"] = last.UTC()
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}
