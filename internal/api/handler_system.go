package api

import (
	"net/http"

	"github.com/medina-app/medina/internal/breaker"
	"github.com/medina-app/medina/internal/buildinfo"
	"github.com/medina-app/medina/internal/servicemode"
)

// SystemInfo is the static process identity reported by the system endpoint.
type SystemInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	BuildTime string `json:"buildTime"`
}

// NewSystemInfo builds the SystemInfo from linker-injected build metadata.
func NewSystemInfo() SystemInfo {
	return SystemInfo{
		Name:      "medinad",
		Version:   buildinfo.Version,
		GitCommit: buildinfo.GitCommit,
		BuildTime: buildinfo.BuildTime,
	}
}

// HandleSystemInfo returns a handler for GET /api/v1/system/info: build
// identity plus the live provider circuit state.
func HandleSystemInfo(info SystemInfo, br *breaker.Breaker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"name":      info.Name,
			"version":   info.Version,
			"gitCommit": info.GitCommit,
			"buildTime": info.BuildTime,
		}
		if br != nil {
			resp["providerCircuit"] = br.Snapshot(servicemode.ProviderService)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}
