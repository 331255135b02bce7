package api

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/medina-app/medina/internal/alerting"
	"github.com/medina-app/medina/internal/breaker"
	"github.com/medina-app/medina/internal/gateway"
	"github.com/medina-app/medina/internal/geoip"
	"github.com/medina-app/medina/internal/loadshed"
	"github.com/medina-app/medina/internal/metrics"
	"github.com/medina-app/medina/internal/placecache"
	"github.com/medina-app/medina/internal/popsearch"
	"github.com/medina-app/medina/internal/probe"
	"github.com/medina-app/medina/internal/servicemode"
)

// Deps bundles the services the API server exposes. Optional members may be
// nil; their routes are simply not registered.
type Deps struct {
	Gateway    *gateway.Gateway
	Mode       *servicemode.Controller
	ModeRepo   *servicemode.Repo
	Tiles      *placecache.TileCache
	Searches   *popsearch.Service
	Shedder    *loadshed.Shedder
	Metrics    *metrics.Repo
	Alerts     *alerting.Repo
	GeoIP      *geoip.Service
	Breaker    *breaker.Breaker
	Prober     *probe.Manager
	SystemInfo SystemInfo
}

// Server wraps the HTTP server and mux for the medinad API.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer creates an API server wired with all routes.
func NewServer(listenAddress string, port int, adminToken string, apiMaxBodyBytes int64, deps Deps) *Server {
	mux := http.NewServeMux()

	// Public (no auth)
	mux.Handle("GET /healthz", HandleHealthz())

	authed := http.NewServeMux()

	if deps.Gateway != nil {
		authed.Handle("POST /api/v1/provider/request", HandleProviderRequest(deps.Gateway))
	}
	if deps.Prober != nil {
		authed.Handle("POST /api/v1/provider/probe", HandleProviderProbe(deps.Prober))
	}
	if deps.Mode != nil {
		authed.Handle("GET /api/v1/mode", HandleGetMode(deps.Mode))
		authed.Handle("PUT /api/v1/mode", HandleSetMode(deps.Mode))
		authed.Handle("GET /api/v1/mode/history", HandleModeHistory(deps.Mode))
	}
	if deps.ModeRepo != nil {
		authed.Handle("GET /api/v1/flags", HandleListFlags(deps.ModeRepo))
	}
	if deps.Tiles != nil {
		authed.Handle("POST /api/v1/tiles/check", HandleTileCheck(deps.Tiles))
		authed.Handle("POST /api/v1/tiles/write", HandleTileWrite(deps.Tiles))
		authed.Handle("POST /api/v1/tiles/viewport", HandleTilesForViewport(deps.Tiles))
	}
	if deps.Searches != nil {
		authed.Handle("POST /api/v1/searches/log", HandleLogSearch(deps.Searches))
		authed.Handle("GET /api/v1/searches/popular", HandlePopularSearches(deps.Searches))
		authed.Handle("GET /api/v1/searches/recent", HandleMyRecentSearches(deps.Searches))
		authed.Handle("DELETE /api/v1/searches/recent", HandleClearMySearches(deps.Searches))
	}
	if deps.Shedder != nil {
		authed.Handle("GET /api/v1/load", HandleLoadState(deps.Shedder))
	}
	if deps.Metrics != nil {
		authed.Handle("GET /api/v1/metrics/summary", HandleMetricSummary(deps.Metrics))
		authed.Handle("GET /api/v1/metrics/cache-hit-rate", HandleCacheHitRate(deps.Metrics))
		authed.Handle("GET /api/v1/metrics/error-rate", HandleErrorRate(deps.Metrics))
	}
	if deps.Alerts != nil {
		authed.Handle("GET /api/v1/alerts", HandleListAlerts(deps.Alerts))
	}
	if deps.GeoIP != nil {
		authed.Handle("GET /api/v1/geoip/lookup", HandleGeoIPLookup(deps.GeoIP))
		authed.Handle("GET /api/v1/geoip/status", HandleGeoIPStatus(deps.GeoIP))
	}
	authed.Handle("GET /api/v1/system/info", HandleSystemInfo(deps.SystemInfo, deps.Breaker))

	limitedAuthed := RequestBodyLimitMiddleware(apiMaxBodyBytes, authed)
	mux.Handle("/api/", AuthMiddleware(adminToken, limitedAuthed))

	srv := &http.Server{
		Addr:    net.JoinHostPort(listenAddress, strconv.Itoa(port)),
		Handler: mux,
	}

	return &Server{httpServer: srv, mux: mux}
}

// ListenAndServe starts the HTTP server. It blocks until the server stops.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.mux
}
