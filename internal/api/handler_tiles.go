package api

import (
	"net/http"

	"github.com/medina-app/medina/internal/geohash"
	"github.com/medina-app/medina/internal/placecache"
	"github.com/medina-app/medina/internal/placekey"
)

type tileCheckRequest struct {
	TileKeys []string `json:"tileKeys"`
	Zoom     int      `json:"zoom"`
}

func validZoom(zoom int) bool {
	return zoom >= 1 && zoom <= 22
}

// HandleTileCheck returns a handler for POST /api/v1/tiles/check.
func HandleTileCheck(tiles *placecache.TileCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tileCheckRequest
		if !decodeBodyOrWriteInvalid(w, r, &req) {
			return
		}
		if len(req.TileKeys) == 0 {
			writeInvalidArgument(w, "tileKeys must not be empty")
			return
		}
		if !validZoom(req.Zoom) {
			writeInvalidArgument(w, "zoom must be 1..22")
			return
		}
		hits, misses := tiles.CheckBatch(req.TileKeys, req.Zoom)
		WriteJSON(w, http.StatusOK, map[string]any{"hits": hits, "misses": misses})
	}
}

type tileWriteRequest struct {
	TileKey   string   `json:"tileKey"`
	Zoom      int      `json:"zoom"`
	PlaceKeys []string `json:"placeKeys"`
	Provider  string   `json:"provider"`
}

// HandleTileWrite returns a handler for POST /api/v1/tiles/write. Every
// place key is validated; a single malformed key rejects the whole write.
func HandleTileWrite(tiles *placecache.TileCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tileWriteRequest
		if !decodeBodyOrWriteInvalid(w, r, &req) {
			return
		}
		if req.TileKey == "" {
			writeInvalidArgument(w, "tileKey is required")
			return
		}
		if !validZoom(req.Zoom) {
			writeInvalidArgument(w, "zoom must be 1..22")
			return
		}
		for _, k := range req.PlaceKeys {
			if _, err := placekey.Parse(k); err != nil {
				writeInvalidArgument(w, err.Error())
				return
			}
		}
		provider := req.Provider
		if provider == "" {
			provider = "google_places"
		}
		if err := tiles.Write(req.TileKey, req.Zoom, req.PlaceKeys, provider); err != nil {
			WriteError(w, http.StatusInternalServerError, "INTERNAL", "tile write failed")
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"written": len(req.PlaceKeys)})
	}
}

type viewportRequest struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
	Zoom  int     `json:"zoom"`
}

// HandleTilesForViewport returns a handler for POST /api/v1/tiles/viewport.
func HandleTilesForViewport(tiles *placecache.TileCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req viewportRequest
		if !decodeBodyOrWriteInvalid(w, r, &req) {
			return
		}
		if !validZoom(req.Zoom) {
			writeInvalidArgument(w, "zoom must be 1..22")
			return
		}
		if req.North <= req.South {
			writeInvalidArgument(w, "north must be greater than south")
			return
		}
		bounds := geohash.Bounds{North: req.North, South: req.South, East: req.East, West: req.West}
		hits, misses := tiles.TilesForViewport(bounds, req.Zoom)
		WriteJSON(w, http.StatusOK, map[string]any{
			"precision": geohash.PrecisionForZoom(req.Zoom),
			"hits":      hits,
			"misses":    misses,
		})
	}
}
