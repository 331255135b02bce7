package api

import (
	"net/http"
	"strconv"

	"github.com/medina-app/medina/internal/popsearch"
)

type logSearchRequest struct {
	Query       string `json:"query"`
	City        string `json:"city"`
	ResultCount int    `json:"resultCount"`
}

// HandleLogSearch returns a handler for POST /api/v1/searches/log. Logging
// is fire-and-forget: anonymous callers and PII-bearing queries are dropped
// without an error so clients cannot probe the filter.
func HandleLogSearch(svc *popsearch.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req logSearchRequest
		if !decodeBodyOrWriteInvalid(w, r, &req) {
			return
		}
		if req.Query == "" {
			writeInvalidArgument(w, "query is required")
			return
		}
		svc.LogRecentSearch(userID(r), req.Query, req.City, req.ResultCount)
		WriteJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	}
}

func parseLimit(r *http.Request, def int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// HandlePopularSearches returns a handler for GET /api/v1/searches/popular.
func HandlePopularSearches(svc *popsearch.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := parseLimit(r, 10)
		if !ok {
			writeInvalidArgument(w, "limit must be a positive integer")
			return
		}
		items, err := svc.GetPopularSearches(r.URL.Query().Get("city"), limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to load popular searches")
			return
		}
		if items == nil {
			items = []popsearch.PopularSearch{}
		}
		WriteJSON(w, http.StatusOK, map[string]any{"items": items})
	}
}

// HandleMyRecentSearches returns a handler for GET /api/v1/searches/recent.
func HandleMyRecentSearches(svc *popsearch.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := userID(r)
		if uid == "" {
			WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "user identity required")
			return
		}
		limit, ok := parseLimit(r, 10)
		if !ok {
			writeInvalidArgument(w, "limit must be a positive integer")
			return
		}
		items, err := svc.GetMyRecentSearches(uid, limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to load recent searches")
			return
		}
		if items == nil {
			items = []popsearch.RecentSearch{}
		}
		WriteJSON(w, http.StatusOK, map[string]any{"items": items})
	}
}

// HandleClearMySearches returns a handler for DELETE /api/v1/searches/recent.
func HandleClearMySearches(svc *popsearch.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := userID(r)
		if uid == "" {
			WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "user identity required")
			return
		}
		n, err := svc.ClearMySearchHistory(uid)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to clear search history")
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"deleted": n})
	}
}
