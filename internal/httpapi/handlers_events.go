package httpapi

import (
	"net/http"

	"github.com/clustermon/clustermon/internal/eventstore"
)

// listEventsHandler implements GET
// /alarm/events?status=&page=&page_size=&limit= (spec §6). When `limit`
// is given, it returns a flat, most-recent-first list with no pagination
// metadata; otherwise it paginates on page/page_size.
func listEventsHandler(store *eventstore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := r.URL.Query().Get("status")

		if limit := queryInt(r, "limit", 0); limit > 0 {
			if status == "" {
				rows, err := store.ListRecent(r.Context(), limit)
				if err != nil {
					writeError(w, err)
					return
				}
				writeSuccess(w, http.StatusOK, rows)
				return
			}
			result, err := store.ListPaginated(r.Context(), 1, limit, status)
			if err != nil {
				writeError(w, err)
				return
			}
			writeSuccess(w, http.StatusOK, result.Items)
			return
		}

		page := queryInt(r, "page", 1)
		pageSize := queryInt(r, "page_size", 20)
		result, err := store.ListPaginated(r.Context(), page, pageSize, status)
		if err != nil {
			writeError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, result)
	}
}

// countEventsHandler implements GET /alarm/events/count?status=.
func countEventsHandler(store *eventstore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := r.URL.Query().Get("status")
		n, err := store.CountTotal(r.Context(), status)
		if err != nil {
			writeError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, map[string]int{"count": n})
	}
}
