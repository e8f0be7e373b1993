package httpapi

import (
	"io"
	"net/http"

	"github.com/clustermon/clustermon/internal/registry"
	"github.com/clustermon/clustermon/internal/tsdb"
)

// heartbeatHandler implements POST /heartbeat (spec §6).
func heartbeatHandler(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeErrorMessage(w, http.StatusBadRequest, "failed to read body")
			return
		}
		info, err := decodeHeartbeat(body)
		if err != nil {
			writeError(w, err)
			return
		}
		reg.UpsertHeartbeat(info)
		writeSuccess(w, http.StatusOK, nil)
	}
}

// resourceHandler implements POST /resource (spec §6).
func resourceHandler(store *tsdb.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeErrorMessage(w, http.StatusBadRequest, "failed to read body")
			return
		}
		hostIP, snap, err := decodeResource(body)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := store.Insert(r.Context(), hostIP, snap); err != nil {
			writeError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, nil)
	}
}
