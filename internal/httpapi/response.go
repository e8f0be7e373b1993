// Package httpapi implements the HTTP routes of spec §6 over
// github.com/gorilla/mux: telemetry ingestion, node/metric queries,
// alarm rule CRUD, and alarm event reads.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/clustermon/clustermon/internal/apierr"
)

const apiVersion = 1

// writeSuccess writes the uniform success envelope (spec §6
// "{api_version:1, status:"success", data:…}").
func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, map[string]any{
		"api_version": apiVersion,
		"status":      "success",
		"data":        data,
	})
}

// writeError writes the flat error envelope (spec §6 "{error:"..."}"),
// deriving the status code from the error's apierr.Code when present
// (spec §7 "status codes distinguish 400... 404... 500...").
func writeError(w http.ResponseWriter, err error) {
	status := apierr.StatusFor(err)
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeErrorMessage writes a flat error envelope for a handler-local
// validation failure with no underlying apierr.Error.
func writeErrorMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
