package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/clustermon/clustermon/internal/apierr"
	"github.com/clustermon/clustermon/internal/model"
	"github.com/clustermon/clustermon/internal/rulestore"
)

// ruleEnvelope mirrors the {data: AlarmRule} envelope the rule CRUD
// routes share (spec §6).
type ruleEnvelope struct {
	Data model.AlarmRule `json:"data"`
}

func decodeRule(body []byte) (model.AlarmRule, error) {
	var env ruleEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return model.AlarmRule{}, apierr.New(apierr.CodeInvalidInput, "malformed rule body")
	}
	return env.Data, nil
}

// createRuleHandler implements POST /alarm/rules.
func createRuleHandler(store *rulestore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeErrorMessage(w, http.StatusBadRequest, "failed to read body")
			return
		}
		rule, err := decodeRule(body)
		if err != nil {
			writeError(w, err)
			return
		}
		created, err := store.Create(r.Context(), rule)
		if err != nil {
			writeError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, created)
	}
}

// listRulesHandler implements GET /alarm/rules?page=&page_size=&enabled_only=.
func listRulesHandler(store *rulestore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := queryInt(r, "page", 1)
		pageSize := queryInt(r, "page_size", 20)
		enabledOnly := queryBool(r, "enabled_only")

		result, err := store.ListPaginated(r.Context(), page, pageSize, enabledOnly)
		if err != nil {
			writeError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, result)
	}
}

// getRuleHandler implements GET /alarm/rules/{id}.
func getRuleHandler(store *rulestore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		rule, err := store.Get(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, rule)
	}
}

// updateRuleHandler implements POST /alarm/rules/{id}/update.
func updateRuleHandler(store *rulestore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeErrorMessage(w, http.StatusBadRequest, "failed to read body")
			return
		}
		rule, err := decodeRule(body)
		if err != nil {
			writeError(w, err)
			return
		}
		rule.ID = id
		updated, err := store.Update(r.Context(), rule)
		if err != nil {
			writeError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, updated)
	}
}

// deleteRuleHandler implements POST /alarm/rules/{id}/delete.
func deleteRuleHandler(store *rulestore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if err := store.Delete(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, nil)
	}
}
