package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/carebridge/screening-engine/internal/core/domain"
	"github.com/carebridge/screening-engine/internal/core/ports"
)

// Router exposes the in-process trigger and query surface of the screening
// engine. Determination passes themselves run in the worker; the api only
// publishes trigger events and serves materialized results.
type Router struct {
	lifecycle ports.DefinitionLifecycle
	catalog   ports.DefinitionCatalog
	results   ports.ResultSink
	queue     ports.TriggerQueue
}

func NewRouter(
	lifecycle ports.DefinitionLifecycle,
	catalog ports.DefinitionCatalog,
	results ports.ResultSink,
	queue ports.TriggerQueue,
) *Router {
	return &Router{
		lifecycle: lifecycle,
		catalog:   catalog,
		results:   results,
		queue:     queue,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/definitions", rt.listDefinitions)
	mux.HandleFunc("/v1/definitions/", rt.definitionAction)
	mux.HandleFunc("/v1/patients/", rt.patientAction)
	mux.HandleFunc("/v1/runs", rt.startRun)
	return mux
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) listDefinitions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	definitions, err := rt.catalog.ListDefinitions(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, definitions)
}

// definitionAction handles POST /v1/definitions/{id}/{action} where action
// is one of activate, deactivate, keywords-changed.
func (rt *Router) definitionAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id, action, ok := splitIDAction(strings.TrimPrefix(r.URL.Path, "/v1/definitions/"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "expected /v1/definitions/{id}/{action}"})
		return
	}

	switch action {
	case "activate", "deactivate":
		affected, err := rt.lifecycle.SetActive(r.Context(), id, action == "activate")
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"definition_id": id, "affected": affected})
	case "keywords-changed":
		event := domain.TriggerEvent{Kind: domain.TriggerKeywordsChanged, DefinitionID: id}
		if err := rt.queue.PublishTrigger(r.Context(), event); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"definition_id": id, "scheduled": string(event.Kind)})
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown action " + action})
	}
}

// patientAction handles GET /v1/patients/{id}/results and
// POST /v1/patients/{id}/documents-changed.
func (rt *Router) patientAction(w http.ResponseWriter, r *http.Request) {
	id, action, ok := splitIDAction(strings.TrimPrefix(r.URL.Path, "/v1/patients/"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "expected /v1/patients/{id}/{action}"})
		return
	}

	switch {
	case action == "results" && r.Method == http.MethodGet:
		results, err := rt.results.ListResultsForPatient(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, results)
	case action == "documents-changed" && r.Method == http.MethodPost:
		var body struct {
			Change string `json:"change"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		kind := domain.TriggerDocumentAdded
		if body.Change == "removed" {
			kind = domain.TriggerDocumentRemoved
		}
		event := domain.TriggerEvent{Kind: kind, PatientID: id}
		if err := rt.queue.PublishTrigger(r.Context(), event); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"patient_id": id, "scheduled": string(kind)})
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (rt *Router) startRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	event := domain.TriggerEvent{Kind: domain.TriggerFullRun}
	if err := rt.queue.PublishTrigger(r.Context(), event); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"scheduled": string(event.Kind)})
}

func splitIDAction(rest string) (id, action string, ok bool) {
	parts := strings.SplitN(strings.Trim(rest, "/"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}
