package httpadapter

import (
	"net/http"

	"github.com/kirillkom/sentiment-retrainer/internal/core/domain"
)

func (rt *Router) submitRetrain(w http.ResponseWriter, r *http.Request) {
	var cmd domain.RetrainCommand
	if !decodeJSONBody(w, r, &cmd) {
		return
	}
	jobID, err := rt.services.Retrain.Submit(r.Context(), cmd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID,
		"status": string(domain.JobQueued),
	})
}

func (rt *Router) retrainStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	if jobID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "job id is required"})
		return
	}
	job, err := rt.services.Retrain.Status(r.Context(), jobID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (rt *Router) listModels(w http.ResponseWriter, r *http.Request) {
	models, err := rt.services.Models.ListModels(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"models":         models,
		"active_backend": rt.services.Models.ActiveBackend(),
	})
}

func (rt *Router) reloadModel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Version string `json:"version"`
	}
	// An empty body reloads the newest version.
	if r.ContentLength != 0 && !decodeJSONBody(w, r, &req) {
		return
	}
	version, err := rt.services.Models.Reload(r.Context(), req.Version)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"version": version})
}

func (rt *Router) getBackend(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"backend": rt.services.Models.ActiveBackend()})
}

func (rt *Router) setBackend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Backend string `json:"backend"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if err := rt.services.Models.SetActiveBackend(req.Backend); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"backend": rt.services.Models.ActiveBackend()})
}
