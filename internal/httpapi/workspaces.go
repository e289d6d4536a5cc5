package httpapi

import (
	"net/http"
	"strings"

	"taskrouter/internal/apperr"
	"taskrouter/internal/domain"
	"taskrouter/internal/ids"
)

type createWorkspaceRequest struct {
	Name string `json:"name"`
}

func (h *handlers) createWorkspace(w http.ResponseWriter, r *http.Request) {
	var req createWorkspaceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, apperr.ValidationError("name is required"))
		return
	}
	ws, err := h.deps.Store.CreateWorkspace(r.Context(), domain.Workspace{ID: ids.New(), Name: req.Name})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWorkspaceDTO(ws))
}

func (h *handlers) listWorkspaces(w http.ResponseWriter, r *http.Request) {
	list, err := h.deps.Store.ListWorkspaces(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]workspaceDTO, len(list))
	for i, ws := range list {
		out[i] = toWorkspaceDTO(ws)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) getWorkspace(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("workspace_id")
	ws, err := h.deps.Store.GetWorkspace(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkspaceDTO(ws))
}

// deleteWorkspace honors spec §7's Conflict kind: a workspace with
// in-progress tasks refuses deletion unless ?force=true, in which case any
// running routings under it are cancelled first so the cascade leaves no
// orphaned drivers behind.
func (h *handlers) deleteWorkspace(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("workspace_id")
	force := r.URL.Query().Get("force") == "true"

	if force {
		tasks, err := h.deps.Store.ListTasksByWorkspace(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		for _, t := range tasks {
			h.deps.Engine.Cancel(r.Context(), t.ID)
		}
	}

	if err := h.deps.Store.DeleteWorkspace(r.Context(), id, force); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
