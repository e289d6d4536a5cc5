package httpapi

import (
	"net/http"
	"strings"

	"taskrouter/internal/apperr"
	"taskrouter/internal/domain"
	"taskrouter/internal/ids"
)

type agentRequest struct {
	Name               string `json:"name"`
	RoleInstruction    string `json:"role_instruction"`
	WorkingInstruction string `json:"working_instruction"`
	TimeoutMinutes     *int   `json:"timeout_minutes,omitempty"`
}

func (h *handlers) createAgent(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.PathValue("workspace_id")
	var req agentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, apperr.ValidationError("name is required"))
		return
	}
	existing, err := h.deps.Store.ListAgentsByWorkspace(r.Context(), workspaceID)
	if err != nil {
		writeError(w, err)
		return
	}
	agent, err := h.deps.Store.CreateAgent(r.Context(), domain.Agent{
		ID:                 ids.New(),
		WorkspaceID:        workspaceID,
		Name:               req.Name,
		RoleInstruction:    req.RoleInstruction,
		WorkingInstruction: req.WorkingInstruction,
		Order:              len(existing),
		TimeoutMinutes:     req.TimeoutMinutes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	h.deps.Engine.InvalidateAgentCache(workspaceID)
	writeJSON(w, http.StatusCreated, toAgentDTO(agent))
}

func (h *handlers) listAgents(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.PathValue("workspace_id")
	agents, err := h.deps.Store.ListAgentsByWorkspace(r.Context(), workspaceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAgentDTOs(agents))
}

func (h *handlers) getAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := h.deps.Store.GetAgent(r.Context(), r.PathValue("agent_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAgentDTO(agent))
}

func (h *handlers) updateAgent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("agent_id")
	existing, err := h.deps.Store.GetAgent(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	var req agentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, apperr.ValidationError("name is required"))
		return
	}
	existing.Name = req.Name
	existing.RoleInstruction = req.RoleInstruction
	existing.WorkingInstruction = req.WorkingInstruction
	existing.TimeoutMinutes = req.TimeoutMinutes

	updated, err := h.deps.Store.UpdateAgent(r.Context(), existing)
	if err != nil {
		writeError(w, err)
		return
	}
	h.deps.Engine.InvalidateAgentCache(updated.WorkspaceID)
	writeJSON(w, http.StatusOK, toAgentDTO(updated))
}

func (h *handlers) deleteAgent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("agent_id")
	agent, err := h.deps.Store.GetAgent(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.deps.Store.DeleteAgent(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	h.deps.Engine.InvalidateAgentCache(agent.WorkspaceID)
	w.WriteHeader(http.StatusNoContent)
}
