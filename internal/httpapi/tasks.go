package httpapi

import (
	"net/http"
	"strings"

	"taskrouter/internal/apperr"
	"taskrouter/internal/domain"
	"taskrouter/internal/ids"
)

type createTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (h *handlers) createTask(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.PathValue("workspace_id")
	var req createTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, apperr.ValidationError("title is required"))
		return
	}
	task, err := h.deps.Store.CreateTask(r.Context(), domain.Task{
		ID:          ids.New(),
		WorkspaceID: workspaceID,
		Title:       req.Title,
		Description: req.Description,
		Status:      domain.TaskTodo,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTaskDTO(task))
}

func (h *handlers) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.deps.Store.ListTasksByWorkspace(r.Context(), r.PathValue("workspace_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskDTOs(tasks))
}

func (h *handlers) getTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.deps.Store.GetTask(r.Context(), r.PathValue("task_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskDTO(task))
}

type updateTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (h *handlers) updateTask(w http.ResponseWriter, r *http.Request) {
	var req updateTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, apperr.ValidationError("title is required"))
		return
	}
	task, err := h.deps.Store.UpdateTask(r.Context(), r.PathValue("task_id"), req.Title, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskDTO(task))
}

func (h *handlers) deleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Store.DeleteTask(r.Context(), r.PathValue("task_id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setTaskStatusRequest struct {
	Status domain.TaskStatus `json:"status"`
}

// setTaskStatus enforces the task status transition table (spec §3) before
// persisting; CanTransitionTask is the same gate the routing engine itself
// consults, so manual and routing-driven transitions can never disagree.
func (h *handlers) setTaskStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("task_id")
	var req setTaskStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	task, err := h.deps.Store.GetTask(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !domain.CanTransitionTask(task.Status, req.Status) {
		writeError(w, apperr.ValidationError("cannot transition task from "+string(task.Status)+" to "+string(req.Status)))
		return
	}
	if err := h.deps.Store.SetTaskStatus(r.Context(), id, req.Status); err != nil {
		writeError(w, err)
		return
	}
	task, err = h.deps.Store.GetTask(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskDTO(task))
}
