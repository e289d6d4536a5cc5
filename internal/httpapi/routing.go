package httpapi

import (
	"net/http"

	"taskrouter/internal/apperr"
)

// triggerTask starts (or restarts) the routing round for a task, delegating
// the actual driver-loop bookkeeping to the routing engine. An
// X-Idempotency-Key header lets a retrying client get back the exact
// response of its first attempt instead of a fresh read of engine state.
func (h *handlers) triggerTask(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("X-Idempotency-Key")
	if !validIdempotencyKey(key) {
		writeError(w, apperr.ValidationError("X-Idempotency-Key must be a UUID"))
		return
	}
	if key != "" {
		if cached, ok := h.idempotency.get(key); ok {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	routing, err := h.deps.Engine.Trigger(r.Context(), r.PathValue("task_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	dto := toRoutingDTO(routing)
	if key != "" {
		h.idempotency.put(key, dto)
	}
	writeJSON(w, http.StatusOK, dto)
}

// cancelTask stops a task's in-flight routing round. The bool the engine
// returns (whether anything was actually running) doesn't change the wire
// response — cancelling an already-idle task is not an error.
func (h *handlers) cancelTask(w http.ResponseWriter, r *http.Request) {
	routing, _, err := h.deps.Engine.Cancel(r.Context(), r.PathValue("task_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRoutingDTO(routing))
}

func (h *handlers) resumeRouting(w http.ResponseWriter, r *http.Request) {
	routing, err := h.deps.Engine.Resume(r.Context(), r.PathValue("routing_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRoutingDTO(routing))
}

func (h *handlers) getRoutingByTask(w http.ResponseWriter, r *http.Request) {
	routing, err := h.deps.Store.GetRoutingByTaskID(r.Context(), r.PathValue("task_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRoutingDTO(routing))
}
