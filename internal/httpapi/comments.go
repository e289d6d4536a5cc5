package httpapi

import (
	"net/http"
	"strings"

	"taskrouter/internal/apperr"
	"taskrouter/internal/domain"
	"taskrouter/internal/ids"
)

type createCommentRequest struct {
	Author  string `json:"author"`
	Content string `json:"content"`
}

func (h *handlers) listComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.deps.Store.ListCommentsByTask(r.Context(), r.PathValue("task_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCommentDTOs(comments))
}

// createComment only ever files human comments through the HTTP surface;
// agent and system comments are written directly by the routing engine
// (addSystemComment) as part of the driver loop.
func (h *handlers) createComment(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("task_id")
	var req createCommentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, apperr.ValidationError("content is required"))
		return
	}
	if strings.TrimSpace(req.Author) == "" {
		req.Author = "operator"
	}
	comment, err := h.deps.Store.CreateComment(r.Context(), domain.Comment{
		ID:         ids.New(),
		TaskID:     taskID,
		Author:     req.Author,
		AuthorType: domain.AuthorHuman,
		Content:    req.Content,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCommentDTO(comment))
}
