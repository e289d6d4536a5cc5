package httpapi

import (
	"io"
	"net/http"

	"taskrouter/internal/apperr"
	"taskrouter/internal/domain"
	"taskrouter/internal/ids"
)

const maxUploadBytes = 32 << 20 // 32MiB, matches the teacher's multipart cap

func (h *handlers) listAttachments(w http.ResponseWriter, r *http.Request) {
	attachments, err := h.deps.Store.ListAttachmentsByTask(r.Context(), r.PathValue("task_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAttachmentDTOs(attachments))
}

// uploadAttachment accepts a multipart/form-data body with a single "file"
// field, content-addresses the bytes via the attachment store, and records
// the resulting row. Requires deps.AttachmentStore — callers get a 503 when
// no attachment directory was configured.
func (h *handlers) uploadAttachment(w http.ResponseWriter, r *http.Request) {
	if h.deps.AttachmentStore == nil {
		writeError(w, apperr.UnavailableError("attachments are not configured"))
		return
	}
	taskID := r.PathValue("task_id")

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, apperr.ValidationError("malformed multipart body: "+err.Error()))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, apperr.ValidationError("missing file field: "+err.Error()))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		writeError(w, apperr.ValidationError("failed to read upload: "+err.Error()))
		return
	}
	if len(data) > maxUploadBytes {
		writeError(w, apperr.ValidationError("file exceeds the upload size limit"))
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	storedName, err := h.deps.AttachmentStore.Store(header.Filename, mimeType, data)
	if err != nil {
		writeError(w, err)
		return
	}

	attachment, err := h.deps.Store.CreateAttachment(r.Context(), domain.Attachment{
		ID:         ids.New(),
		TaskID:     taskID,
		Filename:   header.Filename,
		StoredName: storedName,
		MimeType:   mimeType,
		Size:       int64(len(data)),
	})
	if err != nil {
		h.deps.AttachmentStore.Delete(storedName)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAttachmentDTO(attachment))
}

func (h *handlers) deleteAttachment(w http.ResponseWriter, r *http.Request) {
	attachment, err := h.deps.Store.DeleteAttachment(r.Context(), r.PathValue("attachment_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if h.deps.AttachmentStore != nil {
		if err := h.deps.AttachmentStore.Delete(attachment.StoredName); err != nil {
			h.log.Warn("failed to remove attachment blob", "stored_name", attachment.StoredName, "error", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
