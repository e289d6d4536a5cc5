package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"taskrouter/internal/domain"
	"taskrouter/internal/eventbus"
)

// writeSSEEvent frames one event-bus event as the standard
// "event: <type>\ndata: <json>\n\n" block and flushes it immediately, the
// same framing the teacher's ACP transport uses for its streaming endpoint.
func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, evt eventbus.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte("event: " + string(evt.Type) + "\n")); err != nil {
		return err
	}
	if _, err := w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	if _, err := w.Write([]byte("\n\n")); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func writeSSEComment(w http.ResponseWriter, flusher http.Flusher, comment string) error {
	if _, err := w.Write([]byte(": " + comment + "\n\n")); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

// streamEvents is the global firehose (spec §6.2): every event-bus event,
// framed as SSE, with a periodic comment-line keepalive so idle proxies
// don't close the connection.
func (h *handlers) streamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, errStreamingUnsupported)
		return
	}
	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := make(chan eventbus.Event, 64)
	unsubscribe := h.deps.Bus.Subscribe(func(evt eventbus.Event) {
		select {
		case events <- evt:
		default:
		}
	})
	defer unsubscribe()

	ctx := r.Context()
	ticker := time.NewTicker(h.sseKeepalive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-events:
			if err := writeSSEEvent(w, flusher, evt); err != nil {
				return
			}
		case <-ticker.C:
			if err := writeSSEComment(w, flusher, "keepalive"); err != nil {
				return
			}
		}
	}
}

type executionCompleteFrame struct {
	Status domain.ExecutionStatus `json:"status"`
	Result *domain.ExecutionResult `json:"result,omitempty"`
}

// streamExecutionLogs narrows the firehose to one execution's log lines
// (spec §6.2), using the bus's dedicated per-execution subchannel so a
// busy system doesn't make a single-execution viewer filter every event.
// After each log line the execution's own status is checked; reaching a
// terminal state emits a final "complete" frame (spec §6.2) and ends the
// stream, since the log subchannel itself only ever carries log lines.
func (h *handlers) streamExecutionLogs(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, errStreamingUnsupported)
		return
	}
	executionID := r.PathValue("execution_id")
	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, unsubscribe := h.deps.Bus.SubscribeToExecutionLogs(executionID)
	defer unsubscribe()

	ctx := r.Context()
	ticker := time.NewTicker(h.sseKeepalive)
	defer ticker.Stop()

	if h.writeCompleteFrameIfTerminal(ctx, w, flusher, executionID) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if err := writeSSEEvent(w, flusher, evt); err != nil {
				return
			}
			if h.writeCompleteFrameIfTerminal(ctx, w, flusher, executionID) {
				return
			}
		case <-ticker.C:
			if err := writeSSEComment(w, flusher, "keepalive"); err != nil {
				return
			}
		}
	}
}

// writeCompleteFrameIfTerminal reports whether executionID has reached a
// terminal status, writing the frame and returning true if so. A store
// error is treated as non-terminal; the stream keeps running rather than
// dropping a viewer over a transient read failure.
func (h *handlers) writeCompleteFrameIfTerminal(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, executionID string) bool {
	exec, err := h.deps.Store.GetExecution(ctx, executionID)
	if err != nil {
		return false
	}
	if exec.Status != domain.ExecutionCompleted && exec.Status != domain.ExecutionFailed {
		return false
	}
	payload, err := json.Marshal(executionCompleteFrame{Status: exec.Status, Result: exec.Result})
	if err != nil {
		return true
	}
	w.Write([]byte("event: complete\ndata: "))
	w.Write(payload)
	w.Write([]byte("\n\n"))
	flusher.Flush()
	return true
}
