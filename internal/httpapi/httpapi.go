// Package httpapi is the thin, out-of-scope external transport surface
// (spec §6.4): CRUD over workspaces/agents/tasks/comments/attachments,
// trigger/resume/cancel delegating to the routing engine, and an SSE stream
// of event-bus events. None of this package makes routing decisions; it
// only translates HTTP requests into calls against the store and the
// routing engine and their results back into the JSON/SSE wire formats.
//
// Grounded on the teacher's internal/delivery/server/http package: stdlib
// net/http.ServeMux with Go 1.22+ method-pattern routes
// (mux.Handle("POST /api/tasks", ...)), not gin — see DESIGN.md for why.
package httpapi

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"taskrouter/internal/attachments"
	"taskrouter/internal/eventbus"
	"taskrouter/internal/logging"
	"taskrouter/internal/routing"
	"taskrouter/internal/store"
)

// Config tunes the router's cross-cutting behavior. Zero value is usable —
// every field has a sane default applied in NewRouter.
type Config struct {
	RequestTimeout   time.Duration
	RateLimitPerMin  int
	AllowedOrigins   []string
	SSEKeepalive     time.Duration
}

// DefaultConfig returns the router defaults: a 30s non-streaming request
// timeout, 300 requests/minute/IP, CORS open to any origin, and a 30s SSE
// keepalive matching spec §6.2.
func DefaultConfig() Config {
	return Config{
		RequestTimeout:  30 * time.Second,
		RateLimitPerMin: 300,
		SSEKeepalive:    30 * time.Second,
	}
}

// Deps are the collaborators the router dispatches to. Store and Engine are
// required; AttachmentStore is optional (when nil, attachment upload
// answers 503 and the blob download route is not registered, so it 404s).
type Deps struct {
	Store           *store.Store
	Engine          *routing.Engine
	Bus             *eventbus.Bus
	AttachmentStore *attachments.Store
	Logger          logging.Logger
}

// NewRouter builds the full HTTP handler: route table plus the middleware
// chain, applied in the teacher's fixed order (logging, rate limit, request
// timeout, compression, CORS — outermost last, so CORS sees every request
// first and the route handler itself runs innermost).
func NewRouter(deps Deps, cfg Config) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultConfig().RequestTimeout
	}
	if cfg.SSEKeepalive <= 0 {
		cfg.SSEKeepalive = DefaultConfig().SSEKeepalive
	}
	logger := logging.NewComponentLogger(deps.Logger, "httpapi")

	h := &handlers{deps: deps, log: logger, sseKeepalive: cfg.SSEKeepalive, idempotency: newIdempotencyCache(0)}

	mux := http.NewServeMux()

	mux.Handle("POST /api/workspaces", http.HandlerFunc(h.createWorkspace))
	mux.Handle("GET /api/workspaces", http.HandlerFunc(h.listWorkspaces))
	mux.Handle("GET /api/workspaces/{workspace_id}", http.HandlerFunc(h.getWorkspace))
	mux.Handle("DELETE /api/workspaces/{workspace_id}", http.HandlerFunc(h.deleteWorkspace))

	mux.Handle("POST /api/workspaces/{workspace_id}/agents", http.HandlerFunc(h.createAgent))
	mux.Handle("GET /api/workspaces/{workspace_id}/agents", http.HandlerFunc(h.listAgents))
	mux.Handle("GET /api/agents/{agent_id}", http.HandlerFunc(h.getAgent))
	mux.Handle("PUT /api/agents/{agent_id}", http.HandlerFunc(h.updateAgent))
	mux.Handle("DELETE /api/agents/{agent_id}", http.HandlerFunc(h.deleteAgent))

	mux.Handle("POST /api/workspaces/{workspace_id}/tasks", http.HandlerFunc(h.createTask))
	mux.Handle("GET /api/workspaces/{workspace_id}/tasks", http.HandlerFunc(h.listTasks))
	mux.Handle("GET /api/tasks/{task_id}", http.HandlerFunc(h.getTask))
	mux.Handle("PUT /api/tasks/{task_id}", http.HandlerFunc(h.updateTask))
	mux.Handle("DELETE /api/tasks/{task_id}", http.HandlerFunc(h.deleteTask))
	mux.Handle("PUT /api/tasks/{task_id}/status", http.HandlerFunc(h.setTaskStatus))

	mux.Handle("POST /api/tasks/{task_id}/trigger", http.HandlerFunc(h.triggerTask))
	mux.Handle("POST /api/tasks/{task_id}/cancel", http.HandlerFunc(h.cancelTask))
	mux.Handle("POST /api/routings/{routing_id}/resume", http.HandlerFunc(h.resumeRouting))
	mux.Handle("GET /api/tasks/{task_id}/routing", http.HandlerFunc(h.getRoutingByTask))

	mux.Handle("GET /api/tasks/{task_id}/comments", http.HandlerFunc(h.listComments))
	mux.Handle("POST /api/tasks/{task_id}/comments", http.HandlerFunc(h.createComment))

	mux.Handle("GET /api/tasks/{task_id}/attachments", http.HandlerFunc(h.listAttachments))
	mux.Handle("POST /api/tasks/{task_id}/attachments", http.HandlerFunc(h.uploadAttachment))
	mux.Handle("DELETE /api/attachments/{attachment_id}", http.HandlerFunc(h.deleteAttachment))
	if deps.AttachmentStore != nil {
		mux.Handle("GET /api/attachments/blob/", deps.AttachmentStore.Handler("/api/attachments/blob/"))
	}

	mux.Handle("GET /api/events", http.HandlerFunc(h.streamEvents))
	mux.Handle("GET /api/events/ws", http.HandlerFunc(h.eventsWS))
	mux.Handle("GET /api/executions/{execution_id}/events", http.HandlerFunc(h.streamExecutionLogs))

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("GET /health", http.HandlerFunc(h.health))

	var handler http.Handler = mux
	handler = chain(handler,
		LoggingMiddleware(logger),
		RateLimitMiddleware(cfg.RateLimitPerMin),
		RequestTimeoutMiddleware(cfg.RequestTimeout, "/api/events", "/api/executions/"),
		CompressionMiddleware("/api/events", "/api/executions/", "/api/attachments/blob/"),
		CORSMiddleware(cfg.AllowedOrigins),
	)
	return handler
}

// handlers holds the dependencies every route handler closes over.
type handlers struct {
	deps         Deps
	log          logging.Logger
	sseKeepalive time.Duration
	idempotency  *idempotencyCache
}
