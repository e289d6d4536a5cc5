// Package watch implements `taskrouterd watch`, a read-only terminal
// dashboard over the routing engine's live state: one row per active
// routing, a detail pane with the selected task's comments rendered as
// Markdown, and a tailing view of the current execution's log lines.
//
// The dashboard never calls the routing engine directly — only Store reads
// and an event-bus subscription (or their --remote equivalents over HTTP and
// websocket) — matching spec §8's "watch issues no control-plane calls other
// than list/get".
package watch

import (
	"context"

	"taskrouter/internal/eventbus"
)

// Row is one line of the dashboard's routing table.
type Row struct {
	TaskID     string
	Title      string
	Status     string
	AgentIndex int
	Iteration  int
	UpdatedAt  int64
}

// Detail is the expanded view for one selected task.
type Detail struct {
	TaskID      string
	Title       string
	Description string
	Comments    []CommentView
	ExecutionID string // running execution whose log is tailed, empty if none is running
	LogTail     []string
}

// CommentView is a comment as the dashboard renders it: author-tagged
// Markdown body, pre-resolved so the detail pane doesn't need domain types.
type CommentView struct {
	Author  string
	Content string
}

// Source is the dashboard's data dependency: either a local embedded view
// over the store and event bus (Local, same process as the server) or a
// remote view over the HTTP/websocket API (Remote, a separate `watch
// --remote` process talking to a running server).
type Source interface {
	// Snapshot returns the current set of non-terminal routings.
	Snapshot(ctx context.Context) ([]Row, error)
	// TaskDetail returns the expanded view for one task.
	TaskDetail(ctx context.Context, taskID string) (Detail, error)
	// Events returns a channel of bus events and an unsubscribe func. The
	// channel is closed when the source can no longer deliver events.
	Events(ctx context.Context) (<-chan eventbus.Event, func(), error)
	// Close releases any resources (remote connections); a no-op for Local.
	Close() error
}
