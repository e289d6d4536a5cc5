package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"taskrouter/internal/eventbus"
)

// remoteSource is the Source used by `taskrouterd watch --remote`: every
// read goes over the thin HTTP API (spec §6) and the live feed rides the
// websocket sibling of the SSE firehose (gorilla/websocket — the HTTP API
// itself has no endpoint to list routings or executions across tasks, so
// Snapshot fans out one request per task and TaskDetail's execution log
// tail is left empty; a remote viewer trades that detail for not needing
// direct store access).
type remoteSource struct {
	baseURL string
	client  *http.Client
	conn    *websocket.Conn
}

// NewRemoteSource dials baseURL (e.g. "http://localhost:8080") for reads and
// opens its websocket events endpoint for the live feed.
func NewRemoteSource(ctx context.Context, baseURL string) (Source, error) {
	wsURL, err := toWebsocketURL(baseURL)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial events websocket: %w", err)
	}
	return &remoteSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		conn:    conn,
	}, nil
}

func toWebsocketURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/events/ws"
	return u.String(), nil
}

type remoteWorkspace struct {
	ID string `json:"id"`
}

type remoteTask struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type remoteRouting struct {
	TaskID            string `json:"task_id"`
	Status            string `json:"status"`
	CurrentAgentIndex int    `json:"current_agent_index"`
	Iteration         int    `json:"iteration"`
	UpdatedAt         int64  `json:"updated_at"`
}

type remoteComment struct {
	Author  string `json:"author"`
	Content string `json:"content"`
}

func (r *remoteSource) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return errRemoteNotFound
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

var errRemoteNotFound = fmt.Errorf("remote: not found")

func (r *remoteSource) Snapshot(ctx context.Context) ([]Row, error) {
	var workspaces []remoteWorkspace
	if err := r.getJSON(ctx, "/api/workspaces", &workspaces); err != nil {
		return nil, err
	}

	var rows []Row
	for _, ws := range workspaces {
		var tasks []remoteTask
		if err := r.getJSON(ctx, "/api/workspaces/"+ws.ID+"/tasks", &tasks); err != nil {
			return nil, err
		}
		for _, t := range tasks {
			var rt remoteRouting
			err := r.getJSON(ctx, "/api/tasks/"+t.ID+"/routing", &rt)
			if err == errRemoteNotFound {
				continue // never triggered
			}
			if err != nil {
				return nil, err
			}
			if rt.Status != "pending" && rt.Status != "running" {
				continue
			}
			rows = append(rows, Row{
				TaskID:     t.ID,
				Title:      t.Title,
				Status:     rt.Status,
				AgentIndex: rt.CurrentAgentIndex,
				Iteration:  rt.Iteration,
				UpdatedAt:  rt.UpdatedAt,
			})
		}
	}
	return rows, nil
}

func (r *remoteSource) TaskDetail(ctx context.Context, taskID string) (Detail, error) {
	var task remoteTask
	if err := r.getJSON(ctx, "/api/tasks/"+taskID, &task); err != nil {
		return Detail{}, err
	}
	var comments []remoteComment
	if err := r.getJSON(ctx, "/api/tasks/"+taskID+"/comments", &comments); err != nil {
		return Detail{}, err
	}
	views := make([]CommentView, 0, len(comments))
	for _, c := range comments {
		views = append(views, CommentView{Author: c.Author, Content: c.Content})
	}
	// Execution log tail is unavailable without a list-by-task endpoint on
	// the HTTP API; the remote dashboard shows comments and routing state
	// only, not the live log pane a local source gets.
	return Detail{TaskID: task.ID, Title: task.Title, Description: task.Description, Comments: views}, nil
}

func (r *remoteSource) Events(ctx context.Context) (<-chan eventbus.Event, func(), error) {
	ch := make(chan eventbus.Event, 64)
	done := make(chan struct{})
	go func() {
		defer close(ch)
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			default:
			}
			var frame struct {
				Type      eventbus.Type  `json:"type"`
				Payload   map[string]any `json:"payload"`
				Timestamp int64          `json:"timestamp"`
			}
			if err := r.conn.ReadJSON(&frame); err != nil {
				return
			}
			evt := eventbus.Event{Type: frame.Type, Payload: frame.Payload, Timestamp: frame.Timestamp}
			select {
			case ch <- evt:
			case <-done:
				return
			}
		}
	}()
	unsubscribe := func() { close(done) }
	return ch, unsubscribe, nil
}

func (r *remoteSource) Close() error {
	return r.conn.Close()
}
