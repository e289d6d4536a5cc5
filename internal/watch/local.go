package watch

import (
	"context"

	"taskrouter/internal/domain"
	"taskrouter/internal/eventbus"
	"taskrouter/internal/store"
)

// localSource is the in-process Source used by `taskrouterd watch` run
// alongside (or against the same data directory as) a `taskrouterd serve`.
type localSource struct {
	store *store.Store
	bus   *eventbus.Bus
}

// NewLocalSource builds a Source reading directly from s and bus, for a
// watch dashboard launched in the same process or against the same sqlite
// file as the server.
func NewLocalSource(s *store.Store, bus *eventbus.Bus) Source {
	return &localSource{store: s, bus: bus}
}

func (l *localSource) Snapshot(ctx context.Context) ([]Row, error) {
	routings, err := l.store.ListPendingOrRunningRoutings(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, 0, len(routings))
	for _, rt := range routings {
		task, err := l.store.GetTask(ctx, rt.TaskID)
		if err != nil {
			continue // task deleted out from under an in-flight routing; skip the row
		}
		rows = append(rows, Row{
			TaskID:     rt.TaskID,
			Title:      task.Title,
			Status:     string(rt.Status),
			AgentIndex: rt.CurrentAgentIndex,
			Iteration:  rt.Iteration,
			UpdatedAt:  rt.UpdatedAt,
		})
	}
	return rows, nil
}

func (l *localSource) TaskDetail(ctx context.Context, taskID string) (Detail, error) {
	task, err := l.store.GetTask(ctx, taskID)
	if err != nil {
		return Detail{}, err
	}
	comments, err := l.store.ListCommentsByTask(ctx, taskID)
	if err != nil {
		return Detail{}, err
	}
	views := make([]CommentView, 0, len(comments))
	for _, c := range comments {
		author := c.Author
		if c.AuthorType == domain.AuthorAgent {
			author = author + " (agent)"
		}
		views = append(views, CommentView{Author: author, Content: c.Content})
	}

	detail := Detail{TaskID: task.ID, Title: task.Title, Description: task.Description, Comments: views}

	running, err := l.store.ListRunningExecutionsByTask(ctx, taskID)
	if err != nil {
		return Detail{}, err
	}
	if len(running) > 0 {
		exec := running[len(running)-1]
		detail.ExecutionID = exec.ID
		logs, err := l.store.ListExecutionLogs(ctx, exec.ID)
		if err == nil {
			detail.LogTail = make([]string, 0, len(logs))
			for _, line := range logs {
				detail.LogTail = append(detail.LogTail, line.Content)
			}
		}
	}
	return detail, nil
}

func (l *localSource) Events(ctx context.Context) (<-chan eventbus.Event, func(), error) {
	ch := make(chan eventbus.Event, 64)
	unsubscribe := l.bus.Subscribe(func(evt eventbus.Event) {
		select {
		case ch <- evt:
		default:
		}
	})
	return ch, unsubscribe, nil
}

func (l *localSource) Close() error { return nil }
