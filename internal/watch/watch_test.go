package watch

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskrouter/internal/eventbus"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 28))
	assert.Equal(t, "abc…", truncate("abcdef", 4))
	assert.Equal(t, "a", truncate("abcdef", 1))
}

func TestEventConcernsTask(t *testing.T) {
	evt := eventbus.Event{Type: eventbus.TaskUpdated, Payload: map[string]any{"task_id": "t1"}}
	assert.True(t, eventConcernsTask(evt, "t1"))
	assert.False(t, eventConcernsTask(evt, "t2"))
	assert.False(t, eventConcernsTask(evt, ""))
}

type fakeSource struct {
	rows   []Row
	detail Detail
}

func (f *fakeSource) Snapshot(ctx context.Context) ([]Row, error)             { return f.rows, nil }
func (f *fakeSource) TaskDetail(ctx context.Context, id string) (Detail, error) { return f.detail, nil }
func (f *fakeSource) Events(ctx context.Context) (<-chan eventbus.Event, func(), error) {
	ch := make(chan eventbus.Event)
	return ch, func() {}, nil
}
func (f *fakeSource) Close() error { return nil }

func TestModelSnapshotPopulatesTable(t *testing.T) {
	src := &fakeSource{rows: []Row{
		{TaskID: "t1", Title: "fix the bug", Status: "running", AgentIndex: 1, Iteration: 2},
	}}
	m, err := New(context.Background(), src)
	require.NoError(t, err)

	updated, _ := m.Update(snapshotMsg{rows: src.rows})
	mm := updated.(*model)

	assert.Len(t, mm.rows, 1)
	assert.Equal(t, "t1", mm.rowTaskID(0))
	assert.Contains(t, mm.status, "1 active routing")
}

func TestModelDetailRendersComments(t *testing.T) {
	src := &fakeSource{detail: Detail{
		TaskID: "t1",
		Title:  "fix the bug",
		Comments: []CommentView{
			{Author: "operator", Content: "please prioritize"},
		},
	}}
	m, err := New(context.Background(), src)
	require.NoError(t, err)

	updated, _ := m.Update(detailMsg{detail: src.detail})
	mm := updated.(*model)

	assert.True(t, mm.haveDetail)
	assert.Contains(t, mm.renderDetail(), "fix the bug")
}

func TestModelQuitOnQ(t *testing.T) {
	m, err := New(context.Background(), &fakeSource{})
	require.NoError(t, err)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
}
