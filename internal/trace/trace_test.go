package trace

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drmaniak/discovery-dojo/pkg/flow"
	"github.com/drmaniak/discovery-dojo/pkg/schema"
)

func openTestTrace(t *testing.T) *LibSQLTrace {
	t.Helper()
	tr, err := Open("file:" + filepath.Join(t.TempDir(), "trace.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestLibSQLTrace_RecordAndReadBack(t *testing.T) {
	tr := openTestTrace(t)
	ctx := context.Background()

	events := []flow.Event{
		{RunID: "r1", Flow: "f", Type: flow.EventRunStarted},
		{RunID: "r1", Flow: "f", Node: "a", Type: flow.EventNodeStarted},
		{RunID: "r1", Flow: "f", Node: "a", Type: flow.EventNodeFinished, Action: "default"},
		{RunID: "r1", Flow: "f", Type: flow.EventRunFinished, Action: "default"},
	}
	for _, ev := range events {
		require.NoError(t, tr.Record(ctx, ev))
	}

	got, err := tr.Events(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, got, 4)

	for i, ev := range got {
		assert.Equal(t, events[i].Type, ev.Type, "event %d", i)
		assert.Equal(t, events[i].Node, ev.Node, "event %d", i)
		assert.Equal(t, events[i].Action, ev.Action, "event %d", i)
		assert.Equal(t, "r1", ev.RunID)
		assert.False(t, ev.Timestamp.IsZero())
	}
}

func TestLibSQLTrace_SequencesArePerRun(t *testing.T) {
	tr := openTestTrace(t)
	ctx := context.Background()

	require.NoError(t, tr.Record(ctx, flow.Event{RunID: "r1", Flow: "f", Type: flow.EventRunStarted}))
	require.NoError(t, tr.Record(ctx, flow.Event{RunID: "r2", Flow: "f", Type: flow.EventRunStarted}))
	require.NoError(t, tr.Record(ctx, flow.Event{RunID: "r1", Flow: "f", Type: flow.EventRunFinished}))

	r1, err := tr.Events(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, r1, 2)
	assert.Equal(t, flow.EventRunStarted, r1[0].Type)
	assert.Equal(t, flow.EventRunFinished, r1[1].Type)

	r2, err := tr.Events(ctx, "r2")
	require.NoError(t, err)
	assert.Len(t, r2, 1)
}

func TestLibSQLTrace_UnknownRunIsEmpty(t *testing.T) {
	tr := openTestTrace(t)
	events, err := tr.Events(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestLibSQLTrace_RunIDsMostRecentFirst(t *testing.T) {
	tr := openTestTrace(t)
	ctx := context.Background()

	base := time.Now().UTC()
	require.NoError(t, tr.Record(ctx, flow.Event{RunID: "old", Flow: "f", Type: flow.EventRunStarted, Timestamp: base.Add(-time.Hour)}))
	require.NoError(t, tr.Record(ctx, flow.Event{RunID: "new", Flow: "f", Type: flow.EventRunStarted, Timestamp: base}))

	ids, err := tr.RunIDs(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "old"}, ids)

	ids, err = tr.RunIDs(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, ids)
}

func TestLibSQLTrace_AsFlowSink(t *testing.T) {
	tr := openTestTrace(t)

	task, err := flow.NewTask(flow.TaskConfig{Name: "only"})
	require.NoError(t, err)
	f, err := flow.NewFlow(flow.FlowConfig{Name: "traced", Start: task, Tracer: tr})
	require.NoError(t, err)

	_, err = f.RunSync(nil)
	require.Error(t, err) // nil shared, nothing recorded

	_, err = f.RunSync(schema.NewShared(nil))
	require.NoError(t, err)

	ids, err := tr.RunIDs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	events, err := tr.Events(context.Background(), ids[0])
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, flow.EventRunStarted, events[0].Type)
	assert.Equal(t, flow.EventRunFinished, events[3].Type)
}
