package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextAccessors(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RunID(ctx))
	assert.Empty(t, Flow(ctx))
	assert.Empty(t, Node(ctx))

	ctx = WithRunID(ctx, "run-1")
	ctx = WithFlow(ctx, "research")
	ctx = WithNode(ctx, "summarize")

	assert.Equal(t, "run-1", RunID(ctx))
	assert.Equal(t, "research", Flow(ctx))
	assert.Equal(t, "summarize", Node(ctx))
}

func TestCorrelationHandlerInjectsIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewTextHandler(&buf, nil)))

	ctx := WithNode(WithFlow(WithRunID(context.Background(), "run-9"), "summarize"), "chunk")
	logger.InfoContext(ctx, "node finished")

	out := buf.String()
	assert.Contains(t, out, "run_id=run-9")
	assert.Contains(t, out, "flow=summarize")
	assert.Contains(t, out, "node=chunk")
}

func TestCorrelationHandlerSkipsAbsentIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewTextHandler(&buf, nil)))

	logger.InfoContext(context.Background(), "startup")

	out := buf.String()
	require.Contains(t, out, "startup")
	assert.NotContains(t, out, "run_id")
	assert.NotContains(t, out, "flow=")
	assert.NotContains(t, out, "node=")
}
