package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/drmaniak/discovery-dojo/pkg/schema"
)

// handleRun builds a fresh graph for the named flow, seeds a shared
// context from the request, runs to termination, and returns the final
// action plus the resulting context snapshot.
func (s *DojoServer) handleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("flow")
	if err != nil {
		return mcp.NewToolResultError("flow is required"), nil
	}
	seed := mcp.ParseStringMap(req, "context", nil)

	node, buildErr := s.registry.Build(name)
	if buildErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("flow lookup failed: %v", buildErr)), nil
	}

	shared := schema.NewShared(seed)
	action, runErr := node.Run(ctx, shared)
	if runErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("flow execution failed: %v", runErr)), nil
	}

	return marshalResult(map[string]any{
		"flow":    name,
		"action":  action,
		"context": shared.Snapshot(),
	})
}

// handleFlows lists registered flow names.
func (s *DojoServer) handleFlows(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return marshalResult(map[string]any{
		"flows": s.registry.Names(),
	})
}

// handleTrace returns the events of one run, or recent run IDs when no
// run ID is given.
func (s *DojoServer) handleTrace(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.trace == nil {
		return mcp.NewToolResultError("tracing is disabled"), nil
	}

	runID := req.GetString("run_id", "")
	if runID == "" {
		ids, err := s.trace.RunIDs(ctx, 0)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("trace query failed: %v", err)), nil
		}
		return marshalResult(map[string]any{"runs": ids})
	}

	events, err := s.trace.Events(ctx, runID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("trace query failed: %v", err)), nil
	}
	if len(events) == 0 {
		return mcp.NewToolResultError(fmt.Sprintf("no events for run %q", runID)), nil
	}
	return marshalResult(map[string]any{
		"run_id": runID,
		"events": events,
	})
}

func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
