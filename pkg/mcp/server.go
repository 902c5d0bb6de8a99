// Package mcp exposes registered flows to agents over the Model
// Context Protocol. The engine itself stays transport-free; this is
// the one network-facing surface of the binary.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/drmaniak/discovery-dojo/internal/trace"
	"github.com/drmaniak/discovery-dojo/pkg/flow"
)

// DojoServerDeps holds the dependencies for creating a DojoServer.
// Trace is optional; without it the dojo.trace tool reports that
// tracing is disabled.
type DojoServerDeps struct {
	Registry *flow.Registry
	Trace    *trace.LibSQLTrace
	Logger   *slog.Logger
}

// DojoServer wraps an MCP server with flow-runner tool handlers.
type DojoServer struct {
	registry  *flow.Registry
	trace     *trace.LibSQLTrace
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewDojoServer creates a DojoServer with all three tools registered.
func NewDojoServer(deps DojoServerDeps) *DojoServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &DojoServer{
		registry: deps.Registry,
		trace:    deps.Trace,
		logger:   logger,
	}

	mcpSrv := server.NewMCPServer(
		"discovery-dojo",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Discovery Dojo runs registered research flows. Use dojo.run to execute a flow with seed context values, dojo.flows to list registered flows, and dojo.trace to inspect the events of a past run."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *DojoServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *DojoServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the registered MCP tools as ServerTool entries.
func (s *DojoServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: runTool(), Handler: s.handleRun},
		{Tool: flowsTool(), Handler: s.handleFlows},
		{Tool: traceTool(), Handler: s.handleTrace},
	}
}

// --- Tool definitions ---

func runTool() mcp.Tool {
	return mcp.NewTool("dojo.run",
		mcp.WithDescription("Execute a registered flow to termination"),
		mcp.WithString("flow", mcp.Required(), mcp.Description("Name of the registered flow to execute")),
		mcp.WithObject("context", mcp.Description("Seed values for the shared context")),
	)
}

func flowsTool() mcp.Tool {
	return mcp.NewTool("dojo.flows",
		mcp.WithDescription("List registered flows"),
	)
}

func traceTool() mcp.Tool {
	return mcp.NewTool("dojo.trace",
		mcp.WithDescription("Inspect the trace events of a past run"),
		mcp.WithString("run_id", mcp.Description("Run ID to inspect; omit to list recent run IDs")),
	)
}
