// Command dojo runs registered flows from the terminal and serves them
// to agents over MCP stdio.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/drmaniak/discovery-dojo/internal/diagram"
	"github.com/drmaniak/discovery-dojo/internal/expressions"
	"github.com/drmaniak/discovery-dojo/internal/logging"
	"github.com/drmaniak/discovery-dojo/internal/pipelines"
	"github.com/drmaniak/discovery-dojo/internal/trace"
	"github.com/drmaniak/discovery-dojo/pkg/clients"
	"github.com/drmaniak/discovery-dojo/pkg/flow"
	"github.com/drmaniak/discovery-dojo/pkg/mcp"
	"github.com/drmaniak/discovery-dojo/pkg/schema"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "run":
		err = runCmd(ctx, cfg, logger, os.Args[2:])
	case "serve":
		err = serveCmd(ctx, cfg, logger)
	case "flows":
		err = flowsCmd(cfg, logger)
	case "graph":
		err = graphCmd(cfg, logger, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: dojo <command>

commands:
  run <flow> [-context JSON]   execute a registered flow to termination
  serve                        serve registered flows over MCP stdio
  flows                        list registered flows
  graph <flow>                 print a flow's graph as a Mermaid flowchart`)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	inner := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}

// buildRegistry wires the collaborators from cfg and registers the
// shipped flows. The trace sink is optional; a db open failure degrades
// to untraced runs with a warning.
func buildRegistry(cfg Config, logger *slog.Logger) (*flow.Registry, *trace.LibSQLTrace, error) {
	var sink *trace.LibSQLTrace
	if cfg.DBPath != "" {
		var err error
		sink, err = trace.Open(cfg.DBPath)
		if err != nil {
			logger.Warn("trace store unavailable, runs will not be traced", "db_path", cfg.DBPath, "error", err)
			sink = nil
		}
	}

	deps, err := buildDeps(cfg, sink, logger)
	if err != nil {
		return nil, nil, err
	}

	reg := flow.NewRegistry()
	if err := pipelines.Register(reg, deps); err != nil {
		return nil, nil, err
	}
	return reg, sink, nil
}

func buildDeps(cfg Config, sink *trace.LibSQLTrace, logger *slog.Logger) (pipelines.Deps, error) {
	var deps pipelines.Deps

	cel, err := expressions.NewCELEngine()
	if err != nil {
		return deps, err
	}
	deps.CEL = cel
	deps.JQ = expressions.NewGoJQEngine()
	deps.Logger = logger
	if sink != nil {
		deps.Tracer = sink
	}
	deps.MaxRefineCycles = cfg.RefineCycles
	deps.MaxParallel = cfg.MaxParallel
	deps.OutputPath = cfg.OutputPath
	deps.PlanOutputPath = cfg.PlanOutputPath
	deps.ChunkSize = cfg.ChunkSize

	if cfg.OpenAIKey != "" {
		completer, err := clients.NewOpenAICompleter(clients.OpenAIConfig{
			APIKey:  cfg.OpenAIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
		})
		if err != nil {
			return deps, err
		}
		embedder, err := clients.NewOpenAIEmbedder(clients.OpenAIConfig{
			APIKey:  cfg.OpenAIKey,
			BaseURL: cfg.OpenAIBaseURL,
		})
		if err != nil {
			return deps, err
		}
		deps.Completer = completer
		deps.Embedder = embedder
	}
	if cfg.TavilyKey != "" {
		searcher, err := clients.NewTavilySearcher(clients.TavilyConfig{APIKey: cfg.TavilyKey})
		if err != nil {
			return deps, err
		}
		deps.Searcher = searcher
	}
	deps.Index = clients.NewMemoryIndex()

	return deps, nil
}

func runCmd(ctx context.Context, cfg Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	seedJSON := fs.String("context", "", "seed values for the shared context, as a JSON object")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return schema.NewError(schema.ErrCodeValidation, "run takes exactly one flow name")
	}
	name := fs.Arg(0)

	reg, sink, err := buildRegistry(cfg, logger)
	if err != nil {
		return err
	}
	if sink != nil {
		defer sink.Close()
	}

	seed := map[string]any{}
	if *seedJSON != "" {
		if err := json.Unmarshal([]byte(*seedJSON), &seed); err != nil {
			return schema.NewError(schema.ErrCodeValidation, "context is not a JSON object").WithCause(err)
		}
	}

	node, err := reg.Build(name)
	if err != nil {
		return err
	}

	shared := schema.NewShared(seed)
	action, err := node.Run(ctx, shared)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(map[string]any{
		"flow":    name,
		"action":  action,
		"context": shared.Snapshot(),
	}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func serveCmd(ctx context.Context, cfg Config, logger *slog.Logger) error {
	reg, sink, err := buildRegistry(cfg, logger)
	if err != nil {
		return err
	}
	if sink != nil {
		defer sink.Close()
	}

	srv := mcp.NewDojoServer(mcp.DojoServerDeps{
		Registry: reg,
		Trace:    sink,
		Logger:   logger,
	})
	logger.Info("serving flows over mcp stdio", "flows", reg.Names())
	return srv.Serve(ctx)
}

func graphCmd(cfg Config, logger *slog.Logger, args []string) error {
	if len(args) != 1 {
		return schema.NewError(schema.ErrCodeValidation, "graph takes exactly one flow name")
	}

	reg, sink, err := buildRegistry(cfg, logger)
	if err != nil {
		return err
	}
	if sink != nil {
		defer sink.Close()
	}

	node, err := reg.Build(args[0])
	if err != nil {
		return err
	}

	start := node
	if f, ok := node.(interface{ Start() flow.Node }); ok {
		start = f.Start()
	}
	fmt.Print(diagram.Mermaid(args[0], start))
	return nil
}

func flowsCmd(cfg Config, logger *slog.Logger) error {
	reg, sink, err := buildRegistry(cfg, logger)
	if err != nil {
		return err
	}
	if sink != nil {
		defer sink.Close()
	}
	for _, name := range reg.Names() {
		fmt.Println(name)
	}
	return nil
}
