package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ironsheep/cad-analyzer-mcp/internal/common"
	"github.com/ironsheep/cad-analyzer-mcp/internal/history"
	"github.com/ironsheep/cad-analyzer-mcp/internal/logging"
	"github.com/ironsheep/cad-analyzer-mcp/internal/pipeline"
	"github.com/ironsheep/cad-analyzer-mcp/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	mode := "mcp"
	var args []string
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("cad-analyzer %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			printUsage()
			return
		case "serve", "extract", "mcp":
			mode = os.Args[1]
			args = os.Args[2:]
		default:
			fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
			printUsage()
			os.Exit(2)
		}
	}

	cfg, err := common.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, mode, args, cfg, logger); err != nil {
		logger.Error("exiting", zap.String("mode", mode), zap.Error(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, mode string, args []string, cfg *common.Config, logger *zap.Logger) error {
	store, err := history.Open(ctx, cfg.History, logger.Named("history"))
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close history", zap.Error(err))
		}
	}()

	orch, err := pipeline.New(cfg,
		pipeline.WithHistory(store),
		pipeline.WithLogger(logger.Named("pipeline")),
	)
	if err != nil {
		return err
	}

	switch mode {
	case "serve":
		return serve(ctx, cfg, orch, logger)
	case "extract":
		return extractOnce(ctx, args, orch)
	default:
		logger.Info("starting MCP server on stdio",
			zap.String("version", Version),
			zap.String("build_time", BuildTime),
			zap.String("git_commit", GitCommit),
		)
		srv, err := server.New(orch, server.WithLogger(logger.Named("mcp")), server.WithVersion(Version))
		if err != nil {
			return err
		}
		return srv.Run(ctx, os.Stdin, os.Stdout)
	}
}

// extractOnce prints the extraction result for one drawing to stdout.
func extractOnce(ctx context.Context, args []string, orch *pipeline.Orchestrator) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: cad-analyzer extract <file>")
	}
	res, err := orch.Extract(ctx, args[0], 0)
	if err != nil {
		return err
	}
	out, err := pipeline.MarshalResult(res)
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

func printUsage() {
	fmt.Println("cad-analyzer - security device extraction for DXF/DWG drawings")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  cad-analyzer [mcp]         Serve MCP over stdin/stdout (default)")
	fmt.Println("  cad-analyzer serve         Serve HTTP (and gRPC health when configured)")
	fmt.Println("  cad-analyzer extract FILE  Print the extraction result as JSON")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --version, -v    Print version information")
	fmt.Println("  --help, -h       Print this help message")
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Println("  CAD_CONFIG_FILE=path.yaml     YAML overlay for all settings")
	fmt.Println("  CAD_LOG_LEVEL=debug           Log level")
	fmt.Println("  CAD_HTTP_ADDR=:8000           HTTP listen address")
	fmt.Println("  CAD_GRPC_HEALTH_ADDR=:8001    gRPC health listen address")
	fmt.Println("  CAD_CONVERTER=oda|libredwg    DWG converter")
	fmt.Println("  CAD_HISTORY_DSN=...           sqlite path or postgres:// URL")
	fmt.Println("  DASHSCOPE_API_KEY=...         Enables summarization")
	fmt.Println()
	fmt.Println("Logs go to stderr; stdout is reserved for MCP and extract output.")
}
