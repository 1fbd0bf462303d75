package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/ironsheep/cad-analyzer-mcp/internal/async"
	"github.com/ironsheep/cad-analyzer-mcp/internal/common"
	"github.com/ironsheep/cad-analyzer-mcp/internal/httpapi"
	"github.com/ironsheep/cad-analyzer-mcp/internal/pipeline"
)

const (
	pruneInterval   = time.Hour
	shutdownTimeout = 30 * time.Second
)

func serve(ctx context.Context, cfg *common.Config, orch *pipeline.Orchestrator, logger *zap.Logger) error {
	pool := async.NewPool(logger.Named("pool"),
		async.WithWorkers(cfg.Server.Workers),
		async.WithQueueSize(cfg.Server.QueueSize),
		async.WithProcessTimeout(jobTimeout(cfg)),
	)

	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           httpapi.New(orch, pool, cfg, logger.Named("http")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var (
		grpcServer   *grpc.Server
		healthServer *health.Server
	)
	if cfg.Server.GRPCHealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCHealthAddr)
		if err != nil {
			return common.NewAppError("LISTEN_ERROR", "listen on "+cfg.Server.GRPCHealthAddr, err)
		}
		grpcServer = grpc.NewServer()
		healthServer = health.NewServer()
		grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
		// empty service name is overall server health
		healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

		logger.Info("gRPC health listening", zap.String("addr", cfg.Server.GRPCHealthAddr))
		go func() {
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC serve error", zap.Error(err))
			}
		}()
	}

	go pruneLoop(ctx, orch, cfg.History.RetentionDays, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP listening",
			zap.String("addr", cfg.Server.HTTPAddr),
			zap.String("version", Version),
			zap.Int("workers", cfg.Server.Workers),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case serveErr = <-errCh:
	}

	if healthServer != nil {
		healthServer.Shutdown()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown", zap.Error(err))
	}
	pool.Shutdown(shutdownCtx)
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	return serveErr
}

// jobTimeout leaves headroom for reading and rendering on top of the
// external tool timeouts. Zero means unbounded.
func jobTimeout(cfg *common.Config) time.Duration {
	if cfg.Converter.Timeout <= 0 || cfg.Summarizer.Timeout <= 0 {
		return 0
	}
	return cfg.Converter.Timeout + cfg.Summarizer.Timeout + time.Minute
}

// pruneLoop drops expired history at startup and then every pruneInterval.
func pruneLoop(ctx context.Context, orch *pipeline.Orchestrator, retentionDays int, logger *zap.Logger) {
	if retentionDays <= 0 {
		return
	}
	prune := func() {
		n, err := orch.PruneHistory(ctx, retentionDays)
		if err != nil {
			logger.Warn("history prune failed", zap.Error(err))
			return
		}
		if n > 0 {
			logger.Info("pruned history", zap.Int64("deleted", n), zap.Int("retention_days", retentionDays))
		}
	}

	prune()
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
