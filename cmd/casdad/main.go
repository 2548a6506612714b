package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joseph-ayodele/casda-stager/internal/casda"
	"github.com/joseph-ayodele/casda-stager/internal/common"
	"github.com/joseph-ayodele/casda-stager/internal/core"
	"github.com/joseph-ayodele/casda-stager/internal/core/async"
	"github.com/joseph-ayodele/casda-stager/internal/export"
	"github.com/joseph-ayodele/casda-stager/internal/httpapi"
	"github.com/joseph-ayodele/casda-stager/internal/ingest"
	repo "github.com/joseph-ayodele/casda-stager/internal/repository"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if !cfg.Archive.HasCredentials() {
		logger.Warn("CASDA_USER not configured, staging requests will be rejected")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repo.Open(ctx, repo.Config{
		DSN:             cfg.Database.DSN,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		DialTimeout:     cfg.Database.DialTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close(logger)

	if err := repo.HealthCheck(ctx, db, 3*time.Second, logger); err != nil {
		logger.Error("database health check failed", "error", err)
		os.Exit(1)
	}

	requests := repo.NewStageRequestRepository(db, logger)
	client := casda.NewFromConfig(cfg.Archive, nil, logger)
	stager := core.NewStager(logger, client, requests)
	queue := async.NewStageQueue(stager, logger,
		async.WithWorkers(cfg.Queue.Workers),
		async.WithQueueSize(cfg.Queue.Size),
		async.WithProcessTimeout(cfg.Queue.StageTimeout),
	)

	requeue := func(ctx context.Context, id uuid.UUID) error {
		return queue.Enqueue(ctx, async.Job{RequestID: id, TraceID: "recover"})
	}
	if _, _, err := stager.Recover(ctx, requeue); err != nil {
		logger.Error("failed to recover unfinished requests", "error", err)
	}

	if cfg.Inbox.Dir != "" {
		if err := os.MkdirAll(cfg.Inbox.Dir, 0o755); err != nil {
			logger.Error("failed to create inbox", "dir", cfg.Inbox.Dir, "error", err)
			os.Exit(1)
		}
		events, _, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
			Roots:       []string{cfg.Inbox.Dir},
			InitialScan: true,
			Debounce:    cfg.Inbox.Debounce,
			Logger:      logger,
		})
		if err != nil {
			logger.Error("failed to watch inbox", "dir", cfg.Inbox.Dir, "error", err)
			os.Exit(1)
		}
		ingestor := ingest.NewFSIngestor(requests, queue, cfg.Archive.Service, logger)
		go ingest.Serve(ctx, ingestor, events, logger)
		logger.Info("watching manifest inbox", "dir", cfg.Inbox.Dir)
	}

	api := httpapi.Server{
		Requests:      requests,
		Queue:         queue,
		Export:        export.NewService(requests, logger),
		Service:       cfg.Archive.Service,
		Authenticated: cfg.Archive.HasCredentials(),
		Logger:        logger,
	}
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// gRPC health + reflection for orchestrators
	grpcServer := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("grpc listen failed", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}
	go func() {
		logger.Info("grpc health serving", "addr", cfg.Server.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("grpc serve", "error", err)
		}
	}()
	go func() {
		logger.Info("http api serving", "addr", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	queue.Shutdown(shutdownCtx)
	grpcServer.GracefulStop()
	logger.Info("stopped")
}
