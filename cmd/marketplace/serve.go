package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/marketplace/internal/codec"
	"github.com/alfredjeanlab/marketplace/internal/config"
	"github.com/alfredjeanlab/marketplace/internal/events"
	"github.com/alfredjeanlab/marketplace/internal/export"
	"github.com/alfredjeanlab/marketplace/internal/logging"
	"github.com/alfredjeanlab/marketplace/internal/marketplace"
	"github.com/alfredjeanlab/marketplace/internal/model"
	"github.com/alfredjeanlab/marketplace/internal/projection"
	"github.com/alfredjeanlab/marketplace/internal/server"
	"github.com/alfredjeanlab/marketplace/internal/status"
	"github.com/alfredjeanlab/marketplace/internal/store"
	"github.com/alfredjeanlab/marketplace/internal/store/memory"
	"github.com/alfredjeanlab/marketplace/internal/store/postgres"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Run the projections and the HTTP and gRPC servers",
	GroupID: "system",
	// Override PersistentPreRunE so we don't create an HTTP client.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		level, err := logging.ParseLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger, err := logging.New(os.Stderr, level, cfg.LogFormat)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logger)
	},
}

// bus is what serve needs from an event transport: announcing appends and
// waking live subscriptions.
type bus interface {
	events.Publisher
	events.Watcher
}

// natsBus pairs a NATS publisher and subscriber on the same server.
type natsBus struct {
	*events.NATSPublisher
	sub *events.NATSSubscriber
}

func (b *natsBus) Watch(ctx context.Context) (<-chan model.Position, func(), error) {
	return b.sub.Watch(ctx)
}

func (b *natsBus) Close() error {
	return errors.Join(b.NATSPublisher.Close(), b.sub.Close())
}

// serve runs until ctx is cancelled, then shuts everything down in reverse
// order of startup.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}
	}()

	b, err := openBus(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Error("error closing event bus", "err", err)
		}
	}()

	types, err := marketplace.NewTypeMapper()
	if err != nil {
		return err
	}
	logger.Debug("event types registered", "types", types.Names())
	cdc, err := codec.New(cfg.Codec)
	if err != nil {
		return err
	}

	tracker := status.New()
	manager, err := projection.NewManager(projection.Options{
		Log:         st,
		Watcher:     b,
		Checkpoints: st,
		Types:       types,
		Codec:       cdc,
		Logger:      logger,
		Status:      tracker,
		Config:      runtimeConfig(cfg),
	})
	if err != nil {
		return err
	}

	projections := enabledProjections(cfg, logger,
		marketplace.NewOwnerIndex(st),
		marketplace.NewAvailableAds(st),
	)
	if err := manager.Activate(ctx, projections...); err != nil {
		return fmt.Errorf("activate projections: %w", err)
	}
	defer func() {
		manager.Stop()
		logger.Info("projections stopped")
	}()

	srv := server.New(server.Options{
		Checkpoints: st,
		ReadModels:  st,
		Ads:         marketplace.NewService(st, b, types, cdc, logger),
		Status:      tracker,
		Logger:      logger,
	})
	grpcServer := srv.NewGRPCServer(cfg.AuthToken)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}
	go func() {
		logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", "err", err)
		}
	}()
	defer func() {
		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")
	}()

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.NewHTTPHandler(cfg.AuthToken),
		ReadHeaderTimeout: 10 * time.Second,
		// Status streams end when ctx is cancelled.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "err", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")
	}()

	if scheduler := newExportScheduler(ctx, cfg, st, logger); scheduler != nil {
		scheduler.Start()
		logger.Info("export scheduler started", "interval", cfg.ExportInterval)
		defer func() {
			scheduler.Stop()
			logger.Info("export scheduler stopped")
		}()
	}

	logger.Info("marketplace server started",
		"storage", cfg.Storage,
		"grpc_addr", cfg.GRPCAddr,
		"http_addr", cfg.HTTPAddr,
		"projections", len(projections),
	)

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		return memory.New(), nil
	default:
		pg, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return pg, nil
	}
}

// openBus connects to NATS when configured. Without NATS, appends made by
// this process are announced in-process and other writers are picked up by
// polling.
func openBus(cfg *config.Config, logger *slog.Logger) (bus, error) {
	if cfg.NATSURL == "" {
		logger.Info("NATS disabled, using in-process notifications (MARKETPLACE_NATS_URL not set)")
		return events.NewMemoryBus(), nil
	}
	pub, err := events.NewNATSPublisher(cfg.NATSURL)
	if err != nil {
		return nil, err
	}
	sub, err := events.NewNATSSubscriber(cfg.NATSURL)
	if err != nil {
		_ = pub.Close()
		return nil, err
	}
	logger.Info("NATS notifications enabled", "nats_url", cfg.NATSURL)
	return &natsBus{NATSPublisher: pub, sub: sub}, nil
}

func runtimeConfig(cfg *config.Config) projection.Config {
	rc := projection.Config{
		MaxLiveQueueSize: cfg.MaxLiveQueueSize,
		ReadBatchSize:    cfg.ReadBatchSize,
		Verbose:          cfg.Verbose,
		RestartDelay:     cfg.RestartDelay,
		PollInterval:     cfg.PollInterval,
		Skipped:          projection.SkipAndCheckpoint,
	}
	if !cfg.CheckpointSkipped {
		rc.Skipped = projection.SkipWithoutCheckpoint
	}
	return rc
}

func enabledProjections(cfg *config.Config, logger *slog.Logger, all ...projection.Projection) []projection.Projection {
	var out []projection.Projection
	for _, p := range all {
		if !cfg.Enabled(p.Name()) {
			logger.Info("projection disabled by config", "projection", p.Name())
			continue
		}
		out = append(out, p)
	}
	return out
}

// newExportScheduler returns nil when exports are disabled or no
// destination is configured.
func newExportScheduler(ctx context.Context, cfg *config.Config, src export.Source, logger *slog.Logger) *export.Scheduler {
	if cfg.ExportInterval <= 0 {
		return nil
	}

	var dests []export.Destination
	if cfg.ExportS3Bucket != "" {
		s3Dest, err := export.NewS3Destination(ctx, cfg.ExportS3Bucket, cfg.ExportS3Key, cfg.ExportS3Region, cfg.ExportS3Endpoint)
		if err != nil {
			logger.Error("failed to create S3 export destination", "err", err)
		} else {
			dests = append(dests, s3Dest)
			logger.Info("export S3 destination enabled", "bucket", cfg.ExportS3Bucket, "key", cfg.ExportS3Key)
		}
	}
	if cfg.ExportGitRepo != "" {
		dests = append(dests, export.NewGitDestination(cfg.ExportGitRepo, cfg.ExportGitFile, cfg.ExportGitBranch))
		logger.Info("export git destination enabled", "repo", cfg.ExportGitRepo, "file", cfg.ExportGitFile)
	}
	if len(dests) == 0 {
		logger.Warn("export interval set but no destination configured")
		return nil
	}
	return export.NewScheduler(src, dests, cfg.ExportInterval, logger)
}
