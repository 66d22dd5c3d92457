package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"fridgeshare/internal/adapters/httpapi"
	"fridgeshare/internal/blob"
	"fridgeshare/internal/core"
	"fridgeshare/internal/infra/cache/rediscache"
	"fridgeshare/internal/platform/config"
)

func newServeCmd() *cobra.Command {
	var envFiles []string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(envFiles...)
			if err != nil {
				return err
			}
			logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
	cmd.Flags().StringSliceVar(&envFiles, "env-file", nil, "dotenv file(s) to load before reading the environment")
	return cmd
}

// app holds the wired service and the resources that must be released on exit.
type app struct {
	handler http.Handler
	svc     *core.Service
	closers []io.Closer
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}

func buildApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{}
	store, err := core.OpenPersistentStore(ctx, core.StorageConfig{
		Driver:      core.StorageDriver(cfg.StorageDriver),
		SQLitePath:  cfg.SQLitePath,
		PostgresDSN: cfg.PostgresDSN,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	blobs, err := blob.Open(ctx, blob.Config{
		Driver: blob.Driver(cfg.BlobDriver),
		FSRoot: cfg.BlobFSRoot,
		S3: blob.S3Config{
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			PathStyle:       cfg.S3PathStyle,
		},
	})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []core.Option{
		core.WithLogger(logger),
		core.WithAuditRecorder(core.NewLogAuditRecorder(logger.With("component", "audit"))),
		core.WithMetricsRecorder(core.NewPrometheusMetricsRecorder(reg)),
		core.WithTracer(core.NewOTelTracer(nil)),
		core.WithBlobStore(blobs),
	}

	var client *redis.Client
	if cfg.RedisAddr != "" {
		client, err = rediscache.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.closers = append(a.closers, client)
		dir := rediscache.New(client, core.NewStoreDirectory(store), rediscache.WithTTL(cfg.RelationshipCacheTTL))
		reg.MustRegister(dir.Collectors()...)
		opts = append(opts, core.WithRelationshipDirectory(dir))
		logger.Info("relationship cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.RelationshipCacheTTL)
	}

	a.svc = core.NewService(store, opts...)
	a.handler = httpapi.NewRouter(a.svc,
		httpapi.WithLogger(logger),
		httpapi.WithGatherer(reg),
		httpapi.WithHealthCheck(healthCheck(store, client)),
	)
	return a, nil
}

// healthCheck pings the database and cache when the configured backends have one.
func healthCheck(store core.PersistentStore, client *redis.Client) func() error {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if db, ok := store.(interface{ DB() *sql.DB }); ok {
			if err := db.DB().PingContext(ctx); err != nil {
				return fmt.Errorf("database: %w", err)
			}
		}
		if client != nil {
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		return nil
	}
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("close resources", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", cfg.HTTPAddr, "storage", cfg.StorageDriver, "blobs", cfg.BlobDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		logger.Info("shutting down", "timeout", cfg.ShutdownTimeout)
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
