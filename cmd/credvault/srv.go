package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"credvault/internal/blobstore"
	"credvault/internal/config"
	"credvault/internal/metrics"
	"credvault/internal/notify"
	"credvault/internal/server"
	"credvault/internal/store"
	"credvault/internal/store/postgres"
)

func newSrvCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "srv",
		Short: "Run the credvault API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return fmt.Errorf("config not initialized")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg, slog.Default().With("component", "server"))
		},
	}
}

func runServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	addr, err := server.ListenAddr(cfg.APIURL)
	if err != nil {
		return err
	}

	repo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	objects, err := openBlobStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	notifier, err := notify.New(cfg.Notify, logger)
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	defer notifier.Close()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	srv := server.New(addr, repo, objects, server.Options{
		Logger:   logger,
		Metrics:  m,
		Notifier: notifier,
		BlobPolicy: &server.BlobPolicy{
			MaxUploadBytes:    cfg.Blobs.MaxUploadBytes,
			AllowedMediaTypes: cfg.Blobs.AllowedMediaTypes,
			GCBatchSize:       cfg.Blobs.GCBatchSize,
			GCMinAge:          cfg.Blobs.GCMinAgeDuration(),
		},
		MultipartMaxMemory: cfg.Blobs.MultipartMaxMemory,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		if cause := context.Cause(gctx); cause != nil && cause != context.Canceled {
			logger.Info("stopping", "cause", cause)
		}
		return nil
	})
	return g.Wait()
}

func openRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Repository, error) {
	switch cfg.Database.Driver {
	case "postgres":
		logger.Info("connecting to postgres", "dsn", cfg.Database.DSN)
		pg, err := postgres.Open(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		return pg, nil
	default:
		if cfg.Database.Path == "" {
			return nil, fmt.Errorf("db path is required")
		}
		logger.Info("opening database", "path", cfg.Database.Path)
		st, err := store.Open(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
}

func openBlobStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (blobstore.BlobStore, error) {
	switch cfg.Blobs.Backend {
	case config.BlobBackendS3:
		s3cfg := cfg.Blobs.S3
		logger.Info("using s3 blob backend", "bucket", s3cfg.Bucket, "prefix", s3cfg.Prefix, "endpoint", s3cfg.Endpoint)
		s3store, err := blobstore.NewS3(ctx, blobstore.S3Config{
			Bucket:          s3cfg.Bucket,
			Region:          s3cfg.Region,
			Endpoint:        s3cfg.Endpoint,
			AccessKeyID:     s3cfg.AccessKeyID,
			SecretAccessKey: s3cfg.SecretAccessKey,
			UsePathStyle:    s3cfg.UsePathStyle,
			CreateBucket:    s3cfg.CreateBucket,
			Prefix:          s3cfg.Prefix,
		})
		if err != nil {
			return nil, err
		}
		return s3store, nil
	default:
		logger.Info("using local blob backend", "root", cfg.Blobs.Root)
		local, err := blobstore.NewLocalCAS(cfg.Blobs.Root)
		if err != nil {
			return nil, err
		}
		return local, nil
	}
}
