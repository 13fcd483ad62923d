package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"imgshelf/internal/blobstore"
	"imgshelf/internal/cache"
	"imgshelf/internal/config"
	"imgshelf/internal/server"
	"imgshelf/internal/store"
)

const redisConnectTimeout = 3 * time.Second

func newServeCmd(cfg *config.Config) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the imgshelf API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return fmt.Errorf("config not initialized")
			}
			if cfg.DBPath == "" {
				return fmt.Errorf("db path is required")
			}
			listenAddr := cfg.ListenAddr
			if strings.TrimSpace(addr) != "" {
				listenAddr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := slog.Default().With("component", "server")

			logger.Info("opening database", "path", cfg.DBPath)
			st, err := store.Open(cfg.DBPath, store.Options{
				MaxOpenConns:  cfg.Database.MaxOpenConns,
				BusyTimeoutMS: cfg.Database.BusyTimeoutMS,
			})
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer st.Close()

			blobs, closeBlobs, err := openBlobStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeBlobs()

			var records store.RecordStore = st
			if cfg.Cache.RedisAddr != "" {
				connectCtx, cancel := context.WithTimeout(ctx, redisConnectTimeout)
				client, err := cache.NewClient(connectCtx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
				cancel()
				if err != nil {
					return err
				}
				defer client.Close()
				logger.Info("listing cache enabled", "redis", cfg.Cache.RedisAddr, "ttl_seconds", cfg.Cache.TTLSeconds)
				records = cache.NewCachedRecords(st, client, time.Duration(cfg.Cache.TTLSeconds)*time.Second, logger)
			}

			srv, err := server.New(server.Options{
				Addr:               listenAddr,
				Records:            records,
				Blobs:              blobs,
				MaxUploadBytes:     cfg.Uploads.MaxUploadBytes,
				MultipartMaxMemory: cfg.Uploads.MultipartMaxMemory,
				AllowedOrigins:     cfg.CORS.AllowedOrigins,
				AllowCredentials:   cfg.CORS.AllowCredentials,
				UploadsPerSecond:   cfg.RateLimit.UploadsPerSecond,
				UploadBurst:        cfg.RateLimit.Burst,
				TrustProxyHeaders:  cfg.TrustProxyHeaders,
				Logger:             logger,
			})
			if err != nil {
				return err
			}

			logger.Info("health endpoint", "url", strings.TrimRight(cfg.APIURL, "/")+"/api/health")
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides listen_addr)")
	return cmd
}

func openBlobStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (blobstore.BlobStore, func(), error) {
	switch cfg.Storage.Backend {
	case config.StorageBackendBucket:
		bucket, err := blobstore.OpenBucket(ctx, cfg.Storage.BucketURL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("storing uploads in bucket", "url", cfg.Storage.BucketURL)
		return bucket, func() { _ = bucket.Close() }, nil
	default:
		dir, err := blobstore.NewLocalDir(cfg.Storage.Dir)
		if err != nil {
			return nil, nil, fmt.Errorf("open upload dir: %w", err)
		}
		logger.Info("storing uploads on disk", "dir", dir.Root())
		return dir, func() {}, nil
	}
}
