package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/shopfront-dev/shopfront/internal/admin"
	"github.com/shopfront-dev/shopfront/internal/config"
	"github.com/shopfront-dev/shopfront/internal/identity"
	"github.com/shopfront-dev/shopfront/internal/web"
	"github.com/shopfront-dev/shopfront/pkg/storage"
	"github.com/shopfront-dev/shopfront/pkg/upload"
)

func serveCmd() *cobra.Command {
	var (
		configPath string
		addr       string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the storefront server",
		Long: `Start the storefront state server.

Storage, collaborator URLs, and upload settings come from
shopfront.json; SHOPFRONT_* environment variables override the
file.

Examples:
  shopfront serve
  shopfront serve --addr=:9090
  shopfront serve --config=/etc/shopfront/shopfront.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath, addr)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.ConfigFileName, "Path to the config file")
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default from shopfront.json)")

	return cmd
}

func runServe(configPath, addr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Addr = addr
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil)).With("app", cfg.Name)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kv, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer kv.Close()

	var provider identity.Provider
	if cfg.Identity.Mock {
		logger.Warn("using mock identity provider, sign-in accepts any credentials")
		provider = identity.NewMockProvider()
	} else {
		provider = identity.NewHTTPProvider(cfg.Identity.URL, identity.WithLogger(logger))
	}

	uploads, err := openUploads(ctx, cfg)
	if err != nil {
		return err
	}
	go upload.CleanupLoop(ctx, uploads, 15*time.Minute, time.Hour, logger)

	hub := web.NewHub(logger)
	registry := web.NewRegistry(kv, provider, hub, logger)
	server := web.NewServer(registry, admin.NewClient(cfg.Admin.URL, admin.WithLogger(logger)), uploads, hub,
		web.WithAddr(cfg.Addr),
		web.WithImageDir(cfg.ImageDir),
		web.WithServerLogger(logger),
	)

	printBanner()
	logger.Info("starting server",
		"addr", cfg.Addr,
		"storage", cfg.Storage.Backend,
		"uploads", cfg.Uploads.Backend,
	)
	return server.Start(ctx)
}

// openStorage builds the configured key-value backend.
func openStorage(cfg *config.Config) (storage.KV, error) {
	switch cfg.Storage.Backend {
	case config.StorageMemory:
		return storage.NewMemoryKV(), nil

	case config.StorageRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		return storage.NewRedisKV(client, storage.WithKeyPrefix(cfg.Storage.Redis.Prefix)), nil

	case config.StoragePostgres:
		db, err := storage.OpenPostgres(cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := storage.Migrate(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return storage.NewSQLKV(db), nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// openUploads builds the configured upload store.
func openUploads(ctx context.Context, cfg *config.Config) (upload.Store, error) {
	switch cfg.Uploads.Backend {
	case config.UploadDisk:
		return upload.NewDiskStore(cfg.Uploads.Dir, cfg.Uploads.MaxFileSize)

	case config.UploadS3:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		client := s3.NewFromConfig(awsCfg)
		return upload.NewS3Store(client, cfg.Uploads.Bucket, cfg.Uploads.Prefix, cfg.Uploads.MaxFileSize), nil

	default:
		return nil, fmt.Errorf("unknown upload backend %q", cfg.Uploads.Backend)
	}
}
