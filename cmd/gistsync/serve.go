package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/gistsync/gistsync/internal/config"
	"github.com/gistsync/gistsync/pkg/gist"
	"github.com/gistsync/gistsync/pkg/room"
	"github.com/gistsync/gistsync/pkg/server"
)

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync server",
		Long:  `Start the HTTP and websocket server that hosts gist rooms.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to gistsync.json (default: current directory)")
	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	dir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return config.Load(dir)
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// newStore builds the configured canonical-content store.
func newStore(ctx context.Context, cfg *config.Config) (gist.Store, error) {
	switch cfg.Store.Backend {
	case "memory":
		return gist.NewMemoryStore(), nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		return gist.NewRedisStore(client), nil

	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Store.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("postgres connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres ping: %w", err)
		}
		return gist.NewPGStore(pool), nil

	case "s3":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Store.S3.Region))
		if err != nil {
			return nil, fmt.Errorf("aws config: %w", err)
		}
		var opts []gist.S3StoreOption
		if cfg.Store.S3.Prefix != "" {
			opts = append(opts, gist.WithS3Prefix(cfg.Store.S3.Prefix))
		}
		return gist.NewS3Store(s3.NewFromConfig(awsCfg), cfg.Store.S3.Bucket, opts...), nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	store, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	roomCfg := room.Config{
		Filename:            cfg.Room.Filename,
		Debounce:            config.Duration(cfg.Room.Debounce),
		SaveInitialInterval: config.Duration(cfg.Room.SaveInitialInterval),
		SaveMaxInterval:     config.Duration(cfg.Room.SaveMaxInterval),
		SaveMaxElapsed:      config.Duration(cfg.Room.SaveMaxElapsed),
	}
	hub := room.NewHub(store, roomCfg, logger)

	srv := server.New(store, hub, server.Config{
		Address:        cfg.Server.Address,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("shutting down", "reason", ctx.Err())
	}

	return srv.Shutdown(context.Background())
}
