// Usage-archiver rolls journaled call records into per-adapter usage reports
// and ships them to S3-compatible storage. It runs once by default; set
// ARCHIVE_RUN_ONCE=false to keep it running on an interval.
package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/toolbridge/toolbridge/pkg/config"
	"github.com/toolbridge/toolbridge/pkg/journal"
	"github.com/toolbridge/toolbridge/pkg/usage"
)

type minioUploader struct {
	client *minio.Client
	bucket string
}

func (m minioUploader) Upload(ctx context.Context, key string, body []byte) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dbURL := os.Getenv("JOURNAL_DATABASE_URL")
	if dbURL == "" {
		log.Error("JOURNAL_DATABASE_URL is required")
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.Error("postgres connect failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	minioClient, err := minio.New(config.EnvOr("USAGE_S3_ENDPOINT", "localhost:9000"), &minio.Options{
		Creds: credentials.NewStaticV4(
			config.EnvOr("USAGE_S3_ACCESS_KEY", "minioadmin"),
			config.EnvOr("USAGE_S3_SECRET_KEY", "minioadmin"),
			""),
		Secure: config.EnvOrBool("USAGE_S3_SECURE", false),
	})
	if err != nil {
		log.Error("minio init failed", "error", err)
		os.Exit(1)
	}

	store := journal.NewStore(pool, log)
	if err := store.EnsureSchema(ctx); err != nil {
		log.Error("journal schema failed", "error", err)
		os.Exit(1)
	}
	svc := usage.New(store, minioUploader{
		client: minioClient,
		bucket: config.EnvOr("USAGE_S3_BUCKET", "toolbridge-usage"),
	}, log)

	onlyAdapter := os.Getenv("ARCHIVE_ADAPTER")
	runOnce := config.EnvOrBool("ARCHIVE_RUN_ONCE", true)
	interval := config.EnvOrDuration("ARCHIVE_INTERVAL", time.Hour)

	run := func() {
		now := time.Now()
		if onlyAdapter != "" {
			key, err := svc.ArchiveAdapter(ctx, onlyAdapter, now)
			if err != nil {
				log.Error("failed to archive usage", "adapter", onlyAdapter, "error", err)
				return
			}
			if key != "" {
				log.Info("archived usage report", "adapter", onlyAdapter, "key", key)
			}
			return
		}
		if err := svc.ArchiveAll(ctx, now); err != nil {
			log.Error("archive pass finished with errors", "error", err)
		}
	}

	run()
	if runOnce {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}
