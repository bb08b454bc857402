package gcp

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/NotARoomba/canvas/internal/platform/dbctx"
	"github.com/NotARoomba/canvas/internal/platform/logger"
)

// BucketCategory is the key prefix an asset kind is stored under.
type BucketCategory string

const (
	BucketCategoryImage BucketCategory = "images"
	BucketCategoryAudio BucketCategory = "audio"
)

type BucketService interface {
	UploadFile(dbc dbctx.Context, category BucketCategory, key, contentType string, file io.Reader) error
	DownloadFile(ctx context.Context, category BucketCategory, key string) (io.ReadCloser, error)
	DeleteFile(dbc dbctx.Context, category BucketCategory, key string) error
}

type bucketService struct {
	log           *logger.Logger
	storageClient *storage.Client
	bucket        string
}

func NewBucketServiceWithConfig(log *logger.Logger, cfg ObjectStorageConfig) (BucketService, error) {
	if err := ValidateObjectStorageConfig(cfg); err != nil {
		return nil, fmt.Errorf("validate object storage config: %w", err)
	}
	serviceLog := log.With("service", "BucketService")

	stClient, err := newStorageClientForMode(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	serviceLog.Info("Object storage initialized",
		"mode", cfg.Mode,
		"emulator", cfg.IsEmulatorMode(),
		"emulator_host", cfg.EmulatorHost,
		"bucket", cfg.BucketName,
	)
	return &bucketService{
		log:           serviceLog,
		storageClient: stClient,
		bucket:        cfg.BucketName,
	}, nil
}

func newStorageClientForMode(ctx context.Context, cfg ObjectStorageConfig) (*storage.Client, error) {
	switch cfg.Mode {
	case ObjectStorageModeGCS:
		opts := ClientOptionsFromEnv()
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
		return storage.NewClient(ctx, opts...)
	case ObjectStorageModeGCSEmulator:
		endpoint := strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/")
		_ = os.Setenv("STORAGE_EMULATOR_HOST", endpoint)
		return storage.NewClient(ctx, option.WithoutAuthentication())
	default:
		return nil, fmt.Errorf("invalid OBJECT_STORAGE_MODE=%q", cfg.Mode)
	}
}

// ObjectKey joins category and key into the object name.
func ObjectKey(category BucketCategory, key string) string {
	return path.Join(string(category), strings.TrimLeft(key, "/"))
}

func (bs *bucketService) UploadFile(dbc dbctx.Context, category BucketCategory, key, contentType string, file io.Reader) error {
	ctx, cancel := context.WithTimeout(dbc.Ctx, 2*time.Minute)
	defer cancel()

	w := bs.storageClient.Bucket(bs.bucket).Object(ObjectKey(category, key)).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, file); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return nil
}

type readCloserWithCancel struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *readCloserWithCancel) Close() error {
	err := r.ReadCloser.Close()
	r.cancel()
	return err
}

func (bs *bucketService) DownloadFile(ctx context.Context, category BucketCategory, key string) (io.ReadCloser, error) {
	// The timeout covers reading too, so it is canceled only when the reader closes.
	ctx2, cancel := context.WithTimeout(ctx, 2*time.Minute)
	r, err := bs.storageClient.Bucket(bs.bucket).Object(ObjectKey(category, key)).NewReader(ctx2)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open GCS reader: %w", err)
	}
	return &readCloserWithCancel{ReadCloser: r, cancel: cancel}, nil
}

func (bs *bucketService) DeleteFile(dbc dbctx.Context, category BucketCategory, key string) error {
	ctx, cancel := context.WithTimeout(dbc.Ctx, 30*time.Second)
	defer cancel()
	name := ObjectKey(category, key)
	if err := bs.storageClient.Bucket(bs.bucket).Object(name).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete GCS object %q in bucket %q: %w", name, bs.bucket, err)
	}
	return nil
}
