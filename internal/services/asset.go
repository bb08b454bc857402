package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/NotARoomba/canvas/internal/data/repos"
	types "github.com/NotARoomba/canvas/internal/domain"
	"github.com/NotARoomba/canvas/internal/platform/dbctx"
	"github.com/NotARoomba/canvas/internal/platform/gcp"
	"github.com/NotARoomba/canvas/internal/platform/imagex"
	"github.com/NotARoomba/canvas/internal/platform/logger"
)

const (
	AssetStorageDB  = "db"
	AssetStorageGCS = "gcs"
)

const AudioMimeType = "audio/mpeg"

// maxAssetBytes bounds what LoadImage/LoadAudio read back from the bucket.
const maxAssetBytes = 32 << 20

// LoadedImage is an image asset with its bytes resolved. Data is nil when the
// asset only points at an external SourceURL.
type LoadedImage struct {
	Asset    *types.ImageAsset
	Data     []byte
	MimeType string
}

type AssetService interface {
	StoreImage(ctx context.Context, data []byte, mimeType string) (*types.ImageAsset, error)
	// StoreImageSource records an externally hosted image without copying its bytes.
	StoreImageSource(ctx context.Context, sourceURL string) (*types.ImageAsset, error)
	StoreAudio(ctx context.Context, data []byte) (*types.AudioAsset, error)
	LoadImage(ctx context.Context, id uuid.UUID) (*LoadedImage, error)
	LoadAudio(ctx context.Context, id uuid.UUID) (*types.AudioAsset, []byte, error)
}

type assetService struct {
	log    *logger.Logger
	repo   repos.AssetRepo
	bucket gcp.BucketService
	mode   string
}

// NewAssetService stores bytes inline in the database, or in the bucket when
// mode is "gcs" (bucket must then be non-nil).
func NewAssetService(log *logger.Logger, repo repos.AssetRepo, bucket gcp.BucketService, mode string) (AssetService, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = AssetStorageDB
	}
	switch mode {
	case AssetStorageDB:
	case AssetStorageGCS:
		if bucket == nil {
			return nil, fmt.Errorf("asset storage %q requires a bucket service", mode)
		}
	default:
		return nil, fmt.Errorf("invalid ASSET_STORAGE=%q", mode)
	}
	return &assetService{
		log:    log.With("service", "AssetService"),
		repo:   repo,
		bucket: bucket,
		mode:   mode,
	}, nil
}

func (s *assetService) StoreImage(ctx context.Context, data []byte, mimeType string) (*types.ImageAsset, error) {
	if len(data) == 0 {
		return nil, errors.New("empty image")
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	img := &types.ImageAsset{ID: uuid.New(), MimeType: mimeType}
	if s.mode == AssetStorageGCS {
		key := img.ID.String()
		if err := s.bucket.UploadFile(dbctx.Context{Ctx: ctx}, gcp.BucketCategoryImage, key, mimeType, bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("upload image: %w", err)
		}
		img.StorageKey = key
	} else {
		img.DataURL = imagex.EncodeDataURL(mimeType, data)
	}
	created, err := s.repo.CreateImage(dbctx.Context{Ctx: ctx}, img)
	if err != nil {
		return nil, fmt.Errorf("insert image asset: %w", err)
	}
	s.log.Debug("Stored image asset", "image_id", created.ID, "mime_type", mimeType, "bytes", len(data), "storage", s.mode)
	return created, nil
}

func (s *assetService) StoreImageSource(ctx context.Context, sourceURL string) (*types.ImageAsset, error) {
	sourceURL = strings.TrimSpace(sourceURL)
	if sourceURL == "" {
		return nil, errors.New("empty image source url")
	}
	img := &types.ImageAsset{
		ID:        uuid.New(),
		MimeType:  mimeFromURL(sourceURL),
		SourceURL: &sourceURL,
	}
	created, err := s.repo.CreateImage(dbctx.Context{Ctx: ctx}, img)
	if err != nil {
		return nil, fmt.Errorf("insert image asset: %w", err)
	}
	return created, nil
}

func (s *assetService) StoreAudio(ctx context.Context, data []byte) (*types.AudioAsset, error) {
	if len(data) == 0 {
		return nil, errors.New("empty audio")
	}
	audio := &types.AudioAsset{ID: uuid.New(), MimeType: AudioMimeType}
	if s.mode == AssetStorageGCS {
		key := audio.ID.String()
		if err := s.bucket.UploadFile(dbctx.Context{Ctx: ctx}, gcp.BucketCategoryAudio, key, AudioMimeType, bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("upload audio: %w", err)
		}
		audio.StorageKey = key
	} else {
		audio.Data = data
	}
	created, err := s.repo.CreateAudio(dbctx.Context{Ctx: ctx}, audio)
	if err != nil {
		return nil, fmt.Errorf("insert audio asset: %w", err)
	}
	s.log.Debug("Stored audio asset", "audio_id", created.ID, "bytes", len(data), "storage", s.mode)
	return created, nil
}

func (s *assetService) LoadImage(ctx context.Context, id uuid.UUID) (*LoadedImage, error) {
	img, err := s.repo.GetImage(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return nil, err
	}
	out := &LoadedImage{Asset: img, MimeType: img.MimeType}
	switch {
	case img.StorageKey != "":
		data, err := s.download(ctx, gcp.BucketCategoryImage, img.StorageKey)
		if err != nil {
			return nil, err
		}
		out.Data = data
	case img.DataURL != "":
		mime, data, err := imagex.DecodeDataURL(img.DataURL)
		if err != nil {
			return nil, fmt.Errorf("decode image %s: %w", id, err)
		}
		out.Data = data
		if mime != "" {
			out.MimeType = mime
		}
	case img.SourceURL != nil:
		// external image; caller redirects
	default:
		return nil, fmt.Errorf("image %s has no content", id)
	}
	if len(out.Data) > 0 {
		if sniffed := http.DetectContentType(out.Data); sniffed != "application/octet-stream" {
			out.MimeType = sniffed
		}
	}
	return out, nil
}

func (s *assetService) LoadAudio(ctx context.Context, id uuid.UUID) (*types.AudioAsset, []byte, error) {
	audio, err := s.repo.GetAudio(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return nil, nil, err
	}
	if audio.StorageKey == "" {
		return audio, audio.Data, nil
	}
	data, err := s.download(ctx, gcp.BucketCategoryAudio, audio.StorageKey)
	if err != nil {
		return nil, nil, err
	}
	return audio, data, nil
}

func (s *assetService) download(ctx context.Context, category gcp.BucketCategory, key string) ([]byte, error) {
	if s.bucket == nil {
		return nil, fmt.Errorf("asset %s/%s stored in bucket but no bucket configured", category, key)
	}
	rc, err := s.bucket.DownloadFile(ctx, category, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxAssetBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", category, key, err)
	}
	return data, nil
}

func mimeFromURL(u string) string {
	lower := strings.ToLower(u)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	switch {
	case strings.HasSuffix(lower, ".png"):
		return "image/png"
	case strings.HasSuffix(lower, ".jpg"), strings.HasSuffix(lower, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(lower, ".gif"):
		return "image/gif"
	case strings.HasSuffix(lower, ".svg"):
		return "image/svg+xml"
	case strings.HasSuffix(lower, ".webp"):
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
