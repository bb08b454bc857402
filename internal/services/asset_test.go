package services

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NotARoomba/canvas/internal/data/repos"
	"github.com/NotARoomba/canvas/internal/data/repos/testutil"
	"github.com/NotARoomba/canvas/internal/platform/dbctx"
	"github.com/NotARoomba/canvas/internal/platform/gcp"
)

type memBucket struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemBucket() *memBucket { return &memBucket{files: map[string][]byte{}} }

func (b *memBucket) UploadFile(dbc dbctx.Context, category gcp.BucketCategory, key, contentType string, file io.Reader) error {
	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.files[string(category)+"/"+key] = data
	return nil
}

func (b *memBucket) DownloadFile(ctx context.Context, category gcp.BucketCategory, key string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.files[string(category)+"/"+key]
	if !ok {
		return nil, repos.ErrAssetNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *memBucket) DeleteFile(dbc dbctx.Context, category gcp.BucketCategory, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.files, string(category)+"/"+key)
	return nil
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		img.Set(x, x, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestNewAssetServiceModes(t *testing.T) {
	repo := repos.NewAssetRepo(testutil.DB(t), testutil.Logger(t))
	_, err := NewAssetService(testutil.Logger(t), repo, nil, "gcs")
	require.Error(t, err)
	_, err = NewAssetService(testutil.Logger(t), repo, nil, "s3")
	require.Error(t, err)
	_, err = NewAssetService(testutil.Logger(t), repo, nil, "")
	require.NoError(t, err)
}

func TestAssetServiceDatabaseStorage(t *testing.T) {
	ctx := context.Background()
	repo := repos.NewAssetRepo(testutil.DB(t), testutil.Logger(t))
	svc, err := NewAssetService(testutil.Logger(t), repo, nil, AssetStorageDB)
	require.NoError(t, err)

	data := pngBytes(t)
	img, err := svc.StoreImage(ctx, data, "")
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MimeType)
	assert.Contains(t, img.DataURL, "data:image/png;base64,")

	loaded, err := svc.LoadImage(ctx, img.ID)
	require.NoError(t, err)
	assert.Equal(t, data, loaded.Data)
	assert.Equal(t, "image/png", loaded.MimeType)

	audio, err := svc.StoreAudio(ctx, []byte("ID3fake-mp3"))
	require.NoError(t, err)
	got, raw, err := svc.LoadAudio(ctx, audio.ID)
	require.NoError(t, err)
	assert.Equal(t, AudioMimeType, got.MimeType)
	assert.Equal(t, []byte("ID3fake-mp3"), raw)

	_, err = svc.StoreAudio(ctx, nil)
	require.Error(t, err)
	_, err = svc.LoadImage(ctx, uuid.New())
	require.ErrorIs(t, err, repos.ErrAssetNotFound)
}

func TestAssetServiceBucketStorage(t *testing.T) {
	ctx := context.Background()
	bucket := newMemBucket()
	repo := repos.NewAssetRepo(testutil.DB(t), testutil.Logger(t))
	svc, err := NewAssetService(testutil.Logger(t), repo, bucket, AssetStorageGCS)
	require.NoError(t, err)

	data := pngBytes(t)
	img, err := svc.StoreImage(ctx, data, "image/png")
	require.NoError(t, err)
	assert.Empty(t, img.DataURL)
	assert.Equal(t, img.ID.String(), img.StorageKey)
	assert.Contains(t, bucket.files, "images/"+img.ID.String())

	loaded, err := svc.LoadImage(ctx, img.ID)
	require.NoError(t, err)
	assert.Equal(t, data, loaded.Data)

	audio, err := svc.StoreAudio(ctx, []byte("mp3"))
	require.NoError(t, err)
	assert.Nil(t, audio.Data)
	_, raw, err := svc.LoadAudio(ctx, audio.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3"), raw)
}

func TestAssetServiceImageSource(t *testing.T) {
	ctx := context.Background()
	repo := repos.NewAssetRepo(testutil.DB(t), testutil.Logger(t))
	svc, err := NewAssetService(testutil.Logger(t), repo, nil, AssetStorageDB)
	require.NoError(t, err)

	src := "https://upload.wikimedia.org/wikipedia/commons/a/ab/Volcan.JPG?x=1"
	img, err := svc.StoreImageSource(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", img.MimeType)

	loaded, err := svc.LoadImage(ctx, img.ID)
	require.NoError(t, err)
	assert.Nil(t, loaded.Data)
	require.NotNil(t, loaded.Asset.SourceURL)
	assert.Equal(t, src, *loaded.Asset.SourceURL)

	_, err = svc.StoreImageSource(ctx, "  ")
	require.Error(t, err)
}
