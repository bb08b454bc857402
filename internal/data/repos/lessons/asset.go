package lessons

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/NotARoomba/canvas/internal/domain"
	"github.com/NotARoomba/canvas/internal/platform/dbctx"
	"github.com/NotARoomba/canvas/internal/platform/logger"
)

var ErrAssetNotFound = errors.New("asset not found")

type AssetRepo interface {
	CreateImage(dbc dbctx.Context, img *types.ImageAsset) (*types.ImageAsset, error)
	GetImage(dbc dbctx.Context, id uuid.UUID) (*types.ImageAsset, error)
	CreateAudio(dbc dbctx.Context, audio *types.AudioAsset) (*types.AudioAsset, error)
	GetAudio(dbc dbctx.Context, id uuid.UUID) (*types.AudioAsset, error)
}

type assetRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAssetRepo(db *gorm.DB, baseLog *logger.Logger) AssetRepo {
	return &assetRepo{
		db:  db,
		log: baseLog.With("repo", "AssetRepo"),
	}
}

func (r *assetRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *assetRepo) CreateImage(dbc dbctx.Context, img *types.ImageAsset) (*types.ImageAsset, error) {
	if img == nil {
		return nil, errors.New("nil image asset")
	}
	if img.ID == uuid.Nil {
		img.ID = uuid.New()
	}
	if err := r.tx(dbc).Create(img).Error; err != nil {
		return nil, err
	}
	return img, nil
}

func (r *assetRepo) GetImage(dbc dbctx.Context, id uuid.UUID) (*types.ImageAsset, error) {
	var img types.ImageAsset
	err := r.tx(dbc).Where("id = ?", id).Take(&img).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAssetNotFound
	}
	if err != nil {
		return nil, err
	}
	return &img, nil
}

func (r *assetRepo) CreateAudio(dbc dbctx.Context, audio *types.AudioAsset) (*types.AudioAsset, error) {
	if audio == nil {
		return nil, errors.New("nil audio asset")
	}
	if audio.ID == uuid.Nil {
		audio.ID = uuid.New()
	}
	if err := r.tx(dbc).Create(audio).Error; err != nil {
		return nil, err
	}
	return audio, nil
}

func (r *assetRepo) GetAudio(dbc dbctx.Context, id uuid.UUID) (*types.AudioAsset, error) {
	var audio types.AudioAsset
	err := r.tx(dbc).Where("id = ?", id).Take(&audio).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAssetNotFound
	}
	if err != nil {
		return nil, err
	}
	return &audio, nil
}
