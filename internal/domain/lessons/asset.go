package lessons

import (
	"time"

	"github.com/google/uuid"
)

// ImageAsset holds a generated or fetched image. Either DataURL carries the
// bytes inline ("data:<mime>;base64,...") or StorageKey points into the bucket.
type ImageAsset struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DataURL    string    `gorm:"column:data_url" json:"-"`
	StorageKey string    `gorm:"column:storage_key" json:"-"`
	MimeType   string    `gorm:"column:mime_type;not null" json:"mime_type"`
	SourceURL  *string   `gorm:"column:source_url" json:"source_url,omitempty"`
	CreatedAt  time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (ImageAsset) TableName() string { return "image_asset" }

type AudioAsset struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Data       []byte    `gorm:"column:data" json:"-"`
	StorageKey string    `gorm:"column:storage_key" json:"-"`
	MimeType   string    `gorm:"column:mime_type;not null" json:"mime_type"`
	CreatedAt  time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (AudioAsset) TableName() string { return "audio_asset" }
