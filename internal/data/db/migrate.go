package db

import (
	"gorm.io/gorm"

	"github.com/NotARoomba/canvas/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(domain.Models()...)
}
