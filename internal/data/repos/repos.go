package repos

import (
	"gorm.io/gorm"

	"github.com/NotARoomba/canvas/internal/data/repos/jobs"
	"github.com/NotARoomba/canvas/internal/data/repos/lessons"
	"github.com/NotARoomba/canvas/internal/platform/logger"
)

type LessonRepo = lessons.LessonRepo
type AssetRepo = lessons.AssetRepo
type JobRunRepo = jobs.JobRunRepo

var (
	ErrLessonNotFound = lessons.ErrLessonNotFound
	ErrStepOutOfRange = lessons.ErrStepOutOfRange
	ErrStepExists     = lessons.ErrStepExists
	ErrAssetNotFound  = lessons.ErrAssetNotFound
	ErrJobRunNotFound = jobs.ErrJobRunNotFound
)

func NewLessonRepo(db *gorm.DB, baseLog *logger.Logger) LessonRepo {
	return lessons.NewLessonRepo(db, baseLog)
}
func NewAssetRepo(db *gorm.DB, baseLog *logger.Logger) AssetRepo {
	return lessons.NewAssetRepo(db, baseLog)
}
func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return jobs.NewJobRunRepo(db, baseLog)
}
