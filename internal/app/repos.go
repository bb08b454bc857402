package app

import (
	"gorm.io/gorm"

	"github.com/NotARoomba/canvas/internal/data/repos"
	"github.com/NotARoomba/canvas/internal/platform/logger"
)

type Repos struct {
	Lesson repos.LessonRepo
	Asset  repos.AssetRepo
	JobRun repos.JobRunRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Lesson: repos.NewLessonRepo(db, log),
		Asset:  repos.NewAssetRepo(db, log),
		JobRun: repos.NewJobRunRepo(db, log),
	}
}
