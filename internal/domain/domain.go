package domain

import (
	"gorm.io/datatypes"

	"github.com/NotARoomba/canvas/internal/domain/jobs"
	"github.com/NotARoomba/canvas/internal/domain/lessons"
)

type Lesson = lessons.Lesson
type LessonStep = lessons.LessonStep
type OutlineStep = lessons.OutlineStep
type ImageAsset = lessons.ImageAsset
type AudioAsset = lessons.AudioAsset
type Difficulty = lessons.Difficulty
type MediaKind = lessons.MediaKind

type JobRun = jobs.JobRun
type JobRunEvent = jobs.JobRunEvent

const (
	DifficultyElementary = lessons.DifficultyElementary
	DifficultyHighSchool = lessons.DifficultyHighSchool
	DifficultyUniversity = lessons.DifficultyUniversity

	MediaKindText  = lessons.MediaKindText
	MediaKindImage = lessons.MediaKindImage
)

// StatusCode is echoed in every JSON response body as "status".
type StatusCode int

const (
	StatusSuccess        StatusCode = 0
	StatusGenericError   StatusCode = 1
	StatusInvalidData    StatusCode = 2
	StatusInvalidNumber  StatusCode = 3
	StatusInvalidID      StatusCode = 4
	StatusUserNotFound   StatusCode = 5
	StatusLessonNotFound StatusCode = 6
	StatusAudioNotFound  StatusCode = 7
	StatusImageNotFound  StatusCode = 8
)

// Models lists every table owned by this service, in migration order.
func Models() []any {
	return []any{
		&lessons.Lesson{},
		&lessons.LessonStep{},
		&lessons.ImageAsset{},
		&lessons.AudioAsset{},
		&jobs.JobRun{},
		&jobs.JobRunEvent{},
	}
}

func ParseMediaKind(s string) (MediaKind, bool) {
	return lessons.ParseMediaKind(s)
}

func OutlineJSON(steps []OutlineStep) datatypes.JSON {
	return lessons.OutlineJSON(steps)
}

func StringsJSON(v []string) datatypes.JSON {
	return lessons.StringsJSON(v)
}
