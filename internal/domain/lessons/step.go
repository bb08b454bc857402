package lessons

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// LessonStep is one appended entry of a lesson's step log. Rows are only ever
// inserted; (lesson_id, outline_index) is unique so a step cannot be appended twice.
type LessonStep struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"-"`
	LessonID        uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_lesson_step_position,priority:1" json:"-"`
	OutlineIndex    int            `gorm:"column:outline_index;not null;uniqueIndex:idx_lesson_step_position,priority:2" json:"index"`
	Title           string         `gorm:"column:title;not null" json:"title"`
	MediaKind       MediaKind      `gorm:"column:media_kind;not null" json:"media_type"`
	ImageID         *uuid.UUID     `gorm:"type:uuid;column:image_id" json:"image"`
	Explanation     string         `gorm:"column:explanation;not null" json:"explanation"`
	NarrationScript string         `gorm:"column:narration_script;not null" json:"speech"`
	AudioID         *uuid.UUID     `gorm:"type:uuid;column:audio_id" json:"tts"`
	References      datatypes.JSON `gorm:"column:reference_urls;type:jsonb" json:"references"`
	CreatedAt       time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (LessonStep) TableName() string { return "lesson_step" }

func (s *LessonStep) ReferenceList() []string {
	out := []string{}
	if s == nil || len(s.References) == 0 {
		return out
	}
	_ = json.Unmarshal(s.References, &out)
	return out
}

func (s LessonStep) MarshalJSON() ([]byte, error) {
	type alias LessonStep
	a := alias(s)
	if len(a.References) == 0 {
		a.References = datatypes.JSON("[]")
	}
	return json.Marshal(&a)
}
