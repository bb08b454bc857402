package lessons

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// OutlineStep is one entry of the skeleton produced before any content is
// generated. JSON names match the outline schema sent to the chat model.
type OutlineStep struct {
	Title           string    `json:"title"`
	MediaKind       MediaKind `json:"media_type"`
	Instruction     string    `json:"prompt"`
	NarrationScript string    `json:"speech"`
}

type Lesson struct {
	ID                 uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Prompt             string         `gorm:"column:prompt;not null" json:"prompt"`
	Difficulty         Difficulty     `gorm:"column:difficulty;not null" json:"difficulty"`
	Title              string         `gorm:"column:title;not null;default:''" json:"title"`
	Description        string         `gorm:"column:description;not null;default:''" json:"description"`
	Outline            datatypes.JSON `gorm:"column:outline;type:jsonb" json:"outline"`
	EncyclopediaURL    *string        `gorm:"column:encyclopedia_url" json:"wikipedia_url,omitempty"`
	EncyclopediaImages datatypes.JSON `gorm:"column:encyclopedia_images;type:jsonb" json:"wikipedia_images,omitempty"`
	Steps              []LessonStep   `gorm:"foreignKey:LessonID;constraint:OnDelete:CASCADE" json:"steps"`
	CreatedAt          time.Time      `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Lesson) TableName() string { return "lesson" }

// OutlineSteps decodes the stored outline. A lesson whose outline has not
// been generated yet returns an empty slice.
func (l *Lesson) OutlineSteps() ([]OutlineStep, error) {
	out := []OutlineStep{}
	if l == nil || len(l.Outline) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(l.Outline, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Complete reports whether every outline entry has a step. Skipped steps
// leave a lesson permanently incomplete.
func (l *Lesson) Complete() bool {
	steps, err := l.OutlineSteps()
	if err != nil || len(steps) == 0 {
		return false
	}
	return len(l.Steps) == len(steps)
}

func (l *Lesson) MarshalJSON() ([]byte, error) {
	type alias Lesson
	a := alias(*l)
	if len(a.Outline) == 0 {
		a.Outline = datatypes.JSON("[]")
	}
	if a.Steps == nil {
		a.Steps = []LessonStep{}
	}
	return json.Marshal(&a)
}

// OutlineJSON encodes an outline for storage.
func OutlineJSON(steps []OutlineStep) datatypes.JSON {
	if steps == nil {
		steps = []OutlineStep{}
	}
	b, _ := json.Marshal(steps)
	return datatypes.JSON(b)
}

// StringsJSON encodes a string list for storage; nil becomes [].
func StringsJSON(v []string) datatypes.JSON {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return datatypes.JSON(b)
}
