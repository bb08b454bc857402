package lessons

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/NotARoomba/canvas/internal/domain"
	"github.com/NotARoomba/canvas/internal/platform/dbctx"
	"github.com/NotARoomba/canvas/internal/platform/logger"
)

var (
	ErrLessonNotFound = errors.New("lesson not found")
	ErrStepOutOfRange = errors.New("step index outside lesson outline")
	ErrStepExists     = errors.New("step already appended")
)

type LessonRepo interface {
	Create(dbc dbctx.Context, lesson *types.Lesson) (*types.Lesson, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Lesson, error)
	Exists(dbc dbctx.Context, id uuid.UUID) (bool, error)
	ListRecent(dbc dbctx.Context, limit int) ([]*types.Lesson, error)
	SetOutline(dbc dbctx.Context, id uuid.UUID, title, description string, outline []types.OutlineStep) error
	SetEncyclopedia(dbc dbctx.Context, id uuid.UUID, url string, images []string) error
	AppendStep(dbc dbctx.Context, step *types.LessonStep) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type lessonRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLessonRepo(db *gorm.DB, baseLog *logger.Logger) LessonRepo {
	return &lessonRepo{
		db:  db,
		log: baseLog.With("repo", "LessonRepo"),
	}
}

func (r *lessonRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func stepsInOrder(db *gorm.DB) *gorm.DB {
	return db.Order("outline_index ASC")
}

func (r *lessonRepo) Create(dbc dbctx.Context, lesson *types.Lesson) (*types.Lesson, error) {
	if lesson == nil {
		return nil, errors.New("nil lesson")
	}
	if lesson.ID == uuid.Nil {
		lesson.ID = uuid.New()
	}
	if len(lesson.Outline) == 0 {
		lesson.Outline = types.OutlineJSON(nil)
	}
	if err := r.tx(dbc).Omit("Steps").Create(lesson).Error; err != nil {
		return nil, err
	}
	return lesson, nil
}

func (r *lessonRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Lesson, error) {
	if id == uuid.Nil {
		return nil, ErrLessonNotFound
	}
	var lesson types.Lesson
	err := r.tx(dbc).
		Preload("Steps", stepsInOrder).
		Where("id = ?", id).
		Take(&lesson).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrLessonNotFound
	}
	if err != nil {
		return nil, err
	}
	return &lesson, nil
}

func (r *lessonRepo) Exists(dbc dbctx.Context, id uuid.UUID) (bool, error) {
	var n int64
	if err := r.tx(dbc).Model(&types.Lesson{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *lessonRepo) ListRecent(dbc dbctx.Context, limit int) ([]*types.Lesson, error) {
	out := []*types.Lesson{}
	if limit <= 0 {
		return out, nil
	}
	err := r.tx(dbc).
		Preload("Steps", stepsInOrder).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetOutline writes title, description and outline in a single UPDATE.
func (r *lessonRepo) SetOutline(dbc dbctx.Context, id uuid.UUID, title, description string, outline []types.OutlineStep) error {
	return r.update(dbc, id, map[string]interface{}{
		"title":       title,
		"description": description,
		"outline":     types.OutlineJSON(outline),
	})
}

func (r *lessonRepo) SetEncyclopedia(dbc dbctx.Context, id uuid.UUID, url string, images []string) error {
	return r.update(dbc, id, map[string]interface{}{
		"encyclopedia_url":    url,
		"encyclopedia_images": types.StringsJSON(images),
	})
}

func (r *lessonRepo) update(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return ErrLessonNotFound
	}
	updates["updated_at"] = time.Now().UTC()
	res := r.tx(dbc).Model(&types.Lesson{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrLessonNotFound
	}
	return nil
}

// AppendStep inserts one step into the lesson's log. The outline index must
// fall inside the stored outline and may be appended only once, so the log
// can never outgrow the outline or hold the same position twice.
func (r *lessonRepo) AppendStep(dbc dbctx.Context, step *types.LessonStep) error {
	if step == nil {
		return errors.New("nil step")
	}
	if step.ID == uuid.Nil {
		step.ID = uuid.New()
	}
	if len(step.References) == 0 {
		step.References = types.StringsJSON(nil)
	}
	return r.tx(dbc).Transaction(func(txx *gorm.DB) error {
		var lesson types.Lesson
		err := txx.Select("id", "outline").Where("id = ?", step.LessonID).Take(&lesson).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrLessonNotFound
		}
		if err != nil {
			return err
		}
		outline, err := lesson.OutlineSteps()
		if err != nil {
			return err
		}
		if step.OutlineIndex < 0 || step.OutlineIndex >= len(outline) {
			return ErrStepOutOfRange
		}
		if err := txx.Create(step).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrStepExists
			}
			return err
		}
		return txx.Model(&types.Lesson{}).Where("id = ?", step.LessonID).Update("updated_at", time.Now().UTC()).Error
	})
}

func (r *lessonRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	res := r.tx(dbc).Where("id = ?", id).Delete(&types.Lesson{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrLessonNotFound
	}
	return nil
}
