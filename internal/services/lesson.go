package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/NotARoomba/canvas/internal/data/repos"
	types "github.com/NotARoomba/canvas/internal/domain"
	jobstatus "github.com/NotARoomba/canvas/internal/domain/jobs"
	"github.com/NotARoomba/canvas/internal/platform/apierr"
	"github.com/NotARoomba/canvas/internal/platform/ctxutil"
	"github.com/NotARoomba/canvas/internal/platform/dbctx"
	"github.com/NotARoomba/canvas/internal/platform/logger"
)

const (
	LessonGenerateJobType = "lesson_generate"
	LessonEntityType      = "lesson"

	MaxPromptLength  = 2000
	MaxGallerySize   = 100
	defaultListLimit = 20
)

// JobSubmitter hands a persisted run to the worker pool.
type JobSubmitter interface {
	Submit(ctx context.Context, job *types.JobRun) error
}

// RunCanceler stops in-flight runs of a lesson.
type RunCanceler interface {
	CancelLesson(lessonID uuid.UUID) bool
}

type StartLessonInput struct {
	Prompt     string `json:"prompt" validate:"required,max=2000"`
	Difficulty *int   `json:"difficulty" validate:"required,min=0,max=2"`
}

type LessonService interface {
	// Start inserts the skeleton lesson, queues its generation run and returns
	// without waiting for it.
	Start(ctx context.Context, in StartLessonInput) (*types.Lesson, *types.JobRun, error)
	Get(ctx context.Context, id uuid.UUID) (*types.Lesson, error)
	ListRecent(ctx context.Context, limit int) ([]*types.Lesson, error)
	Delete(ctx context.Context, id uuid.UUID) error
	LatestRun(ctx context.Context, lessonID uuid.UUID) (*types.JobRun, error)
	// RunEvents lists the timeline of a run, oldest first.
	RunEvents(ctx context.Context, runID uuid.UUID) ([]*types.JobRunEvent, error)
}

type lessonService struct {
	log      *logger.Logger
	lessons  repos.LessonRepo
	runs     repos.JobRunRepo
	submit   JobSubmitter
	canceler RunCanceler
	notify   LessonNotifier
	validate *validator.Validate
}

func NewLessonService(log *logger.Logger, lessons repos.LessonRepo, runs repos.JobRunRepo, submit JobSubmitter, canceler RunCanceler, notify LessonNotifier) LessonService {
	return &lessonService{
		log:      log.With("service", "LessonService"),
		lessons:  lessons,
		runs:     runs,
		submit:   submit,
		canceler: canceler,
		notify:   notify,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (s *lessonService) Start(ctx context.Context, in StartLessonInput) (*types.Lesson, *types.JobRun, error) {
	in.Prompt = strings.TrimSpace(in.Prompt)
	if err := s.validate.Struct(in); err != nil {
		return nil, nil, apierr.InvalidData(validationError(err))
	}
	difficulty := types.Difficulty(*in.Difficulty)

	dbc := dbctx.Of(ctx)
	lesson, err := s.lessons.Create(dbc, &types.Lesson{
		Prompt:     in.Prompt,
		Difficulty: difficulty,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create lesson: %w", err)
	}

	payload := map[string]any{
		"lesson_id":  lesson.ID.String(),
		"topic":      lesson.Prompt,
		"difficulty": int(difficulty),
	}
	if td := ctxutil.GetTraceData(ctx); td != nil {
		if td.TraceID != "" {
			payload["trace_id"] = td.TraceID
		}
		if td.RequestID != "" {
			payload["request_id"] = td.RequestID
		}
	}
	b, _ := json.Marshal(payload)
	entityID := lesson.ID
	created, err := s.runs.Create(dbc, []*types.JobRun{{
		ID:         uuid.New(),
		JobType:    LessonGenerateJobType,
		EntityType: LessonEntityType,
		EntityID:   &entityID,
		Status:     jobstatus.StatusQueued,
		Stage:      jobstatus.StatusQueued,
		Message:    "Queued",
		Payload:    datatypes.JSON(b),
	}})
	if err != nil {
		return nil, nil, fmt.Errorf("create job run: %w", err)
	}
	job := created[0]

	if s.submit == nil {
		return lesson, job, errors.New("no job submitter configured")
	}
	if err := s.submit.Submit(ctx, job); err != nil {
		// the skeleton stays; the run row was already marked abandoned
		s.log.Warn("Lesson run not submitted", "lesson_id", lesson.ID, "run_id", job.ID, "error", err)
		return lesson, job, fmt.Errorf("submit lesson run: %w", err)
	}
	s.log.Info("Lesson started", "lesson_id", lesson.ID, "run_id", job.ID, "difficulty", difficulty.String())
	return lesson, job, nil
}

func (s *lessonService) Get(ctx context.Context, id uuid.UUID) (*types.Lesson, error) {
	lesson, err := s.lessons.GetByID(dbctx.Of(ctx), id)
	if errors.Is(err, repos.ErrLessonNotFound) {
		return nil, apierr.NotFound(types.StatusLessonNotFound, err)
	}
	return lesson, err
}

func (s *lessonService) ListRecent(ctx context.Context, limit int) ([]*types.Lesson, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > MaxGallerySize {
		limit = MaxGallerySize
	}
	return s.lessons.ListRecent(dbctx.Of(ctx), limit)
}

/*
Delete removes the lesson and cancels its run if one is still in flight.
Assets referenced by the lesson's steps are left in place.
*/
func (s *lessonService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.lessons.Delete(dbctx.Of(ctx), id); err != nil {
		if errors.Is(err, repos.ErrLessonNotFound) {
			return apierr.NotFound(types.StatusLessonNotFound, err)
		}
		return err
	}
	if s.canceler != nil && s.canceler.CancelLesson(id) {
		s.log.Info("Canceled run of deleted lesson", "lesson_id", id)
	}
	if s.notify != nil {
		s.notify.LessonDeleted(id)
	}
	return nil
}

func (s *lessonService) LatestRun(ctx context.Context, lessonID uuid.UUID) (*types.JobRun, error) {
	job, err := s.runs.GetLatestByEntity(dbctx.Of(ctx), LessonEntityType, lessonID, LessonGenerateJobType)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, apierr.NotFound(types.StatusLessonNotFound, repos.ErrJobRunNotFound)
	}
	return job, nil
}

func (s *lessonService) RunEvents(ctx context.Context, runID uuid.UUID) ([]*types.JobRunEvent, error) {
	return s.runs.ListEvents(dbctx.Of(ctx), runID, 0)
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, strings.ToLower(fe.Field())+" is required")
		case "max", "min":
			parts = append(parts, fmt.Sprintf("%s must be %s %s", strings.ToLower(fe.Field()), boundWord(fe.Tag()), fe.Param()))
		default:
			parts = append(parts, strings.ToLower(fe.Field())+" is invalid")
		}
	}
	return errors.New(strings.Join(parts, "; "))
}

func boundWord(tag string) string {
	if tag == "max" {
		return "at most"
	}
	return "at least"
}
