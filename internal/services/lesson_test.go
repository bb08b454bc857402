package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NotARoomba/canvas/internal/data/repos"
	"github.com/NotARoomba/canvas/internal/data/repos/testutil"
	types "github.com/NotARoomba/canvas/internal/domain"
	jobstatus "github.com/NotARoomba/canvas/internal/domain/jobs"
	"github.com/NotARoomba/canvas/internal/platform/apierr"
	"github.com/NotARoomba/canvas/internal/platform/ctxutil"
	"github.com/NotARoomba/canvas/internal/platform/dbctx"
	"github.com/NotARoomba/canvas/internal/realtime"
)

type fakeSubmitter struct {
	mu   sync.Mutex
	jobs []*types.JobRun
	err  error
}

func (f *fakeSubmitter) Submit(ctx context.Context, job *types.JobRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return f.err
}

type fakeCanceler struct{ canceled []uuid.UUID }

func (f *fakeCanceler) CancelLesson(id uuid.UUID) bool {
	f.canceled = append(f.canceled, id)
	return true
}

type recordingEmitter struct {
	mu   sync.Mutex
	msgs []realtime.SSEMessage
}

func (e *recordingEmitter) Emit(ctx context.Context, msg realtime.SSEMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.msgs = append(e.msgs, msg)
}

type lessonFixture struct {
	svc     LessonService
	lessons repos.LessonRepo
	runs    repos.JobRunRepo
	submit  *fakeSubmitter
	cancel  *fakeCanceler
	emitter *recordingEmitter
}

func newLessonFixture(t *testing.T) *lessonFixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	f := &lessonFixture{
		lessons: repos.NewLessonRepo(db, log),
		runs:    repos.NewJobRunRepo(db, log),
		submit:  &fakeSubmitter{},
		cancel:  &fakeCanceler{},
		emitter: &recordingEmitter{},
	}
	f.svc = NewLessonService(log, f.lessons, f.runs, f.submit, f.cancel, NewLessonNotifier(f.emitter))
	return f
}

func intPtr(n int) *int { return &n }

func TestLessonServiceStart(t *testing.T) {
	f := newLessonFixture(t)
	ctx := ctxutil.WithTraceData(context.Background(), &ctxutil.TraceData{RequestID: "req-1"})

	lesson, job, err := f.svc.Start(ctx, StartLessonInput{Prompt: "  La fotosíntesis ", Difficulty: intPtr(1)})
	require.NoError(t, err)
	assert.Equal(t, "La fotosíntesis", lesson.Prompt)
	assert.Equal(t, types.DifficultyHighSchool, lesson.Difficulty)

	// the skeleton exists before any generation happened
	stored, err := f.svc.Get(context.Background(), lesson.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Title)
	assert.Empty(t, stored.Description)
	assert.Empty(t, stored.Steps)
	outline, err := stored.OutlineSteps()
	require.NoError(t, err)
	assert.Empty(t, outline)

	require.Len(t, f.submit.jobs, 1)
	assert.Equal(t, job.ID, f.submit.jobs[0].ID)
	assert.Equal(t, LessonGenerateJobType, job.JobType)
	assert.Equal(t, jobstatus.StatusQueued, job.Status)
	require.NotNil(t, job.EntityID)
	assert.Equal(t, lesson.ID, *job.EntityID)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(job.Payload, &payload))
	assert.Equal(t, lesson.ID.String(), payload["lesson_id"])
	assert.Equal(t, "La fotosíntesis", payload["topic"])
	assert.EqualValues(t, 1, payload["difficulty"])
	assert.Equal(t, "req-1", payload["request_id"])

	run, err := f.svc.LatestRun(context.Background(), lesson.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, run.ID)
}

func TestLessonServiceStartValidation(t *testing.T) {
	f := newLessonFixture(t)
	cases := []struct {
		name string
		in   StartLessonInput
		want string
	}{
		{"empty prompt", StartLessonInput{Prompt: "   ", Difficulty: intPtr(0)}, "prompt is required"},
		{"long prompt", StartLessonInput{Prompt: strings.Repeat("a", MaxPromptLength+1), Difficulty: intPtr(0)}, "prompt must be at most"},
		{"missing difficulty", StartLessonInput{Prompt: "volcanes"}, "difficulty is required"},
		{"difficulty too high", StartLessonInput{Prompt: "volcanes", Difficulty: intPtr(3)}, "difficulty must be at most 2"},
		{"negative difficulty", StartLessonInput{Prompt: "volcanes", Difficulty: intPtr(-1)}, "difficulty must be at least 0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := f.svc.Start(context.Background(), tc.in)
			require.Error(t, err)
			ae := apierr.From(err)
			assert.Equal(t, http.StatusBadRequest, ae.Status)
			assert.Equal(t, types.StatusInvalidData, ae.Code)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
	assert.Empty(t, f.submit.jobs)
}

func TestLessonServiceStartSubmitFailure(t *testing.T) {
	f := newLessonFixture(t)
	f.submit.err = errors.New("queue full")
	lesson, _, err := f.svc.Start(context.Background(), StartLessonInput{Prompt: "volcanes", Difficulty: intPtr(2)})
	require.Error(t, err)
	require.NotNil(t, lesson)
	ok, err := f.lessons.Exists(dbcOf(), lesson.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLessonServiceDelete(t *testing.T) {
	f := newLessonFixture(t)
	lesson, _, err := f.svc.Start(context.Background(), StartLessonInput{Prompt: "volcanes", Difficulty: intPtr(0)})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(context.Background(), lesson.ID))
	assert.Equal(t, []uuid.UUID{lesson.ID}, f.cancel.canceled)
	require.Len(t, f.emitter.msgs, 1)
	assert.Equal(t, realtime.SSEEventLessonDeleted, f.emitter.msgs[0].Event)
	assert.Equal(t, realtime.LessonChannel(lesson.ID.String()), f.emitter.msgs[0].Channel)

	_, err = f.svc.Get(context.Background(), lesson.ID)
	assert.Equal(t, types.StatusLessonNotFound, apierr.From(err).Code)
	err = f.svc.Delete(context.Background(), lesson.ID)
	assert.Equal(t, http.StatusNotFound, apierr.From(err).Status)
}

func TestLessonServiceListRecent(t *testing.T) {
	f := newLessonFixture(t)
	for _, p := range []string{"uno", "dos", "tres"} {
		_, _, err := f.svc.Start(context.Background(), StartLessonInput{Prompt: p, Difficulty: intPtr(0)})
		require.NoError(t, err)
	}
	got, err := f.svc.ListRecent(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = f.svc.LatestRun(context.Background(), uuid.New())
	assert.Equal(t, http.StatusNotFound, apierr.From(err).Status)
}

func TestLessonNotifierChannels(t *testing.T) {
	em := &recordingEmitter{}
	n := NewLessonNotifier(em)
	lessonID := uuid.New()
	job := &types.JobRun{ID: uuid.New(), JobType: LessonGenerateJobType, EntityID: &lessonID}

	n.JobProgress(job, "outline", 10, "generating")
	n.JobFailed(job, "outline", "boom")
	n.JobDone(job)
	n.LessonUpdated(&types.Lesson{ID: lessonID})
	n.JobProgress(&types.JobRun{ID: uuid.New()}, "outline", 0, "")
	n.LessonUpdated(nil)

	require.Len(t, em.msgs, 4)
	want := []realtime.SSEEvent{
		realtime.SSEEventJobProgress,
		realtime.SSEEventJobFailed,
		realtime.SSEEventJobDone,
		realtime.SSEEventLessonUpdated,
	}
	for i, msg := range em.msgs {
		assert.Equal(t, want[i], msg.Event)
		assert.Equal(t, "lesson:"+lessonID.String(), msg.Channel)
	}
}

func dbcOf() dbctx.Context { return dbctx.Of(context.Background()) }
