package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/NotARoomba/canvas/internal/data/repos/testutil"
	types "github.com/NotARoomba/canvas/internal/domain"
	jobstatus "github.com/NotARoomba/canvas/internal/domain/jobs"
	"github.com/NotARoomba/canvas/internal/platform/dbctx"
)

func TestJobRunRepo(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewJobRunRepo(db, testutil.Logger(t))

	lessonID := uuid.New()
	older := &types.JobRun{
		JobType:    "lesson_generate",
		EntityType: "lesson",
		EntityID:   ptrUUID(lessonID),
		Status:     jobstatus.StatusComplete,
		Stage:      jobstatus.StatusComplete,
		Payload:    datatypes.JSON([]byte("{}")),
		CreatedAt:  time.Now().UTC().Add(-time.Hour),
	}
	newer := &types.JobRun{
		JobType:    "lesson_generate",
		EntityType: "lesson",
		EntityID:   ptrUUID(lessonID),
		Status:     jobstatus.StatusQueued,
		Stage:      jobstatus.StatusQueued,
		Payload:    datatypes.JSON([]byte("{}")),
	}
	if _, err := repo.Create(dbctx.Of(ctx), []*types.JobRun{older, newer}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if older.ID == uuid.Nil || newer.ID == uuid.Nil {
		t.Fatalf("Create should assign ids")
	}

	latest, err := repo.GetLatestByEntity(dbctx.Of(ctx), "lesson", lessonID, "lesson_generate")
	if err != nil {
		t.Fatalf("GetLatestByEntity: %v", err)
	}
	if latest == nil || latest.ID != newer.ID {
		t.Fatalf("GetLatestByEntity: got %+v want %s", latest, newer.ID)
	}
	none, err := repo.GetLatestByEntity(dbctx.Of(ctx), "lesson", uuid.New(), "lesson_generate")
	if err != nil || none != nil {
		t.Fatalf("GetLatestByEntity unknown: got %+v err=%v", none, err)
	}

	ok, err := repo.HasRunnableForEntity(dbctx.Of(ctx), "lesson", lessonID, "lesson_generate")
	if err != nil || !ok {
		t.Fatalf("HasRunnableForEntity: ok=%v err=%v", ok, err)
	}

	if err := repo.UpdateFields(dbctx.Of(ctx), newer.ID, map[string]interface{}{
		"status": jobstatus.StatusRunning,
		"stage":  "outline",
	}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	if err := repo.Heartbeat(dbctx.Of(ctx), newer.ID); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	got, err := repo.GetByID(dbctx.Of(ctx), newer.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != jobstatus.StatusRunning || got.Stage != "outline" || got.HeartbeatAt == nil {
		t.Fatalf("after update: %+v", got)
	}

	updated, err := repo.UpdateFieldsUnlessStatus(dbctx.Of(ctx), older.ID, jobstatus.TerminalStatuses, map[string]interface{}{
		"status": jobstatus.StatusRunning,
	})
	if err != nil {
		t.Fatalf("UpdateFieldsUnlessStatus: %v", err)
	}
	if updated {
		t.Fatalf("terminal run must not be updated")
	}

	n, err := repo.AbandonUnfinished(dbctx.Of(ctx), "lesson_generate", "process restarted")
	if err != nil {
		t.Fatalf("AbandonUnfinished: %v", err)
	}
	if n != 1 {
		t.Fatalf("AbandonUnfinished: got %d rows want 1", n)
	}
	got, _ = repo.GetByID(dbctx.Of(ctx), newer.ID)
	if got.Status != jobstatus.StatusAbandoned || got.FinishedAt == nil {
		t.Fatalf("abandoned run: %+v", got)
	}

	if _, err := repo.GetByID(dbctx.Of(ctx), uuid.New()); err != ErrJobRunNotFound {
		t.Fatalf("GetByID unknown: got %v", err)
	}
}

func TestJobRunEvents(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewJobRunRepo(db, testutil.Logger(t))

	jobID := uuid.New()
	base := time.Now().UTC()
	for i, stage := range []string{"outline", "step", "done"} {
		ev := &types.JobRunEvent{
			JobID:     jobID,
			JobType:   "lesson_generate",
			Kind:      string(jobstatus.JobEventProgress),
			Status:    jobstatus.StatusRunning,
			Stage:     stage,
			Progress:  i * 40,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := repo.AppendEvent(dbctx.Of(ctx), ev); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
		if ev.ID == uuid.Nil {
			t.Fatalf("AppendEvent should assign an id")
		}
	}
	if err := repo.AppendEvent(dbctx.Of(ctx), &types.JobRunEvent{Stage: "orphan"}); err != nil {
		t.Fatalf("AppendEvent without job: %v", err)
	}

	all, err := repo.ListEvents(dbctx.Of(ctx), jobID, 0)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(all) != 3 || all[0].Stage != "outline" || all[2].Stage != "done" {
		t.Fatalf("ListEvents: got %+v", all)
	}
	first, err := repo.ListEvents(dbctx.Of(ctx), jobID, 2)
	if err != nil || len(first) != 2 {
		t.Fatalf("ListEvents limit: got %d err=%v", len(first), err)
	}
	none, err := repo.ListEvents(dbctx.Of(ctx), uuid.New(), 0)
	if err != nil || len(none) != 0 {
		t.Fatalf("ListEvents unknown: got %d err=%v", len(none), err)
	}
}

func ptrUUID(id uuid.UUID) *uuid.UUID { return &id }
