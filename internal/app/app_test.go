package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NotARoomba/canvas/internal/data/repos/testutil"
	jobstatus "github.com/NotARoomba/canvas/internal/domain/jobs"
	"github.com/NotARoomba/canvas/internal/services"
)

func sqliteEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "canvas.db"))
	t.Setenv("ASSET_STORAGE", "db")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("OTEL_ENABLED", "false")
	t.Setenv("PIPELINE_POLICY_FILE", "")
	t.Setenv("OPENROUTER_API_KEY", "")
}

func TestAppRunsLessonWithoutCredentials(t *testing.T) {
	sqliteEnv(t)
	ctx := context.Background()
	a, err := New(ctx, testutil.Logger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	require.NoError(t, a.Start(ctx))

	difficulty := 1
	lesson, run, err := a.Services.Lessons.Start(ctx, services.StartLessonInput{Prompt: "Volcanes", Difficulty: &difficulty})
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	out, err := a.Services.JobTracker.Wait(waitCtx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, jobstatus.StatusAbandoned, out.Status)

	stored, err := a.Services.Lessons.LatestRun(ctx, lesson.ID)
	require.NoError(t, err)
	assert.Equal(t, "outline", stored.Stage)

	got, err := a.Services.Lessons.Get(ctx, lesson.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Steps)
	assert.Empty(t, got.Title)
}

func TestAppRejectsBadPolicyFile(t *testing.T) {
	sqliteEnv(t)
	t.Setenv("PIPELINE_POLICY_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := New(context.Background(), testutil.Logger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline policy")
}
