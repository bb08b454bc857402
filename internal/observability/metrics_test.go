package observability

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NotARoomba/canvas/internal/data/repos/testutil"
	types "github.com/NotARoomba/canvas/internal/domain"
	jobstatus "github.com/NotARoomba/canvas/internal/domain/jobs"
)

func render(t *testing.T, m *Metrics) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, m.WritePrometheus(&buf))
	return buf.String()
}

func TestMetricsExposition(t *testing.T) {
	m := NewMetrics()
	m.ObserveAPI("GET", "/lessons/:id", "200", 30*time.Millisecond)
	m.ObserveAPI("GET", "/lessons/:id", "200", 2*time.Second)
	m.ObserveRun("lesson_generate", jobstatus.StatusComplete, 40*time.Second, 3, 1)
	m.ObserveRun("lesson_generate", jobstatus.StatusAbandoned, 0, 0, 0)
	m.IncDecision("media", "skip")
	m.IncDecision("media", "skip")

	out := render(t, m)
	assert.Contains(t, out, "# TYPE canvas_api_requests_total counter")
	assert.Contains(t, out, `canvas_api_requests_total{method="GET",route="/lessons/:id",status="200"} 2`)
	assert.Contains(t, out, `canvas_api_request_duration_seconds_bucket{method="GET",route="/lessons/:id",le="0.05"} 1`)
	assert.Contains(t, out, `canvas_api_request_duration_seconds_bucket{method="GET",route="/lessons/:id",le="+Inf"} 2`)
	assert.Contains(t, out, `canvas_job_runs_finished_total{job_type="lesson_generate",status="complete"} 1`)
	assert.Contains(t, out, `canvas_job_runs_finished_total{job_type="lesson_generate",status="abandoned"} 1`)
	assert.Contains(t, out, `canvas_job_run_duration_seconds_count{job_type="lesson_generate",status="complete"} 1`)
	assert.NotContains(t, out, `canvas_job_run_duration_seconds_count{job_type="lesson_generate",status="abandoned"}`)
	assert.Contains(t, out, `canvas_lesson_steps_total{outcome="appended"} 3`)
	assert.Contains(t, out, `canvas_lesson_steps_total{outcome="skipped"} 1`)
	assert.Contains(t, out, `canvas_pipeline_decisions_total{origin="media",action="skip"} 2`)
	assert.Contains(t, out, "canvas_api_inflight_requests 0")
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("GET", "/", "200", time.Millisecond)
	m.ObserveRun("x", "complete", time.Second, 1, 0)
	m.IncDecision("media", "skip")
	m.ApiInflightInc()
	m.ApiInflightDec()
	m.StartJobQueueCollector(context.Background(), nil, nil, time.Second)
	assert.NoError(t, m.WritePrometheus(&bytes.Buffer{}))
}

func TestLabelEscaping(t *testing.T) {
	assert.Equal(t, `{route="a\"b\\c\nd"}`, labelString([]string{"route"}, []string{"a\"b\\c\nd"}))
	assert.Equal(t, `{route="unknown"}`, labelString([]string{"route"}, nil))
	assert.Equal(t, `{le="1"}`, withLe("", "1"))
	assert.Equal(t, `{a="b",le="1"}`, withLe(`{a="b"}`, "1"))
}

func TestJobQueueCollector(t *testing.T) {
	db := testutil.DB(t)
	for _, status := range []string{jobstatus.StatusQueued, jobstatus.StatusComplete, jobstatus.StatusComplete} {
		run := &types.JobRun{ID: uuid.New(), JobType: "lesson_generate", Status: status, Stage: status}
		require.NoError(t, db.Create(run).Error)
	}
	m := NewMetrics()
	m.collectJobRuns(context.Background(), testutil.Logger(t), db)

	out := render(t, m)
	assert.Contains(t, out, `canvas_job_runs{status="queued"} 1`)
	assert.Contains(t, out, `canvas_job_runs{status="complete"} 2`)
	assert.Contains(t, out, `canvas_job_runs{status="running"} 0`)
	assert.Contains(t, out, "# TYPE canvas_job_runs gauge")
}
