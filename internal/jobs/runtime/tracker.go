package runtime

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var ErrUnknownRun = errors.New("unknown run")

// maxFinishedRuns bounds how many finished outcomes stay available to Wait.
const maxFinishedRuns = 512

// Outcome is how a run ended, as seen by the process that ran it.
type Outcome struct {
	Status        string `json:"status"`
	Error         string `json:"error,omitempty"`
	StepsAppended int    `json:"steps_appended"`
	StepsSkipped  int    `json:"steps_skipped"`
}

type trackedRun struct {
	lessonID uuid.UUID
	cancel   context.CancelFunc
	done     chan struct{}
	outcome  Outcome
	finished bool
	canceled bool
}

// Tracker is the in-process registry of submitted runs. It lets callers
// await an outcome and cancel the runs of a deleted lesson.
type Tracker struct {
	mu       sync.Mutex
	runs     map[uuid.UUID]*trackedRun
	finished []uuid.UUID
}

func NewTracker() *Tracker {
	return &Tracker{runs: make(map[uuid.UUID]*trackedRun)}
}

// Track registers a run before it starts. cancel stops the run's context.
func (t *Tracker) Track(runID, lessonID uuid.UUID, cancel context.CancelFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.runs[runID]; ok {
		return
	}
	t.runs[runID] = &trackedRun{
		lessonID: lessonID,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Finish records the outcome and releases waiters. Later calls are ignored.
func (t *Tracker) Finish(runID uuid.UUID, out Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.runs[runID]
	if !ok || r.finished {
		return
	}
	r.outcome = out
	r.finished = true
	if r.cancel != nil {
		r.cancel()
	}
	close(r.done)

	t.finished = append(t.finished, runID)
	for len(t.finished) > maxFinishedRuns {
		delete(t.runs, t.finished[0])
		t.finished = t.finished[1:]
	}
}

// Wait blocks until the run finishes or ctx ends.
func (t *Tracker) Wait(ctx context.Context, runID uuid.UUID) (Outcome, error) {
	t.mu.Lock()
	r, ok := t.runs[runID]
	t.mu.Unlock()
	if !ok {
		return Outcome{}, ErrUnknownRun
	}
	select {
	case <-r.done:
		t.mu.Lock()
		out := r.outcome
		t.mu.Unlock()
		return out, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// CancelLesson cancels every unfinished run of the lesson and reports
// whether there was one.
func (t *Tracker) CancelLesson(lessonID uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	found := false
	for _, r := range t.runs {
		if r.finished || r.lessonID != lessonID {
			continue
		}
		found = true
		r.canceled = true
		if r.cancel != nil {
			r.cancel()
		}
	}
	return found
}

// Canceled reports whether CancelLesson hit this run.
func (t *Tracker) Canceled(runID uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.runs[runID]
	return ok && r.canceled
}

// Active counts runs that are tracked but not finished.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, r := range t.runs {
		if !r.finished {
			n++
		}
	}
	return n
}
