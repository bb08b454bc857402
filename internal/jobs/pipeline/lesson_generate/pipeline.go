package lesson_generate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/NotARoomba/canvas/internal/data/repos"
	types "github.com/NotARoomba/canvas/internal/domain"
	"github.com/NotARoomba/canvas/internal/jobs/lessons/steps"
	jobrt "github.com/NotARoomba/canvas/internal/jobs/runtime"
	"github.com/NotARoomba/canvas/internal/observability"
	"github.com/NotARoomba/canvas/internal/platform/dbctx"
	"github.com/NotARoomba/canvas/internal/platform/elevenlabs"
	"github.com/NotARoomba/canvas/internal/platform/logger"
)

type stepResult int

const (
	stepAppended stepResult = iota
	stepSkipped
	// stepStopped means the run already reached a terminal state.
	stepStopped
)

// run is the state of one execution. Nothing in it outlives Run.
type run struct {
	p        *Pipeline
	jc       *jobrt.Context
	ctx      context.Context
	log      *logger.Logger
	lessonID uuid.UUID

	total    int
	appended int
	skipped  int
}

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	lessonID, ok := jc.PayloadUUID("lesson_id")
	if !ok {
		jc.Fail("validate", fmt.Errorf("missing lesson_id"))
		return nil
	}
	topic := jc.PayloadString("topic")
	if topic == "" {
		jc.Fail("validate", fmt.Errorf("missing topic"))
		return nil
	}
	level, ok := jc.PayloadInt("difficulty")
	difficulty := types.Difficulty(level)
	if !ok || !difficulty.Valid() {
		jc.Fail("validate", fmt.Errorf("invalid difficulty %q", jc.PayloadString("difficulty")))
		return nil
	}

	ctx, span := observability.Tracer().Start(jc.Ctx, "lesson_generate.run", trace.WithAttributes(
		attribute.String("lesson.id", lessonID.String()),
		attribute.String("lesson.difficulty", difficulty.String()),
		attribute.String("job.id", jc.Job.ID.String()),
	))
	defer span.End()

	r := &run{
		p:        p,
		jc:       jc,
		ctx:      ctx,
		log:      p.log.With("lesson_id", lessonID, "run_id", jc.Job.ID),
		lessonID: lessonID,
	}
	r.execute(topic, difficulty)

	span.SetAttributes(
		attribute.Int("lesson.steps_total", r.total),
		attribute.Int("lesson.steps_appended", r.appended),
		attribute.Int("lesson.steps_skipped", r.skipped),
		attribute.String("job.status", jc.Job.Status),
	)
	if jc.Job.Error != "" {
		span.SetStatus(codes.Error, jc.Job.Error)
	}
	return nil
}

func (r *run) execute(topic string, difficulty types.Difficulty) {
	r.jc.Progress("outline", 2, "Generating outline")
	outline, ok := r.outline(topic, difficulty)
	if !ok {
		return
	}
	r.total = len(outline)
	r.jc.SetResult(r.result())

	r.jc.Progress("encyclopedia", 8, "Resolving encyclopedia reference")
	enc, ok := r.encyclopedia(topic)
	if !ok {
		return
	}

	for i, step := range outline {
		if err := r.ctx.Err(); err != nil {
			r.interrupted("step", err)
			return
		}
		r.jc.Progress("step", stepProgress(i, r.total), fmt.Sprintf("Step %d/%d: %s", i+1, r.total, step.Title))
		switch r.step(i, step, enc) {
		case stepAppended:
			r.appended++
		case stepSkipped:
			r.skipped++
		case stepStopped:
			return
		}
		r.jc.SetResult(r.result())
	}

	r.log.Info("Lesson generated", "steps_total", r.total, "steps_appended", r.appended, "steps_skipped", r.skipped)
	r.jc.Succeed("done", r.result())
}

func (r *run) outline(topic string, difficulty types.Difficulty) ([]types.OutlineStep, bool) {
	ctx, span := r.span("outline")
	defer span.End()

	out, err := steps.GenerateOutline(ctx, steps.OutlineDeps{
		Log:     r.log,
		Chat:    r.p.chat,
		Model:   r.p.opts.OutlineModel,
		Timeout: r.p.opts.StepTimeout,
	}, steps.OutlineInput{Topic: topic, Difficulty: difficulty})
	if err != nil {
		if r.handle(span, OriginOutline, "outline", -1, err) != ActionAbandon {
			r.abandon("outline", err)
		}
		return nil, false
	}
	if err := r.p.lessons.SetOutline(dbctx.Of(ctx), r.lessonID, out.Title, out.Description, out.Outline); err != nil {
		recordErr(span, err)
		r.abandon("outline", fmt.Errorf("save outline: %w", err))
		return nil, false
	}
	span.SetAttributes(attribute.Int("lesson.steps_total", len(out.Outline)))
	r.publish()
	return out.Outline, true
}

func (r *run) encyclopedia(topic string) (steps.EncyclopediaOutput, bool) {
	ctx, span := r.span("encyclopedia")
	defer span.End()

	enc, err := steps.ResolveEncyclopedia(ctx, steps.EncyclopediaDeps{
		Log:     r.log,
		Chat:    r.p.chat,
		Wiki:    r.p.wiki,
		Model:   r.p.opts.ReferenceModel,
		Timeout: r.p.opts.StepTimeout,
	}, topic)
	if err == nil {
		err = r.p.lessons.SetEncyclopedia(dbctx.Of(ctx), r.lessonID, enc.URL, enc.ImageNames)
		if err == nil {
			r.publish()
			return enc, true
		}
		if errors.Is(err, repos.ErrLessonNotFound) {
			r.interrupted("encyclopedia", err)
			return steps.EncyclopediaOutput{}, false
		}
	}
	if r.handle(span, OriginEncyclopedia, "encyclopedia", -1, err) == ActionAbandon {
		return steps.EncyclopediaOutput{}, false
	}
	return steps.EncyclopediaOutput{ImageNames: []string{}}, true
}

/*
step builds one outline entry fully and appends it. Media, references and
narration run one after another; each failure is resolved against the policy
before moving on, so a step is either appended whole or not at all.
*/
func (r *run) step(index int, step types.OutlineStep, enc steps.EncyclopediaOutput) stepResult {
	ctx, span := r.span("step",
		attribute.Int("step.index", index),
		attribute.String("step.media_kind", string(step.MediaKind)),
	)
	defer span.End()
	log := r.log.With("step_index", index)

	media, err := steps.ProduceMedia(ctx, steps.MediaDeps{
		Log:                log,
		Chat:               r.p.chat,
		Images:             r.p.images,
		Wiki:               r.p.wiki,
		Assets:             r.p.assets,
		ExplanationModel:   r.p.opts.ExplanationModel,
		VisionExplanations: r.p.opts.VisionExplanations,
		EncyclopediaImages: r.p.opts.EncyclopediaImages,
		Timeout:            r.p.opts.StepTimeout,
	}, steps.MediaInput{Step: step, EncyclopediaImageNames: enc.ImageNames})
	if err != nil {
		origin := OriginMedia
		var mf *steps.MediaFailure
		if errors.As(err, &mf) && mf.Origin == steps.MediaOriginAssetStore {
			origin = OriginAssetStore
		}
		switch r.handle(span, origin, "media", index, err) {
		case ActionAbandon:
			return stepStopped
		case ActionSkip:
			return stepSkipped
		}
		media = steps.MediaOutput{Explanation: step.Instruction}
	}
	if strings.TrimSpace(media.Explanation) == "" {
		media.Explanation = step.Instruction
	}

	refs, err := steps.GatherReferences(ctx, steps.ReferenceDeps{
		Log:     log,
		Chat:    r.p.chat,
		Wiki:    r.p.wiki,
		Model:   r.p.opts.ReferenceModel,
		Timeout: r.p.opts.StepTimeout,
	}, steps.ReferenceInput{
		MediaKind:       step.MediaKind,
		Explanation:     media.Explanation,
		EncyclopediaURL: enc.URL,
		ImageSourceURL:  media.ImageURL,
	})
	if err != nil {
		switch r.handle(span, OriginReferences, "references", index, err) {
		case ActionAbandon:
			return stepStopped
		case ActionSkip:
			return stepSkipped
		}
		refs = []string{}
	}

	audioID, err := steps.Narrate(ctx, steps.NarrationDeps{
		Log:     log,
		TTS:     r.p.tts,
		Assets:  r.p.assets,
		Timeout: r.p.opts.StepTimeout,
	}, step.NarrationScript)
	if err != nil {
		origin := OriginNarration
		if errors.Is(err, elevenlabs.ErrMissingAPIKey) {
			origin = OriginNarrationCredential
		}
		switch r.handle(span, origin, "narration", index, err) {
		case ActionAbandon:
			return stepStopped
		case ActionSkip:
			return stepSkipped
		}
		audioID = nil
	}

	if err := r.ctx.Err(); err != nil {
		r.interrupted("append", err)
		return stepStopped
	}
	err = r.p.lessons.AppendStep(dbctx.Of(ctx), &types.LessonStep{
		LessonID:        r.lessonID,
		OutlineIndex:    index,
		Title:           step.Title,
		MediaKind:       step.MediaKind,
		ImageID:         media.ImageID,
		Explanation:     media.Explanation,
		NarrationScript: step.NarrationScript,
		AudioID:         audioID,
		References:      types.StringsJSON(refs),
	})
	if err != nil {
		recordErr(span, err)
		if errors.Is(err, repos.ErrLessonNotFound) || r.ctx.Err() != nil {
			r.interrupted("append", err)
			return stepStopped
		}
		log.Error("Append step failed; skipping", "error", err)
		return stepSkipped
	}
	log.Debug("Step appended", "has_image", media.ImageID != nil, "has_audio", audioID != nil, "references", len(refs))
	r.publish()
	return stepAppended
}

// handle logs a failure and resolves it against the policy. On abandon the run
// is already terminal when it returns. A canceled run always abandons.
func (r *run) handle(span trace.Span, origin Origin, stage string, index int, err error) Action {
	recordErr(span, err)
	action := r.p.policy.Resolve(origin)
	if r.ctx.Err() != nil {
		action = ActionAbandon
	}
	log := r.log.With("phase", stage, "origin", string(origin), "action", string(action))
	if index >= 0 {
		log = log.With("step_index", index)
	}
	log.Warn("Lesson generation failure", "error", err)
	r.jc.Metrics.IncDecision(string(origin), string(action))
	if action == ActionAbandon {
		r.abandon(stage, err)
		return action
	}
	data := map[string]any{"origin": string(origin), "action": string(action)}
	if index >= 0 {
		data["step_index"] = index
	}
	r.jc.Decision(stage, errMessage(err), data)
	return action
}

func (r *run) abandon(stage string, err error) {
	if r.ctx.Err() != nil || errors.Is(err, repos.ErrLessonNotFound) {
		r.interrupted(stage, err)
		return
	}
	r.jc.SetResult(r.result())
	r.jc.Fail(stage, err)
}

// interrupted ends a run that was cut short. The run counts as canceled when
// its lesson is gone and as abandoned otherwise (for example on shutdown).
func (r *run) interrupted(stage string, err error) {
	r.jc.SetResult(r.result())
	if errors.Is(err, repos.ErrLessonNotFound) || !r.lessonExists() {
		r.log.Info("Lesson deleted; run canceled", "phase", stage)
		r.jc.Cancel(stage, fmt.Errorf("lesson deleted: %w", err))
		return
	}
	r.log.Warn("Run interrupted", "phase", stage, "error", err)
	r.jc.Fail(stage, err)
}

func (r *run) lessonExists() bool {
	ok, err := r.p.lessons.Exists(dbctx.Of(context.WithoutCancel(r.ctx)), r.lessonID)
	if err != nil {
		return true
	}
	return ok
}

// publish pushes the stored lesson to realtime subscribers.
func (r *run) publish() {
	if r.p.notifier == nil {
		return
	}
	lesson, err := r.p.lessons.GetByID(dbctx.Of(context.WithoutCancel(r.ctx)), r.lessonID)
	if err != nil {
		r.log.Debug("Lesson snapshot unavailable", "error", err)
		return
	}
	r.p.notifier.LessonUpdated(lesson)
}

func (r *run) result() map[string]any {
	return map[string]any{
		"steps_total":    r.total,
		"steps_appended": r.appended,
		"steps_skipped":  r.skipped,
	}
}

func (r *run) span(name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("lesson.id", r.lessonID.String()))
	return observability.Tracer().Start(r.ctx, "lesson_generate."+name, trace.WithAttributes(attrs...))
}

func recordErr(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// stepProgress spreads the steps over 10..99 percent.
func stepProgress(i, n int) int {
	if n <= 0 {
		return 10
	}
	return 10 + 89*i/n
}
