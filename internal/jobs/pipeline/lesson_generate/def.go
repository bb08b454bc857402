package lesson_generate

import (
	"time"

	"gorm.io/gorm"

	"github.com/NotARoomba/canvas/internal/data/repos"
	"github.com/NotARoomba/canvas/internal/platform/elevenlabs"
	"github.com/NotARoomba/canvas/internal/platform/logger"
	"github.com/NotARoomba/canvas/internal/platform/openai"
	"github.com/NotARoomba/canvas/internal/platform/openrouter"
	"github.com/NotARoomba/canvas/internal/platform/wikipedia"
	"github.com/NotARoomba/canvas/internal/services"
)

const JobType = "lesson_generate"

type Options struct {
	OutlineModel     string
	ExplanationModel string
	ReferenceModel   string
	// StepTimeout bounds every external call made by a run.
	StepTimeout        time.Duration
	VisionExplanations bool
	EncyclopediaImages bool
}

type Pipeline struct {
	db       *gorm.DB
	log      *logger.Logger
	lessons  repos.LessonRepo
	assets   services.AssetService
	chat     openrouter.Client
	images   openai.Client
	tts      elevenlabs.Client
	wiki     wikipedia.Client
	notifier services.LessonNotifier
	policy   Policy
	opts     Options
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	lessons repos.LessonRepo,
	assets services.AssetService,
	chat openrouter.Client,
	images openai.Client,
	tts elevenlabs.Client,
	wiki wikipedia.Client,
	notifier services.LessonNotifier,
	policy Policy,
	opts Options,
) *Pipeline {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = 2 * time.Minute
	}
	return &Pipeline{
		db:       db,
		log:      baseLog.With("job", JobType),
		lessons:  lessons,
		assets:   assets,
		chat:     chat,
		images:   images,
		tts:      tts,
		wiki:     wiki,
		notifier: notifier,
		policy:   policy,
		opts:     opts,
	}
}

func (p *Pipeline) Type() string { return JobType }
