package steps

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	types "github.com/NotARoomba/canvas/internal/domain"
	"github.com/NotARoomba/canvas/internal/platform/logger"
	"github.com/NotARoomba/canvas/internal/platform/openai"
	"github.com/NotARoomba/canvas/internal/platform/openrouter"
	"github.com/NotARoomba/canvas/internal/platform/wikipedia"
	"github.com/NotARoomba/canvas/internal/services"
)

// Media failure origins, matching the failure policy origins of the same name.
const (
	MediaOriginGeneration = "media"
	MediaOriginAssetStore = "asset_store"
)

// MediaFailure tells the caller which part of media production failed.
type MediaFailure struct {
	Origin string
	Err    error
}

func (e *MediaFailure) Error() string {
	return fmt.Sprintf("media (%s): %v", e.Origin, e.Err)
}

func (e *MediaFailure) Unwrap() error { return e.Err }

type MediaDeps struct {
	Log    *logger.Logger
	Chat   openrouter.Client
	Images openai.Client
	Wiki   wikipedia.Client
	Assets services.AssetService

	ExplanationModel string
	// VisionExplanations replaces the instruction caption of image steps with
	// a model description of the image when one can be produced.
	VisionExplanations bool
	// EncyclopediaImages makes image steps try a relevant encyclopedia image
	// before generating one.
	EncyclopediaImages bool
	Timeout            time.Duration
}

type MediaInput struct {
	Step types.OutlineStep
	// EncyclopediaImageNames are the image file names of the lesson's
	// encyclopedia page, if one was resolved.
	EncyclopediaImageNames []string
}

type MediaOutput struct {
	ImageID *uuid.UUID
	// ImageURL is the external provenance URL of the image, set only for
	// encyclopedia images.
	ImageURL    string
	Explanation string
}

// ProduceMedia builds the media half of a step: an image for image steps, a
// written explanation for text steps. Errors are *MediaFailure.
func ProduceMedia(ctx context.Context, deps MediaDeps, in MediaInput) (MediaOutput, error) {
	if deps.Log == nil || deps.Chat == nil || deps.Images == nil || deps.Assets == nil {
		return MediaOutput{}, &MediaFailure{Origin: MediaOriginGeneration, Err: errors.New("missing deps")}
	}
	switch in.Step.MediaKind {
	case types.MediaKindImage:
		if deps.EncyclopediaImages && len(in.EncyclopediaImageNames) > 0 {
			out, err := encyclopediaImage(ctx, deps, in)
			if err == nil {
				return out, nil
			}
			if ctx.Err() != nil {
				return MediaOutput{}, &MediaFailure{Origin: MediaOriginGeneration, Err: ctx.Err()}
			}
			if !errors.Is(err, ErrNoRelevantImage) {
				deps.Log.Warn("Encyclopedia image unavailable; generating", "step_title", in.Step.Title, "error", err)
			}
		}
		return generatedImage(ctx, deps, in.Step)
	case types.MediaKindText:
		explanation, err := writtenExplanation(ctx, deps, in.Step)
		if err != nil {
			return MediaOutput{}, &MediaFailure{Origin: MediaOriginGeneration, Err: err}
		}
		return MediaOutput{Explanation: explanation}, nil
	default:
		return MediaOutput{}, &MediaFailure{Origin: MediaOriginGeneration, Err: fmt.Errorf("unknown media kind %q", in.Step.MediaKind)}
	}
}

func generatedImage(ctx context.Context, deps MediaDeps, step types.OutlineStep) (MediaOutput, error) {
	callCtx, cancel := withTimeout(ctx, deps.Timeout)
	gen, err := deps.Images.GenerateImage(callCtx, fmt.Sprintf(imagePrompt, step.Instruction))
	cancel()
	if err != nil {
		return MediaOutput{}, &MediaFailure{Origin: MediaOriginGeneration, Err: err}
	}

	storeCtx, storeCancel := withTimeout(ctx, deps.Timeout)
	asset, err := deps.Assets.StoreImage(storeCtx, gen.Bytes, gen.MimeType)
	storeCancel()
	if err != nil {
		return MediaOutput{}, &MediaFailure{Origin: MediaOriginAssetStore, Err: err}
	}

	id := asset.ID
	out := MediaOutput{ImageID: &id, Explanation: step.Instruction}
	if deps.VisionExplanations {
		if caption := describeImage(ctx, deps, gen.DataURL()); caption != "" {
			out.Explanation = caption
		}
	}
	return out, nil
}

func encyclopediaImage(ctx context.Context, deps MediaDeps, in MediaInput) (MediaOutput, error) {
	encDeps := EncyclopediaDeps{Log: deps.Log, Wiki: deps.Wiki, Timeout: deps.Timeout}
	imageURL, err := FindEncyclopediaImage(ctx, encDeps, in.EncyclopediaImageNames, in.Step.Title)
	if err != nil {
		return MediaOutput{}, err
	}

	storeCtx, cancel := withTimeout(ctx, deps.Timeout)
	asset, err := deps.Assets.StoreImageSource(storeCtx, imageURL)
	cancel()
	if err != nil {
		return MediaOutput{}, err
	}

	id := asset.ID
	out := MediaOutput{ImageID: &id, ImageURL: imageURL, Explanation: in.Step.Instruction}
	if deps.VisionExplanations {
		if caption := describeImage(ctx, deps, imageURL); caption != "" {
			out.Explanation = caption
		}
	}
	return out, nil
}

func writtenExplanation(ctx context.Context, deps MediaDeps, step types.OutlineStep) (string, error) {
	callCtx, cancel := withTimeout(ctx, deps.Timeout)
	defer cancel()
	var resp explanationResponse
	err := deps.Chat.CompleteJSON(callCtx, openrouter.Request{
		Model:  deps.ExplanationModel,
		Prompt: fmt.Sprintf(explanationPrompt, step.Instruction, step.Title),
		Schema: explanationSchema,
	}, &resp)
	if err != nil {
		return "", err
	}
	explanation := singleLine(resp.Explanation)
	if explanation == "" {
		return "", &openrouter.ErrInvalidResponse{Err: errors.New("empty explanation")}
	}
	return explanation, nil
}

// describeImage returns "" when no caption could be produced.
func describeImage(ctx context.Context, deps MediaDeps, imageURL string) string {
	callCtx, cancel := withTimeout(ctx, deps.Timeout)
	defer cancel()
	var resp explanationResponse
	err := deps.Chat.CompleteJSON(callCtx, openrouter.Request{
		Model:  deps.ExplanationModel,
		Prompt: visionPrompt,
		Schema: explanationSchema,
		Images: []string{imageURL},
	}, &resp)
	if err != nil {
		deps.Log.Warn("Image caption failed; keeping instruction", "error", err)
		return ""
	}
	return strings.TrimSpace(singleLine(resp.Explanation))
}
