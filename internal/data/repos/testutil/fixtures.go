package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/NotARoomba/canvas/internal/domain"
)

// SeedLesson inserts a lesson with the given outline (which may be nil).
func SeedLesson(tb testing.TB, ctx context.Context, db *gorm.DB, prompt string, outline []types.OutlineStep) *types.Lesson {
	tb.Helper()
	l := &types.Lesson{
		ID:         uuid.New(),
		Prompt:     prompt,
		Difficulty: types.DifficultyHighSchool,
		Outline:    types.OutlineJSON(outline),
	}
	if outline != nil {
		l.Title = prompt
		l.Description = "Descripción de " + prompt
	}
	if err := db.WithContext(ctx).Omit("Steps").Create(l).Error; err != nil {
		tb.Fatalf("seed lesson: %v", err)
	}
	return l
}

// Outline builds n outline entries alternating text and image.
func Outline(n int) []types.OutlineStep {
	out := make([]types.OutlineStep, 0, n)
	for i := 0; i < n; i++ {
		kind := types.MediaKindText
		if i%2 == 1 {
			kind = types.MediaKindImage
		}
		out = append(out, types.OutlineStep{
			Title:           "Paso " + string(rune('A'+i)),
			MediaKind:       kind,
			Instruction:     "Explica la parte " + string(rune('A'+i)),
			NarrationScript: "Narración " + string(rune('A'+i)),
		})
	}
	return out
}
