package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/NotARoomba/canvas/internal/app"
	"github.com/NotARoomba/canvas/internal/jobs/runtime"
	"github.com/NotARoomba/canvas/internal/realtime"
	"github.com/NotARoomba/canvas/internal/services"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate one lesson in-process and report the outcome",
	RunE:  runGenerate,
}

func init() {
	generateCmd.Flags().String("prompt", "", "Lesson topic (required)")
	generateCmd.Flags().Int("difficulty", 1, "0 elementary, 1 high school, 2 university")
	_ = generateCmd.MarkFlagRequired("prompt")
}

type waitResult struct {
	out runtime.Outcome
	err error
}

func runGenerate(cmd *cobra.Command, args []string) error {
	prompt, _ := cmd.Flags().GetString("prompt")
	difficulty, _ := cmd.Flags().GetInt("difficulty")

	ctx, stop := signalContext(cmd)
	defer stop()

	log, err := app.NewLogger()
	if err != nil {
		return err
	}
	a, err := app.New(ctx, log)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.Start(ctx); err != nil {
		return err
	}

	lesson, run, err := a.Services.Lessons.Start(ctx, services.StartLessonInput{Prompt: prompt, Difficulty: &difficulty})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "lesson %s (run %s)\n", lesson.ID, run.ID)

	client := a.SSEHub.NewSSEClient()
	a.SSEHub.AddChannel(client, realtime.LessonChannel(lesson.ID.String()))
	defer a.SSEHub.CloseClient(client)

	done := make(chan waitResult, 1)
	go func() {
		out, err := a.Services.JobTracker.Wait(ctx, run.ID)
		done <- waitResult{out: out, err: err}
	}()

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("outline"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	for {
		select {
		case msg := <-client.Outbound:
			trackProgress(ctx, a, lesson.ID, bar, msg)
		case res := <-done:
			_ = bar.Finish()
			if res.err != nil {
				return fmt.Errorf("wait for run: %w", res.err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "status=%s steps_appended=%d steps_skipped=%d\n",
				res.out.Status, res.out.StepsAppended, res.out.StepsSkipped)
			if res.out.Error != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "error=%s\n", res.out.Error)
			}
			return nil
		}
	}
}

// trackProgress sizes the bar to the outline once it exists and advances it
// as steps are appended.
func trackProgress(ctx context.Context, a *app.App, lessonID uuid.UUID, bar *progressbar.ProgressBar, msg realtime.SSEMessage) {
	switch msg.Event {
	case realtime.SSEEventJobProgress:
		if data, ok := msg.Data.(map[string]any); ok {
			if stage, ok := data["stage"].(string); ok {
				bar.Describe(stage)
			}
		}
	case realtime.SSEEventLessonUpdated:
		lesson, err := a.Services.Lessons.Get(ctx, lessonID)
		if err != nil {
			return
		}
		outline, err := lesson.OutlineSteps()
		if err != nil || len(outline) == 0 {
			return
		}
		if bar.GetMax() != len(outline) {
			bar.ChangeMax(len(outline))
		}
		_ = bar.Set(len(lesson.Steps))
	}
}
