package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/NotARoomba/canvas/internal/app"
)

var rootCmd = &cobra.Command{
	Use:           "canvas",
	Short:         "Lesson generation backend",
	Long:          "canvas turns a topic prompt into a narrated, illustrated step-by-step lesson.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(generateCmd)
}

// signalContext ends on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the lesson worker pool",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func runServe(cmd *cobra.Command) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	log, err := app.NewLogger()
	if err != nil {
		return err
	}
	a, err := app.New(ctx, log)
	if err != nil {
		log.Error("Failed to initialize app", "error", err)
		log.Sync()
		return err
	}
	return a.Serve(ctx)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := app.NewLogger()
		if err != nil {
			return err
		}
		defer log.Sync()
		svc, err := app.OpenDB(log)
		if err != nil {
			return err
		}
		log.Info("Migrations applied", "driver", svc.Driver())
		return svc.Close()
	},
}
