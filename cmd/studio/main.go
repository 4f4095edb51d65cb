package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"visionary-studio/internal/app"
	"visionary-studio/internal/config"
	"visionary-studio/internal/studio"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(geminiEngine)
	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// geminiEngine builds the real service client from the environment.
func geminiEngine(ctx context.Context, logger *slog.Logger) (studio.Engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return a.Gemini, nil
}
