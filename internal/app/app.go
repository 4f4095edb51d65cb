// Package app wires the shared studio stack for the web server, the bot and the CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"visionary-studio/internal/config"
	"visionary-studio/internal/edit"
	"visionary-studio/internal/gemini"
	"visionary-studio/internal/httpclient"
	"visionary-studio/internal/session"
	"visionary-studio/internal/studio"
)

const userAgent = "visionary-studio/1.0"

type App struct {
	Config     config.Config
	Logger     *slog.Logger
	HTTPClient *http.Client
	Gemini     *gemini.Client
	Presets    *edit.PresetBook
	Sessions   *session.Store
	Studio     *studio.Service
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout,
		UserAgent:  userAgent,
		Logger:     logger,
	})

	gem, err := gemini.New(ctx, gemini.Options{
		APIKey:        cfg.GeminiAPIKey,
		BaseURL:       cfg.GeminiBaseURL,
		APIVersion:    cfg.GeminiAPIVersion,
		AnalysisModel: cfg.GeminiAnalysisModel,
		ImageModel:    cfg.GeminiImageModel,
		HTTPClient:    httpClient,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	presets, err := LoadPresets(cfg.PresetsFile)
	if err != nil {
		return nil, err
	}

	sessions := session.NewStore(session.Options{TTL: cfg.SessionTTL})

	return &App{
		Config:     cfg,
		Logger:     logger,
		HTTPClient: httpClient,
		Gemini:     gem,
		Presets:    presets,
		Sessions:   sessions,
		Studio: studio.New(studio.Options{
			Engine:   gem,
			Sessions: sessions,
			Presets:  presets,
			Logger:   logger,
		}),
	}, nil
}

// LoadPresets reads path when set and falls back to the built-in presets.
func LoadPresets(path string) (*edit.PresetBook, error) {
	book, err := edit.LoadPresets(path)
	if err != nil {
		return nil, fmt.Errorf("load presets %s: %w", path, err)
	}
	return book, nil
}
