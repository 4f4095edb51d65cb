package studio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"visionary-studio/internal/edit"
	"visionary-studio/internal/photo"
	"visionary-studio/internal/session"
)

const (
	MsgAnalyzeFailed = "Failed to analyze photo."
	MsgEnhanceFailed = "Failed to process image."
)

var (
	ErrBusy          = errors.New("a request is already in progress for this session")
	ErrNoPhoto       = errors.New("no photo uploaded")
	ErrUnknownPreset = errors.New("unknown preset")
)

// Engine is the remote image service. *gemini.Client implements it.
type Engine interface {
	Analyze(ctx context.Context, img photo.Image) (photo.Analysis, error)
	Enhance(ctx context.Context, img photo.Image, instruction, aspectRatio string) (photo.Image, error)
}

type EnhanceRequest struct {
	Params edit.Params `json:"params"`
	Prompt string      `json:"prompt"`
	Preset string      `json:"preset,omitempty"`
	// Strict rejects out-of-range parameters instead of clamping them.
	Strict bool `json:"-"`
}

type Options struct {
	Engine   Engine
	Sessions *session.Store
	Presets  *edit.PresetBook
	Logger   *slog.Logger
}

type Service struct {
	engine   Engine
	sessions *session.Store
	presets  *edit.PresetBook
	logger   *slog.Logger
}

func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	presets := opts.Presets
	if presets == nil {
		presets = edit.DefaultPresets()
	}
	sessions := opts.Sessions
	if sessions == nil {
		sessions = session.NewStore(session.Options{})
	}

	return &Service{
		engine:   opts.Engine,
		sessions: sessions,
		presets:  presets,
		logger:   logger,
	}
}

func (s *Service) Sessions() *session.Store { return s.sessions }

func (s *Service) Presets() *edit.PresetBook { return s.presets }

// Upload replaces the session photo and runs the critique. The photo stays
// loaded when the critique fails; the returned state carries the message.
func (s *Service) Upload(ctx context.Context, id string, img photo.Image) (session.State, error) {
	if img.IsZero() {
		return session.State{}, photo.ErrEmpty
	}

	_, err := s.sessions.Update(id, func(st *session.State) error {
		if st.Busy() {
			return ErrBusy
		}
		stored := img.Clone()
		st.Original = &stored
		st.Edited = nil
		st.Analysis = nil
		st.Error = ""
		st.Analyzing = true
		return nil
	})
	if err != nil {
		return s.current(id), err
	}

	return s.runAnalysis(ctx, id, img)
}

// Analyze re-runs the critique on the current photo.
func (s *Service) Analyze(ctx context.Context, id string) (session.State, error) {
	var img photo.Image
	_, err := s.sessions.Update(id, func(st *session.State) error {
		if st.Busy() {
			return ErrBusy
		}
		if st.Original == nil {
			return ErrNoPhoto
		}
		img = *st.Original
		st.Error = ""
		st.Analyzing = true
		return nil
	})
	if err != nil {
		return s.current(id), err
	}

	return s.runAnalysis(ctx, id, img)
}

func (s *Service) runAnalysis(ctx context.Context, id string, img photo.Image) (session.State, error) {
	analysis, callErr := s.engine.Analyze(ctx, img)
	if callErr != nil {
		s.logger.Error("photo analysis failed", "session", id, "err", callErr)
	}

	st, err := s.sessions.Update(id, func(st *session.State) error {
		st.Analyzing = false
		if callErr != nil {
			st.Error = MsgAnalyzeFailed
			return nil
		}
		st.Analysis = &analysis
		return nil
	})
	if err != nil {
		return st, err
	}
	if callErr != nil {
		return st, fmt.Errorf("analyze: %w", callErr)
	}
	return st, nil
}

// Enhance re-renders the original photo with the requested edits. Repeated
// edits always start from the original, never from a previous result.
func (s *Service) Enhance(ctx context.Context, id string, req EnhanceRequest) (session.State, error) {
	var (
		img      photo.Image
		analysis *photo.Analysis
		params   edit.Params
		prompt   string
	)
	_, err := s.sessions.Update(id, func(st *session.State) error {
		var err error
		params, prompt, err = s.resolve(req, st.Preset)
		if err != nil {
			return err
		}
		if st.Busy() {
			return ErrBusy
		}
		if st.Original == nil {
			return ErrNoPhoto
		}
		img = *st.Original
		analysis = st.Analysis
		st.Params = params
		st.Prompt = strings.TrimSpace(req.Prompt)
		st.Preset = strings.TrimSpace(req.Preset)
		st.Error = ""
		st.Processing = true
		return nil
	})
	if err != nil {
		return s.current(id), err
	}

	instruction := edit.Compose(params, analysis, prompt)
	s.logger.Info("enhance started",
		"session", id,
		"aspect_ratio", params.AspectRatio,
		"camera_view", params.CameraView,
		"custom_prompt", prompt != "",
	)

	out, callErr := s.engine.Enhance(ctx, img, instruction, params.AspectRatio)
	if callErr != nil {
		s.logger.Error("enhance failed", "session", id, "err", callErr)
	}

	st, err := s.sessions.Update(id, func(st *session.State) error {
		st.Processing = false
		if callErr != nil {
			st.Error = MsgEnhanceFailed
			return nil
		}
		st.Edited = &out
		return nil
	})
	if err != nil {
		return st, err
	}
	if callErr != nil {
		return st, fmt.Errorf("enhance: %w", callErr)
	}
	return st, nil
}

// Instruction previews the text that Enhance would send, without calling the service.
func (s *Service) Instruction(id string, req EnhanceRequest) (string, error) {
	var (
		analysis *photo.Analysis
		current  string
	)
	if id != "" {
		if st, ok := s.sessions.Get(id); ok {
			analysis = st.Analysis
			current = st.Preset
		}
	}

	params, prompt, err := s.resolve(req, current)
	if err != nil {
		return "", err
	}
	return edit.Compose(params, analysis, prompt), nil
}

// SetParams stores panel state without calling the service (chat front ends
// keep their panel in the session between taps).
func (s *Service) SetParams(id string, fn func(*edit.Params)) (session.State, error) {
	return s.sessions.Update(id, func(st *session.State) error {
		fn(&st.Params)
		st.Params = st.Params.Normalize()
		return nil
	})
}

// Reset drops the photo and panel state. It refuses while a remote call is
// in flight so the call never lands on a cleared session.
func (s *Service) Reset(id string) (session.State, error) {
	return s.sessions.ResetIf(id, func(st *session.State) error {
		if st.Busy() {
			return ErrBusy
		}
		return nil
	})
}

// resolve merges the request with its preset. The preset's values are applied
// only when it differs from current, the preset the session last rendered
// with; after that the explicit params win.
func (s *Service) resolve(req EnhanceRequest, current string) (edit.Params, string, error) {
	params := req.Params
	prompt := strings.TrimSpace(req.Prompt)

	if name := strings.TrimSpace(req.Preset); name != "" {
		pr, ok := s.presets.Get(name)
		if !ok {
			return edit.Params{}, "", fmt.Errorf("%w: %s", ErrUnknownPreset, name)
		}
		if name != current {
			params = params.Apply(pr)
		}
		if prompt == "" {
			prompt = strings.TrimSpace(pr.Prompt)
		}
	}

	if req.Strict {
		if err := params.Validate(); err != nil {
			return edit.Params{}, "", err
		}
	}
	return params.Normalize(), prompt, nil
}

func (s *Service) current(id string) session.State {
	st, _ := s.sessions.Get(id)
	return st
}
