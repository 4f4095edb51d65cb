package web

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"visionary-studio/internal/edit"
	"visionary-studio/internal/photo"
	"visionary-studio/internal/session"
	"visionary-studio/internal/studio"
)

//go:embed static/*
var staticFS embed.FS

const sessionCookie = "studio_session"

type Options struct {
	Studio         *studio.Service
	Logger         *slog.Logger
	MaxUploadBytes int64
	RequestTimeout time.Duration
	SecureCookies  bool
}

type Server struct {
	studio         *studio.Service
	logger         *slog.Logger
	maxUploadBytes int64
	requestTimeout time.Duration
	secureCookies  bool
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 25 << 20
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 240 * time.Second
	}

	return &Server{
		studio:         opts.Studio,
		logger:         logger,
		maxUploadBytes: maxUpload,
		requestTimeout: timeout,
		secureCookies:  opts.SecureCookies,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		withLogging(s.logger),
	)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/options", s.handleOptions)

		r.Group(func(r chi.Router) {
			r.Use(s.withSession)
			r.Get("/state", s.handleState)
			r.Post("/photo", s.handleUpload)
			r.Get("/photo/{kind}", s.handlePhoto)
			r.Post("/analyze", s.handleAnalyze)
			r.Post("/prompt", s.handlePrompt)
			r.Post("/enhance", s.handleEnhance)
			r.Post("/reset", s.handleReset)
		})
	})

	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	r.Handle("/*", http.FileServer(http.FS(staticSub)))

	return r
}

type apiError struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
	State  *stateResponse    `json:"state,omitempty"`
}

type stateResponse struct {
	SessionID   string          `json:"session_id"`
	OriginalURL string          `json:"original_url,omitempty"`
	EditedURL   string          `json:"edited_url,omitempty"`
	Analysis    *photo.Analysis `json:"analysis"`
	Params      edit.Params     `json:"params"`
	Prompt      string          `json:"prompt"`
	Preset      string          `json:"preset,omitempty"`
	Analyzing   bool            `json:"analyzing"`
	Processing  bool            `json:"processing"`
	Error       string          `json:"error,omitempty"`
}

type optionsResponse struct {
	CameraViews  []edit.NamedOption    `json:"camera_views"`
	AspectRatios []edit.NamedOption    `json:"aspect_ratios"`
	Ranges       map[string]edit.Range `json:"ranges"`
	Presets      []edit.Preset         `json:"presets"`
	Defaults     edit.Params           `json:"defaults"`
	DefaultTask  string                `json:"default_task"`
}

type instructionResponse struct {
	Instruction string `json:"instruction"`
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, optionsResponse{
		CameraViews:  edit.CameraViews(),
		AspectRatios: edit.AspectRatios(),
		Ranges:       edit.Ranges(),
		Presets:      s.studio.Presets().List(),
		Defaults:     edit.DefaultParams(),
		DefaultTask:  edit.DefaultTask,
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	st, ok := s.studio.Sessions().Get(sessionID(r.Context()))
	if !ok {
		writeJSON(w, http.StatusNotFound, apiError{Error: session.ErrNotFound.Error()})
		return
	}
	writeJSON(w, http.StatusOK, toStateResponse(st))
}

type uploadRequest struct {
	// Image is a data URL, as produced by FileReader.readAsDataURL.
	Image string `json:"image"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	var (
		img photo.Image
		ok  bool
	)
	if ct, _, _ := strings.Cut(r.Header.Get("Content-Type"), ";"); strings.TrimSpace(ct) == "application/json" {
		img, ok = s.readDataURLUpload(w, r)
	} else {
		img, ok = s.readMultipartUpload(w, r)
	}
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	st, err := s.studio.Upload(ctx, sessionID(r.Context()), img)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStateResponse(st))
}

func (s *Server) readDataURLUpload(w http.ResponseWriter, r *http.Request) (photo.Image, bool) {
	// base64 grows the payload by a third.
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes/3*4+(1<<20))

	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, apiError{Error: photo.ErrTooLarge.Error()})
			return photo.Image{}, false
		}
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid json body: " + err.Error()})
		return photo.Image{}, false
	}

	decoded, err := photo.ParseDataURL(req.Image)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid image data url: " + err.Error()})
		return photo.Image{}, false
	}

	img, err := photo.Read(bytes.NewReader(decoded.Data), decoded.MimeType, s.maxUploadBytes)
	if err != nil {
		s.writeError(w, r, err)
		return photo.Image{}, false
	}
	return img, true
}

func (s *Server) readMultipartUpload(w http.ResponseWriter, r *http.Request) (photo.Image, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+(1<<20))

	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || errors.Is(err, multipart.ErrMessageTooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, apiError{Error: photo.ErrTooLarge.Error()})
			return photo.Image{}, false
		}
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid multipart form"})
		return photo.Image{}, false
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "missing image"})
		return photo.Image{}, false
	}
	defer file.Close()

	img, err := photo.Read(file, header.Header.Get("Content-Type"), s.maxUploadBytes)
	if err != nil {
		s.writeError(w, r, err)
		return photo.Image{}, false
	}
	return img, true
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	st, err := s.studio.Analyze(ctx, sessionID(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStateResponse(st))
}

func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeEnhanceRequest(w, r)
	if !ok {
		return
	}

	text, err := s.studio.Instruction(sessionID(r.Context()), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, instructionResponse{Instruction: text})
}

func (s *Server) handleEnhance(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeEnhanceRequest(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	st, err := s.studio.Enhance(ctx, sessionID(r.Context()), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStateResponse(st))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	st, err := s.studio.Reset(sessionID(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStateResponse(st))
}

func (s *Server) handlePhoto(w http.ResponseWriter, r *http.Request) {
	st, ok := s.studio.Sessions().Get(sessionID(r.Context()))
	if !ok {
		writeJSON(w, http.StatusNotFound, apiError{Error: session.ErrNotFound.Error()})
		return
	}

	kind := chi.URLParam(r, "kind")
	var img *photo.Image
	switch kind {
	case "original":
		img = st.Original
	case "edited":
		img = st.Edited
	default:
		writeJSON(w, http.StatusNotFound, apiError{Error: "unknown photo kind"})
		return
	}
	if img == nil {
		writeJSON(w, http.StatusNotFound, apiError{Error: "photo not available"})
		return
	}

	w.Header().Set("content-type", img.MimeType)
	w.Header().Set("cache-control", "no-store")
	w.Header().Set("content-length", strconv.Itoa(len(img.Data)))
	if parseBool(r.URL.Query().Get("download")) {
		w.Header().Set("content-disposition", fmt.Sprintf("attachment; filename=%q", "visionary-"+kind+img.Extension()))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img.Data)
}

// decodeEnhanceRequest overlays the JSON body on the session's current panel,
// so clients may send only the fields they changed.
func (s *Server) decodeEnhanceRequest(w http.ResponseWriter, r *http.Request) (studio.EnhanceRequest, bool) {
	req := studio.EnhanceRequest{Params: edit.DefaultParams(), Strict: true}
	if st, ok := s.studio.Sessions().Get(sessionID(r.Context())); ok {
		req.Params = st.Params
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid json body: " + err.Error()})
		return studio.EnhanceRequest{}, false
	}
	req.Strict = true
	return req, true
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *edit.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, apiError{Error: "invalid parameters", Fields: verr.Fields})
	case errors.Is(err, studio.ErrUnknownPreset):
		writeJSON(w, http.StatusUnprocessableEntity, apiError{Error: err.Error()})
	case errors.Is(err, studio.ErrBusy):
		writeJSON(w, http.StatusConflict, apiError{Error: err.Error()})
	case errors.Is(err, studio.ErrNoPhoto),
		errors.Is(err, photo.ErrEmpty),
		errors.Is(err, photo.ErrNotImage):
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
	case errors.Is(err, photo.ErrTooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, apiError{Error: err.Error()})
	case errors.Is(err, session.ErrNotFound):
		writeJSON(w, http.StatusNotFound, apiError{Error: err.Error()})
	default:
		st, _ := s.studio.Sessions().Get(sessionID(r.Context()))
		resp := toStateResponse(st)
		msg := st.Error
		if msg == "" {
			msg = "upstream request failed"
		}
		writeJSON(w, http.StatusBadGateway, apiError{Error: msg, State: &resp})
	}
}

func toStateResponse(st session.State) stateResponse {
	version := strconv.FormatInt(st.LastActivity.UnixNano(), 36)
	resp := stateResponse{
		SessionID:  st.ID,
		Analysis:   st.Analysis,
		Params:     st.Params,
		Prompt:     st.Prompt,
		Preset:     st.Preset,
		Analyzing:  st.Analyzing,
		Processing: st.Processing,
		Error:      st.Error,
	}
	if st.Original != nil {
		resp.OriginalURL = "/api/photo/original?v=" + version
	}
	if st.Edited != nil {
		resp.EditedURL = "/api/photo/edited?v=" + version
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseBool(value string) bool {
	value = strings.TrimSpace(strings.ToLower(value))
	return value == "1" || value == "true" || value == "yes" || value == "on"
}
