package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"visionary-studio/internal/photo"
)

const (
	DefaultAnalysisModel = "gemini-3-flash-preview"
	DefaultImageModel    = "gemini-2.5-flash-image"
)

const critiqueInstruction = "Act as a world-class professional photographer. " +
	"Analyze this photo for technical and artistic errors. " +
	"Focus on lighting (shadows, exposure), composition (rule of thirds, balance), optics (blur, lens choice), and color. " +
	"Be honest but constructive."

const imageOnlySuffix = "\n\nReturn only the edited photo as inline image data. Do not answer with text, JSON or code."

var (
	ErrAnalysisParse = errors.New("failed to parse photo analysis")
	ErrNoImage       = errors.New("the AI failed to generate an enhanced image")
)

type Options struct {
	APIKey        string
	BaseURL       string
	APIVersion    string
	AnalysisModel string
	ImageModel    string
	HTTPClient    *http.Client
	Logger        *slog.Logger
}

type Client struct {
	models        *genai.Models
	analysisModel string
	imageModel    string
	logger        *slog.Logger
}

func New(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("gemini api key is empty")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	cfg := &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
			APIVersion: strings.TrimSpace(opts.APIVersion),
		},
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &Client{
		models:        client.Models,
		analysisModel: fallback(opts.AnalysisModel, DefaultAnalysisModel),
		imageModel:    fallback(opts.ImageModel, DefaultImageModel),
		logger:        logger,
	}, nil
}

// Analyze asks the analysis model for a structured critique of img.
func (c *Client) Analyze(ctx context.Context, img photo.Image) (photo.Analysis, error) {
	if img.IsZero() {
		return photo.Analysis{}, photo.ErrEmpty
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(img.Data, img.MimeType),
			genai.NewPartFromText(critiqueInstruction),
		}, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   analysisSchema(),
	}

	start := time.Now()
	resp, err := c.models.GenerateContent(ctx, c.analysisModel, contents, config)
	if err != nil {
		return photo.Analysis{}, fmt.Errorf("gemini analyze: %w", err)
	}
	c.logger.Debug("gemini analyze done", "model", c.analysisModel, "dur_ms", time.Since(start).Milliseconds())

	return parseAnalysis(resp.Text())
}

// Enhance sends img with the composed instruction to the image model and
// returns the re-rendered photo.
func (c *Client) Enhance(ctx context.Context, img photo.Image, instruction, aspectRatio string) (photo.Image, error) {
	if img.IsZero() {
		return photo.Image{}, photo.ErrEmpty
	}

	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
	}
	if ar := strings.TrimSpace(aspectRatio); ar != "" {
		config.ImageConfig = &genai.ImageConfig{AspectRatio: ar}
	}

	start := time.Now()
	out, text, err := c.generateImage(ctx, img, instruction, config)
	if err != nil && config.ImageConfig != nil && isUnknownFieldError(err, "imageConfig") {
		c.logger.Warn("gemini rejected imageConfig, retrying without aspect ratio", "model", c.imageModel)
		config.ImageConfig = nil
		out, text, err = c.generateImage(ctx, img, instruction, config)
	}
	if err != nil {
		return photo.Image{}, err
	}

	if out.IsZero() {
		c.logger.Info("gemini returned no image, retrying", "model", c.imageModel, "text", truncate(text, 200))
		out, text, err = c.generateImage(ctx, img, strings.TrimSpace(instruction)+imageOnlySuffix, config)
		if err != nil {
			return photo.Image{}, err
		}
	}
	if out.IsZero() {
		return photo.Image{}, fmt.Errorf("%w (text: %s)", ErrNoImage, truncate(text, 200))
	}

	c.logger.Debug("gemini enhance done",
		"model", c.imageModel,
		"in_bytes", len(img.Data),
		"out_bytes", len(out.Data),
		"dur_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

func (c *Client) generateImage(ctx context.Context, img photo.Image, instruction string, config *genai.GenerateContentConfig) (photo.Image, string, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(img.Data, img.MimeType),
			genai.NewPartFromText(instruction),
		}, genai.RoleUser),
	}

	resp, err := c.models.GenerateContent(ctx, c.imageModel, contents, config)
	if err != nil {
		return photo.Image{}, "", fmt.Errorf("gemini enhance: %w", err)
	}

	out, text := extractImage(resp)
	return out, text, nil
}

func extractImage(resp *genai.GenerateContentResponse) (photo.Image, string) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return photo.Image{}, ""
	}

	var text strings.Builder
	var out photo.Image
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil {
			continue
		}
		if p.Text != "" {
			text.WriteString(p.Text)
		}
		if out.IsZero() && p.InlineData != nil && len(p.InlineData.Data) > 0 {
			out = photo.Image{Data: p.InlineData.Data, MimeType: p.InlineData.MIMEType}
			if out.MimeType == "" {
				out.MimeType = "image/png"
			}
		}
	}
	return out, text.String()
}

func analysisSchema() *genai.Schema {
	str := &genai.Schema{Type: genai.TypeString}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"lighting":    str,
			"composition": str,
			"optics":      str,
			"color":       str,
			"suggestions": {Type: genai.TypeArray, Items: str},
		},
		Required:         []string{"lighting", "composition", "optics", "color", "suggestions"},
		PropertyOrdering: []string{"lighting", "composition", "optics", "color", "suggestions"},
	}
}

func parseAnalysis(text string) (photo.Analysis, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" {
		text = "{}"
	}

	var out photo.Analysis
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return photo.Analysis{}, fmt.Errorf("%w: %v", ErrAnalysisParse, err)
	}
	return out, nil
}

func isUnknownFieldError(err error, field string) bool {
	message := err.Error()
	return strings.Contains(message, "Unknown name") && strings.Contains(message, field)
}

func fallback(value, def string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return def
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
