package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"visionary-studio/internal/app"
	"visionary-studio/internal/edit"
	"visionary-studio/internal/photo"
	"visionary-studio/internal/session"
	"visionary-studio/internal/studio"
)

type engineFactory func(ctx context.Context, logger *slog.Logger) (studio.Engine, error)

type rootOptions struct {
	presetsFile string
	verbose     bool
	newEngine   engineFactory
}

func newRootCmd(newEngine engineFactory) *cobra.Command {
	opts := &rootOptions{newEngine: newEngine}

	cmd := &cobra.Command{
		Use:           "studio",
		Short:         "Analyze and retouch photos with Gemini",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVar(&opts.presetsFile, "presets", os.Getenv("PRESETS_FILE"), "YAML file with edit presets (default: built-in presets)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log requests to stderr")

	cmd.AddCommand(
		newAnalyzeCmd(opts),
		newEnhanceCmd(opts),
		newPromptCmd(opts),
		newBatchCmd(opts),
		newPresetsCmd(opts),
	)
	return cmd
}

func (o *rootOptions) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func (o *rootOptions) presets() (*edit.PresetBook, error) {
	return app.LoadPresets(o.presetsFile)
}

// service builds a studio with a private in-memory session store.
func (o *rootOptions) service(cmd *cobra.Command) (*studio.Service, error) {
	presets, err := o.presets()
	if err != nil {
		return nil, err
	}
	logger := o.logger(cmd)
	engine, err := o.newEngine(cmd.Context(), logger)
	if err != nil {
		return nil, err
	}
	return studio.New(studio.Options{
		Engine:   engine,
		Sessions: session.NewStore(session.Options{}),
		Presets:  presets,
		Logger:   logger,
	}), nil
}

// editFlags are the panel parameters shared by enhance, prompt and batch.
type editFlags struct {
	params edit.Params
	preset string
	prompt string
}

func addEditFlags(cmd *cobra.Command) *editFlags {
	f := &editFlags{params: edit.DefaultParams()}
	fs := cmd.Flags()
	fs.IntVar(&f.params.Tone, "tone", 0, "Colour temperature, -100 (cool) to 100 (warm)")
	fs.IntVar(&f.params.Sharpness, "sharpness", 0, "Sharpening, 0 to 100")
	fs.IntVar(&f.params.Bokeh, "bokeh", 0, "Background blur, 0 to 100")
	fs.IntVar(&f.params.Zoom, "zoom", 0, "Lens, -50 (wide) to 50 (telephoto)")
	fs.StringVar(&f.params.CameraView, "camera", edit.CameraDefault, "Camera view: "+optionKeys(edit.CameraViews()))
	fs.StringVarP(&f.params.AspectRatio, "aspect-ratio", "a", edit.AspectDefault, "Aspect ratio: "+optionKeys(edit.AspectRatios()))
	fs.BoolVar(&f.params.AutoColor, "auto-color", true, "Automatic colour correction")
	fs.BoolVar(&f.params.CinematicGrade, "cinematic", false, "Cinematic colour grade")
	fs.StringVar(&f.preset, "preset", "", "Start from a named preset (see: studio presets)")
	fs.StringVarP(&f.prompt, "prompt", "p", "", "Custom edit instruction")
	return f
}

// request applies the preset first, then any flag the user set explicitly.
func (f *editFlags) request(cmd *cobra.Command, presets *edit.PresetBook) (studio.EnhanceRequest, error) {
	params := edit.DefaultParams()
	prompt := strings.TrimSpace(f.prompt)

	if f.preset != "" {
		pr, ok := presets.Get(f.preset)
		if !ok {
			return studio.EnhanceRequest{}, fmt.Errorf("%w: %s", studio.ErrUnknownPreset, f.preset)
		}
		params = params.Apply(pr)
		if prompt == "" {
			prompt = strings.TrimSpace(pr.Prompt)
		}
	}

	fs := cmd.Flags()
	if fs.Changed("tone") {
		params.Tone = f.params.Tone
	}
	if fs.Changed("sharpness") {
		params.Sharpness = f.params.Sharpness
	}
	if fs.Changed("bokeh") {
		params.Bokeh = f.params.Bokeh
	}
	if fs.Changed("zoom") {
		params.Zoom = f.params.Zoom
	}
	if fs.Changed("camera") {
		params.CameraView = f.params.CameraView
	}
	if fs.Changed("aspect-ratio") {
		params.AspectRatio = f.params.AspectRatio
	}
	if fs.Changed("auto-color") {
		params.AutoColor = f.params.AutoColor
	}
	if fs.Changed("cinematic") {
		params.CinematicGrade = f.params.CinematicGrade
	}

	return studio.EnhanceRequest{Params: params, Prompt: prompt, Strict: true}, nil
}

func readPhoto(path string) (photo.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return photo.Image{}, err
	}
	defer f.Close()

	img, err := photo.Read(f, "", 0)
	if err != nil {
		return photo.Image{}, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// outputPath places the result next to the input unless told otherwise.
func outputPath(input, output, dir string, img photo.Image) string {
	if output != "" {
		return output
	}
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	if dir == "" {
		dir = filepath.Dir(input)
	}
	return filepath.Join(dir, base+"-edited"+img.Extension())
}

// writePhoto refuses to replace an existing file unless force is set.
// O_EXCL makes the existence check and the create one step for batch workers.
func writePhoto(path string, img photo.Image, force bool) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	flag := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flag = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	f, err := os.OpenFile(path, flag, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("output file already exists: %s (use --force to overwrite)", path)
	}
	if err != nil {
		return err
	}
	if _, err := f.Write(img.Data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func optionKeys(opts []edit.NamedOption) string {
	keys := make([]string, 0, len(opts))
	for _, o := range opts {
		keys = append(keys, o.Key)
	}
	return strings.Join(keys, ", ")
}
