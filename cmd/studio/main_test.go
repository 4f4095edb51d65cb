package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visionary-studio/internal/photo"
	"visionary-studio/internal/studio"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type fakeEngine struct {
	mu           sync.Mutex
	instructions []string
	aspects      []string
	failOn       string
}

func (f *fakeEngine) Analyze(context.Context, photo.Image) (photo.Analysis, error) {
	return photo.Analysis{Lighting: "backlit", Composition: "tight", Optics: "fine", Color: "warm", Suggestions: []string{"lift the shadows"}}, nil
}

func (f *fakeEngine) Enhance(_ context.Context, img photo.Image, instruction, aspect string) (photo.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != "" && string(img.Data) == f.failOn {
		return photo.Image{}, errors.New("model refused")
	}
	f.instructions = append(f.instructions, instruction)
	f.aspects = append(f.aspects, aspect)
	return photo.Image{Data: append([]byte(nil), pngHeader...), MimeType: "image/png"}, nil
}

func run(t *testing.T, engine *fakeEngine, args ...string) (string, error) {
	t.Helper()
	factory := func(context.Context, *slog.Logger) (studio.Engine, error) { return engine, nil }
	cmd := newRootCmd(factory)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeInput(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestPromptCommand(t *testing.T) {
	out, err := run(t, &fakeEngine{}, "prompt", "--tone", "-40", "--zoom", "20", "-p", "brighten the face")
	require.NoError(t, err)
	assert.Contains(t, out, "level: 40/100")
	assert.Contains(t, out, "Zoom Intensity: 20/50")
	assert.Contains(t, out, "Task: brighten the face")

	_, err = run(t, &fakeEngine{}, "prompt", "--bokeh", "250")
	assert.Error(t, err)

	out, err = run(t, &fakeEngine{}, "prompt", "--preset", "golden_hour", "--tone", "0")
	require.NoError(t, err)
	assert.NotContains(t, out, "warm, golden", "explicit flags override the preset")
	assert.Contains(t, out, "golden hour")
}

func TestPromptWithAnalysisFile(t *testing.T) {
	dir := t.TempDir()
	raw, err := json.Marshal(photo.Analysis{Suggestions: []string{"level the horizon"}})
	require.NoError(t, err)
	path := writeInput(t, dir, "analysis.json", raw)

	out, err := run(t, &fakeEngine{}, "prompt", "--analysis", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Address these specific flaws: level the horizon.")
}

func TestPresetsCommand(t *testing.T) {
	out, err := run(t, &fakeEngine{}, "presets")
	require.NoError(t, err)
	assert.Contains(t, out, "studio_portrait")
	assert.Contains(t, out, "golden_hour")
}

func TestAnalyzeCommand(t *testing.T) {
	input := writeInput(t, t.TempDir(), "photo.png", pngHeader)

	out, err := run(t, &fakeEngine{}, "analyze", input)
	require.NoError(t, err)
	assert.Contains(t, out, "backlit")
	assert.Contains(t, out, "lift the shadows")

	out, err = run(t, &fakeEngine{}, "analyze", "--json", input)
	require.NoError(t, err)
	var a photo.Analysis
	require.NoError(t, json.Unmarshal([]byte(out), &a))
	assert.Equal(t, "tight", a.Composition)
}

func TestEnhanceCommand(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, dir, "street.jpg", pngHeader)
	engine := &fakeEngine{}

	_, err := run(t, engine, "enhance", input, "--aspect-ratio", "16:9", "--cinematic")
	require.NoError(t, err)

	written, err := os.ReadFile(filepath.Join(dir, "street-edited.png"))
	require.NoError(t, err)
	assert.Equal(t, pngHeader, written)
	require.Len(t, engine.instructions, 1)
	assert.Contains(t, engine.instructions[0], "lift the shadows")
	assert.Equal(t, []string{"16:9"}, engine.aspects)

	_, err = run(t, engine, "enhance", input)
	assert.ErrorContains(t, err, "already exists")

	_, err = run(t, engine, "enhance", input, "--force", "--skip-analysis")
	require.NoError(t, err)
	require.Len(t, engine.instructions, 3)
	assert.NotContains(t, engine.instructions[2], "lift the shadows")

	_, err = run(t, engine, "enhance", input, "--preset", "missing", "--force")
	assert.ErrorIs(t, err, studio.ErrUnknownPreset)
}

func TestBatchCommand(t *testing.T) {
	in := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "results")
	a := writeInput(t, in, "a.jpg", pngHeader)
	b := writeInput(t, in, "b.jpg", append(append([]byte(nil), pngHeader...), 'b'))
	bad := writeInput(t, in, "notes.txt", []byte("plain text, not a photo"))

	engine := &fakeEngine{}
	out, err := run(t, engine, "batch", a, b, bad, "--out-dir", outDir, "-c", "2")
	require.Error(t, err, "one input is not an image")
	assert.Contains(t, out, "2 enhanced")

	for _, name := range []string{"a-edited.png", "b-edited.png"} {
		_, err := os.Stat(filepath.Join(outDir, name))
		assert.NoError(t, err, name)
	}
	assert.Len(t, engine.instructions, 2)
}

func TestBatchSameNameNeverOverwrites(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "a"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(root, "b"), 0o755))
	first := writeInput(t, filepath.Join(root, "a"), "x.jpg", pngHeader)
	second := writeInput(t, filepath.Join(root, "b"), "x.jpg", append(append([]byte(nil), pngHeader...), 'b'))
	outDir := filepath.Join(root, "results")

	engine := &fakeEngine{}
	out, err := run(t, engine, "batch", first, second, "--out-dir", outDir, "-c", "2")
	require.Error(t, err)
	assert.Contains(t, out, "1 enhanced")
	assert.Contains(t, out, "already exists")

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "x-edited.png", entries[0].Name())
	assert.Len(t, engine.instructions, 2)
}
