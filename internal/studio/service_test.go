package studio

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visionary-studio/internal/edit"
	"visionary-studio/internal/photo"
	"visionary-studio/internal/session"
)

type fakeEngine struct {
	mu sync.Mutex

	analysis   photo.Analysis
	analyzeErr error
	result     photo.Image
	enhanceErr error

	// block, when set, holds Enhance until closed.
	block   chan struct{}
	entered chan struct{}

	gotImages       []photo.Image
	gotInstructions []string
	gotAspects      []string
}

func (f *fakeEngine) Analyze(_ context.Context, img photo.Image) (photo.Analysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotImages = append(f.gotImages, img)
	return f.analysis, f.analyzeErr
}

func (f *fakeEngine) Enhance(_ context.Context, img photo.Image, instruction, aspect string) (photo.Image, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotImages = append(f.gotImages, img)
	f.gotInstructions = append(f.gotInstructions, instruction)
	f.gotAspects = append(f.gotAspects, aspect)
	return f.result, f.enhanceErr
}

var original = photo.Image{Data: []byte("original"), MimeType: "image/jpeg"}

func newService(t *testing.T, engine *fakeEngine) (*Service, string) {
	t.Helper()
	svc := New(Options{Engine: engine, Sessions: session.NewStore(session.Options{})})
	return svc, svc.Sessions().Create().ID
}

func TestUploadRunsAnalysis(t *testing.T) {
	engine := &fakeEngine{analysis: photo.Analysis{Lighting: "harsh", Suggestions: []string{"soften highlights"}}}
	svc, id := newService(t, engine)

	st, err := svc.Upload(context.Background(), id, original)
	require.NoError(t, err)

	require.NotNil(t, st.Original)
	require.NotNil(t, st.Analysis)
	assert.Equal(t, "harsh", st.Analysis.Lighting)
	assert.False(t, st.Analyzing)
	assert.Empty(t, st.Error)
}

func TestUploadAnalysisFailureKeepsPhoto(t *testing.T) {
	engine := &fakeEngine{analyzeErr: errors.New("quota")}
	svc, id := newService(t, engine)

	st, err := svc.Upload(context.Background(), id, original)
	require.Error(t, err)
	assert.Equal(t, MsgAnalyzeFailed, st.Error)
	assert.NotNil(t, st.Original)
	assert.Nil(t, st.Analysis)
	assert.False(t, st.Analyzing)
}

func TestUploadClearsPreviousResult(t *testing.T) {
	engine := &fakeEngine{result: photo.Image{Data: []byte("edited"), MimeType: "image/png"}}
	svc, id := newService(t, engine)
	ctx := context.Background()

	_, err := svc.Upload(ctx, id, original)
	require.NoError(t, err)
	st, err := svc.Enhance(ctx, id, EnhanceRequest{Params: edit.DefaultParams()})
	require.NoError(t, err)
	require.NotNil(t, st.Edited)

	st, err = svc.Upload(ctx, id, photo.Image{Data: []byte("second"), MimeType: "image/png"})
	require.NoError(t, err)
	assert.Nil(t, st.Edited)
	assert.Equal(t, []byte("second"), st.Original.Data)
}

func TestEnhanceUsesOriginalAndAnalysis(t *testing.T) {
	engine := &fakeEngine{
		analysis: photo.Analysis{Suggestions: []string{"fix tilt"}},
		result:   photo.Image{Data: []byte("edited"), MimeType: "image/png"},
	}
	svc, id := newService(t, engine)
	ctx := context.Background()

	_, err := svc.Upload(ctx, id, original)
	require.NoError(t, err)

	params := edit.DefaultParams()
	params.Tone = 40
	params.AspectRatio = "16:9"
	for i := 0; i < 2; i++ {
		st, err := svc.Enhance(ctx, id, EnhanceRequest{Params: params, Prompt: "brighter sky"})
		require.NoError(t, err)
		assert.Equal(t, []byte("edited"), st.Edited.Data)
		assert.Equal(t, params, st.Params)
		assert.Equal(t, "brighter sky", st.Prompt)
	}

	for _, img := range engine.gotImages {
		assert.Equal(t, original.Data, img.Data, "edits always start from the original")
	}
	require.Len(t, engine.gotInstructions, 2)
	assert.Contains(t, engine.gotInstructions[0], "Address these specific flaws: fix tilt.")
	assert.Contains(t, engine.gotInstructions[0], "warm, golden")
	assert.Contains(t, engine.gotInstructions[0], "Task: brighter sky")
	assert.Equal(t, []string{"16:9", "16:9"}, engine.gotAspects)
}

func TestEnhanceFailure(t *testing.T) {
	engine := &fakeEngine{enhanceErr: errors.New("no image")}
	svc, id := newService(t, engine)
	ctx := context.Background()

	_, err := svc.Upload(ctx, id, original)
	require.NoError(t, err)

	st, err := svc.Enhance(ctx, id, EnhanceRequest{Params: edit.DefaultParams()})
	require.Error(t, err)
	assert.Equal(t, MsgEnhanceFailed, st.Error)
	assert.False(t, st.Processing)
	assert.Nil(t, st.Edited)
}

func TestEnhanceWithoutPhoto(t *testing.T) {
	svc, id := newService(t, &fakeEngine{})
	_, err := svc.Enhance(context.Background(), id, EnhanceRequest{})
	assert.ErrorIs(t, err, ErrNoPhoto)

	_, err = svc.Analyze(context.Background(), id)
	assert.ErrorIs(t, err, ErrNoPhoto)
}

func TestSingleInFlight(t *testing.T) {
	engine := &fakeEngine{
		result:  photo.Image{Data: []byte("edited"), MimeType: "image/png"},
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	svc, id := newService(t, engine)
	ctx := context.Background()

	_, err := svc.Upload(ctx, id, original)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Enhance(ctx, id, EnhanceRequest{Params: edit.DefaultParams()})
		done <- err
	}()
	<-engine.entered

	_, err = svc.Enhance(ctx, id, EnhanceRequest{Params: edit.DefaultParams()})
	assert.ErrorIs(t, err, ErrBusy)
	_, err = svc.Upload(ctx, id, original)
	assert.ErrorIs(t, err, ErrBusy)
	_, err = svc.Reset(id)
	assert.ErrorIs(t, err, ErrBusy)

	close(engine.block)
	require.NoError(t, <-done)

	st, err := svc.Reset(id)
	require.NoError(t, err)
	assert.Nil(t, st.Original)
}

func TestPresetAndStrict(t *testing.T) {
	engine := &fakeEngine{result: photo.Image{Data: []byte("edited"), MimeType: "image/png"}}
	svc, id := newService(t, engine)
	ctx := context.Background()
	_, err := svc.Upload(ctx, id, original)
	require.NoError(t, err)

	st, err := svc.Enhance(ctx, id, EnhanceRequest{Params: edit.DefaultParams(), Preset: "golden_hour"})
	require.NoError(t, err)
	assert.Equal(t, 45, st.Params.Tone)
	assert.Contains(t, engine.gotInstructions[0], "golden hour")

	_, err = svc.Enhance(ctx, id, EnhanceRequest{Preset: "nope"})
	assert.ErrorIs(t, err, ErrUnknownPreset)

	bad := edit.DefaultParams()
	bad.Sharpness = 500
	_, err = svc.Enhance(ctx, id, EnhanceRequest{Params: bad, Strict: true})
	var verr *edit.ValidationError
	assert.ErrorAs(t, err, &verr)

	st, err = svc.Enhance(ctx, id, EnhanceRequest{Params: bad})
	require.NoError(t, err)
	assert.Equal(t, edit.MaxSharpness, st.Params.Sharpness)
}

func TestExplicitParamsWinOverAppliedPreset(t *testing.T) {
	engine := &fakeEngine{result: photo.Image{Data: []byte("edited"), MimeType: "image/png"}}
	svc, id := newService(t, engine)
	ctx := context.Background()
	_, err := svc.Upload(ctx, id, original)
	require.NoError(t, err)

	st, err := svc.Enhance(ctx, id, EnhanceRequest{Params: edit.DefaultParams(), Preset: "golden_hour"})
	require.NoError(t, err)
	require.Equal(t, 45, st.Params.Tone)
	assert.Equal(t, "golden_hour", st.Preset)

	tweaked := st.Params
	tweaked.Tone = -30
	tweaked.Bokeh = 0
	req := EnhanceRequest{Params: tweaked, Preset: "golden_hour"}

	text, err := svc.Instruction(id, req)
	require.NoError(t, err)
	assert.NotContains(t, text, "level: 45/100")

	st, err = svc.Enhance(ctx, id, req)
	require.NoError(t, err)
	assert.Equal(t, -30, st.Params.Tone)
	assert.Equal(t, 0, st.Params.Bokeh)

	require.Len(t, engine.gotInstructions, 2)
	assert.NotContains(t, engine.gotInstructions[1], "level: 45/100")
	assert.NotContains(t, engine.gotInstructions[1], "Bokeh intensity: 30/100")
	assert.Contains(t, engine.gotInstructions[1], "golden hour", "the preset prompt still fills an empty prompt")

	// Picking another preset applies it again.
	st, err = svc.Enhance(ctx, id, EnhanceRequest{Params: st.Params})
	require.NoError(t, err)
	assert.Empty(t, st.Preset)
	st, err = svc.Enhance(ctx, id, EnhanceRequest{Params: st.Params, Preset: "golden_hour"})
	require.NoError(t, err)
	assert.Equal(t, 45, st.Params.Tone)
}

func TestResetWaitsForInFlightCall(t *testing.T) {
	engine := &fakeEngine{
		result:  photo.Image{Data: []byte("edited"), MimeType: "image/png"},
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	svc, id := newService(t, engine)
	ctx := context.Background()
	_, err := svc.Upload(ctx, id, original)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Enhance(ctx, id, EnhanceRequest{Params: edit.DefaultParams()})
		done <- err
	}()
	<-engine.entered

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Reset(id)
			assert.ErrorIs(t, err, ErrBusy)
		}()
	}
	wg.Wait()

	close(engine.block)
	require.NoError(t, <-done)

	st, ok := svc.Sessions().Get(id)
	require.True(t, ok)
	require.NotNil(t, st.Original, "a refused reset never clears the photo under a running call")
	assert.NotNil(t, st.Edited)

	_, err = svc.Reset("missing")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestInstructionPreview(t *testing.T) {
	engine := &fakeEngine{analysis: photo.Analysis{Suggestions: []string{"crop tighter"}}}
	svc, id := newService(t, engine)

	text, err := svc.Instruction(id, EnhanceRequest{Params: edit.DefaultParams()})
	require.NoError(t, err)
	assert.NotContains(t, text, "crop tighter")

	_, err = svc.Upload(context.Background(), id, original)
	require.NoError(t, err)
	text, err = svc.Instruction(id, EnhanceRequest{Params: edit.DefaultParams(), Prompt: "go"})
	require.NoError(t, err)
	assert.Contains(t, text, "crop tighter")
	assert.Contains(t, text, "Task: go")
	assert.Empty(t, engine.gotInstructions, "preview never calls the service")
}

func TestSetParams(t *testing.T) {
	svc, id := newService(t, &fakeEngine{})
	st, err := svc.SetParams(id, func(p *edit.Params) { p.Bokeh = 300 })
	require.NoError(t, err)
	assert.Equal(t, edit.MaxBokeh, st.Params.Bokeh)
}
