package edit

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	got := Params{
		Tone:        -300,
		Sharpness:   101,
		Bokeh:       -5,
		Zoom:        99,
		CameraView:  " Close-Up ",
		AspectRatio: "2:1",
	}.Normalize()

	want := Params{
		Tone:        MinTone,
		Sharpness:   MaxSharpness,
		Bokeh:       MinBokeh,
		Zoom:        MaxZoom,
		CameraView:  "close_up",
		AspectRatio: AspectDefault,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Normalize mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, DefaultParams().Validate())
	require.NoError(t, Params{}.Validate())

	err := Params{Tone: 101, Zoom: -51, CameraView: "drone", AspectRatio: "5:4"}.Validate()
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Fields, 4)
	assert.Contains(t, verr.Fields, "tone")
	assert.Contains(t, verr.Fields, "zoom")
	assert.Contains(t, verr.Fields, "camera_view")
	assert.Contains(t, verr.Fields, "aspect_ratio")
	assert.Contains(t, err.Error(), "tone: must be between -100 and 100")
}

func TestAdjustZoom(t *testing.T) {
	p := DefaultParams()
	for i := 0; i < 7; i++ {
		p.AdjustZoom(ZoomStep)
	}
	assert.Equal(t, MaxZoom, p.Zoom)

	for i := 0; i < 12; i++ {
		p.AdjustZoom(-ZoomStep)
	}
	assert.Equal(t, MinZoom, p.Zoom)
}

func TestCatalogs(t *testing.T) {
	views := CameraViews()
	require.Len(t, views, 8)
	assert.Equal(t, NamedOption{Key: CameraDefault, Name: "Original"}, views[0])
	assert.Equal(t, "full_body", views[len(views)-1].Key)

	keys := make([]string, 0)
	for _, ar := range AspectRatios() {
		keys = append(keys, ar.Key)
	}
	if diff := cmp.Diff([]string{"1:1", "4:3", "16:9", "3:4", "9:16"}, keys); diff != "" {
		t.Fatalf("aspect ratios (-want +got):\n%s", diff)
	}

	assert.Equal(t, "Top View", CameraViewName("top-view"))
	assert.Equal(t, "Original", CameraViewName("nope"))
	assert.Equal(t, ZoomStep, Ranges()["zoom"].Step)
}
