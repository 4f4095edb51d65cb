package edit

import (
	"fmt"
	"strings"
)

const (
	MinTone      = -100
	MaxTone      = 100
	MinSharpness = 0
	MaxSharpness = 100
	MinBokeh     = 0
	MaxBokeh     = 100
	MinZoom      = -50
	MaxZoom      = 50
	ZoomStep     = 10
)

const (
	CameraDefault = "default"
	AspectDefault = "1:1"
)

// Params is the state of the adjustment panel.
type Params struct {
	Tone           int    `json:"tone" yaml:"tone"`
	Sharpness      int    `json:"sharpness" yaml:"sharpness"`
	Bokeh          int    `json:"bokeh" yaml:"bokeh"`
	Zoom           int    `json:"zoom" yaml:"zoom"`
	CameraView     string `json:"camera_view" yaml:"camera_view"`
	AspectRatio    string `json:"aspect_ratio" yaml:"aspect_ratio"`
	AutoColor      bool   `json:"auto_color" yaml:"auto_color"`
	CinematicGrade bool   `json:"cinematic_grade" yaml:"cinematic_grade"`
}

func DefaultParams() Params {
	return Params{
		CameraView:  CameraDefault,
		AspectRatio: AspectDefault,
		AutoColor:   true,
	}
}

// Normalize clamps numeric fields and replaces unknown keys with defaults.
func (p Params) Normalize() Params {
	p.Tone = clamp(p.Tone, MinTone, MaxTone)
	p.Sharpness = clamp(p.Sharpness, MinSharpness, MaxSharpness)
	p.Bokeh = clamp(p.Bokeh, MinBokeh, MaxBokeh)
	p.Zoom = clamp(p.Zoom, MinZoom, MaxZoom)

	p.CameraView = normalizeKey(p.CameraView)
	if _, ok := perspectives[p.CameraView]; !ok && p.CameraView != CameraDefault {
		p.CameraView = CameraDefault
	}
	if p.CameraView == "" {
		p.CameraView = CameraDefault
	}

	p.AspectRatio = strings.TrimSpace(p.AspectRatio)
	if !IsAspectRatio(p.AspectRatio) {
		p.AspectRatio = AspectDefault
	}
	return p
}

// ValidationError lists every field that Normalize would have changed.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	var parts []string
	for _, key := range []string{"tone", "sharpness", "bokeh", "zoom", "camera_view", "aspect_ratio"} {
		if msg, ok := e.Fields[key]; ok {
			parts = append(parts, key+": "+msg)
		}
	}
	return "invalid parameters: " + strings.Join(parts, "; ")
}

func (p Params) Validate() error {
	fields := make(map[string]string)

	checkRange := func(key string, v, lo, hi int) {
		if v < lo || v > hi {
			fields[key] = fmt.Sprintf("must be between %d and %d", lo, hi)
		}
	}
	checkRange("tone", p.Tone, MinTone, MaxTone)
	checkRange("sharpness", p.Sharpness, MinSharpness, MaxSharpness)
	checkRange("bokeh", p.Bokeh, MinBokeh, MaxBokeh)
	checkRange("zoom", p.Zoom, MinZoom, MaxZoom)

	if view := normalizeKey(p.CameraView); view != "" && view != CameraDefault {
		if _, ok := perspectives[view]; !ok {
			fields["camera_view"] = fmt.Sprintf("unknown camera view %q", p.CameraView)
		}
	}
	if ar := strings.TrimSpace(p.AspectRatio); ar != "" && !IsAspectRatio(ar) {
		fields["aspect_ratio"] = fmt.Sprintf("unsupported aspect ratio %q", p.AspectRatio)
	}

	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

// AdjustZoom moves zoom by delta, staying within the lens range.
func (p *Params) AdjustZoom(delta int) {
	p.Zoom = clamp(p.Zoom+delta, MinZoom, MaxZoom)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func normalizeKey(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	return strings.ReplaceAll(value, "-", "_")
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
