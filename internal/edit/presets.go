package edit

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var defaultPresetsYAML []byte

// Preset is a named set of panel overrides. Unset fields keep the current value.
type Preset struct {
	Name        string `json:"name" yaml:"name"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description,omitempty" yaml:"description"`
	Prompt      string `json:"prompt,omitempty" yaml:"prompt"`

	Tone           *int    `json:"tone,omitempty" yaml:"tone"`
	Sharpness      *int    `json:"sharpness,omitempty" yaml:"sharpness"`
	Bokeh          *int    `json:"bokeh,omitempty" yaml:"bokeh"`
	Zoom           *int    `json:"zoom,omitempty" yaml:"zoom"`
	CameraView     *string `json:"camera_view,omitempty" yaml:"camera_view"`
	AspectRatio    *string `json:"aspect_ratio,omitempty" yaml:"aspect_ratio"`
	AutoColor      *bool   `json:"auto_color,omitempty" yaml:"auto_color"`
	CinematicGrade *bool   `json:"cinematic_grade,omitempty" yaml:"cinematic_grade"`
}

func (p Params) Apply(pr Preset) Params {
	if pr.Tone != nil {
		p.Tone = *pr.Tone
	}
	if pr.Sharpness != nil {
		p.Sharpness = *pr.Sharpness
	}
	if pr.Bokeh != nil {
		p.Bokeh = *pr.Bokeh
	}
	if pr.Zoom != nil {
		p.Zoom = *pr.Zoom
	}
	if pr.CameraView != nil {
		p.CameraView = *pr.CameraView
	}
	if pr.AspectRatio != nil {
		p.AspectRatio = *pr.AspectRatio
	}
	if pr.AutoColor != nil {
		p.AutoColor = *pr.AutoColor
	}
	if pr.CinematicGrade != nil {
		p.CinematicGrade = *pr.CinematicGrade
	}
	return p
}

type PresetBook struct {
	list   []Preset
	byName map[string]Preset
}

// LoadPresets reads presets from path, or the built-in set when path is empty.
func LoadPresets(path string) (*PresetBook, error) {
	data := defaultPresetsYAML
	if path = strings.TrimSpace(path); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read presets: %w", err)
		}
		data = raw
	}
	return ParsePresets(data)
}

// DefaultPresets returns the built-in presets. They are validated by tests.
func DefaultPresets() *PresetBook {
	book, err := ParsePresets(defaultPresetsYAML)
	if err != nil {
		panic(err)
	}
	return book
}

func ParsePresets(data []byte) (*PresetBook, error) {
	var doc struct {
		Presets []Preset `yaml:"presets"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode presets: %w", err)
	}

	book := &PresetBook{byName: make(map[string]Preset, len(doc.Presets))}
	for i, pr := range doc.Presets {
		pr.Name = normalizeKey(pr.Name)
		if pr.Name == "" {
			return nil, fmt.Errorf("preset #%d: name is required", i+1)
		}
		if _, dup := book.byName[pr.Name]; dup {
			return nil, fmt.Errorf("preset %q: duplicate name", pr.Name)
		}
		if err := DefaultParams().Apply(pr).Validate(); err != nil {
			return nil, fmt.Errorf("preset %q: %w", pr.Name, err)
		}
		if strings.TrimSpace(pr.Title) == "" {
			pr.Title = pr.Name
		}
		book.list = append(book.list, pr)
		book.byName[pr.Name] = pr
	}
	if len(book.list) == 0 {
		return nil, errors.New("no presets defined")
	}
	return book, nil
}

func (b *PresetBook) List() []Preset {
	if b == nil {
		return nil
	}
	return append([]Preset(nil), b.list...)
}

func (b *PresetBook) Get(name string) (Preset, bool) {
	if b == nil {
		return Preset{}, false
	}
	pr, ok := b.byName[normalizeKey(name)]
	return pr, ok
}
