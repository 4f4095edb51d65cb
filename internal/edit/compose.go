package edit

import (
	"fmt"
	"strings"

	"visionary-studio/internal/photo"
)

// DefaultTask is used when the user gave no free-text instruction.
const DefaultTask = "Enhance this photo to professional standards: fix lighting, sharpen focus, balance colors, and optimize composition."

const studioBase = "You are a professional AI photography studio. " +
	"Re-render this scene as if it were shot by a professional using a high-end DSLR with premium optics. " +
	"Maintain the core subject and environment identity. "

const (
	autoColorLine = "Perform professional auto-color correction: optimize white balance for natural tones and dynamic range. "
	cinematicLine = "Apply a high-end professional cinematic color grade. " +
		"Use sophisticated LUT-style processing with deep blacks, balanced highlights, and a rich, cohesive color palette " +
		"similar to 35mm film or high-end Hollywood cinematography. "
	bokehLine = "Simulate a fast prime lens (e.g., f/1.4). Apply a shallow depth of field with artful bokeh. " +
		"The background should have soft, circular out-of-focus highlights and smooth blur transitions. "
)

// Tone only kicks in outside a small neutral band.
const toneThreshold = 10

type Perspective struct {
	Name        string
	Instruction string
}

var perspectives = map[string]Perspective{
	"portrait": {
		Name:        "Portrait",
		Instruction: "Re-render as a classic professional portrait with shallow depth of field (bokeh background).",
	},
	"close_up": {
		Name:        "Close Up",
		Instruction: "Change perspective to a front full face close-up, focusing intensely on the subject's facial details and eyes.",
	},
	"mid_shot": {
		Name:        "Mid Shot",
		Instruction: "Re-render as a professional mid-shot (from waist up), balancing the subject and the immediate environment.",
	},
	"left_side": {
		Name:        "Profile L",
		Instruction: "Virtually move the camera to the left side to capture a left-profile view of the subject.",
	},
	"right_side": {
		Name:        "Profile R",
		Instruction: "Virtually move the camera to the right side to capture a right-profile view of the subject.",
	},
	"top_view": {
		Name:        "Top View",
		Instruction: "Change the perspective to a dramatic top-down birds-eye view looking straight down at the scene.",
	},
	"full_body": {
		Name:        "Full Body",
		Instruction: "Re-render as a front full-body shot, showing the subject from head to toe.",
	},
}

// Compose turns the panel state, the optional critique and the optional
// free-text prompt into the instruction sent with the photo.
func Compose(p Params, analysis *photo.Analysis, userPrompt string) string {
	p = p.Normalize()

	var b strings.Builder
	b.Grow(1024)
	b.WriteString(studioBase)

	if analysis != nil && analysis.HasSuggestions() {
		b.WriteString("Address these specific flaws: ")
		b.WriteString(strings.Join(nonEmpty(analysis.Suggestions), ", "))
		b.WriteString(". ")
	}

	if p.AutoColor {
		b.WriteString(autoColorLine)
	}
	if p.CinematicGrade {
		b.WriteString(cinematicLine)
	}

	switch {
	case p.Tone > toneThreshold:
		b.WriteString(fmt.Sprintf("Apply a warm, golden color temperature (level: %d/100). ", p.Tone))
	case p.Tone < -toneThreshold:
		b.WriteString(fmt.Sprintf("Apply a cool, blue cinematic color temperature (level: %d/100). ", abs(p.Tone)))
	}

	if p.Sharpness > 0 {
		b.WriteString(fmt.Sprintf("Apply optical sharpening and micro-contrast enhancement (Intensity: %d/100). ", p.Sharpness))
	}

	if p.Bokeh > 0 {
		b.WriteString(bokehLine)
		b.WriteString(fmt.Sprintf("Bokeh intensity: %d/100. ", p.Bokeh))
	}

	switch {
	case p.Zoom > 0:
		b.WriteString(fmt.Sprintf("Simulate a telephoto lens zoom. Crop in closer on the subject and compress the background (Zoom Intensity: %d/%d). ", p.Zoom, MaxZoom))
	case p.Zoom < 0:
		b.WriteString(fmt.Sprintf("Simulate a wide-angle lens. Zoom out to show more of the surrounding environment and expand the field of view (Zoom Out Intensity: %d/%d). ", abs(p.Zoom), MaxZoom))
	}

	if view, ok := perspectives[p.CameraView]; ok {
		b.WriteString(view.Instruction)
	}

	task := strings.TrimSpace(userPrompt)
	if task == "" {
		task = DefaultTask
	}

	// Every clause keeps its trailing space, so the context is sent exactly as built.
	return b.String() + "\n\nTask: " + task
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
