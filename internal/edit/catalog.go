package edit

type NamedOption struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

type Range struct {
	Min     int `json:"min"`
	Max     int `json:"max"`
	Step    int `json:"step"`
	Default int `json:"default"`
}

var aspectRatios = []NamedOption{
	{Key: "1:1", Name: "Square"},
	{Key: "4:3", Name: "Classic"},
	{Key: "16:9", Name: "Widescreen"},
	{Key: "3:4", Name: "Portrait"},
	{Key: "9:16", Name: "Story"},
}

func CameraViews() []NamedOption {
	order := []string{
		CameraDefault,
		"portrait",
		"close_up",
		"mid_shot",
		"left_side",
		"right_side",
		"top_view",
		"full_body",
	}

	out := make([]NamedOption, 0, len(order))
	out = append(out, NamedOption{Key: CameraDefault, Name: "Original"})
	for _, key := range order[1:] {
		if p, ok := perspectives[key]; ok {
			out = append(out, NamedOption{Key: key, Name: p.Name})
		}
	}
	return out
}

func AspectRatios() []NamedOption {
	return append([]NamedOption(nil), aspectRatios...)
}

func IsAspectRatio(value string) bool {
	for _, ar := range aspectRatios {
		if ar.Key == value {
			return true
		}
	}
	return false
}

func CameraViewName(key string) string {
	if p, ok := perspectives[normalizeKey(key)]; ok {
		return p.Name
	}
	return "Original"
}

// Ranges describes the slider controls of the adjustment panel.
func Ranges() map[string]Range {
	return map[string]Range{
		"tone":      {Min: MinTone, Max: MaxTone, Step: 1},
		"sharpness": {Min: MinSharpness, Max: MaxSharpness, Step: 1},
		"bokeh":     {Min: MinBokeh, Max: MaxBokeh, Step: 1},
		"zoom":      {Min: MinZoom, Max: MaxZoom, Step: ZoomStep},
	}
}
