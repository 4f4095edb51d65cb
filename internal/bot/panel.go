package bot

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"visionary-studio/internal/edit"
	"visionary-studio/internal/photo"
	"visionary-studio/internal/session"
)

const (
	callbackPrefix = "vs"
	sliderStep     = 10

	menuMain    = "main"
	menuCamera  = "camera"
	menuAspect  = "aspect"
	menuPresets = "presets"
)

// panelState is the chat-side view of the parameter panel. The parameters
// themselves live in the studio session.
type panelState struct {
	MessageID      int
	Menu           string
	Preset         string
	AwaitingPrompt bool
}

type panels struct {
	mu sync.Mutex
	m  map[int64]panelState
}

func newPanels() *panels {
	return &panels{m: make(map[int64]panelState)}
}

func (p *panels) get(chatID int64) panelState {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.m[chatID]
	if !ok {
		st.Menu = menuMain
	}
	return st
}

func (p *panels) update(chatID int64, fn func(*panelState)) panelState {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.m[chatID]
	if !ok {
		st.Menu = menuMain
	}
	fn(&st)
	p.m[chatID] = st
	return st
}

func (p *panels) delete(chatID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.m, chatID)
}

func (p *panels) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}

func cb(parts ...string) string {
	return callbackPrefix + ":" + strings.Join(parts, ":")
}

func parseCallback(data string) (action, arg string, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(data), ":", 3)
	if len(parts) < 2 || parts[0] != callbackPrefix || parts[1] == "" {
		return "", "", false
	}
	if len(parts) == 3 {
		arg = parts[2]
	}
	return parts[1], arg, true
}

// applyAction applies a panel button to the parameters. It reports false for
// actions that do not touch parameters (apply, prompt, menus).
func applyAction(p edit.Params, action, arg string) (edit.Params, bool) {
	delta := func() int {
		d, err := strconv.Atoi(arg)
		if err != nil {
			return 0
		}
		return d
	}

	switch action {
	case "tone":
		p.Tone += delta()
	case "sharp":
		p.Sharpness += delta()
	case "bokeh":
		p.Bokeh += delta()
	case "zoom":
		p.AdjustZoom(delta())
	case "cam":
		p.CameraView = arg
	case "ar":
		p.AspectRatio = arg
	case "auto":
		p.AutoColor = !p.AutoColor
	case "cine":
		p.CinematicGrade = !p.CinematicGrade
	default:
		return p, false
	}
	return p.Normalize(), true
}

func panelText(st session.State, ui panelState) string {
	p := st.Params

	var b strings.Builder
	b.WriteString("🎛 Studio panel\n\n")
	b.WriteString(fmt.Sprintf("Tone: %s\n", toneLabel(p.Tone)))
	b.WriteString(fmt.Sprintf("Sharpness: %d/100\n", p.Sharpness))
	b.WriteString(fmt.Sprintf("Bokeh: %d/100\n", p.Bokeh))
	b.WriteString(fmt.Sprintf("Zoom: %+d\n", p.Zoom))
	b.WriteString(fmt.Sprintf("Camera view: %s\n", edit.CameraViewName(p.CameraView)))
	b.WriteString(fmt.Sprintf("Aspect ratio: %s\n", p.AspectRatio))
	b.WriteString(fmt.Sprintf("Auto colour: %s, Cinematic: %s\n", onOff(p.AutoColor), onOff(p.CinematicGrade)))
	if ui.Preset != "" {
		b.WriteString("Preset: " + ui.Preset + "\n")
	}

	switch {
	case st.Original == nil:
		b.WriteString("\n📷 Send a photo to start.")
	case st.Processing:
		b.WriteString("\n⏳ Processing…")
	case st.Analyzing:
		b.WriteString("\n🔍 Analyzing…")
	case ui.AwaitingPrompt:
		b.WriteString("\n✍️ Describe your edit in one message (/cancel to stop).")
	default:
		b.WriteString("\n✨ Tap Apply, or send a message to describe a custom edit.")
	}
	return b.String()
}

func panelKeyboard(st session.State, ui panelState, presets []edit.Preset) tgbotapi.InlineKeyboardMarkup {
	switch ui.Menu {
	case menuCamera:
		return optionKeyboard("cam", edit.CameraViews(), st.Params.CameraView)
	case menuAspect:
		return optionKeyboard("ar", edit.AspectRatios(), st.Params.AspectRatio)
	case menuPresets:
		opts := make([]edit.NamedOption, 0, len(presets))
		for _, pr := range presets {
			opts = append(opts, edit.NamedOption{Key: pr.Name, Name: pr.Title})
		}
		return optionKeyboard("preset", opts, ui.Preset)
	default:
		return mainKeyboard(st)
	}
}

func mainKeyboard(st session.State) tgbotapi.InlineKeyboardMarkup {
	p := st.Params
	rows := [][]tgbotapi.InlineKeyboardButton{
		sliderRow("Tone", "tone", toneLabel(p.Tone)),
		sliderRow("Sharp", "sharp", strconv.Itoa(p.Sharpness)),
		sliderRow("Bokeh", "bokeh", strconv.Itoa(p.Bokeh)),
		{
			tgbotapi.NewInlineKeyboardButtonData("🔍− Zoom out", cb("zoom", strconv.Itoa(-sliderStep))),
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%+d", p.Zoom), cb("noop")),
			tgbotapi.NewInlineKeyboardButtonData("🔍+ Zoom in", cb("zoom", strconv.Itoa(sliderStep))),
		},
		{
			tgbotapi.NewInlineKeyboardButtonData("📷 "+edit.CameraViewName(p.CameraView), cb("menu", menuCamera)),
			tgbotapi.NewInlineKeyboardButtonData("🖼 "+p.AspectRatio, cb("menu", menuAspect)),
		},
		{
			tgbotapi.NewInlineKeyboardButtonData("Auto colour: "+onOff(p.AutoColor), cb("auto")),
			tgbotapi.NewInlineKeyboardButtonData("Cinematic: "+onOff(p.CinematicGrade), cb("cine")),
		},
		{
			tgbotapi.NewInlineKeyboardButtonData("🎨 Presets", cb("menu", menuPresets)),
			tgbotapi.NewInlineKeyboardButtonData("📄 Prompt", cb("prompt")),
		},
	}

	if st.Original != nil {
		rows = append(rows,
			[]tgbotapi.InlineKeyboardButton{
				tgbotapi.NewInlineKeyboardButtonData("✨ Apply", cb("apply")),
				tgbotapi.NewInlineKeyboardButtonData("✍️ Custom edit", cb("custom")),
			},
			[]tgbotapi.InlineKeyboardButton{
				tgbotapi.NewInlineKeyboardButtonData("🔍 Analyze", cb("analyze")),
				tgbotapi.NewInlineKeyboardButtonData("♻️ Reset", cb("reset")),
			},
		)
	} else {
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("♻️ Reset", cb("reset")),
		})
	}

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func sliderRow(label, action, value string) []tgbotapi.InlineKeyboardButton {
	return []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("− "+label, cb(action, strconv.Itoa(-sliderStep))),
		tgbotapi.NewInlineKeyboardButtonData(value, cb("noop")),
		tgbotapi.NewInlineKeyboardButtonData("+ "+label, cb(action, strconv.Itoa(sliderStep))),
	}
}

func optionKeyboard(action string, options []edit.NamedOption, current string) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton

	for _, opt := range options {
		label := opt.Name
		if opt.Key == current {
			label = "✅ " + label
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, cb(action, opt.Key)))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("⬅ Back", cb("menu", menuMain)),
	})
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func analysisText(a photo.Analysis) string {
	var b strings.Builder
	b.WriteString("📸 Photographer's critique\n\n")
	b.WriteString("💡 Lighting: " + a.Lighting + "\n")
	b.WriteString("🖼 Composition: " + a.Composition + "\n")
	b.WriteString("🔭 Optics: " + a.Optics + "\n")
	b.WriteString("🎨 Color: " + a.Color + "\n")
	if a.HasSuggestions() {
		b.WriteString("\nSuggestions:\n")
		for _, s := range a.Suggestions {
			if s = strings.TrimSpace(s); s != "" {
				b.WriteString("• " + s + "\n")
			}
		}
	}
	return strings.TrimSpace(b.String())
}

func toneLabel(v int) string {
	switch {
	case v > 0:
		return fmt.Sprintf("warm %d", v)
	case v < 0:
		return fmt.Sprintf("cool %d", -v)
	default:
		return "neutral"
	}
}

func onOff(v bool) string {
	if v {
		return "ON"
	}
	return "OFF"
}
