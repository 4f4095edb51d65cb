package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"visionary-studio/internal/edit"
	"visionary-studio/internal/mediagroup"
	"visionary-studio/internal/photo"
	"visionary-studio/internal/session"
	"visionary-studio/internal/studio"
	"visionary-studio/internal/telegram"
)

const helpText = "📸 Visionary Studio\n\n" +
	"Send a photo and I will critique it like a professional photographer, " +
	"then use the panel to retouch it.\n\n" +
	"Commands:\n" +
	"/start - Show the studio panel\n" +
	"/help - This message\n" +
	"/analyze - Analyze the current photo again\n" +
	"/prompt - Show the instruction that will be sent\n" +
	"/edit <text> - Apply a custom edit\n" +
	"/reset - Start over with a new photo\n" +
	"/cancel - Stop waiting for a custom edit"

// Messenger is the part of the Telegram client the bot talks to.
type Messenger interface {
	SendText(chatID int64, text string) error
	SendTextWithKeyboard(chatID int64, text string, kb telegram.Keyboard) (int, error)
	EditTextWithKeyboard(chatID int64, messageID int, text string, kb telegram.Keyboard) error
	AnswerCallback(callbackID, text string, alert bool) error
	SendPhoto(chatID int64, img photo.Image, caption string) error
	SendDocument(chatID int64, img photo.Image, caption string) error
	SendTyping(chatID int64)
	SendUploading(chatID int64)
	DownloadPhoto(ctx context.Context, fileID string) (photo.Image, error)
}

type Options struct {
	Telegram Messenger
	Studio   *studio.Service
	Logger   *slog.Logger
}

type Handler struct {
	tg         Messenger
	studio     *studio.Service
	logger     *slog.Logger
	panels     *panels
	aggregator *mediagroup.Aggregator
}

func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		tg:     opts.Telegram,
		studio: opts.Studio,
		logger: logger,
		panels: newPanels(),
	}
	h.studio.Sessions().OnExpire(h.forgetSession)
	return h
}

func (h *Handler) SetMediaGroupAggregator(ag *mediagroup.Aggregator) {
	h.aggregator = ag
}

const sessionPrefix = "tg:"

func sessionID(chatID int64) string {
	return fmt.Sprintf("%s%d", sessionPrefix, chatID)
}

// forgetSession drops the panel of a chat whose studio session expired.
func (h *Handler) forgetSession(id string) {
	raw, ok := strings.CutPrefix(id, sessionPrefix)
	if !ok {
		return
	}
	chatID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return
	}
	h.panels.delete(chatID)
	h.logger.Debug("panel dropped with expired session", "chat_id", chatID)
}

func (h *Handler) HandleUpdate(ctx context.Context, update telegram.Update) error {
	if update.CallbackQuery != nil {
		return h.handleCallback(ctx, update.CallbackQuery)
	}
	if update.Message == nil {
		return nil
	}

	msg := update.Message
	chatID := msg.Chat.ID
	h.studio.Sessions().Ensure(sessionID(chatID))

	if msg.IsCommand() {
		return h.handleCommand(ctx, chatID, msg)
	}

	if len(msg.Photo) > 0 {
		return h.handlePhoto(ctx, chatID, msg)
	}

	if msg.Text != "" {
		return h.handleText(ctx, chatID, msg.Text)
	}

	return nil
}

// HandleMediaGroup processes an album once it has settled; only the last photo is edited.
func (h *Handler) HandleMediaGroup(ctx context.Context, group mediagroup.Group) {
	h.studio.Sessions().Ensure(sessionID(group.ChatID))
	if err := h.processPhoto(ctx, group.ChatID, group.Last(), group.Caption); err != nil {
		h.logger.Error("media group processing failed", "chat_id", group.ChatID, "err", err)
	}
}

func (h *Handler) handleCommand(ctx context.Context, chatID int64, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		if err := h.tg.SendText(chatID, helpText); err != nil {
			return err
		}
		return h.renderPanel(chatID, false)
	case "help":
		return h.tg.SendText(chatID, helpText)
	case "reset":
		return h.reset(chatID)
	case "cancel":
		h.panels.update(chatID, func(ui *panelState) { ui.AwaitingPrompt = false })
		return h.tg.SendText(chatID, "👌 Cancelled.")
	case "analyze":
		return h.analyze(ctx, chatID)
	case "prompt":
		return h.sendInstruction(chatID)
	case "edit":
		prompt := strings.TrimSpace(msg.CommandArguments())
		if prompt == "" {
			h.panels.update(chatID, func(ui *panelState) { ui.AwaitingPrompt = true })
			return h.tg.SendText(chatID, "✍️ Describe your edit, e.g. /edit make the sky dramatic")
		}
		return h.enhance(ctx, chatID, prompt)
	default:
		return h.tg.SendText(chatID, "❌ Unknown command. Use /help.")
	}
}

func (h *Handler) handleText(ctx context.Context, chatID int64, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	st := h.current(chatID)
	if st.Original == nil {
		return h.tg.SendText(chatID, "📷 Send a photo first.")
	}
	return h.enhance(ctx, chatID, text)
}

func (h *Handler) handlePhoto(ctx context.Context, chatID int64, msg *tgbotapi.Message) error {
	fileID := msg.Photo[len(msg.Photo)-1].FileID

	if msg.MediaGroupID != "" && h.aggregator != nil {
		var userID int64
		if msg.From != nil {
			userID = msg.From.ID
		}
		if h.aggregator.Add(mediagroup.Item{
			ChatID:       chatID,
			UserID:       userID,
			MediaGroupID: msg.MediaGroupID,
			Caption:      msg.Caption,
			FileID:       fileID,
		}) {
			return nil
		}
	}

	return h.processPhoto(ctx, chatID, fileID, msg.Caption)
}

// processPhoto uploads and analyzes the photo. A caption is treated as a
// custom edit request once the analysis is done.
func (h *Handler) processPhoto(ctx context.Context, chatID int64, fileID, caption string) error {
	if fileID == "" {
		return nil
	}
	h.tg.SendTyping(chatID)

	img, err := h.tg.DownloadPhoto(ctx, fileID)
	if err != nil {
		h.logger.Error("photo download failed", "chat_id", chatID, "err", err)
		return h.tg.SendText(chatID, "❌ Could not download the photo.")
	}

	_ = h.tg.SendText(chatID, "🔍 Analyzing your photo…")
	st, err := h.studio.Upload(ctx, sessionID(chatID), img)
	switch {
	case errors.Is(err, studio.ErrBusy):
		return h.tg.SendText(chatID, "⏳ Still working on your previous request.")
	case err != nil:
		h.logger.Error("photo analysis failed", "chat_id", chatID, "err", err)
		if st.Original == nil {
			return h.tg.SendText(chatID, "❌ "+studio.MsgAnalyzeFailed)
		}
		_ = h.tg.SendText(chatID, "⚠️ "+studio.MsgAnalyzeFailed+" You can still edit it.")
	case st.Analysis != nil:
		if err := h.tg.SendText(chatID, analysisText(*st.Analysis)); err != nil {
			return err
		}
	}

	h.panels.update(chatID, func(ui *panelState) {
		ui.AwaitingPrompt = false
		ui.Menu = menuMain
	})

	if caption = strings.TrimSpace(caption); caption != "" {
		return h.enhance(ctx, chatID, caption)
	}
	return h.renderPanel(chatID, false)
}

func (h *Handler) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	if q == nil || q.Message == nil {
		return nil
	}
	action, arg, ok := parseCallback(q.Data)
	if !ok {
		return nil
	}

	chatID := q.Message.Chat.ID
	msgID := q.Message.MessageID
	id := sessionID(chatID)
	h.studio.Sessions().Ensure(id)
	h.panels.update(chatID, func(ui *panelState) { ui.MessageID = msgID })

	switch action {
	case "noop":
		return h.tg.AnswerCallback(q.ID, "", false)
	case "menu":
		h.panels.update(chatID, func(ui *panelState) { ui.Menu = arg })
	case "preset":
		pr, ok := h.studio.Presets().Get(arg)
		if !ok {
			return h.tg.AnswerCallback(q.ID, "Unknown preset", true)
		}
		if _, err := h.studio.SetParams(id, func(p *edit.Params) { *p = p.Apply(pr) }); err != nil {
			return err
		}
		h.panels.update(chatID, func(ui *panelState) {
			ui.Preset = pr.Name
			ui.Menu = menuMain
		})
	case "apply":
		_ = h.tg.AnswerCallback(q.ID, "Applying…", false)
		return h.enhance(ctx, chatID, "")
	case "custom":
		h.panels.update(chatID, func(ui *panelState) { ui.AwaitingPrompt = true })
		_ = h.tg.AnswerCallback(q.ID, "Send your edit as a message", false)
		return h.renderPanel(chatID, true)
	case "prompt":
		_ = h.tg.AnswerCallback(q.ID, "", false)
		return h.sendInstruction(chatID)
	case "analyze":
		_ = h.tg.AnswerCallback(q.ID, "Analyzing…", false)
		return h.analyze(ctx, chatID)
	case "reset":
		_ = h.tg.AnswerCallback(q.ID, "Reset", false)
		return h.reset(chatID)
	default:
		var changed bool
		_, err := h.studio.SetParams(id, func(p *edit.Params) {
			*p, changed = applyAction(*p, action, arg)
		})
		if err != nil {
			return err
		}
		if !changed {
			return h.tg.AnswerCallback(q.ID, "", false)
		}
		// Manual tweaks detach the panel from the preset it started from.
		h.panels.update(chatID, func(ui *panelState) {
			ui.Menu = menuMain
			ui.Preset = ""
		})
	}

	_ = h.tg.AnswerCallback(q.ID, "", false)
	return h.renderPanel(chatID, true)
}

func (h *Handler) enhance(ctx context.Context, chatID int64, prompt string) error {
	ui := h.panels.update(chatID, func(ui *panelState) { ui.AwaitingPrompt = false })
	st := h.current(chatID)
	if st.Original == nil {
		return h.tg.SendText(chatID, "📷 Send a photo first.")
	}

	h.tg.SendTyping(chatID)
	_ = h.tg.SendText(chatID, "🎨 Retouching, this can take a minute…")

	st, err := h.studio.Enhance(ctx, sessionID(chatID), studio.EnhanceRequest{
		Params: st.Params,
		Prompt: prompt,
		Preset: ui.Preset,
	})
	switch {
	case errors.Is(err, studio.ErrBusy):
		return h.tg.SendText(chatID, "⏳ Still working on your previous request.")
	case errors.Is(err, studio.ErrNoPhoto):
		return h.tg.SendText(chatID, "📷 Send a photo first.")
	case err != nil:
		h.logger.Error("enhance failed", "chat_id", chatID, "err", err)
		msg := st.Error
		if msg == "" {
			msg = studio.MsgEnhanceFailed
		}
		return h.tg.SendText(chatID, "❌ "+msg)
	}

	caption := "✅ Done"
	if prompt != "" {
		caption += ": " + prompt
	}
	h.tg.SendUploading(chatID)
	if err := h.tg.SendPhoto(chatID, *st.Edited, caption); err != nil {
		return err
	}
	// The photo above is recompressed by Telegram; the document is the untouched result.
	if err := h.tg.SendDocument(chatID, *st.Edited, "📎 Full resolution"); err != nil {
		h.logger.Warn("full resolution upload failed", "chat_id", chatID, "err", err)
	}
	return h.renderPanel(chatID, false)
}

func (h *Handler) analyze(ctx context.Context, chatID int64) error {
	h.tg.SendTyping(chatID)
	st, err := h.studio.Analyze(ctx, sessionID(chatID))
	switch {
	case errors.Is(err, studio.ErrNoPhoto):
		return h.tg.SendText(chatID, "📷 Send a photo first.")
	case errors.Is(err, studio.ErrBusy):
		return h.tg.SendText(chatID, "⏳ Still working on your previous request.")
	case err != nil:
		h.logger.Error("analysis failed", "chat_id", chatID, "err", err)
		return h.tg.SendText(chatID, "❌ "+studio.MsgAnalyzeFailed)
	}
	return h.tg.SendText(chatID, analysisText(*st.Analysis))
}

func (h *Handler) sendInstruction(chatID int64) error {
	st := h.current(chatID)
	ui := h.panels.get(chatID)
	text, err := h.studio.Instruction(sessionID(chatID), studio.EnhanceRequest{Params: st.Params, Preset: ui.Preset})
	if err != nil {
		return h.tg.SendText(chatID, "❌ "+err.Error())
	}
	return h.tg.SendText(chatID, text)
}

func (h *Handler) reset(chatID int64) error {
	if _, err := h.studio.Reset(sessionID(chatID)); err != nil {
		if errors.Is(err, studio.ErrBusy) {
			return h.tg.SendText(chatID, "⏳ Still working on your previous request.")
		}
		return err
	}
	h.panels.delete(chatID)
	if err := h.tg.SendText(chatID, "♻️ Studio reset. Send a new photo."); err != nil {
		return err
	}
	return h.renderPanel(chatID, false)
}

// renderPanel edits the panel message in place when possible and falls back to a new message.
func (h *Handler) renderPanel(chatID int64, inPlace bool) error {
	st := h.current(chatID)
	ui := h.panels.get(chatID)

	text := panelText(st, ui)
	kb := panelKeyboard(st, ui, h.studio.Presets().List())

	if inPlace && ui.MessageID != 0 {
		if err := h.tg.EditTextWithKeyboard(chatID, ui.MessageID, text, kb); err == nil {
			return nil
		}
	}

	msgID, err := h.tg.SendTextWithKeyboard(chatID, text, kb)
	if err != nil {
		return err
	}
	h.panels.update(chatID, func(ui *panelState) { ui.MessageID = msgID })
	return nil
}

func (h *Handler) current(chatID int64) session.State {
	return h.studio.Sessions().Ensure(sessionID(chatID))
}
