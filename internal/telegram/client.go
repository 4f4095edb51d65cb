package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"visionary-studio/internal/photo"
)

const (
	maxTextBytes    = 4096
	maxCaptionBytes = 1024
)

type Options struct {
	Token      string
	HTTPClient *http.Client
	Logger     *slog.Logger
	Debug      bool
	// MaxPhotoBytes caps downloaded photos; zero uses the photo package default.
	MaxPhotoBytes int64
}

type Client struct {
	bot           *tgbotapi.BotAPI
	httpClient    *http.Client
	logger        *slog.Logger
	maxPhotoBytes int64
}

func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if opts.HTTPClient == nil {
		return nil, errors.New("http client is nil")
	}

	bot, err := tgbotapi.NewBotAPIWithClient(opts.Token, tgbotapi.APIEndpoint, opts.HTTPClient)
	if err != nil {
		return nil, err
	}
	bot.Debug = opts.Debug

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		bot:           bot,
		httpClient:    opts.HTTPClient,
		logger:        logger,
		maxPhotoBytes: opts.MaxPhotoBytes,
	}, nil
}

func (c *Client) Username() string {
	return c.bot.Self.UserName
}

type (
	Update   = tgbotapi.Update
	Keyboard = tgbotapi.InlineKeyboardMarkup
)

type UpdatesOptions struct {
	Timeout time.Duration
}

func (c *Client) Updates(opts UpdatesOptions) tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	if opts.Timeout > 0 {
		u.Timeout = int(opts.Timeout.Seconds())
	} else {
		u.Timeout = 30
	}
	u.AllowedUpdates = []string{"message", "callback_query"}
	return c.bot.GetUpdatesChan(u)
}

func (c *Client) StopUpdates() {
	c.bot.StopReceivingUpdates()
}

func (c *Client) SendTyping(chatID int64) {
	_, _ = c.bot.Send(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
}

func (c *Client) SendUploading(chatID int64) {
	_, _ = c.bot.Send(tgbotapi.NewChatAction(chatID, tgbotapi.ChatUploadPhoto))
}

func (c *Client) SendText(chatID int64, text string) error {
	for _, p := range SplitByBytes(text, maxTextBytes) {
		msg := tgbotapi.NewMessage(chatID, p)
		if _, err := c.bot.Send(msg); err != nil {
			return err
		}
	}
	return nil
}

// SendTextWithKeyboard returns the message id so the panel can be edited in place later.
func (c *Client) SendTextWithKeyboard(chatID int64, text string, kb Keyboard) (int, error) {
	msg := tgbotapi.NewMessage(chatID, TruncateByBytes(text, maxTextBytes))
	msg.ReplyMarkup = kb
	sent, err := c.bot.Send(msg)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (c *Client) EditTextWithKeyboard(chatID int64, messageID int, text string, kb Keyboard) error {
	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, TruncateByBytes(text, maxTextBytes), kb)
	_, err := c.bot.Request(edit)
	if err != nil && strings.Contains(err.Error(), "message is not modified") {
		return nil
	}
	return err
}

func (c *Client) AnswerCallback(callbackID, text string, alert bool) error {
	cb := tgbotapi.NewCallback(callbackID, text)
	cb.ShowAlert = alert
	_, err := c.bot.Request(cb)
	return err
}

func (c *Client) SendPhoto(chatID int64, img photo.Image, caption string) error {
	if img.IsZero() {
		return photo.ErrEmpty
	}

	msg := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{
		Name:  "visionary" + img.Extension(),
		Bytes: img.Data,
	})
	if caption != "" {
		msg.Caption = TruncateByBytes(caption, maxCaptionBytes)
	}

	_, err := c.bot.Send(msg)
	return err
}

// SendDocument delivers the full-resolution file; Telegram recompresses photos.
func (c *Client) SendDocument(chatID int64, img photo.Image, caption string) error {
	if img.IsZero() {
		return photo.ErrEmpty
	}

	msg := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{
		Name:  "visionary-edited" + img.Extension(),
		Bytes: img.Data,
	})
	if caption != "" {
		msg.Caption = TruncateByBytes(caption, maxCaptionBytes)
	}

	_, err := c.bot.Send(msg)
	return err
}

func (c *Client) DownloadPhoto(ctx context.Context, fileID string) (photo.Image, error) {
	fileURL, err := c.bot.GetFileDirectURL(fileID)
	if err != nil {
		return photo.Image{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return photo.Image{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return photo.Image{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return photo.Image{}, fmt.Errorf("telegram file download %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	img, err := photo.Read(resp.Body, resp.Header.Get("content-type"), c.maxPhotoBytes)
	if err != nil {
		return photo.Image{}, fmt.Errorf("telegram file %s: %w", fileID, err)
	}
	c.logger.Debug("telegram photo downloaded", "bytes", len(img.Data), "mime", img.MimeType)
	return img, nil
}

func SplitByBytes(text string, maxBytes int) []string {
	if len(text) <= maxBytes || maxBytes <= 0 {
		return []string{text}
	}

	var out []string
	var buf strings.Builder
	buf.Grow(maxBytes)

	for _, r := range text {
		runeBytes := utf8.RuneLen(r)
		if runeBytes < 0 {
			runeBytes = len(string(r))
		}

		if buf.Len() > 0 && buf.Len()+runeBytes > maxBytes {
			out = append(out, buf.String())
			buf.Reset()
		}
		buf.WriteRune(r)
	}

	if buf.Len() > 0 {
		out = append(out, buf.String())
	}

	return out
}

func TruncateByBytes(text string, maxBytes int) string {
	if len(text) <= maxBytes || maxBytes <= 0 {
		return text
	}

	var buf strings.Builder
	buf.Grow(maxBytes)
	for _, r := range text {
		runeBytes := utf8.RuneLen(r)
		if runeBytes < 0 {
			runeBytes = len(string(r))
		}

		if buf.Len()+runeBytes > maxBytes {
			break
		}
		buf.WriteRune(r)
	}
	return buf.String()
}
