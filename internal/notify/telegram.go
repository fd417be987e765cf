package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/buyalert/internal/domain"
)

// DefaultTelegramAPI is the public Bot API base.
const DefaultTelegramAPI = "https://api.telegram.org"

// TelegramPlatform delivers alerts to chats via the Telegram Bot API.
type TelegramPlatform struct {
	apiBase string
	token   string
	chatIDs []string
	client  *http.Client
}

// NewTelegramPlatform creates a TelegramPlatform for the given bot token and
// chat IDs.
func NewTelegramPlatform(apiBase, token string, chatIDs []string, timeout time.Duration) *TelegramPlatform {
	if apiBase == "" {
		apiBase = DefaultTelegramAPI
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TelegramPlatform{
		apiBase: strings.TrimRight(apiBase, "/"),
		token:   token,
		chatIDs: chatIDs,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns the platform identifier.
func (t *TelegramPlatform) Name() string { return "telegram" }

// Targets returns the configured chat IDs.
func (t *TelegramPlatform) Targets() []string { return t.chatIDs }

type inlineButton struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

type inlineKeyboard struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

func keyboard(msg Message) *inlineKeyboard {
	if msg.ButtonURL == "" {
		return nil
	}
	return &inlineKeyboard{InlineKeyboard: [][]inlineButton{{{Text: msg.ButtonText, URL: msg.ButtonURL}}}}
}

// SendRichMedia posts media with the alert as caption, using sendAnimation
// for GIF/MP4 and sendPhoto otherwise.
func (t *TelegramPlatform) SendRichMedia(ctx context.Context, chatID string, media domain.Media, msg Message) error {
	method, field := "sendPhoto", "photo"
	if media.Animated() {
		method, field = "sendAnimation", "animation"
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	_ = w.WriteField("chat_id", chatID)
	_ = w.WriteField("caption", msg.HTML)
	_ = w.WriteField("parse_mode", "HTML")
	if kb := keyboard(msg); kb != nil {
		raw, err := json.Marshal(kb)
		if err != nil {
			return fmt.Errorf("telegram: marshal keyboard: %w", err)
		}
		_ = w.WriteField("reply_markup", string(raw))
	}
	part, err := w.CreateFormFile(field, media.Name)
	if err != nil {
		return fmt.Errorf("telegram: create form file: %w", err)
	}
	if _, err := part.Write(media.Data); err != nil {
		return fmt.Errorf("telegram: write media: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("telegram: close multipart: %w", err)
	}

	return t.post(ctx, method, w.FormDataContentType(), &body)
}

// SendText posts the alert with sendMessage.
func (t *TelegramPlatform) SendText(ctx context.Context, chatID string, msg Message) error {
	payload := map[string]any{
		"chat_id":                  chatID,
		"text":                     msg.HTML,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}
	if kb := keyboard(msg); kb != nil {
		payload["reply_markup"] = kb
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}
	return t.post(ctx, "sendMessage", "application/json", bytes.NewReader(body))
}

func (t *TelegramPlatform) post(ctx context.Context, method, contentType string, body io.Reader) error {
	url := fmt.Sprintf("%s/bot%s/%s", t.apiBase, t.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := t.client.Do(req)
	if err != nil {
		// The URL carries the bot token; keep it out of logs.
		var uerr *neturl.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("telegram: %s: send request: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram: %s: %s: %w", method, string(respBody), domain.ErrRateLimited)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram: %s: unexpected status %d: %s", method, resp.StatusCode, string(respBody))
	}

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("telegram: %s: decode response: %w", method, err)
	}
	if !result.OK {
		return fmt.Errorf("telegram: %s: %s", method, result.Description)
	}
	return nil
}

var _ Platform = (*TelegramPlatform)(nil)
