package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/buyalert/internal/domain"
)

const discordContentLimit = 2000

// DiscordPlatform delivers alerts via Discord webhooks. Targets are named
// "webhook-<n>" so webhook URLs never reach the logs.
type DiscordPlatform struct {
	webhooks map[string]string
	targets  []string
	client   *http.Client
}

// NewDiscordPlatform creates a DiscordPlatform for the given webhook URLs.
func NewDiscordPlatform(webhookURLs []string, timeout time.Duration) *DiscordPlatform {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	d := &DiscordPlatform{
		webhooks: make(map[string]string, len(webhookURLs)),
		client:   &http.Client{Timeout: timeout},
	}
	for i, u := range webhookURLs {
		name := "webhook-" + strconv.Itoa(i+1)
		d.webhooks[name] = u
		d.targets = append(d.targets, name)
	}
	return d
}

// Name returns the platform identifier.
func (d *DiscordPlatform) Name() string { return "discord" }

// Targets returns the webhook target names.
func (d *DiscordPlatform) Targets() []string { return d.targets }

func discordContent(msg Message) string {
	content := msg.Markdown
	if msg.ButtonURL != "" {
		content += "\n\n[" + msg.ButtonText + "](" + msg.ButtonURL + ")"
	}
	if r := []rune(content); len(r) > discordContentLimit {
		content = string(r[:discordContentLimit])
	}
	return content
}

// SendRichMedia posts the alert with the media attached.
func (d *DiscordPlatform) SendRichMedia(ctx context.Context, target string, media domain.Media, msg Message) error {
	payload, err := json.Marshal(map[string]string{"content": discordContent(msg)})
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	_ = w.WriteField("payload_json", string(payload))
	part, err := w.CreateFormFile("files[0]", media.Name)
	if err != nil {
		return fmt.Errorf("discord: create form file: %w", err)
	}
	if _, err := part.Write(media.Data); err != nil {
		return fmt.Errorf("discord: write media: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("discord: close multipart: %w", err)
	}
	return d.post(ctx, target, w.FormDataContentType(), &body)
}

// SendText posts the alert as plain content.
func (d *DiscordPlatform) SendText(ctx context.Context, target string, msg Message) error {
	body, err := json.Marshal(map[string]string{"content": discordContent(msg)})
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}
	return d.post(ctx, target, "application/json", bytes.NewReader(body))
}

func (d *DiscordPlatform) post(ctx context.Context, target, contentType string, body io.Reader) error {
	url, ok := d.webhooks[target]
	if !ok {
		return fmt.Errorf("discord: unknown target %q", target)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: %s: send request failed", target)
	}
	defer resp.Body.Close()

	// Discord returns 204 No Content on success.
	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("discord: %s: %w", target, domain.ErrRateLimited)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

var _ Platform = (*DiscordPlatform)(nil)
