package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/buyalert/internal/domain"
)

func testMessage() Message {
	return Message{
		HTML:       "<b>Buy</b>",
		Markdown:   "**Buy**",
		ButtonText: "Trade on NonKYC",
		ButtonURL:  "https://nonkyc.io/market/JKC_USDT",
	}
}

func TestTelegramSendText(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer srv.Close()

	p := NewTelegramPlatform(srv.URL, "TOKEN", []string{"-100"}, 0)
	require.NoError(t, p.SendText(context.Background(), "-100", testMessage()))

	assert.Equal(t, "-100", got["chat_id"])
	assert.Equal(t, "<b>Buy</b>", got["text"])
	assert.Equal(t, "HTML", got["parse_mode"])
	kb := got["reply_markup"].(map[string]any)["inline_keyboard"].([]any)
	btn := kb[0].([]any)[0].(map[string]any)
	assert.Equal(t, "Trade on NonKYC", btn["text"])
	assert.Equal(t, "https://nonkyc.io/market/JKC_USDT", btn["url"])
}

func TestTelegramSendRichMedia(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		switch r.URL.Path {
		case "/botTOKEN/sendAnimation":
			assert.Equal(t, "-100", r.FormValue("chat_id"))
			assert.Equal(t, "<b>Buy</b>", r.FormValue("caption"))
			assert.Contains(t, r.FormValue("reply_markup"), "inline_keyboard")
			f, _, err := r.FormFile("animation")
			require.NoError(t, err)
			data, _ := io.ReadAll(f)
			assert.Equal(t, "GIF89a", string(data))
			w.Write([]byte(`{"ok":true}`))
		case "/botTOKEN/sendPhoto":
			w.Write([]byte(`{"ok":false,"description":"Bad Request: message caption is too long"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p := NewTelegramPlatform(srv.URL, "TOKEN", []string{"-100"}, 0)
	ctx := context.Background()

	gif := domain.Media{Name: "alert.gif", Data: []byte("GIF89a")}
	require.NoError(t, p.SendRichMedia(ctx, "-100", gif, testMessage()))

	png := domain.Media{Name: "alert.png", Data: []byte("PNG")}
	err := p.SendRichMedia(ctx, "-100", png, testMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "caption is too long")
}

func TestTelegramStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") == "application/json" {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"ok":false,"parameters":{"retry_after":3}}`))
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	p := NewTelegramPlatform(srv.URL, "TOKEN", nil, 0)
	err := p.SendText(context.Background(), "-1", testMessage())
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.NotContains(t, err.Error(), "TOKEN")

	err = p.SendRichMedia(context.Background(), "-1", domain.Media{Name: "a.jpg"}, testMessage())
	assert.Contains(t, err.Error(), "unexpected status 403")
}

func TestDiscordPlatform(t *testing.T) {
	var content string
	var gotFile bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") == "application/json" {
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			content = body["content"]
		} else {
			require.NoError(t, r.ParseMultipartForm(1<<20))
			var body map[string]string
			require.NoError(t, json.Unmarshal([]byte(r.FormValue("payload_json")), &body))
			content = body["content"]
			_, _, err := r.FormFile("files[0]")
			gotFile = err == nil
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := NewDiscordPlatform([]string{srv.URL + "/api/webhooks/1/secret"}, 0)
	assert.Equal(t, []string{"webhook-1"}, p.Targets())
	ctx := context.Background()

	require.NoError(t, p.SendText(ctx, "webhook-1", testMessage()))
	assert.Equal(t, "**Buy**\n\n[Trade on NonKYC](https://nonkyc.io/market/JKC_USDT)", content)

	require.NoError(t, p.SendRichMedia(ctx, "webhook-1", domain.Media{Name: "a.gif", Data: []byte("x")}, testMessage()))
	assert.True(t, gotFile)

	assert.Error(t, p.SendText(ctx, "webhook-9", testMessage()))
}
