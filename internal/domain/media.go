package domain

import (
	"context"
	"strings"
)

// Media is an image or animation attached to alerts.
type Media struct {
	Name        string
	ContentType string
	Data        []byte
}

// Animated reports whether the media should be sent as an animation.
func (m Media) Animated() bool {
	n := strings.ToLower(m.Name)
	return strings.HasSuffix(n, ".gif") || strings.HasSuffix(n, ".mp4") ||
		m.ContentType == "image/gif" || m.ContentType == "video/mp4"
}

// MediaSource picks the media for the next alert. It returns ErrNoMedia
// when none is available.
type MediaSource interface {
	Pick(ctx context.Context) (Media, error)
}
