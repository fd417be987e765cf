package notify

import (
	"context"

	"github.com/alanyoungcy/buyalert/internal/domain"
)

// Platform is a notification platform with one or more targets. Both send
// methods report success or failure per call.
type Platform interface {
	// Name returns a human-readable identifier (e.g. "telegram").
	Name() string
	// Targets lists target identifiers safe to log.
	Targets() []string
	SendRichMedia(ctx context.Context, target string, media domain.Media, msg Message) error
	SendText(ctx context.Context, target string, msg Message) error
}
