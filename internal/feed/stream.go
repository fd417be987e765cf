package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/buyalert/internal/domain"
	"github.com/alanyoungcy/buyalert/internal/metrics"
)

// writeWait is the time allowed to write a frame to the peer.
const writeWait = 10 * time.Second

// frameHandler processes one frame read from a live connection.
type frameHandler func(ctx context.Context, conn *websocket.Conn, raw []byte) error

// streamer holds the reconnect loop shared by connectors and trackers.
type streamer struct {
	exchange string
	stream   string
	gate     Gate
	policy   ReconnectPolicy
	dialer   *websocket.Dialer
	logger   *slog.Logger
}

func newStreamer(exchange, stream string, gate Gate, policy ReconnectPolicy, logger *slog.Logger) streamer {
	return streamer{
		exchange: exchange,
		stream:   stream,
		gate:     gate,
		policy:   policy,
		dialer:   &websocket.Dialer{HandshakeTimeout: 15 * time.Second, Proxy: http.ProxyFromEnvironment},
		logger:   logger,
	}
}

// loop waits for the asset to be listed, runs one session, and retries with
// backoff until ctx is cancelled. session reports whether it got as far as
// a live subscription, which resets the backoff.
func (s streamer) loop(ctx context.Context, session func(ctx context.Context) (bool, error)) error {
	backoff := NewBackoff(s.policy)
	for {
		if err := s.gate.WaitListed(ctx, s.exchange); err != nil {
			return err
		}

		connected, err := session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff.Reset()
		}
		if errors.Is(err, domain.ErrNotListed) {
			s.logger.WarnContext(ctx, "asset delisted, closing stream")
			continue
		}

		delay := backoff.Next(errors.Is(err, domain.ErrRateLimited))
		metrics.Reconnects.WithLabelValues(s.exchange, s.stream).Inc()
		attrs := []any{slog.Duration("retry_in", delay)}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		s.logger.WarnContext(ctx, "stream disconnected, reconnecting", attrs...)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// session dials url, writes the subscription frames, and feeds every frame
// to handle until the connection fails, the handler errors, or the asset is
// delisted.
func (s streamer) session(ctx context.Context, url string, frames [][]byte, handle frameHandler) (bool, error) {
	conn, resp, err := s.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			return false, fmt.Errorf("%s: dial: %w", s.exchange, domain.ErrRateLimited)
		}
		return false, fmt.Errorf("%s: dial: %w", s.exchange, err)
	}
	defer conn.Close()

	for _, f := range frames {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, f); err != nil {
			return false, fmt.Errorf("%s: subscribe: %w", s.exchange, err)
		}
	}
	s.logger.InfoContext(ctx, "stream subscribed", slog.String("url", url), slog.Int("frames", len(frames)))

	connCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stop := context.AfterFunc(connCtx, func() { conn.Close() })
	defer stop()

	idle := s.policy.idleTimeout()
	conn.SetReadDeadline(time.Now().Add(idle))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(idle))
	})
	go s.keepAlive(connCtx, cancel, conn)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if cause := context.Cause(connCtx); connCtx.Err() != nil && cause != nil {
				return true, cause
			}
			if websocket.IsCloseError(err, websocket.CloseTryAgainLater) {
				return true, fmt.Errorf("%s: read: %w", s.exchange, domain.ErrRateLimited)
			}
			return true, fmt.Errorf("%s: read: %w", s.exchange, err)
		}
		conn.SetReadDeadline(time.Now().Add(idle))

		if err := handle(connCtx, conn, raw); err != nil {
			return true, err
		}
	}
}

// keepAlive pings the peer every read timeout and drops the connection once
// the asset is no longer listed.
func (s streamer) keepAlive(ctx context.Context, cancel context.CancelCauseFunc, conn *websocket.Conn) {
	ticker := time.NewTicker(s.policy.ReadTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.gate.IsListed(s.exchange) {
				cancel(fmt.Errorf("%s: %w", s.exchange, domain.ErrNotListed))
				return
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				cancel(fmt.Errorf("%s: ping: %w", s.exchange, err))
				return
			}
		}
	}
}

// reply writes a control reply frame from the read loop.
func reply(conn *websocket.Conn, payload []byte) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func truncate(raw []byte, n int) string {
	if len(raw) <= n {
		return string(raw)
	}
	return string(raw[:n]) + "..."
}
