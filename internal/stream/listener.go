// Package stream subscribes to the backend's server-sent event stream and
// decodes its change notifications.
package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/kalambet/emconsole/internal/backend"
	"github.com/kalambet/emconsole/internal/metrics"
)

const defaultReconnectDelay = 3 * time.Second

// Opener opens an event-stream body.
type Opener interface {
	OpenStream(ctx context.Context, path, lastEventID string) (io.ReadCloser, error)
}

// Listener keeps one subscription open, reconnecting after failures the
// way an EventSource does.
type Listener struct {
	opener  Opener
	path    string
	delay   time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewListener creates a Listener for the stream at path. If reconnectDelay
// is <= 0 it defaults to 3s; the server can override it with a retry field.
func NewListener(opener Opener, path string, reconnectDelay time.Duration, m *metrics.Metrics) *Listener {
	if reconnectDelay <= 0 {
		reconnectDelay = defaultReconnectDelay
	}
	return &Listener{
		opener:  opener,
		path:    path,
		delay:   reconnectDelay,
		metrics: m,
		logger:  slog.Default(),
	}
}

// Run delivers decoded messages to deliver until ctx is cancelled or the
// server answers 204 No Content. Connection failures and bad payloads are
// logged and never end the loop.
func (l *Listener) Run(ctx context.Context, deliver func(Message)) error {
	var lastID string
	delay := l.delay
	first := true

	for {
		if ctx.Err() != nil {
			return nil
		}
		if !first {
			l.metrics.StreamReconnect()
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
		}
		first = false

		body, err := l.opener.OpenStream(ctx, l.path, lastID)
		if err != nil {
			if errors.Is(err, backend.ErrStreamClosed) {
				l.logger.Info("event stream closed by server", "path", l.path)
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			l.logger.Debug("event stream connect failed", "path", l.path, "error", err)
			continue
		}
		l.logger.Debug("event stream connected", "path", l.path)

		scanner := l.consume(ctx, body, deliver)
		if id := scanner.LastID(); id != "" {
			lastID = id
		}
		if r := scanner.Retry(); r > 0 {
			delay = r
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			l.logger.Debug("event stream read failed", "path", l.path, "error", err)
		}
	}
}

// consume reads events from body until it ends or ctx is cancelled.
func (l *Listener) consume(ctx context.Context, body io.ReadCloser, deliver func(Message)) *Scanner {
	// Closing the body unblocks the scanner on teardown.
	stop := context.AfterFunc(ctx, func() { body.Close() })
	defer func() {
		stop()
		body.Close()
	}()

	scanner := NewScanner(body)
	for scanner.Next() {
		if ctx.Err() != nil {
			break
		}
		ev := scanner.Event()
		if ev.Oversized {
			l.metrics.StreamMessage("malformed")
			l.logger.Debug("discarding oversized stream event", "event_id", ev.ID)
			continue
		}
		msg, err := DecodeMessage([]byte(ev.Data))
		if err != nil {
			kind := "malformed"
			if errors.Is(err, ErrUnrecognized) {
				kind = "unrecognized"
			}
			l.metrics.StreamMessage(kind)
			l.logger.Debug("discarding stream message", "event_id", ev.ID, "error", err)
			continue
		}
		l.metrics.StreamMessage(msg.Type)
		deliver(msg)
	}
	return scanner
}
