package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// Creation channels raised by the row triggers in the postgres migrations.
const (
	ChannelItemsCreated    = "items_created"
	ChannelVideosCreated   = "videos_created"
	ChannelCommentsCreated = "comments_created"
)

// Notification is a row-created event carrying the new row's id.
type Notification struct {
	Channel string
	ID      string
}

// Listener relays LISTEN/NOTIFY creation events to a callback.
type Listener struct {
	url      string
	channels []string
	logger   *slog.Logger
}

// NewListener prepares a listener on the given channels.
func NewListener(url string, channels []string, logger *slog.Logger) *Listener {
	return &Listener{url: url, channels: channels, logger: logger}
}

// Run blocks until ctx is cancelled, invoking handle for every notification.
// The connection is re-established automatically by lib/pq; events raised
// while disconnected are lost, so handlers must tolerate gaps.
func (l *Listener) Run(ctx context.Context, handle func(Notification)) error {
	listener := pq.NewListener(l.url, 2*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			l.logger.Warn("database listener event", "event", int(ev), "error", err)
		}
	})
	defer listener.Close()

	for _, ch := range l.channels {
		if err := listener.Listen(ch); err != nil {
			return fmt.Errorf("listen %s: %w", ch, err)
		}
	}
	l.logger.Info("database listener started", "channels", l.channels)

	ticker := time.NewTicker(90 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("database listener stopped")
			return nil
		case n := <-listener.Notify:
			// nil signals a reconnect
			if n == nil {
				l.logger.Info("database listener reconnected")
				continue
			}
			handle(Notification{Channel: n.Channel, ID: n.Extra})
		case <-ticker.C:
			if err := listener.Ping(); err != nil {
				l.logger.Warn("database listener ping failed", "error", err)
			}
		}
	}
}
