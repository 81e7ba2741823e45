// Package notify delivers trigger notifications to external channels.
// Grounded on the teacher's internal/notification package (Notifier
// interface, LogNotifier, TelegramNotifier), repurposed from generic
// trading alerts to formatted model.NotificationEvent payloads.
package notify

import (
	"context"
	"log/slog"

	"cryptoscreener/internal/model"
)

// NotificationEvent is the payload handed to every Notifier backend.
type NotificationEvent = model.NotificationEvent

// Notifier is the interface for all notification backends. Send must
// not block the caller for long — the fanout treats notification as
// best-effort and never rolls back persistence on failure (spec §4.8).
type Notifier interface {
	Send(ctx context.Context, ev NotificationEvent) error
}

// LogNotifier logs events through slog instead of delivering them
// anywhere — the default when no Telegram credentials are configured.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Send(ctx context.Context, ev NotificationEvent) error {
	n.log.Info("trigger notification", "filter", ev.FilterName, "symbol", ev.Symbol, "type", ev.FilterType)
	return nil
}

// Multi fans a single event out to every configured notifier. A
// delivery failure on one backend does not stop the others.
type Multi struct {
	notifiers []Notifier
	log       *slog.Logger
}

// NewMulti creates a Multi over the given backends.
func NewMulti(log *slog.Logger, notifiers ...Notifier) *Multi {
	return &Multi{notifiers: notifiers, log: log}
}

func (m *Multi) Send(ctx context.Context, ev NotificationEvent) error {
	var firstErr error
	for _, n := range m.notifiers {
		if err := n.Send(ctx, ev); err != nil {
			m.log.Error("notifier send failed", "err", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
