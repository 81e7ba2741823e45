// Package fanout wires a single filter match into everything that
// happens after it: persistence, a cache trigger-mark for the live
// chart, a chart broadcast, and a notification dispatch. It implements
// filter.TriggerSink and exists to break the cyclic dependency between
// the filter engine, the cache/broadcast layer and the notifier (spec
// §9). Grounded on the teacher's internal/marketdata/bus.FanOut
// non-blocking broadcast discipline, generalized from "one candle to N
// channels" to "one trigger to N independent, best-effort consumers".
package fanout

import (
	"context"
	"log/slog"

	"cryptoscreener/internal/model"
)

// Persister is the subset of store.Store the sink writes through.
type Persister interface {
	SaveTrigger(ctx context.Context, t model.Trigger) (int64, error)
	MarkNotified(ctx context.Context, triggerID int64) error
}

// CacheMarker records a trigger mark for the live chart overlay.
type CacheMarker interface {
	PutTriggerMark(sym model.Symbol, mark model.TriggerMark)
}

// Broadcaster pushes a trigger to any subscribed chart clients. It must
// not block — implementations are expected to drop rather than stall
// (the same discipline as the teacher's FanOut.OnDrop).
type Broadcaster interface {
	BroadcastTrigger(t model.Trigger)
}

// Notifier delivers a trigger to external channels (Telegram, etc).
type Notifier interface {
	Send(ctx context.Context, ev model.NotificationEvent) error
}

// Sink is the TriggerSink implementation wired by the composition root.
// Persist is a hard prerequisite: a trigger that fails to save is
// logged and dropped before touching cache, broadcast or notify.
// Broadcast and notify are best-effort: a notify failure never rolls
// back persistence, and neither can block the caller for long enough
// to delay the next filter evaluation.
type Sink struct {
	store       Persister
	cache       CacheMarker
	broadcaster Broadcaster
	notifier    Notifier
	log         *slog.Logger
}

// New creates a Sink. notifier may be nil, in which case notification
// dispatch is skipped entirely (no Telegram/webhook configured).
func New(store Persister, cache CacheMarker, broadcaster Broadcaster, notifier Notifier, log *slog.Logger) *Sink {
	return &Sink{store: store, cache: cache, broadcaster: broadcaster, notifier: notifier, log: log}
}

// Emit implements filter.TriggerSink.
func (s *Sink) Emit(ctx context.Context, t model.Trigger) error {
	id, err := s.store.SaveTrigger(ctx, t)
	if err != nil {
		return err
	}
	t.ID = id

	s.cache.PutTriggerMark(t.Symbol, model.TriggerMark{
		Time:       t.TriggeredAt,
		FilterName: t.FilterName,
		FilterType: t.FilterType,
	})

	s.broadcaster.BroadcastTrigger(t)

	if s.notifier != nil {
		go s.dispatchNotification(t)
	}

	return nil
}

// dispatchNotification runs off the evaluation hot path: a slow or
// failing notifier must never delay the next symbol's evaluation, and
// persistence has already succeeded by the time this runs.
func (s *Sink) dispatchNotification(t model.Trigger) {
	ctx := context.Background()
	ev := model.NotificationEvent{
		FilterID:    t.FilterID,
		FilterName:  t.FilterName,
		FilterType:  t.FilterType,
		Symbol:      t.Symbol.Exchange(),
		Market:      t.Symbol.Market,
		TriggeredAt: t.TriggeredAt,
		Data:        t.Data,
		URL:         t.Data.URL,
	}

	if err := s.notifier.Send(ctx, ev); err != nil {
		s.log.Error("notification dispatch failed", "filter", t.FilterName, "symbol", ev.Symbol, "err", err)
		return
	}

	if err := s.store.MarkNotified(ctx, t.ID); err != nil {
		s.log.Error("mark notified failed", "trigger_id", t.ID, "err", err)
	}
}
