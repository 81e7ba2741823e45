package filter

import (
	"context"

	"cryptoscreener/internal/model"
)

// TriggerSink breaks the cyclic dependency between the engine, the
// cache/broadcast fanout and the notifier (spec §9 "Cyclic dependency:
// engine ↔ filter engine ↔ notifier"). The filter engine only knows it
// can emit a trigger; everything downstream — persist, cache mark,
// broadcast, notify — lives behind this one capability, wired by
// internal/fanout.
type TriggerSink interface {
	Emit(ctx context.Context, t model.Trigger) error
}
