package filter

import (
	"context"

	"cryptoscreener/internal/model"
	"cryptoscreener/internal/store"
)

// evalPriceChange implements spec §4.6's price_change predicate: window
// of the last IntervalMinutes closed candles, change = (close-open)/open,
// direction-gated, with optional 24h and period-volume guards.
func (e *Engine) evalPriceChange(ctx context.Context, f model.Filter, sym model.Symbol, closedMinute, now int64) (*model.Trigger, error) {
	cfg := f.Config.PriceChange

	window, err := e.store.GetCandles(ctx, sym, cfg.IntervalMinutes)
	if err != nil {
		return nil, err
	}
	if len(window) < cfg.IntervalMinutes {
		return nil, store.ErrInsufficientData
	}

	priceStart := window[0].Open
	priceEnd := window[len(window)-1].Close
	change, err := priceChangePercent(priceStart, priceEnd)
	if err != nil {
		return nil, nil // price_start <= 0: guard against bad data, no trigger (spec §8 invariant 10)
	}

	if !directionPasses(cfg.Direction, change, cfg.MinPriceChangePercent) {
		return nil, nil
	}

	if cfg.MinVolume24h > 0 {
		ticker, err := e.store.GetTicker(ctx, sym)
		if err != nil {
			if err == store.ErrNotFound {
				return nil, nil
			}
			return nil, err
		}
		if ticker.Volume24h < cfg.MinVolume24h {
			return nil, nil
		}
		if cfg.MaxVolume24h != nil && ticker.Volume24h >= *cfg.MaxVolume24h {
			return nil, nil
		}
	}

	volumePeriod := sumVolume(window)
	if cfg.MinVolumePeriod > 0 && volumePeriod < cfg.MinVolumePeriod {
		return nil, nil
	}

	first := window[0].Timestamp
	last := window[len(window)-1].Timestamp
	data := model.TriggerData{
		PriceChangePercent: &change,
		PriceFrom:          &priceStart,
		PriceTo:            &priceEnd,
		VolumePeriod:       &volumePeriod,
		URL:                sym.CanonicalURL(exchangeHost),
		FirstCandleTS:      &first,
		LastCandleTS:       &last,
	}
	if cfg.MinVolume24h > 0 {
		if t, err := e.store.GetTicker(ctx, sym); err == nil {
			data.Volume24h = &t.Volume24h
		}
	}

	return &model.Trigger{
		FilterID:    f.ID,
		FilterName:  f.Name,
		FilterType:  f.Type,
		Symbol:      sym,
		TriggeredAt: now,
		Data:        data,
	}, nil
}

// evalVolumeSpike implements spec §4.6's volume_spike predicate: split
// the BasePeriodMinutes window into a ShortPeriodMinutes "current" tail
// and an older "historical" head, compare summed current volume against
// mean historical per-minute volume.
func (e *Engine) evalVolumeSpike(ctx context.Context, f model.Filter, sym model.Symbol, closedMinute, now int64) (*model.Trigger, error) {
	cfg := f.Config.VolumeSpike

	window, err := e.store.GetCandles(ctx, sym, cfg.BasePeriodMinutes)
	if err != nil {
		return nil, err
	}
	if len(window) < cfg.BasePeriodMinutes {
		return nil, store.ErrInsufficientData
	}

	splitAt := len(window) - cfg.ShortPeriodMinutes
	historical := window[:splitAt]
	current := window[splitAt:]
	if len(historical) < 1 {
		return nil, nil // spec §8 invariant 9: empty historical segment is silently skipped
	}

	currentVolume := sumVolume(current)
	avgVolume := sumVolume(historical) / float64(len(historical))
	if avgVolume <= 0 {
		return nil, nil
	}

	spike := currentVolume / avgVolume
	if spike < cfg.SpikeCoefficient {
		return nil, nil
	}

	priceStart := current[0].Open
	priceEnd := current[len(current)-1].Close
	change, err := priceChangePercent(priceStart, priceEnd)
	if err != nil {
		return nil, nil
	}
	if !directionPasses(priceSpikeDirection(cfg.PriceDirection), change, cfg.MinPriceChangePercent) {
		return nil, nil
	}

	if cfg.MinVolume24h > 0 {
		ticker, err := e.store.GetTicker(ctx, sym)
		if err != nil {
			if err == store.ErrNotFound {
				return nil, nil
			}
			return nil, err
		}
		if ticker.Volume24h < cfg.MinVolume24h {
			return nil, nil
		}
		if cfg.MaxVolume24h != nil && ticker.Volume24h >= *cfg.MaxVolume24h {
			return nil, nil
		}
	}

	first := current[0].Timestamp
	last := current[len(current)-1].Timestamp
	data := model.TriggerData{
		PriceChangePercent: &change,
		PriceFrom:          &priceStart,
		PriceTo:            &priceEnd,
		VolumePeriod:       &currentVolume,
		SpikeCoefficient:   &spike,
		AverageVolume:      &avgVolume,
		URL:                sym.CanonicalURL(exchangeHost),
		FirstCandleTS:      &first,
		LastCandleTS:       &last,
	}

	return &model.Trigger{
		FilterID:    f.ID,
		FilterName:  f.Name,
		FilterType:  f.Type,
		Symbol:      sym,
		TriggeredAt: now,
		Data:        data,
	}, nil
}

// priceSpikeDirection maps volume_spike's price_direction ("all" means
// no directional constraint) onto the shared Direction enum.
func priceSpikeDirection(d model.Direction) model.Direction {
	if d == "all" {
		return model.DirectionAny
	}
	return d
}

func directionPasses(dir model.Direction, change, minPercent float64) bool {
	switch dir {
	case model.DirectionUp:
		return change >= minPercent
	case model.DirectionDown:
		return change <= -minPercent
	case model.DirectionAny:
		return absFloat(change) >= minPercent
	default:
		return false
	}
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// exchangeHost is the canonical trading-page host used to build trigger
// URLs (spec §6).
const exchangeHost = "www.bybit.com"
