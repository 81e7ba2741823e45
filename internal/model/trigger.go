package model

// TriggerData is the evaluation payload stored verbatim as a trigger's
// `data` column. Field set mirrors the original Python `TriggerData`.
type TriggerData struct {
	PriceChangePercent  *float64 `json:"price_change_percent,omitempty"`
	PriceFrom           *float64 `json:"price_from,omitempty"`
	PriceTo             *float64 `json:"price_to,omitempty"`
	VolumePeriod        *float64 `json:"volume_period,omitempty"`
	Volume24h           *float64 `json:"volume_24h,omitempty"`
	SpikeCoefficient    *float64 `json:"spike_coefficient,omitempty"`
	AverageVolume       *float64 `json:"average_volume,omitempty"`
	URL                 string   `json:"url"`
	FirstCandleTS       *int64   `json:"first_candle_timestamp,omitempty"`
	LastCandleTS        *int64   `json:"last_candle_timestamp,omitempty"`
}

// Trigger is an immutable record of one filter evaluation match.
type Trigger struct {
	ID          int64       `json:"id"`
	FilterID    int64       `json:"filter_id"`
	FilterName  string      `json:"filter_name"` // copied at emission time
	FilterType  FilterType  `json:"filter_type"`
	Symbol      Symbol      `json:"-"`
	TriggeredAt int64       `json:"triggered_at"`
	Data        TriggerData `json:"data"`
	Notified    bool        `json:"notified"`
}

// NotificationEvent is the shape dispatched to the external chat
// formatter — consumed, not rendered, by this module.
type NotificationEvent struct {
	FilterID    int64       `json:"filter_id"`
	FilterName  string      `json:"filter_name"`
	FilterType  FilterType  `json:"filter_type"`
	Symbol      string      `json:"symbol"`
	Market      Market      `json:"market"`
	TriggeredAt int64       `json:"triggered_at"`
	Data        TriggerData `json:"data"`
	URL         string      `json:"url"`
}

// TriggerMark is a compact, ephemeral record of a recent filter match
// kept in the rolling cache to annotate the live chart.
type TriggerMark struct {
	Time       int64      `json:"time"`
	FilterName string     `json:"filter_name"`
	FilterType FilterType `json:"filter_type"`
}

// Settings is process-wide mutable configuration managed through the
// settings API (spec §5: "writes are eventually consistent... no
// mid-minute reconfigure of scheduling").
type Settings struct {
	CheckIntervalSeconds int  `json:"check_interval_seconds"` // 60-3600
	CooldownMinutes      int  `json:"cooldown_minutes"`       // 1-1440
	ParseSpot            bool `json:"parse_spot"`
	ParseFutures         bool `json:"parse_futures"`
}

// TriggerStats aggregates trigger counts over today/week/month windows,
// grouped by filter and by symbol.
type TriggerStats struct {
	Today      int64            `json:"today"`
	Week       int64            `json:"week"`
	Month      int64            `json:"month"`
	ByFilter   map[string]int64 `json:"by_filter"`
	BySymbol   map[string]int64 `json:"by_symbol"`
}
