package model

import "fmt"

// FilterType names which predicate a Filter evaluates.
type FilterType string

const (
	FilterPriceChange FilterType = "price_change"
	FilterVolumeSpike FilterType = "volume_spike"
)

// Direction constrains which sign of price movement a filter accepts.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionAny  Direction = "any"
)

var validIntervals = map[int]bool{5: true, 10: true, 15: true, 30: true, 60: true, 120: true, 240: true}
var validShortPeriods = map[int]bool{5: true, 10: true, 15: true, 30: true}
var validBasePeriods = map[int]bool{60: true, 120: true, 240: true}

// PriceChangeConfig is the typed config for a price_change filter.
type PriceChangeConfig struct {
	Market                Market    `json:"market"`
	IntervalMinutes       int       `json:"interval_minutes"`
	MinPriceChangePercent float64   `json:"min_price_change_percent"`
	Direction             Direction `json:"direction"`
	MinVolumePeriod       float64   `json:"min_volume_period"`
	MinVolume24h          float64   `json:"min_volume_24h"`
	MaxVolume24h          *float64  `json:"max_volume_24h,omitempty"`
	ExcludeCoins          []string  `json:"exclude_coins,omitempty"`
	Comment               string    `json:"comment,omitempty"`
}

// Validate rejects out-of-enum values, negative percentages and an
// inverted volume range, per spec §6.
func (c PriceChangeConfig) Validate() error {
	if c.Market != MarketSpot && c.Market != MarketFutures {
		return fmt.Errorf("price_change: invalid market %q", c.Market)
	}
	if !validIntervals[c.IntervalMinutes] {
		return fmt.Errorf("price_change: invalid interval_minutes %d", c.IntervalMinutes)
	}
	if c.MinPriceChangePercent < 0 {
		return fmt.Errorf("price_change: min_price_change_percent must be >= 0")
	}
	switch c.Direction {
	case DirectionUp, DirectionDown, DirectionAny:
	default:
		return fmt.Errorf("price_change: invalid direction %q", c.Direction)
	}
	if c.MinVolumePeriod < 0 {
		return fmt.Errorf("price_change: min_volume_period must be >= 0")
	}
	if c.MinVolume24h < 0 {
		return fmt.Errorf("price_change: min_volume_24h must be >= 0")
	}
	if c.MaxVolume24h != nil && *c.MaxVolume24h <= c.MinVolume24h {
		return fmt.Errorf("price_change: max_volume_24h must be > min_volume_24h")
	}
	return nil
}

// VolumeSpikeConfig is the typed config for a volume_spike filter.
type VolumeSpikeConfig struct {
	Market                Market    `json:"market"`
	ShortPeriodMinutes    int       `json:"short_period_minutes"`
	BasePeriodMinutes     int       `json:"base_period_minutes"`
	SpikeCoefficient      float64   `json:"spike_coefficient"`
	PriceDirection        Direction `json:"price_direction"` // up|down|all
	MinPriceChangePercent float64   `json:"min_price_change_percent"`
	MinVolume24h          float64   `json:"min_volume_24h"`
	MaxVolume24h          *float64  `json:"max_volume_24h,omitempty"`
	ExcludeCoins          []string  `json:"exclude_coins,omitempty"`
	Comment               string    `json:"comment,omitempty"`
}

// Validate rejects out-of-enum values, a base period not exceeding the
// short period, negative percentages and an inverted volume range.
func (c VolumeSpikeConfig) Validate() error {
	if c.Market != MarketSpot && c.Market != MarketFutures {
		return fmt.Errorf("volume_spike: invalid market %q", c.Market)
	}
	if !validShortPeriods[c.ShortPeriodMinutes] {
		return fmt.Errorf("volume_spike: invalid short_period_minutes %d", c.ShortPeriodMinutes)
	}
	if !validBasePeriods[c.BasePeriodMinutes] {
		return fmt.Errorf("volume_spike: invalid base_period_minutes %d", c.BasePeriodMinutes)
	}
	if c.BasePeriodMinutes <= c.ShortPeriodMinutes {
		return fmt.Errorf("volume_spike: base_period_minutes must exceed short_period_minutes")
	}
	if c.SpikeCoefficient < 1 {
		return fmt.Errorf("volume_spike: spike_coefficient must be >= 1")
	}
	switch c.PriceDirection {
	case DirectionUp, DirectionDown, "all":
	default:
		return fmt.Errorf("volume_spike: invalid price_direction %q", c.PriceDirection)
	}
	if c.MinPriceChangePercent < 0 {
		return fmt.Errorf("volume_spike: min_price_change_percent must be >= 0")
	}
	if c.MinVolume24h < 0 {
		return fmt.Errorf("volume_spike: min_volume_24h must be >= 0")
	}
	if c.MaxVolume24h != nil && *c.MaxVolume24h <= c.MinVolume24h {
		return fmt.Errorf("volume_spike: max_volume_24h must be > min_volume_24h")
	}
	return nil
}

// FilterConfig is the tagged-variant config a Filter carries. Exactly one
// of PriceChange / VolumeSpike is non-nil, selected by Type.
type FilterConfig struct {
	Type        FilterType         `json:"type"`
	PriceChange *PriceChangeConfig `json:"price_change,omitempty"`
	VolumeSpike *VolumeSpikeConfig `json:"volume_spike,omitempty"`
}

// Validate dispatches to the variant named by Type.
func (c FilterConfig) Validate() error {
	switch c.Type {
	case FilterPriceChange:
		if c.PriceChange == nil {
			return fmt.Errorf("filter config: type=price_change but no price_change body")
		}
		return c.PriceChange.Validate()
	case FilterVolumeSpike:
		if c.VolumeSpike == nil {
			return fmt.Errorf("filter config: type=volume_spike but no volume_spike body")
		}
		return c.VolumeSpike.Validate()
	default:
		return fmt.Errorf("filter config: unknown type %q", c.Type)
	}
}

// Market returns the market the config's variant observes.
func (c FilterConfig) Market() Market {
	switch c.Type {
	case FilterPriceChange:
		return c.PriceChange.Market
	case FilterVolumeSpike:
		return c.VolumeSpike.Market
	default:
		return ""
	}
}

// excludes reports whether the config's exclude list names this symbol.
func (c FilterConfig) excludes(base string) bool {
	var list []string
	switch c.Type {
	case FilterPriceChange:
		list = c.PriceChange.ExcludeCoins
	case FilterVolumeSpike:
		list = c.VolumeSpike.ExcludeCoins
	}
	for _, x := range list {
		if x == base {
			return true
		}
	}
	return false
}

// Excludes reports whether this filter excludes the given symbol.
func (f Filter) Excludes(sym Symbol) bool {
	return f.Config.excludes(sym.Base)
}

// Filter is a named, enabled/disabled predicate with a typed config.
type Filter struct {
	ID        int64        `json:"id"`
	Name      string       `json:"name"`
	Type      FilterType   `json:"type"`
	Enabled   bool         `json:"enabled"`
	Config    FilterConfig `json:"config"`
	CreatedAt int64        `json:"created_at"`
	UpdatedAt int64        `json:"updated_at,omitempty"`
}

// Matches reports whether the filter is active for the given symbol:
// enabled, observing the symbol's market, and not excluding the symbol.
func (f Filter) Matches(sym Symbol) bool {
	return f.Enabled && f.Config.Market() == sym.Market && !f.Excludes(sym)
}
