package gateway

// SubscribeMsg is a client→server chart subscription request (spec §6):
// {action: "subscribe"|"unsubscribe", symbol, market}.
type SubscribeMsg struct {
	Action string `json:"action"`
	Symbol string `json:"symbol"`
	Market string `json:"market"`
}

// CandleOut is the candle payload embedded in a candle_update message.
type CandleOut struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// TriggerOut is the trigger payload embedded in a trigger_mark message.
type TriggerOut struct {
	Time       int64  `json:"time"`
	FilterName string `json:"filter_name"`
	FilterType string `json:"filter_type"`
}

// candleUpdateMsg is a server→client push of one freshly finalized candle.
type candleUpdateMsg struct {
	Type   string    `json:"type"`
	Symbol string    `json:"symbol"`
	Market string    `json:"market"`
	Candle CandleOut `json:"candle"`
}

// triggerMarkMsg is a server→client push of a filter match annotation.
type triggerMarkMsg struct {
	Type    string     `json:"type"`
	Symbol  string     `json:"symbol"`
	Market  string     `json:"market"`
	Trigger TriggerOut `json:"trigger"`
}

// statusMsg reports stream health for one symbol, or process-wide when
// Symbol is empty.
type statusMsg struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol,omitempty"`
	Market string `json:"market,omitempty"`
	Status string `json:"status"`
}

const (
	StatusLive         = "live"
	StatusReconnecting = "reconnecting"
	StatusOffline      = "offline"
	StatusStale        = "stale"
)
