// Package gateway is the chart WebSocket transport: a client registry,
// per-subscription filtering, and a hand-crafted-JSON broadcast path for
// candle_update/trigger_mark/status pushes (spec §4.9, §6). Grounded on
// the teacher's internal/gateway/hub.go + client.go (Redis pub/sub hub,
// per-client subscription matching, write-coalescing pump), generalized
// from timeframe/indicator channels to a flat (symbol, market) key and
// from Redis-relayed messages to direct in-process broadcast (the
// screener has one process, not a separate ingest/gateway split).
package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cryptoscreener/internal/model"
)

// Hub owns the connected client registry and is the sole writer of
// chart messages. It implements fanout.Broadcaster.
type Hub struct {
	log *slog.Logger

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

// NewHub creates an empty Hub.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{log: log, clients: make(map[*Client]struct{})}
}

// Upgrader is the shared websocket.Upgrader used by the HTTP handler
// that accepts chart connections.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// UpgradeHandler upgrades an incoming HTTP request to a chart WebSocket
// connection and registers it with the hub.
func (h *Hub) UpgradeHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("chart websocket upgrade failed", "err", err)
		return
	}
	h.Accept(conn)
}

// Accept registers conn as a new chart client and starts its pumps.
func (h *Hub) Accept(conn *websocket.Conn) {
	c := &Client{
		conn: conn,
		send: make(chan []byte, 64),
		hub:  h,
		subs: make(map[string]struct{}),
	}
	conn.EnableWriteCompression(true)

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.log.Debug("chart client connected", "total", n)

	go c.writePump()
	go c.readPump()
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	close(c.send)
	h.log.Debug("chart client disconnected", "total", n)
}

// ClientCount reports the number of connected chart clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastCandle pushes a freshly finalized candle to every client
// subscribed to sym. Best-effort: a full client send buffer drops the
// message rather than blocking the caller (spec §4.8: broadcast must
// never stall evaluation).
func (h *Hub) BroadcastCandle(sym model.Symbol, c model.Candle) {
	msg := candleUpdateMsg{
		Type:   "candle_update",
		Symbol: sym.Exchange(),
		Market: string(sym.Market),
		Candle: CandleOut{Time: c.Timestamp, Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, Volume: c.Volume},
	}
	h.send(sym.Key(), msg)
}

// BroadcastTrigger implements fanout.Broadcaster.
func (h *Hub) BroadcastTrigger(t model.Trigger) {
	msg := triggerMarkMsg{
		Type:   "trigger_mark",
		Symbol: t.Symbol.Exchange(),
		Market: string(t.Symbol.Market),
		Trigger: TriggerOut{
			Time:       t.TriggeredAt,
			FilterName: t.FilterName,
			FilterType: string(t.FilterType),
		},
	}
	h.send(t.Symbol.Key(), msg)
}

// BroadcastStatus reports stream health for one symbol (spec §6:
// live|reconnecting|offline|stale).
func (h *Hub) BroadcastStatus(sym model.Symbol, status string) {
	msg := statusMsg{Type: "status", Symbol: sym.Exchange(), Market: string(sym.Market), Status: status}
	h.send(sym.Key(), msg)
}

func (h *Hub) send(key string, v interface{}) {
	buf, err := json.Marshal(v)
	if err != nil {
		h.log.Error("gateway marshal failed", "err", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.subscribedTo(key) {
			continue
		}
		select {
		case c.send <- buf:
		default:
			h.log.Warn("chart client send buffer full, dropping message", "key", key)
		}
	}
}

// pingInterval is how often writePump sends a keepalive ping.
const pingInterval = 30 * time.Second
