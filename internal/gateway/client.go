package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cryptoscreener/internal/model"
)

// Client is a single chart WebSocket peer, subscribed to zero or more
// (symbol, market) keys. Kept close to the teacher's write-coalescing
// pump design in internal/gateway/client.go.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	subMu sync.RWMutex
	subs  map[string]struct{} // keys are model.Symbol.Key()
}

func (c *Client) subscribedTo(key string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, ok := c.subs[key]
	return ok
}

func (c *Client) subscribe(key string) {
	c.subMu.Lock()
	c.subs[key] = struct{}{}
	c.subMu.Unlock()
}

func (c *Client) unsubscribe(key string) {
	c.subMu.Lock()
	delete(c.subs, key)
	c.subMu.Unlock()
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer c.hub.remove(c)

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg SubscribeMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Symbol == "" || msg.Market == "" {
			continue
		}
		key := model.ParseSymbol(msg.Symbol, model.Market(msg.Market)).Key()

		switch msg.Action {
		case "subscribe":
			c.subscribe(key)
		case "unsubscribe":
			c.unsubscribe(key)
		}
	}
}
