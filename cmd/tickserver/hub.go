package main

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"supertrend-engine/internal/marketdata/feed"
	"supertrend-engine/internal/model"
)

type client struct {
	ch     chan []byte
	mu     sync.RWMutex
	filter map[string]bool // nil = all instruments
}

func (c *client) wants(instrument string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filter == nil || c.filter[instrument]
}

func (c *client) subscribe(instruments []string) {
	f := make(map[string]bool, len(instruments))
	for _, id := range instruments {
		f[id] = true
	}
	c.mu.Lock()
	c.filter = f
	c.mu.Unlock()
}

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]*client
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]*client)}
}

func (h *hub) register(conn *websocket.Conn) *client {
	c := &client{ch: make(chan []byte, 256)}
	h.mu.Lock()
	h.clients[conn] = c
	h.mu.Unlock()
	return c
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if c, ok := h.clients[conn]; ok {
		close(c.ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(tick model.Tick) {
	msg, err := json.Marshal(tick)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if !c.wants(tick.Instrument) {
			continue
		}
		select {
		case c.ch <- msg:
		default: // slow client, drop tick
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func wsHandler(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[tickserver] upgrade error: %v", err)
			return
		}
		log.Printf("[tickserver] client connected: %s", r.RemoteAddr)

		c := h.register(conn)
		defer func() {
			h.unregister(conn)
			conn.Close()
			log.Printf("[tickserver] client disconnected: %s", r.RemoteAddr)
		}()

		// Read pump: subscription messages.
		go func() {
			for {
				var sub feed.SubscribeMessage
				if err := conn.ReadJSON(&sub); err != nil {
					conn.Close()
					return
				}
				if sub.Action == "subscribe" {
					c.subscribe(sub.Instruments)
					log.Printf("[tickserver] %s subscribed to %v", r.RemoteAddr, sub.Instruments)
				}
			}
		}()

		// Write pump.
		for msg := range c.ch {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}
