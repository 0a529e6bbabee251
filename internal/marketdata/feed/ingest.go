// Package feed is the WebSocket tick source: it connects to a JSON tick
// server (cmd/tickserver, or a broker bridge speaking the same shape) and
// pushes model.Tick values into the engine.
//
// One text message carries one tick:
//
//	{"instrument":"26009","ts":"2024-06-03T09:15:00.123Z","last_price":48123.5,"last_qty":15,
//	 "ohlc":{"open":48000,"high":48200,"low":47950,"close":48100}}
//
// On connect the client sends {"action":"subscribe","instruments":[...]}
// when a watch-list is configured.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"supertrend-engine/internal/model"
)

// Config holds configuration for the tick feed client.
type Config struct {
	// URL of the tick WebSocket server, e.g. "ws://localhost:9001/ws"
	URL string

	// Instruments to subscribe to. Empty means everything the server sends.
	Instruments []string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *Config) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// SubscribeMessage is sent once per connection.
type SubscribeMessage struct {
	Action      string   `json:"action"`
	Instruments []string `json:"instruments"`
}

// Ingest reads ticks from the WebSocket and pushes them into tickCh.
type Ingest struct {
	cfg Config

	// Optional hooks, set before Start.
	OnReconnect  func()
	OnConnection func(connected bool)
	OnDrop       func(reason string)
}

// New creates a new Ingest. Returns an error if the URL is unparseable.
func New(cfg Config) (*Ingest, error) {
	cfg.defaults()
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, errors.New("feed url must be ws:// or wss://")
	}
	return &Ingest{cfg: cfg}, nil
}

// Start streams ticks into tickCh until ctx is cancelled, reconnecting with
// exponential backoff on disconnect. Sends block so that no tick is lost
// from a count-based window; a slow consumer slows the reader instead.
func (ing *Ingest) Start(ctx context.Context, tickCh chan<- model.Tick) error {
	delay := ing.cfg.ReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		connected, err := ing.runOnce(ctx, tickCh)
		if err == nil {
			return nil
		}
		if connected {
			delay = ing.cfg.ReconnectDelay
		}

		log.Printf("[feed] disconnected (%v), reconnecting in %s...", err, delay)
		if ing.OnReconnect != nil {
			ing.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > ing.cfg.MaxReconnectDelay {
			delay = ing.cfg.MaxReconnectDelay
		}
	}
}

// runOnce makes a single connection attempt and reads until disconnect or
// ctx cancel. connected reports whether the dial succeeded.
func (ing *Ingest) runOnce(ctx context.Context, tickCh chan<- model.Tick) (connected bool, err error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, ing.cfg.URL, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	log.Printf("[feed] connected to %s", ing.cfg.URL)
	ing.setConnected(true)
	defer ing.setConnected(false)

	if len(ing.cfg.Instruments) > 0 {
		sub := SubscribeMessage{Action: "subscribe", Instruments: ing.cfg.Instruments}
		if err := conn.WriteJSON(sub); err != nil {
			return true, err
		}
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return true, nil
			default:
			}
			return true, err
		}

		tick, ok := ing.decode(raw)
		if !ok {
			continue
		}

		select {
		case tickCh <- tick:
		case <-ctx.Done():
			return true, nil
		}
	}
}

// decode parses and validates one message. A missing timestamp is stamped
// with the receive time.
func (ing *Ingest) decode(raw []byte) (model.Tick, bool) {
	var tick model.Tick
	if err := json.Unmarshal(raw, &tick); err != nil {
		log.Printf("[feed] parse error: %v (raw: %s)", err, raw)
		ing.drop("parse_error")
		return tick, false
	}
	if tick.Instrument == "" {
		ing.drop("no_instrument")
		return tick, false
	}
	if tick.LastPrice <= 0 {
		ing.drop("bad_price")
		return tick, false
	}
	if tick.TS.IsZero() {
		tick.TS = time.Now().UTC()
	}
	return tick, true
}

func (ing *Ingest) drop(reason string) {
	if ing.OnDrop != nil {
		ing.OnDrop(reason)
	}
}

func (ing *Ingest) setConnected(v bool) {
	if ing.OnConnection != nil {
		ing.OnConnection(v)
	}
}
