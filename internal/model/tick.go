package model

import "time"

// DayOHLC is the exchange's running day open/high/low/close carried on every tick.
type DayOHLC struct {
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// Tick represents a single market data tick for one instrument.
// Ticks are ephemeral: the aggregator folds them and drops them.
type Tick struct {
	Instrument string    `json:"instrument"`
	TS         time.Time `json:"ts"`         // exchange/feed timestamp (UTC)
	LastPrice  float64   `json:"last_price"` // LTP
	LastQty    int64     `json:"last_qty"`   // last traded quantity
	Day        DayOHLC   `json:"ohlc"`
}
