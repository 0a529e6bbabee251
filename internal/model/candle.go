package model

import (
	"encoding/json"
	"time"
)

// Candle is an OHLCV bar built from a fixed-count window of ticks.
// Candles are immutable once appended to an instrument's series.
type Candle struct {
	Instrument string    `json:"instrument" csv:"instrument"`
	TS         time.Time `json:"ts" csv:"ts"`             // timestamp of the first tick in the window
	CloseTS    time.Time `json:"close_ts" csv:"close_ts"` // timestamp of the last tick in the window
	Open       float64   `json:"open" csv:"open"`
	High       float64   `json:"high" csv:"high"`
	Low        float64   `json:"low" csv:"low"`
	Close      float64   `json:"close" csv:"close"`
	Volume     int64     `json:"volume" csv:"volume"`
	Ticks      int       `json:"ticks" csv:"ticks"` // number of ticks folded
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}
