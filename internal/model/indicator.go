package model

import (
	"encoding/json"
	"time"
)

// IndicatorResult holds one computed indicator value for a completed candle.
type IndicatorResult struct {
	Name       string    `json:"name"` // e.g. "ATR_21", "ST_21_3", "STX_21_3", "RSI_13"
	Instrument string    `json:"instrument"`
	Value      float64   `json:"value"` // 0 when not ready; display only
	TS         time.Time `json:"ts"`    // candle timestamp that produced this value
	Ready      bool      `json:"ready"` // false while the indicator is undefined
}

// StreamKey returns the Redis stream key: "ind:{name}:{instrument}".
func (r *IndicatorResult) StreamKey() string {
	return "ind:" + r.Name + ":" + r.Instrument
}

// LatestKey returns the Redis key holding the most recent value.
func (r *IndicatorResult) LatestKey() string {
	return "ind:" + r.Name + ":latest:" + r.Instrument
}

// JSON returns the JSON-encoded indicator result.
func (r *IndicatorResult) JSON() []byte {
	b, _ := json.Marshal(r)
	return b
}
