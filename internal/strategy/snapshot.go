package strategy

import (
	"supertrend-engine/internal/indicator"
	"supertrend-engine/internal/model"
)

// Snapshot is the indicator state of one instrument right after a candle
// completed. The pipeline keeps the latest and the penultimate snapshot.
type Snapshot struct {
	Candle model.Candle `json:"candle"`

	// SuperTrend directions of the slow (21/3), mid (13/2) and fast (8/1) instances.
	Slow indicator.Direction `json:"slow"`
	Mid  indicator.Direction `json:"mid"`
	Fast indicator.Direction `json:"fast"`

	// RSI readings keyed by period.
	RSI map[int]indicator.Value `json:"rsi"`

	// Day high/low carried by the first tick of the candle's window
	// (zero when the feed does not send day OHLC).
	DayHigh float64 `json:"day_high"`
	DayLow  float64 `json:"day_low"`
}

// RSIFor returns the RSI reading for period, undefined when not computed.
func (s *Snapshot) RSIFor(period int) indicator.Value {
	if s == nil || s.RSI == nil {
		return indicator.Undefined
	}
	return s.RSI[period]
}
