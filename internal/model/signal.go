package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SignalKind identifies the rule that produced a signal.
type SignalKind string

const (
	SignalTripleSuperTrendBuy SignalKind = "triple-supertrend-buy"
	SignalDoubleSuperTrendBuy SignalKind = "double-supertrend-buy"
	SignalSuperTrend8Sell     SignalKind = "supertrend-8-sell"
	SignalRSI21Sell           SignalKind = "rsi21-sell"

	SignalDayHighBreakout SignalKind = "day-high-breakout"
	SignalDayLowBreakdown SignalKind = "day-low-breakdown"
)

// CrossingKind returns the kind for an RSI threshold crossing of the given period.
// up=true is a cross up through the low threshold, up=false a cross down
// through the high threshold.
func CrossingKind(period int, up bool) SignalKind {
	dir := "down"
	if up {
		dir = "up"
	}
	return SignalKind("rsi-crossing-" + itoa(period) + "-" + dir)
}

// Signal is an emitted signal event. Never mutated after creation.
type Signal struct {
	ID         string     `json:"id" csv:"id"`
	Instrument string     `json:"instrument" csv:"instrument"`
	Symbol     string     `json:"symbol" csv:"symbol"`
	Kind       SignalKind `json:"kind" csv:"kind"`
	TS         time.Time  `json:"ts" csv:"ts"`
	LastPrice  float64    `json:"last_price" csv:"last_price"`
	Reason     string     `json:"reason,omitempty" csv:"reason"`
}

// NewSignal builds a signal with a fresh ID.
func NewSignal(inst Instrument, kind SignalKind, ts time.Time, lastPrice float64, reason string) Signal {
	return Signal{
		ID:         uuid.NewString(),
		Instrument: inst.ID,
		Symbol:     inst.Name(),
		Kind:       kind,
		TS:         ts,
		LastPrice:  lastPrice,
		Reason:     reason,
	}
}

// JSON returns the JSON-encoded signal.
func (s *Signal) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}

// itoa is a minimal int-to-string without importing strconv in hot path.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	buf := [20]byte{}
	i := len(buf)
	neg := n < 0
	if neg {
		n = -n
	}
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
