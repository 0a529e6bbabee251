// Package indicator provides incremental technical indicator calculations
// over candle data.
//
// Every indicator is updated once per completed candle in O(1) and reports
// an explicit Value. A Value that is not Valid means the indicator does not
// have enough history yet; callers must skip any decision that depends on it
// instead of reading it as zero.
package indicator

import (
	"strconv"

	"supertrend-engine/internal/model"
)

// Value is an indicator reading that may be undefined.
type Value struct {
	V     float64 `json:"v"`
	Valid bool    `json:"valid"`
}

// Undefined is the reading of an indicator without enough history.
var Undefined = Value{}

// Defined wraps a computed reading.
func Defined(v float64) Value { return Value{V: v, Valid: true} }

// Or returns the reading, or def when undefined. Display/export only.
func (v Value) Or(def float64) float64 {
	if !v.Valid {
		return def
	}
	return v.V
}

// Direction is the SuperTrend trend direction.
type Direction int8

const (
	DirUndefined Direction = iota
	DirUp
	DirDown
)

func (d Direction) String() string {
	switch d {
	case DirUp:
		return "up"
	case DirDown:
		return "down"
	default:
		return "undefined"
	}
}

// Defined reports whether the direction is known.
func (d Direction) Defined() bool { return d != DirUndefined }

// Indicator is the interface for close-price indicators (RSI, EMA, WMA).
type Indicator interface {
	// Name returns the indicator name (e.g., "RSI_13", "EMA_21").
	Name() string

	// Update feeds a new completed candle and returns the new reading.
	Update(candle model.Candle) Value

	// Value returns the current reading.
	Value() Value

	// Ready returns true when enough data has been accumulated.
	Ready() bool
}

// TrueRange returns max(high−low, |high−prevClose|, |low−prevClose|).
func TrueRange(high, low, prevClose float64) float64 {
	tr := high - low
	if v := abs(high - prevClose); v > tr {
		tr = v
	}
	if v := abs(low - prevClose); v > tr {
		tr = v
	}
	return tr
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func name(typ string, period int) string {
	return typ + "_" + strconv.Itoa(period)
}
