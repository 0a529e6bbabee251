// Package agg folds a per-instrument tick stream into fixed-count OHLCV candles.
package agg

import (
	"errors"
	"fmt"
	"time"

	"supertrend-engine/internal/model"
)

// DefaultSize is the number of ticks folded into one candle.
const DefaultSize = 210

// ErrOutOfOrder is returned for a tick older than the last folded tick.
var ErrOutOfOrder = errors.New("agg: out-of-order tick")

// Window builds one candle from every size consecutive ticks of a single
// instrument. Not safe for concurrent use; each pipeline owns its Window.
type Window struct {
	instrument string
	size       int

	prices []float64 // observed prices of the current window
	volume int64
	first  time.Time
	last   time.Time // timestamp of the last folded tick (survives resets)
	day    model.DayOHLC

	openDay model.DayOHLC // day snapshot at the opening tick of the last emitted candle

	// Metrics hooks (optional, set externally)
	OnDroppedTick func()
}

// New creates a Window for instrument. size < 1 falls back to DefaultSize.
func New(instrument string, size int) *Window {
	if size < 1 {
		size = DefaultSize
	}
	return &Window{
		instrument: instrument,
		size:       size,
		prices:     make([]float64, 0, size),
	}
}

// Size returns the configured window length.
func (w *Window) Size() int { return w.size }

// Pending returns the number of ticks folded into the current partial window.
func (w *Window) Pending() int { return len(w.prices) }

// LastTS returns the timestamp of the last folded tick.
func (w *Window) LastTS() time.Time { return w.last }

// OpenDay returns the day OHLC carried by the first tick of the most
// recently emitted candle.
func (w *Window) OpenDay() model.DayOHLC { return w.openDay }

// Ingest folds one tick. It returns the completed candle and true when the
// tick fills the window; otherwise the zero candle and false.
func (w *Window) Ingest(tick model.Tick) (model.Candle, bool, error) {
	if tick.Instrument != w.instrument {
		return model.Candle{}, false, fmt.Errorf("agg: tick for %s routed to window %s", tick.Instrument, w.instrument)
	}
	if !w.last.IsZero() && tick.TS.Before(w.last) {
		if w.OnDroppedTick != nil {
			w.OnDroppedTick()
		}
		return model.Candle{}, false, fmt.Errorf("%w: %s ts=%s last=%s", ErrOutOfOrder,
			tick.Instrument, tick.TS.Format(time.RFC3339Nano), w.last.Format(time.RFC3339Nano))
	}

	if len(w.prices) == 0 {
		w.first = tick.TS
		w.day = tick.Day
	}
	w.prices = append(w.prices, tick.LastPrice)
	w.volume += tick.LastQty
	w.last = tick.TS

	if len(w.prices) < w.size {
		return model.Candle{}, false, nil
	}

	c := model.Candle{
		Instrument: w.instrument,
		TS:         w.first,
		CloseTS:    w.last,
		Open:       w.prices[0],
		High:       w.prices[0],
		Low:        w.prices[0],
		Close:      w.prices[len(w.prices)-1],
		Volume:     w.volume,
		Ticks:      len(w.prices),
	}
	for _, p := range w.prices[1:] {
		if p > c.High {
			c.High = p
		}
		if p < c.Low {
			c.Low = p
		}
	}
	w.openDay = w.day
	w.Reset()
	return c, true, nil
}

// Reset discards the partial window. The out-of-order watermark is kept.
func (w *Window) Reset() {
	w.prices = w.prices[:0]
	w.volume = 0
	w.first = time.Time{}
	w.day = model.DayOHLC{}
}

// Restore sets the out-of-order watermark, e.g. after a historical seed.
func (w *Window) Restore(lastTS time.Time) {
	if lastTS.After(w.last) {
		w.last = lastTS
	}
}
