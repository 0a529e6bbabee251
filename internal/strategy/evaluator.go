// Package strategy turns per-candle indicator snapshots into signal events.
//
// The Evaluator owns the Open Trade Set shared by every instrument of a
// registry. For each completed candle it runs the composite SuperTrend
// buy/sell state machine, the RSI threshold-crossing detectors and the day
// high/low breakout detector. Any rule whose inputs are undefined is skipped
// for that candle.
package strategy

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"supertrend-engine/internal/indicator"
	"supertrend-engine/internal/model"
)

// CrossingRule is an RSI threshold-crossing detector for one period.
type CrossingRule struct {
	Period int     `json:"period" yaml:"period"`
	High   float64 `json:"high" yaml:"high"`
	Low    float64 `json:"low" yaml:"low"`
}

// DefaultCrossings returns the RSI-34/21/13 crossing detectors.
func DefaultCrossings() []CrossingRule {
	return []CrossingRule{
		{Period: 34, High: 66, Low: 34},
		{Period: 21, High: 66, Low: 34},
		{Period: 13, High: 79, Low: 21},
	}
}

// Options tunes the evaluator.
type Options struct {
	// DoubleBuyOpensTrade adds the instrument to the Open Trade Set on a
	// double-supertrend-buy. Off by default: only the triple buy opens a trade.
	DoubleBuyOpensTrade bool

	// CrossingOnClose compares the latest candle close, instead of the
	// latest RSI, against the crossing threshold.
	CrossingOnClose bool

	// RSISellPeriod / RSISellLevel gate the in-trade rsi21-sell.
	RSISellPeriod int
	RSISellLevel  float64

	Crossings []CrossingRule

	// DayBreakouts enables day-high-breakout / day-low-breakdown signals.
	DayBreakouts bool
}

// DefaultOptions returns the standard rule set.
func DefaultOptions() Options {
	return Options{
		RSISellPeriod: 21,
		RSISellLevel:  79,
		Crossings:     DefaultCrossings(),
		DayBreakouts:  true,
	}
}

// OpenTrade is one entry of the Open Trade Set.
type OpenTrade struct {
	Instrument string    `json:"instrument"`
	Symbol     string    `json:"symbol"`
	Since      time.Time `json:"since"`
	EntryPrice float64   `json:"entry_price"`
}

// Evaluator decides signal emission and owns the Open Trade Set.
// Safe for concurrent use by the per-instrument pipelines.
type Evaluator struct {
	opts Options

	mu   sync.Mutex
	open map[string]OpenTrade // instrument id → trade

	// OnOpenTradesChanged is called with the new set size (optional, set externally).
	OnOpenTradesChanged func(n int)
}

// NewEvaluator creates an evaluator with an empty Open Trade Set.
func NewEvaluator(opts Options) *Evaluator {
	if opts.RSISellPeriod == 0 {
		opts.RSISellPeriod = 21
	}
	if opts.RSISellLevel == 0 {
		opts.RSISellLevel = 79
	}
	return &Evaluator{opts: opts, open: make(map[string]OpenTrade)}
}

// Options returns the evaluator options.
func (e *Evaluator) Options() Options { return e.opts }

// Evaluate runs every rule for one completed candle of inst. penultimate is
// nil on the instrument's first candle. lastPrice is the last traded price
// carried on the emitted signals.
func (e *Evaluator) Evaluate(inst model.Instrument, latest Snapshot, penultimate *Snapshot, lastPrice float64) []model.Signal {
	ts := latest.Candle.CloseTS
	if ts.IsZero() {
		ts = latest.Candle.TS
	}
	emit := func(out []model.Signal, kind model.SignalKind, reason string) []model.Signal {
		return append(out, model.NewSignal(inst, kind, ts, lastPrice, reason))
	}

	var out []model.Signal

	e.mu.Lock()
	trade, inTrade := e.open[inst.ID]
	changed := false
	if !inTrade {
		switch {
		case latest.Slow.Defined() && latest.Mid.Defined() && latest.Fast.Defined() &&
			latest.Slow == indicator.DirUp && latest.Mid == indicator.DirUp && latest.Fast == indicator.DirUp:
			out = emit(out, model.SignalTripleSuperTrendBuy, "slow, mid and fast supertrend up")
			e.open[inst.ID] = OpenTrade{Instrument: inst.ID, Symbol: inst.Name(), Since: ts, EntryPrice: lastPrice}
			changed = true
		case latest.Slow != indicator.DirUp && latest.Mid == indicator.DirUp:
			// Slow up with a lagging fast is a wait, not a double buy.
			out = emit(out, model.SignalDoubleSuperTrendBuy, "mid supertrend up, slow not up")
			if e.opts.DoubleBuyOpensTrade {
				e.open[inst.ID] = OpenTrade{Instrument: inst.ID, Symbol: inst.Name(), Since: ts, EntryPrice: lastPrice}
				changed = true
			}
		}
	} else {
		rsi := latest.RSIFor(e.opts.RSISellPeriod)
		switch {
		case latest.Fast == indicator.DirDown:
			out = emit(out, model.SignalSuperTrend8Sell,
				fmt.Sprintf("fast supertrend down, entry %.2f", trade.EntryPrice))
			delete(e.open, inst.ID)
			changed = true
		case rsi.Valid && rsi.V >= e.opts.RSISellLevel:
			out = emit(out, model.SignalRSI21Sell,
				fmt.Sprintf("RSI_%d %.2f >= %.0f", e.opts.RSISellPeriod, rsi.V, e.opts.RSISellLevel))
		}
	}
	n := len(e.open)
	e.mu.Unlock()

	if changed {
		log.Printf("[strategy] open trades: %d (%s)", n, inst.Name())
		if e.OnOpenTradesChanged != nil {
			e.OnOpenTradesChanged(n)
		}
	}

	if penultimate == nil {
		return out
	}

	for _, rule := range e.opts.Crossings {
		prev := penultimate.RSIFor(rule.Period)
		if !prev.Valid {
			continue
		}
		var cur float64
		if e.opts.CrossingOnClose {
			cur = latest.Candle.Close
		} else {
			v := latest.RSIFor(rule.Period)
			if !v.Valid {
				continue
			}
			cur = v.V
		}
		switch {
		case prev.V > rule.High && cur <= rule.High:
			out = emit(out, model.CrossingKind(rule.Period, false),
				fmt.Sprintf("RSI_%d %.2f -> %.2f through %.0f", rule.Period, prev.V, cur, rule.High))
		case prev.V < rule.Low && cur >= rule.Low:
			out = emit(out, model.CrossingKind(rule.Period, true),
				fmt.Sprintf("RSI_%d %.2f -> %.2f through %.0f", rule.Period, prev.V, cur, rule.Low))
		}
	}

	if e.opts.DayBreakouts {
		c, p := latest.Candle.Close, penultimate.Candle.Close
		if latest.DayHigh > 0 && penultimate.DayHigh > 0 && c > latest.DayHigh && p <= penultimate.DayHigh {
			out = emit(out, model.SignalDayHighBreakout,
				fmt.Sprintf("close %.2f above day high %.2f", c, latest.DayHigh))
		}
		if latest.DayLow > 0 && penultimate.DayLow > 0 && c < latest.DayLow && p >= penultimate.DayLow {
			out = emit(out, model.SignalDayLowBreakdown,
				fmt.Sprintf("close %.2f below day low %.2f", c, latest.DayLow))
		}
	}

	return out
}

// InTrade reports whether instrument is in the Open Trade Set.
func (e *Evaluator) InTrade(instrument string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.open[instrument]
	return ok
}

// OpenTrades returns the Open Trade Set ordered by instrument.
func (e *Evaluator) OpenTrades() []OpenTrade {
	e.mu.Lock()
	out := make([]OpenTrade, 0, len(e.open))
	for _, t := range e.open {
		out = append(out, t)
	}
	e.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Instrument < out[j].Instrument })
	return out
}

// Restore replaces the Open Trade Set, e.g. from a checkpoint.
func (e *Evaluator) Restore(trades []OpenTrade) {
	e.mu.Lock()
	e.open = make(map[string]OpenTrade, len(trades))
	for _, t := range trades {
		e.open[t.Instrument] = t
	}
	n := len(e.open)
	e.mu.Unlock()

	if e.OnOpenTradesChanged != nil {
		e.OnOpenTradesChanged(n)
	}
}
