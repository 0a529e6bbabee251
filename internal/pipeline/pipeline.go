// Package pipeline runs the per-instrument tick → candle → indicator →
// signal state machine.
//
// Each instrument owns one Pipeline; a Registry maps instrument ids to
// pipelines and fans a mixed tick stream out to them. Nothing is shared
// across pipelines except the read-only Config and the Evaluator's Open
// Trade Set, which is keyed by instrument.
package pipeline

import (
	"fmt"
	"log"
	"sync"
	"time"

	"supertrend-engine/internal/indicator"
	"supertrend-engine/internal/marketdata/agg"
	"supertrend-engine/internal/model"
	"supertrend-engine/internal/ringbuf"
	"supertrend-engine/internal/strategy"
)

// Result is the outcome of a tick that completed a candle.
type Result struct {
	Instrument model.Instrument
	Candle     model.Candle
	Snapshot   strategy.Snapshot
	Indicators []model.IndicatorResult
	Signals    []model.Signal
	Elapsed    time.Duration // candle-completion processing time
}

// Hooks are optional callbacks, set before ticks flow.
type Hooks struct {
	OnDroppedTick        func(reason string)
	OnInvariantViolation func(name string)
}

// Pipeline is the state machine of one instrument. Every call takes the
// pipeline lock, so a tick is either fully folded (window, indicators,
// snapshots, open trade set) or not at all.
type Pipeline struct {
	mu   sync.Mutex
	inst model.Instrument
	cfg  Config
	eval *strategy.Evaluator

	window  *agg.Window
	history *ringbuf.Ring

	atrs map[int]*indicator.ATR // keyed by period, shared by SuperTrends of that period
	sts  []*indicator.SuperTrend
	rsis []*indicator.RSI
	ema  *indicator.EMA
	wma  *indicator.WMA

	latest      *strategy.Snapshot
	penultimate *strategy.Snapshot
	lastPrice   float64
	candles     uint64
	indicators  []model.IndicatorResult // readings of the latest candle

	hooks Hooks
}

// New creates a pipeline for inst. cfg must be valid.
func New(inst model.Instrument, cfg Config, eval *strategy.Evaluator, hooks Hooks) *Pipeline {
	p := &Pipeline{
		inst:  inst,
		cfg:   cfg,
		eval:  eval,
		hooks: hooks,
	}
	p.reset()
	return p
}

// reset builds fresh indicator instances.
func (p *Pipeline) reset() {
	p.window = agg.New(p.inst.ID, p.cfg.WindowSize)
	p.window.OnDroppedTick = func() {
		if p.hooks.OnDroppedTick != nil {
			p.hooks.OnDroppedTick("out_of_order")
		}
	}
	p.history = ringbuf.New(p.cfg.HistorySize)

	p.atrs = make(map[int]*indicator.ATR, len(p.cfg.SuperTrends))
	p.sts = make([]*indicator.SuperTrend, len(p.cfg.SuperTrends))
	for i, s := range p.cfg.SuperTrends {
		if _, ok := p.atrs[s.Period]; !ok {
			p.atrs[s.Period] = indicator.NewATR(s.Period)
		}
		st := indicator.NewSuperTrend(s.Period, s.Multiplier)
		st.OnInvariantViolation = func(name string) {
			log.Printf("[pipeline] %s: %s trend undefined for this candle", p.inst.Name(), name)
			if p.hooks.OnInvariantViolation != nil {
				p.hooks.OnInvariantViolation(name)
			}
		}
		p.sts[i] = st
	}
	p.rsis = make([]*indicator.RSI, len(p.cfg.RSIPeriods))
	for i, period := range p.cfg.RSIPeriods {
		p.rsis[i] = indicator.NewRSI(period)
	}
	p.ema = indicator.NewEMA(p.cfg.DisplayPeriod)
	p.wma = indicator.NewWMA(p.cfg.DisplayPeriod)

	p.latest, p.penultimate = nil, nil
	p.indicators = nil
	p.lastPrice = 0
	p.candles = 0
}

// Instrument returns the pipeline's instrument.
func (p *Pipeline) Instrument() model.Instrument { return p.inst }

// Ingest folds one tick. It returns a Result when the tick completed a
// candle, nil otherwise. Out-of-order ticks are rejected with ErrOutOfOrder
// and leave all state untouched.
func (p *Pipeline) Ingest(tick model.Tick) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, done, err := p.window.Ingest(tick)
	if err != nil {
		return nil, err
	}
	p.lastPrice = tick.LastPrice
	if !done {
		return nil, nil
	}

	start := time.Now()
	res := p.step(c, p.window.OpenDay())
	res.Signals = p.eval.Evaluate(p.inst, *p.latest, p.penultimate, p.lastPrice)
	res.Elapsed = time.Since(start)
	return res, nil
}

// Seed pre-populates the series with historical candles, oldest first, so
// the indicators are warm before live ticks arrive. Seed candles never emit
// signals. Candles older than the current series end are skipped; the
// returned error then wraps ErrOutOfOrder. Returns the number applied.
func (p *Pipeline) Seed(candles []model.Candle) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	applied, rejected := 0, 0
	for _, c := range candles {
		if c.Instrument != "" && c.Instrument != p.inst.ID {
			rejected++
			continue
		}
		last := p.window.LastTS()
		if !last.IsZero() && c.TS.Before(last) {
			rejected++
			continue
		}
		c.Instrument = p.inst.ID
		p.step(c, model.DayOHLC{})
		closeTS := c.CloseTS
		if closeTS.IsZero() {
			closeTS = c.TS
		}
		p.window.Restore(closeTS)
		p.lastPrice = c.Close
		applied++
	}
	if rejected > 0 {
		log.Printf("[pipeline] %s: seed skipped %d out-of-order candles", p.inst.Name(), rejected)
		return applied, fmt.Errorf("%w: %d seed candles for %s", ErrOutOfOrder, rejected, p.inst.ID)
	}
	return applied, nil
}

// step advances every indicator with one completed candle and rotates the
// latest/penultimate snapshots. Caller holds p.mu.
func (p *Pipeline) step(c model.Candle, day model.DayOHLC) *Result {
	p.history.Push(c)
	p.candles++

	results := make([]model.IndicatorResult, 0, len(p.atrs)+2*len(p.sts)+len(p.rsis)+2)
	add := func(name string, v indicator.Value) {
		results = append(results, model.IndicatorResult{
			Name:       name,
			Instrument: p.inst.ID,
			Value:      v.Or(0),
			TS:         c.TS,
			Ready:      v.Valid,
		})
	}

	atrVals := make(map[int]indicator.Value, len(p.atrs))
	for _, s := range p.cfg.SuperTrends {
		if _, seen := atrVals[s.Period]; seen {
			continue
		}
		a := p.atrs[s.Period]
		atrVals[s.Period] = a.Update(c)
		add(a.Name(), atrVals[s.Period])
	}

	dirs := make([]indicator.Direction, len(p.sts))
	for i, st := range p.sts {
		out := st.Update(c, atrVals[st.Period()])
		dirs[i] = out.Direction
		add(st.Name(), out.Trend)
		dir := indicator.Undefined
		switch out.Direction {
		case indicator.DirUp:
			dir = indicator.Defined(1)
		case indicator.DirDown:
			dir = indicator.Defined(-1)
		}
		add("STX"+st.Name()[2:], dir)
	}

	snap := strategy.Snapshot{
		Candle:  c,
		Slow:    dirs[0],
		Mid:     dirs[1],
		Fast:    dirs[2],
		RSI:     make(map[int]indicator.Value, len(p.rsis)),
		DayHigh: day.High,
		DayLow:  day.Low,
	}
	for _, r := range p.rsis {
		v := r.Update(c)
		snap.RSI[r.Period()] = v
		add(r.Name(), v)
	}
	add(p.ema.Name(), p.ema.Update(c))
	add(p.wma.Name(), p.wma.Update(c))

	p.penultimate = p.latest
	p.latest = &snap
	p.indicators = results

	return &Result{
		Instrument: p.inst,
		Candle:     c,
		Snapshot:   snap,
		Indicators: results,
	}
}

// Latest returns the snapshot of the most recent candle.
func (p *Pipeline) Latest() (strategy.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.latest == nil {
		return strategy.Snapshot{}, fmt.Errorf("%w: %s has no completed candle", ErrInsufficientHistory, p.inst.ID)
	}
	return *p.latest, nil
}

// Indicators returns the indicator readings of the most recent candle.
// Empty until a candle completes after start or restore.
func (p *Pipeline) Indicators() []model.IndicatorResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.IndicatorResult, len(p.indicators))
	copy(out, p.indicators)
	return out
}

// LastPrice returns the last traded price folded into the pipeline.
func (p *Pipeline) LastPrice() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastPrice
}

// Candles returns up to n most recent candles, oldest first.
func (p *Pipeline) Candles(n int) []model.Candle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.history.Last(n)
}

// Stats reports candle count and the size of the partial window.
func (p *Pipeline) Stats() (candles uint64, pending int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.candles, p.window.Pending()
}
