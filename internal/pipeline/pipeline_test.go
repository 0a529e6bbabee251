package pipeline

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supertrend-engine/internal/indicator"
	"supertrend-engine/internal/model"
	"supertrend-engine/internal/strategy"
)

var (
	instA = model.Instrument{ID: "260105", Symbol: "BANKNIFTY", Exchange: "NSE"}
	instB = model.Instrument{ID: "256265", Symbol: "NIFTY", Exchange: "NSE"}
	t0    = time.Date(2024, 6, 3, 9, 15, 0, 0, time.UTC)
)

func testConfig(window int) Config {
	cfg := DefaultConfig()
	cfg.WindowSize = window
	return cfg
}

func newRegistry(t *testing.T, window int, insts ...model.Instrument) *Registry {
	t.Helper()
	r, err := NewRegistry(testConfig(window), strategy.NewEvaluator(strategy.DefaultOptions()), Hooks{})
	require.NoError(t, err)
	for _, inst := range insts {
		r.Add(inst)
	}
	return r
}

// tickStream returns n ticks of a gently oscillating upward drift.
func tickStream(inst string, n int, start time.Time) []model.Tick {
	out := make([]model.Tick, n)
	for i := range out {
		price := 100 + float64(i)*0.25 + math.Sin(float64(i)/5)*2
		out[i] = model.Tick{
			Instrument: inst,
			TS:         start.Add(time.Duration(i) * 100 * time.Millisecond),
			LastPrice:  price,
			LastQty:    int64(1 + i%7),
		}
	}
	return out
}

func kinds(sigs []model.Signal) []model.SignalKind {
	out := make([]model.SignalKind, 0, len(sigs))
	for _, s := range sigs {
		out = append(out, s.Kind)
	}
	return out
}

func TestPipeline_CandleFromWindow(t *testing.T) {
	r := newRegistry(t, 4, instA)
	prices := []float64{10, 12, 8, 11}
	var res *Result
	for i, p := range prices {
		var err error
		res, err = r.Ingest(model.Tick{Instrument: instA.ID, TS: t0.Add(time.Duration(i) * time.Second), LastPrice: p, LastQty: int64(i + 1)})
		require.NoError(t, err)
		if i < 3 {
			assert.Nil(t, res, "candle emitted after %d ticks", i+1)
		}
	}
	require.NotNil(t, res)
	c := res.Candle
	assert.Equal(t, []float64{10, 12, 8, 11}, []float64{c.Open, c.High, c.Low, c.Close})
	assert.Equal(t, int64(10), c.Volume)

	// One candle: every indicator undefined and exported as not ready.
	for _, ir := range res.Indicators {
		assert.False(t, ir.Ready, ir.Name)
		assert.Zero(t, ir.Value, ir.Name)
	}
	assert.Empty(t, res.Signals)
}

func TestPipeline_IndicatorNames(t *testing.T) {
	r := newRegistry(t, 1, instA)
	res, err := r.Ingest(model.Tick{Instrument: instA.ID, TS: t0, LastPrice: 100})
	require.NoError(t, err)
	require.NotNil(t, res)

	var names []string
	for _, ir := range res.Indicators {
		names = append(names, ir.Name)
	}
	assert.ElementsMatch(t, []string{
		"ATR_21", "ATR_13", "ATR_8",
		"ST_21_3", "STX_21_3", "ST_13_2", "STX_13_2", "ST_8_1", "STX_8_1",
		"RSI_13", "RSI_21", "RSI_34", "EMA_21", "WMA_21",
	}, names)
}

func TestPipeline_InstrumentsIndependent(t *testing.T) {
	r := newRegistry(t, 3, instA, instB)

	// Interleave: A gets 3 ticks, B gets 2. Only A completes a candle.
	ticks := []model.Tick{
		{Instrument: instA.ID, TS: t0, LastPrice: 100, LastQty: 1},
		{Instrument: instB.ID, TS: t0, LastPrice: 500, LastQty: 10},
		{Instrument: instA.ID, TS: t0.Add(time.Second), LastPrice: 101, LastQty: 1},
		{Instrument: instB.ID, TS: t0.Add(time.Second), LastPrice: 501, LastQty: 10},
		{Instrument: instA.ID, TS: t0.Add(2 * time.Second), LastPrice: 99, LastQty: 1},
	}
	var results []*Result
	for _, tk := range ticks {
		res, err := r.Ingest(tk)
		require.NoError(t, err)
		if res != nil {
			results = append(results, res)
		}
	}
	require.Len(t, results, 1)
	assert.Equal(t, instA.ID, results[0].Candle.Instrument)
	assert.Equal(t, 101.0, results[0].Candle.High)
	assert.Equal(t, int64(3), results[0].Candle.Volume)

	pb, ok := r.Get(instB.ID)
	require.True(t, ok)
	candles, pending := pb.Stats()
	assert.Zero(t, candles)
	assert.Equal(t, 2, pending)
}

func TestRegistry_UnknownInstrument(t *testing.T) {
	r := newRegistry(t, 3, instA)
	_, err := r.Ingest(model.Tick{Instrument: "999", TS: t0, LastPrice: 1})
	assert.True(t, errors.Is(err, ErrUnknownInstrument), "err = %v", err)
}

func TestPipeline_OutOfOrderTick(t *testing.T) {
	dropped := map[string]int{}
	r, err := NewRegistry(testConfig(3), strategy.NewEvaluator(strategy.DefaultOptions()), Hooks{
		OnDroppedTick: func(reason string) { dropped[reason]++ },
	})
	require.NoError(t, err)
	p := r.Add(instA)

	_, err = p.Ingest(model.Tick{Instrument: instA.ID, TS: t0.Add(time.Second), LastPrice: 100})
	require.NoError(t, err)
	_, err = p.Ingest(model.Tick{Instrument: instA.ID, TS: t0, LastPrice: 1})
	assert.ErrorIs(t, err, ErrOutOfOrder)
	assert.Equal(t, 1, dropped["out_of_order"])

	_, pending := p.Stats()
	assert.Equal(t, 1, pending)
}

func TestPipeline_LatestBeforeFirstCandle(t *testing.T) {
	r := newRegistry(t, 3, instA)
	p, _ := r.Get(instA.ID)
	_, err := p.Latest()
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestPipeline_RisingMarketTripleBuy(t *testing.T) {
	r := newRegistry(t, 2, instA)
	var all []model.Signal
	price := 100.0
	for i := 0; i < 200; i++ {
		price += 0.5
		res, err := r.Ingest(model.Tick{Instrument: instA.ID, TS: t0.Add(time.Duration(i) * time.Second), LastPrice: price, LastQty: 1})
		require.NoError(t, err)
		if res != nil {
			all = append(all, res.Signals...)
		}
	}

	triples := 0
	for _, s := range all {
		if s.Kind == model.SignalTripleSuperTrendBuy {
			triples++
		}
		assert.NotEqual(t, model.SignalSuperTrend8Sell, s.Kind)
	}
	assert.Equal(t, 1, triples, "signals: %v", kinds(all))
	assert.True(t, r.Evaluator().InTrade(instA.ID))

	p, _ := r.Get(instA.ID)
	latest, err := p.Latest()
	require.NoError(t, err)
	assert.Equal(t, indicator.DirUp, latest.Slow)
	assert.Equal(t, indicator.DirUp, latest.Mid)
	assert.Equal(t, indicator.DirUp, latest.Fast)
	assert.True(t, latest.RSIFor(34).Valid)
}

func TestPipeline_SeedWarmsIndicators(t *testing.T) {
	r := newRegistry(t, 2, instA)
	p, _ := r.Get(instA.ID)

	seed := make([]model.Candle, 40)
	for i := range seed {
		c := 100 + float64(i)
		seed[i] = model.Candle{
			Instrument: instA.ID,
			TS:         t0.Add(time.Duration(i) * time.Minute),
			CloseTS:    t0.Add(time.Duration(i)*time.Minute + 30*time.Second),
			Open:       c - 0.5, High: c + 0.5, Low: c - 0.5, Close: c,
		}
	}
	n, err := p.Seed(seed)
	require.NoError(t, err)
	assert.Equal(t, 40, n)
	assert.False(t, r.Evaluator().InTrade(instA.ID), "seed candles must not emit signals")

	latest, err := p.Latest()
	require.NoError(t, err)
	assert.True(t, latest.Slow.Defined())
	assert.True(t, latest.RSIFor(34).Valid)
	assert.Len(t, p.Candles(100), 40)

	// Live ticks older than the seed are rejected.
	_, err = p.Ingest(model.Tick{Instrument: instA.ID, TS: t0, LastPrice: 1})
	assert.ErrorIs(t, err, ErrOutOfOrder)

	// The first live candle evaluates immediately.
	live := t0.Add(time.Hour)
	_, err = p.Ingest(model.Tick{Instrument: instA.ID, TS: live, LastPrice: 140, LastQty: 1})
	require.NoError(t, err)
	res, err := p.Ingest(model.Tick{Instrument: instA.ID, TS: live.Add(time.Second), LastPrice: 141, LastQty: 1})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Contains(t, kinds(res.Signals), model.SignalTripleSuperTrendBuy)
}

func TestPipeline_SeedRejectsOutOfOrder(t *testing.T) {
	r := newRegistry(t, 2, instA)
	p, _ := r.Get(instA.ID)
	seed := []model.Candle{
		{TS: t0.Add(2 * time.Minute), Open: 1, High: 1, Low: 1, Close: 1},
		{TS: t0, Open: 2, High: 2, Low: 2, Close: 2},
		{TS: t0.Add(3 * time.Minute), Open: 3, High: 3, Low: 3, Close: 3},
	}
	n, err := p.Seed(seed)
	assert.ErrorIs(t, err, ErrOutOfOrder)
	assert.Equal(t, 2, n)
	closes := []float64{}
	for _, c := range p.Candles(10) {
		closes = append(closes, c.Close)
	}
	assert.Equal(t, []float64{1, 3}, closes)
}

func TestRegistry_SnapshotRestoreEquivalence(t *testing.T) {
	const window = 5
	ticks := tickStream(instA.ID, 2000, t0)
	split := 1200 // candle boundary: 1200 % window == 0

	orig := newRegistry(t, window, instA)
	for _, tk := range ticks[:split] {
		_, err := orig.Ingest(tk)
		require.NoError(t, err)
	}

	data, err := orig.Snapshot().Marshal()
	require.NoError(t, err)
	snap, err := UnmarshalRegistrySnapshot(data)
	require.NoError(t, err)

	restored := newRegistry(t, window, instA)
	n, err := restored.Restore(snap)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, orig.Evaluator().OpenTrades(), restored.Evaluator().OpenTrades())

	for _, tk := range ticks[split:] {
		a, errA := orig.Ingest(tk)
		b, errB := restored.Ingest(tk)
		require.NoError(t, errA)
		require.NoError(t, errB)
		if a == nil {
			require.Nil(t, b)
			continue
		}
		require.NotNil(t, b)
		assert.Equal(t, a.Candle, b.Candle)
		assert.Equal(t, a.Snapshot, b.Snapshot)
		assert.Equal(t, a.Indicators, b.Indicators)
		assert.Equal(t, kinds(a.Signals), kinds(b.Signals))
	}
}

func TestRegistry_RestoreRejectsIncompatibleConfig(t *testing.T) {
	orig := newRegistry(t, 5, instA)
	snap := orig.Snapshot()

	other := newRegistry(t, 7, instA)
	n, err := other.Restore(snap)
	assert.ErrorIs(t, err, ErrIncompatibleSnapshot)
	assert.Zero(t, n)

	cfg := testConfig(5)
	cfg.HistorySize = 64
	assert.True(t, cfg.Compatible(snap.Config), "history size is not part of indicator state")
	cfg.SuperTrends = []STSpec{{21, 3}, {13, 2}, {8, 2}}
	assert.False(t, cfg.Compatible(snap.Config))
}

func TestUnmarshalRegistrySnapshot_BadVersion(t *testing.T) {
	_, err := UnmarshalRegistrySnapshot([]byte(`{"version":99}`))
	assert.Error(t, err)
	_, err = UnmarshalRegistrySnapshot([]byte(`not json`))
	assert.Error(t, err)
}

func TestRegistry_RunPerInstrumentOrder(t *testing.T) {
	r := newRegistry(t, 10, instA, instB)

	a := tickStream(instA.ID, 500, t0)
	b := tickStream(instB.ID, 300, t0)
	tickCh := make(chan model.Tick, 64)
	go func() {
		for i := 0; i < 500; i++ {
			tickCh <- a[i]
			if i < 300 {
				tickCh <- b[i]
			}
			if i%50 == 0 {
				tickCh <- model.Tick{Instrument: "unknown", TS: t0, LastPrice: 1}
			}
		}
		close(tickCh)
	}()

	var mu sync.Mutex
	got := map[string][]model.Candle{}
	r.Run(context.Background(), tickCh, func(res *Result) {
		mu.Lock()
		got[res.Instrument.ID] = append(got[res.Instrument.ID], res.Candle)
		mu.Unlock()
	})

	require.Len(t, got[instA.ID], 50)
	require.Len(t, got[instB.ID], 30)
	for id, candles := range got {
		for i := 1; i < len(candles); i++ {
			assert.True(t, candles[i].TS.After(candles[i-1].CloseTS), "%s candle %d out of order", id, i)
		}
	}
}

func TestRegistry_RunStopsOnCancel(t *testing.T) {
	r := newRegistry(t, 210, instA)
	tickCh := make(chan model.Tick)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		r.Run(ctx, tickCh, nil)
		close(done)
	}()
	for _, tk := range tickStream(instA.ID, 100, t0) {
		tickCh <- tk
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	// No partial candle was flushed.
	p, _ := r.Get(instA.ID)
	candles, _ := p.Stats()
	assert.Zero(t, candles)
	assert.Empty(t, r.Snapshot().Pipelines[0].History)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.SuperTrends = bad.SuperTrends[:2]
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.WindowSize = 0
	assert.Error(t, bad.Validate())

	// Same period and multiplier twice would share one snapshot key.
	bad = DefaultConfig()
	bad.SuperTrends = []STSpec{{21, 3}, {13, 2}, {21, 3}}
	assert.ErrorContains(t, bad.Validate(), "duplicate supertrend 21:3")

	ok := DefaultConfig()
	ok.SuperTrends = []STSpec{{21, 3}, {21, 2}, {8, 1}}
	assert.NoError(t, ok.Validate())

	bad = DefaultConfig()
	bad.RSIPeriods = []int{13, 21, 13}
	assert.ErrorContains(t, bad.Validate(), "duplicate RSI period 13")

	assert.Equal(t, 35, DefaultConfig().MaxPeriod())
}
