package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supertrend-engine/internal/indicator"
	"supertrend-engine/internal/model"
)

var (
	inst = model.Instrument{ID: "260105", Symbol: "BANKNIFTY", Exchange: "NSE"}
	t0   = time.Date(2024, 6, 3, 9, 15, 0, 0, time.UTC)
)

func snap(i int, close float64, slow, mid, fast indicator.Direction, rsi map[int]float64) Snapshot {
	s := Snapshot{
		Candle: model.Candle{Instrument: inst.ID, TS: t0.Add(time.Duration(i) * time.Minute),
			CloseTS: t0.Add(time.Duration(i)*time.Minute + 59*time.Second), Close: close},
		Slow: slow, Mid: mid, Fast: fast,
		RSI: map[int]indicator.Value{},
	}
	for p, v := range rsi {
		s.RSI[p] = indicator.Defined(v)
	}
	return s
}

func kinds(sigs []model.Signal) []model.SignalKind {
	out := make([]model.SignalKind, 0, len(sigs))
	for _, s := range sigs {
		out = append(out, s.Kind)
	}
	return out
}

const (
	up   = indicator.DirUp
	down = indicator.DirDown
	none = indicator.DirUndefined
)

func TestEvaluator_TripleBuyThenFastSell(t *testing.T) {
	e := NewEvaluator(DefaultOptions())
	var changes []int
	e.OnOpenTradesChanged = func(n int) { changes = append(changes, n) }

	s1 := snap(1, 100, up, up, up, nil)
	sigs := e.Evaluate(inst, s1, nil, 100)
	require.Equal(t, []model.SignalKind{model.SignalTripleSuperTrendBuy}, kinds(sigs))
	assert.True(t, e.InTrade(inst.ID))
	assert.Equal(t, inst.ID, sigs[0].Instrument)
	assert.Equal(t, "BANKNIFTY", sigs[0].Symbol)
	assert.Equal(t, s1.Candle.CloseTS, sigs[0].TS)
	assert.NotEmpty(t, sigs[0].ID)

	// Still up: in trade, no repeat buy.
	s2 := snap(2, 101, up, up, up, nil)
	assert.Empty(t, e.Evaluate(inst, s2, &s1, 101))

	s3 := snap(3, 99, up, up, down, nil)
	sigs = e.Evaluate(inst, s3, &s2, 99)
	require.Equal(t, []model.SignalKind{model.SignalSuperTrend8Sell}, kinds(sigs))
	assert.False(t, e.InTrade(inst.ID))
	assert.Equal(t, []int{1, 0}, changes)
}

func TestEvaluator_DoubleBuyDoesNotOpenTrade(t *testing.T) {
	e := NewEvaluator(DefaultOptions())

	s1 := snap(1, 100, down, up, up, nil)
	sigs := e.Evaluate(inst, s1, nil, 100)
	require.Equal(t, []model.SignalKind{model.SignalDoubleSuperTrendBuy}, kinds(sigs))
	assert.False(t, e.InTrade(inst.ID))

	// Fires again on the next candle since no trade was opened.
	s2 := snap(2, 100, down, up, up, nil)
	sigs = e.Evaluate(inst, s2, &s1, 100)
	assert.Equal(t, []model.SignalKind{model.SignalDoubleSuperTrendBuy}, kinds(sigs))
}

func TestEvaluator_SlowAndMidUpFastDownWaits(t *testing.T) {
	e := NewEvaluator(DefaultOptions())

	s1 := snap(1, 100, up, up, down, nil)
	assert.Empty(t, e.Evaluate(inst, s1, nil, 100))
	assert.False(t, e.InTrade(inst.ID))

	// Fast turns up: the triple buy fires.
	s2 := snap(2, 101, up, up, up, nil)
	assert.Equal(t, []model.SignalKind{model.SignalTripleSuperTrendBuy}, kinds(e.Evaluate(inst, s2, &s1, 101)))

	// Slow up, mid down never qualifies for the double buy either.
	e2 := NewEvaluator(DefaultOptions())
	assert.Empty(t, e2.Evaluate(inst, snap(1, 100, up, down, up, nil), nil, 100))
}

func TestEvaluator_DoubleBuyOpensTradeOption(t *testing.T) {
	opts := DefaultOptions()
	opts.DoubleBuyOpensTrade = true
	e := NewEvaluator(opts)

	s1 := snap(1, 100, down, up, down, nil)
	require.Equal(t, []model.SignalKind{model.SignalDoubleSuperTrendBuy}, kinds(e.Evaluate(inst, s1, nil, 100)))
	assert.True(t, e.InTrade(inst.ID))

	s2 := snap(2, 98, down, up, down, nil)
	assert.Equal(t, []model.SignalKind{model.SignalSuperTrend8Sell}, kinds(e.Evaluate(inst, s2, &s1, 98)))
}

func TestEvaluator_RSI21SellKeepsTrade(t *testing.T) {
	e := NewEvaluator(DefaultOptions())
	e.Restore([]OpenTrade{{Instrument: inst.ID, Since: t0, EntryPrice: 90}})

	s1 := snap(1, 120, up, up, up, map[int]float64{21: 79})
	sigs := e.Evaluate(inst, s1, nil, 120)
	require.Equal(t, []model.SignalKind{model.SignalRSI21Sell}, kinds(sigs))
	assert.True(t, e.InTrade(inst.ID), "rsi21-sell must not close the trade")

	s2 := snap(2, 121, up, up, up, map[int]float64{21: 78.9})
	assert.Empty(t, e.Evaluate(inst, s2, nil, 121))
}

func TestEvaluator_UndefinedInputsSkipGates(t *testing.T) {
	e := NewEvaluator(DefaultOptions())

	// Nothing defined yet: no buy, no crossing.
	s1 := snap(1, 100, none, none, none, nil)
	assert.Empty(t, e.Evaluate(inst, s1, nil, 100))

	// Slow undefined: triple gate skipped; mid alone is enough for double.
	s2 := snap(2, 100, none, up, up, nil)
	assert.Equal(t, []model.SignalKind{model.SignalDoubleSuperTrendBuy}, kinds(e.Evaluate(inst, s2, &s1, 100)))

	// In trade with undefined fast and RSI: no sell.
	e.Restore([]OpenTrade{{Instrument: inst.ID}})
	s3 := snap(3, 100, up, up, none, nil)
	assert.Empty(t, e.Evaluate(inst, s3, &s2, 100))
	assert.True(t, e.InTrade(inst.ID))
}

func TestEvaluator_RSICrossingDown_NoDuplicate(t *testing.T) {
	e := NewEvaluator(DefaultOptions())

	prev := snap(1, 100, none, none, none, map[int]float64{13: 82})
	latest := snap(2, 99, none, none, none, map[int]float64{13: 75})
	sigs := e.Evaluate(inst, latest, &prev, 99)
	require.Equal(t, []model.SignalKind{model.CrossingKind(13, false)}, kinds(sigs))
	assert.Equal(t, model.SignalKind("rsi-crossing-13-down"), sigs[0].Kind)

	next := snap(3, 98, none, none, none, map[int]float64{13: 70})
	assert.Empty(t, e.Evaluate(inst, next, &latest, 98))
}

func TestEvaluator_RSICrossingUp(t *testing.T) {
	e := NewEvaluator(DefaultOptions())

	prev := snap(1, 100, none, none, none, map[int]float64{34: 30, 21: 33, 13: 25})
	latest := snap(2, 101, none, none, none, map[int]float64{34: 34, 21: 33.9, 13: 21})
	sigs := e.Evaluate(inst, latest, &prev, 101)
	assert.ElementsMatch(t, []model.SignalKind{
		model.CrossingKind(34, true),
		model.CrossingKind(13, true),
	}, kinds(sigs))
}

func TestEvaluator_CrossingSkippedWhenUndefined(t *testing.T) {
	e := NewEvaluator(DefaultOptions())
	prev := snap(1, 100, none, none, none, nil)
	latest := snap(2, 100, none, none, none, map[int]float64{13: 10})
	assert.Empty(t, e.Evaluate(inst, latest, &prev, 100))
}

func TestEvaluator_CrossingOnClose(t *testing.T) {
	opts := DefaultOptions()
	opts.CrossingOnClose = true
	e := NewEvaluator(opts)

	// Latest RSI stays high but the close (price 60) is below 66.
	prev := snap(1, 70, none, none, none, map[int]float64{34: 70})
	latest := snap(2, 60, none, none, none, map[int]float64{34: 71})
	sigs := e.Evaluate(inst, latest, &prev, 60)
	assert.Equal(t, []model.SignalKind{model.CrossingKind(34, false)}, kinds(sigs))
}

func TestEvaluator_DayBreakout(t *testing.T) {
	e := NewEvaluator(DefaultOptions())

	prev := snap(1, 104, none, none, none, nil)
	prev.DayHigh, prev.DayLow = 105, 95
	latest := snap(2, 106, none, none, none, nil)
	latest.DayHigh, latest.DayLow = 105, 95
	assert.Equal(t, []model.SignalKind{model.SignalDayHighBreakout}, kinds(e.Evaluate(inst, latest, &prev, 106)))

	// Already above: no repeat.
	next := snap(3, 107, none, none, none, nil)
	next.DayHigh, next.DayLow = 106, 95
	assert.Empty(t, e.Evaluate(inst, next, &latest, 107))

	down := snap(4, 94, none, none, none, nil)
	down.DayHigh, down.DayLow = 107, 95
	assert.Equal(t, []model.SignalKind{model.SignalDayLowBreakdown}, kinds(e.Evaluate(inst, down, &next, 94)))
}

func TestEvaluator_InstrumentsIndependent(t *testing.T) {
	e := NewEvaluator(DefaultOptions())
	other := model.Instrument{ID: "260001"}

	s := snap(1, 100, up, up, up, nil)
	e.Evaluate(inst, s, nil, 100)
	assert.True(t, e.InTrade(inst.ID))
	assert.False(t, e.InTrade(other.ID))

	sell := snap(2, 100, up, up, down, nil)
	assert.Empty(t, e.Evaluate(other, sell, nil, 100))
	assert.True(t, e.InTrade(inst.ID))

	trades := e.OpenTrades()
	require.Len(t, trades, 1)
	assert.Equal(t, inst.ID, trades[0].Instrument)
	assert.Equal(t, 100.0, trades[0].EntryPrice)
}
