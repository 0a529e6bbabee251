package indicator

import "supertrend-engine/internal/model"

// The functions below recompute an indicator over a full candle history.
// They are O(n) per call and exist to cross-check the incremental engines
// (tests, seed-check); the live path never uses them.

// ATRSeries returns the ATR reading at every index of candles.
func ATRSeries(candles []model.Candle, period int) []Value {
	out := make([]Value, len(candles))
	if period <= 0 || len(candles) <= period {
		return out
	}
	tr := make([]float64, len(candles))
	for i := 1; i < len(candles); i++ {
		tr[i] = TrueRange(candles[i].High, candles[i].Low, candles[i-1].Close)
	}
	seed := 0.0
	for i := 1; i <= period; i++ {
		seed += tr[i]
	}
	atr := seed / float64(period)
	out[period] = Defined(atr)
	for i := period + 1; i < len(candles); i++ {
		atr += (tr[i] - atr) / float64(period)
		out[i] = Defined(atr)
	}
	return out
}

// SuperTrendSeries returns the SuperTrend reading at every index of candles.
func SuperTrendSeries(candles []model.Candle, period int, multiplier float64) []SuperTrendOutput {
	atr := ATRSeries(candles, period)
	out := make([]SuperTrendOutput, len(candles))

	var upper, lower, trend float64
	trendValid := false
	for i := period; i < len(candles); i++ {
		if !atr[i].Valid {
			continue
		}
		c := candles[i]
		prevClose := candles[i-1].Close
		mid := (c.High + c.Low) / 2
		bu := mid + multiplier*atr[i].V
		bl := mid - multiplier*atr[i].V

		fu := upper
		if bu < upper || prevClose > upper {
			fu = bu
		}
		fl := lower
		if bl > lower || prevClose < lower {
			fl = bl
		}

		onUpper := !trendValid || trend == upper
		onLower := trendValid && trend == lower
		var next float64
		ok := true
		switch {
		case onUpper && c.Close <= fu:
			next = fu
		case onUpper && c.Close > fu:
			next = fl
		case onLower && c.Close >= fl:
			next = fl
		case onLower && c.Close < fl:
			next = fu
		default:
			ok = false
		}

		upper, lower, trend, trendValid = fu, fl, next, ok
		out[i] = SuperTrendOutput{Upper: Defined(fu), Lower: Defined(fl)}
		if ok {
			out[i].Trend = Defined(next)
			out[i].Direction = direction(next, c.Close)
		}
	}
	return out
}

// RSISeries returns the Wilder RSI reading at every index of candles.
func RSISeries(candles []model.Candle, period int) []Value {
	out := make([]Value, len(candles))
	if period <= 0 || len(candles) <= period {
		return out
	}
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		d := candles[i].Close - candles[i-1].Close
		if d > 0 {
			avgGain += d
		} else {
			avgLoss -= d
		}
	}
	p := float64(period)
	avgGain /= p
	avgLoss /= p
	out[period] = Defined(rsiFrom(avgGain, avgLoss))
	for i := period + 1; i < len(candles); i++ {
		d := candles[i].Close - candles[i-1].Close
		gain, loss := 0.0, 0.0
		if d > 0 {
			gain = d
		} else {
			loss = -d
		}
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
		out[i] = Defined(rsiFrom(avgGain, avgLoss))
	}
	return out
}
