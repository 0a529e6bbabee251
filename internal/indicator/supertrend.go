package indicator

import (
	"log"
	"strconv"

	"supertrend-engine/internal/model"
)

// SuperTrend computes the recursive SuperTrend line for one
// (period, multiplier) pair.
//
//	BASIC UPPER = (HIGH + LOW) / 2 + multiplier * ATR
//	BASIC LOWER = (HIGH + LOW) / 2 - multiplier * ATR
//	FINAL UPPER = BASIC UPPER if BASIC UPPER < prev FINAL UPPER or prev CLOSE > prev FINAL UPPER
//	              else prev FINAL UPPER
//	FINAL LOWER = BASIC LOWER if BASIC LOWER > prev FINAL LOWER or prev CLOSE < prev FINAL LOWER
//	              else prev FINAL LOWER
//	TREND       = FINAL UPPER while the line sits on the upper band and CLOSE <= FINAL UPPER,
//	              flips to FINAL LOWER when CLOSE breaks above it, and symmetrically
//	              for the lower band.
//
// The bands carry forward from candle to candle, so the state cannot be
// rebuilt from a single candle; it is advanced exactly once per completed
// candle. Nothing is computed before candle index period.
type SuperTrend struct {
	period     int
	multiplier float64
	state      SuperTrendState
	last       SuperTrendOutput

	// OnInvariantViolation is called when the trend recursion matches none
	// of its branches (optional, set externally).
	OnInvariantViolation func(name string)
}

// SuperTrendState is the carried recursion state. Zero bands and an
// undefined trend before the first computed candle.
type SuperTrendState struct {
	Count      int     `json:"count"` // candles seen
	PrevClose  float64 `json:"prev_close"`
	FinalUpper float64 `json:"final_upper"`
	FinalLower float64 `json:"final_lower"`
	Trend      float64 `json:"trend"`
	TrendValid bool    `json:"trend_valid"`
}

// SuperTrendOutput is the reading for one candle.
type SuperTrendOutput struct {
	Trend     Value     `json:"trend"`
	Direction Direction `json:"direction"`
	Upper     Value     `json:"upper"` // final upper band
	Lower     Value     `json:"lower"` // final lower band
}

// NewSuperTrend creates a SuperTrend instance.
func NewSuperTrend(period int, multiplier float64) *SuperTrend {
	return &SuperTrend{period: period, multiplier: multiplier}
}

// Name returns "ST_{period}_{multiplier}".
func (s *SuperTrend) Name() string {
	return "ST_" + strconv.Itoa(s.period) + "_" + strconv.FormatFloat(s.multiplier, 'f', -1, 64)
}

func (s *SuperTrend) Period() int         { return s.period }
func (s *SuperTrend) Multiplier() float64 { return s.multiplier }

// Update advances the recursion with a completed candle and the ATR reading
// for that same candle (ATR period == SuperTrend period).
func (s *SuperTrend) Update(c model.Candle, atr Value) SuperTrendOutput {
	st := &s.state
	idx := st.Count
	prevClose := st.PrevClose
	st.Count++
	st.PrevClose = c.Close

	if idx < s.period || !atr.Valid {
		s.last = SuperTrendOutput{}
		return s.last
	}

	mid := (c.High + c.Low) / 2
	basicUpper := mid + s.multiplier*atr.V
	basicLower := mid - s.multiplier*atr.V

	prevUpper, prevLower, prevTrend := st.FinalUpper, st.FinalLower, st.Trend

	finalUpper := prevUpper
	if basicUpper < prevUpper || prevClose > prevUpper {
		finalUpper = basicUpper
	}
	finalLower := prevLower
	if basicLower > prevLower || prevClose < prevLower {
		finalLower = basicLower
	}

	// An undefined previous trend (first computed candle, or the candle
	// after a violation) is treated as sitting on the upper band: with all
	// previous values at zero, trend == upper holds.
	onUpper := !st.TrendValid || prevTrend == prevUpper
	onLower := st.TrendValid && prevTrend == prevLower

	var trend float64
	ok := true
	switch {
	case onUpper && c.Close <= finalUpper:
		trend = finalUpper
	case onUpper && c.Close > finalUpper:
		trend = finalLower
	case onLower && c.Close >= finalLower:
		trend = finalLower
	case onLower && c.Close < finalLower:
		trend = finalUpper
	default:
		ok = false
	}

	st.FinalUpper = finalUpper
	st.FinalLower = finalLower
	st.Trend = trend
	st.TrendValid = ok

	s.last = SuperTrendOutput{
		Upper: Defined(finalUpper),
		Lower: Defined(finalLower),
	}
	if !ok {
		log.Printf("[supertrend] invariant violation %s: prev trend %.4f matches neither band (upper=%.4f lower=%.4f)",
			s.Name(), prevTrend, prevUpper, prevLower)
		if s.OnInvariantViolation != nil {
			s.OnInvariantViolation(s.Name())
		}
		return s.last
	}

	s.last.Trend = Defined(trend)
	s.last.Direction = direction(trend, c.Close)
	return s.last
}

func direction(trend, close float64) Direction {
	if trend <= 0 {
		return DirUndefined
	}
	if close < trend {
		return DirDown
	}
	return DirUp
}

// Last returns the output of the most recent Update.
func (s *SuperTrend) Last() SuperTrendOutput { return s.last }

// State returns a copy of the carried recursion state.
func (s *SuperTrend) State() SuperTrendState { return s.state }

// Clone returns an independent copy of the instance and its state.
func (s *SuperTrend) Clone() *SuperTrend {
	c := *s
	return &c
}

// Snapshot serializes the SuperTrend state for checkpoint persistence.
func (s *SuperTrend) Snapshot() IndicatorSnapshot {
	return IndicatorSnapshot{
		Type:       "ST",
		Period:     s.period,
		Multiplier: s.multiplier,
		Count:      s.state.Count,
		PrevClose:  s.state.PrevClose,
		FinalUpper: s.state.FinalUpper,
		FinalLower: s.state.FinalLower,
		Trend:      s.state.Trend,
		TrendValid: s.state.TrendValid,
		Current:    s.last.Trend.V,
		Valid:      s.last.Trend.Valid,
		Direction:  int8(s.last.Direction),
	}
}

// RestoreFromSnapshot restores SuperTrend state from a checkpoint.
func (s *SuperTrend) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	s.period = snap.Period
	s.multiplier = snap.Multiplier
	s.state = SuperTrendState{
		Count:      snap.Count,
		PrevClose:  snap.PrevClose,
		FinalUpper: snap.FinalUpper,
		FinalLower: snap.FinalLower,
		Trend:      snap.Trend,
		TrendValid: snap.TrendValid,
	}
	s.last = SuperTrendOutput{
		Trend:     Value{V: snap.Current, Valid: snap.Valid},
		Direction: Direction(snap.Direction),
	}
	if snap.Count > snap.Period {
		s.last.Upper = Defined(snap.FinalUpper)
		s.last.Lower = Defined(snap.FinalLower)
	}
	return nil
}
