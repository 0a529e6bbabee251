package indicator

import "supertrend-engine/internal/model"

// ATR is the Average True Range with Wilder smoothing.
//
// True Range is undefined for the first candle, so the seed is the mean of
// TR[1..period] and ATR becomes defined on candle index period (the
// period+1-th candle). Update is O(1).
type ATR struct {
	period    int
	count     int // candles seen
	prevClose float64
	tr        *SMMA
	current   Value
}

// NewATR creates a new ATR with the given period.
func NewATR(period int) *ATR {
	return &ATR{period: period, tr: NewSMMA(period)}
}

func (a *ATR) Name() string { return name("ATR", a.period) }

// Period returns the lookback period.
func (a *ATR) Period() int { return a.period }

// Update feeds a completed candle and returns the ATR reading.
func (a *ATR) Update(c model.Candle) Value {
	a.count++
	if a.count == 1 {
		a.prevClose = c.Close
		a.current = Undefined
		return a.current
	}

	tr := TrueRange(c.High, c.Low, a.prevClose)
	a.prevClose = c.Close
	a.current = a.tr.Add(tr)
	return a.current
}

func (a *ATR) Value() Value { return a.current }
func (a *ATR) Ready() bool  { return a.current.Valid }

// Snapshot serializes the ATR state for checkpoint persistence.
func (a *ATR) Snapshot() IndicatorSnapshot {
	smma := a.tr.Snapshot()
	return IndicatorSnapshot{
		Type:        "ATR",
		Period:      a.period,
		Count:       a.count,
		PrevClose:   a.prevClose,
		Current:     a.current.V,
		Valid:       a.current.Valid,
		Buf:         smma.Buf,
		SmoothCount: smma.Count,
		Smoothed:    smma.Current,
	}
}

// RestoreFromSnapshot restores ATR state from a checkpoint.
func (a *ATR) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	a.period = snap.Period
	a.count = snap.Count
	a.prevClose = snap.PrevClose
	a.current = Value{V: snap.Current, Valid: snap.Valid}
	a.tr = NewSMMA(snap.Period)
	return a.tr.RestoreFromSnapshot(IndicatorSnapshot{
		Type:    "SMMA",
		Period:  snap.Period,
		Count:   snap.SmoothCount,
		Buf:     snap.Buf,
		Current: snap.Smoothed,
	})
}
