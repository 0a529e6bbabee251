package indicator

import "supertrend-engine/internal/model"

// WMA calculates the linearly weighted moving average of close
// (newest close weight period, oldest weight 1). Display/export only.
// Uses a preallocated circular buffer and running sums, O(1) per update.
type WMA struct {
	period   int
	buf      []float64
	idx      int     // next write position (oldest value once full)
	count    int     // total values received
	sum      float64 // plain sum of the window
	weighted float64 // weighted sum of the window
	current  float64
}

// NewWMA creates a new WMA indicator with the given period.
func NewWMA(period int) *WMA {
	return &WMA{
		period: period,
		buf:    make([]float64, period),
	}
}

func (w *WMA) Name() string { return name("WMA", w.period) }

func (w *WMA) Update(candle model.Candle) Value {
	price := candle.Close
	n := float64(w.period)

	if w.count < w.period {
		w.weighted += float64(w.count+1) * price
		w.sum += price
	} else {
		// Every weight drops by one, the oldest falls out, the new close gets n.
		w.weighted += n*price - w.sum
		w.sum += price - w.buf[w.idx]
	}
	w.buf[w.idx] = price
	w.idx = (w.idx + 1) % w.period
	w.count++

	if w.count < w.period {
		return Undefined
	}
	w.current = w.weighted / (n * (n + 1) / 2)
	return Defined(w.current)
}

func (w *WMA) Value() Value {
	if !w.Ready() {
		return Undefined
	}
	return Defined(w.current)
}

func (w *WMA) Ready() bool { return w.count >= w.period }

// Snapshot serializes the WMA state for checkpoint persistence.
func (w *WMA) Snapshot() IndicatorSnapshot {
	bufCopy := make([]float64, len(w.buf))
	copy(bufCopy, w.buf)
	return IndicatorSnapshot{
		Type:     "WMA",
		Period:   w.period,
		Buf:      bufCopy,
		Idx:      w.idx,
		Count:    w.count,
		Sum:      w.sum,
		Weighted: w.weighted,
		Current:  w.current,
		Valid:    w.Ready(),
	}
}

// RestoreFromSnapshot restores WMA state from a checkpoint.
func (w *WMA) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	w.period = snap.Period
	w.idx = snap.Idx
	w.count = snap.Count
	w.sum = snap.Sum
	w.weighted = snap.Weighted
	w.current = snap.Current
	w.buf = make([]float64, snap.Period)
	copy(w.buf, snap.Buf)
	return nil
}
