package indicator

// Snapshottable is implemented by indicators that support state serialization.
type Snapshottable interface {
	Snapshot() IndicatorSnapshot
	RestoreFromSnapshot(snap IndicatorSnapshot) error
}

// IndicatorSnapshot holds the serialized state of a single indicator instance.
type IndicatorSnapshot struct {
	Type   string `json:"type"`   // "ATR", "ST", "RSI", "EMA", "WMA", "SMMA"
	Period int    `json:"period"` // indicator period

	Count   int     `json:"count"`
	Current float64 `json:"current"`
	Valid   bool    `json:"valid"`

	// Window fields (WMA, SMMA seed)
	Buf      []float64 `json:"buf,omitempty"`
	Idx      int       `json:"idx,omitempty"`
	Sum      float64   `json:"sum,omitempty"`
	Weighted float64   `json:"weighted,omitempty"`

	// EMA / SuperTrend multiplier
	Multiplier float64 `json:"multiplier,omitempty"`

	// RSI / ATR / SuperTrend previous close
	PrevClose float64 `json:"prev_close,omitempty"`
	AvgGain   float64 `json:"avg_gain,omitempty"`
	AvgLoss   float64 `json:"avg_loss,omitempty"`

	// ATR smoother
	SmoothCount int     `json:"smooth_count,omitempty"`
	Smoothed    float64 `json:"smoothed,omitempty"`

	// SuperTrend recursion
	FinalUpper float64 `json:"final_upper,omitempty"`
	FinalLower float64 `json:"final_lower,omitempty"`
	Trend      float64 `json:"trend,omitempty"`
	TrendValid bool    `json:"trend_valid,omitempty"`
	Direction  int8    `json:"direction,omitempty"`
}
