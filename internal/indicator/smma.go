package indicator

import (
	"log"

	"github.com/montanaflynn/stats"
)

// SMMA is a Wilder-style smoothed moving average over an arbitrary input
// series. The first value is the simple mean of the first period inputs,
// then SMMA += (x − SMMA) / period.
type SMMA struct {
	period  int
	count   int
	seed    []float64 // inputs collected until the first mean
	current float64
}

// NewSMMA creates a new SMMA with the given period.
func NewSMMA(period int) *SMMA {
	return &SMMA{period: period, seed: make([]float64, 0, period)}
}

// Add feeds one input and returns the smoothed value.
func (s *SMMA) Add(x float64) Value {
	s.count++

	if s.count <= s.period {
		s.seed = append(s.seed, x)
		if s.count < s.period {
			return Undefined
		}
		mean, err := stats.Mean(stats.Float64Data(s.seed))
		if err != nil {
			log.Printf("[smma] seed mean failed (period=%d): %v", s.period, err)
			return Undefined
		}
		s.current = mean
		s.seed = nil
		return Defined(s.current)
	}

	s.current += (x - s.current) / float64(s.period)
	return Defined(s.current)
}

// Value returns the current smoothed value.
func (s *SMMA) Value() Value {
	if s.count < s.period {
		return Undefined
	}
	return Defined(s.current)
}

// Snapshot serializes the SMMA state for checkpoint persistence.
func (s *SMMA) Snapshot() IndicatorSnapshot {
	buf := make([]float64, len(s.seed))
	copy(buf, s.seed)
	return IndicatorSnapshot{
		Type:    "SMMA",
		Period:  s.period,
		Count:   s.count,
		Buf:     buf,
		Current: s.current,
	}
}

// RestoreFromSnapshot restores SMMA state from a checkpoint.
func (s *SMMA) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	s.period = snap.Period
	s.count = snap.Count
	s.current = snap.Current
	s.seed = append(make([]float64, 0, snap.Period), snap.Buf...)
	return nil
}
