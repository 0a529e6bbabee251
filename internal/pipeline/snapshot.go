package pipeline

import (
	"encoding/json"
	"fmt"
	"time"

	"supertrend-engine/internal/indicator"
	"supertrend-engine/internal/model"
	"supertrend-engine/internal/strategy"
)

// SnapshotVersion is the schema version written into RegistrySnapshot.
const SnapshotVersion = 1

// State is the checkpoint of one pipeline. The partial tick window is
// not part of it: a restored pipeline starts a fresh window. Indicators
// is keyed by indicator name.
type State struct {
	Instrument  model.Instrument                       `json:"instrument"`
	Indicators  map[string]indicator.IndicatorSnapshot `json:"indicators"`
	Latest      *strategy.Snapshot                     `json:"latest,omitempty"`
	Penultimate *strategy.Snapshot                     `json:"penultimate,omitempty"`
	History     []model.Candle                         `json:"history,omitempty"`
	LastTS      time.Time                              `json:"last_ts"`
	LastPrice   float64                                `json:"last_price"`
	Candles     uint64                                 `json:"candles"`
}

// RegistrySnapshot is the checkpoint of every pipeline plus the Open Trade Set.
type RegistrySnapshot struct {
	Version    int                  `json:"version"`
	TakenAt    time.Time            `json:"taken_at"`
	Config     Config               `json:"config"`
	Pipelines  []State              `json:"pipelines"`
	OpenTrades []strategy.OpenTrade `json:"open_trades"`
}

// Marshal serializes the snapshot to JSON.
func (s *RegistrySnapshot) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalRegistrySnapshot deserializes a snapshot and checks its version.
func UnmarshalRegistrySnapshot(data []byte) (*RegistrySnapshot, error) {
	var s RegistrySnapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if s.Version != SnapshotVersion {
		return nil, fmt.Errorf("snapshot version %d, want %d", s.Version, SnapshotVersion)
	}
	return &s, nil
}

// State captures the pipeline under its lock, so it never observes a
// half-updated SuperTrend chain.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := State{
		Instrument: p.inst,
		Indicators: make(map[string]indicator.IndicatorSnapshot, len(p.atrs)+len(p.sts)+len(p.rsis)+2),
		History:    p.history.Last(p.history.Len()),
		LastTS:     p.window.LastTS(),
		LastPrice:  p.lastPrice,
		Candles:    p.candles,
	}
	for _, a := range p.atrs {
		st.Indicators[a.Name()] = a.Snapshot()
	}
	for _, s := range p.sts {
		st.Indicators[s.Name()] = s.Snapshot()
	}
	for _, r := range p.rsis {
		st.Indicators[r.Name()] = r.Snapshot()
	}
	st.Indicators[p.ema.Name()] = p.ema.Snapshot()
	st.Indicators[p.wma.Name()] = p.wma.Snapshot()

	if p.latest != nil {
		l := *p.latest
		st.Latest = &l
	}
	if p.penultimate != nil {
		pn := *p.penultimate
		st.Penultimate = &pn
	}
	return st
}

// Restore replaces the pipeline state with a checkpoint. Indicators missing
// from the checkpoint (e.g. a newly configured period) start cold. Any
// partial window is discarded.
func (p *Pipeline) Restore(st State) error {
	if st.Instrument.ID != p.inst.ID {
		return fmt.Errorf("restore: state for %s applied to %s", st.Instrument.ID, p.inst.ID)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.reset()

	restore := func(name string, s indicator.Snapshottable) error {
		snap, ok := st.Indicators[name]
		if !ok {
			return nil
		}
		if err := s.RestoreFromSnapshot(snap); err != nil {
			return fmt.Errorf("restore %s: %w", name, err)
		}
		return nil
	}
	for _, a := range p.atrs {
		if err := restore(a.Name(), a); err != nil {
			return err
		}
	}
	for _, s := range p.sts {
		if err := restore(s.Name(), s); err != nil {
			return err
		}
	}
	for _, r := range p.rsis {
		if err := restore(r.Name(), r); err != nil {
			return err
		}
	}
	if err := restore(p.ema.Name(), p.ema); err != nil {
		return err
	}
	if err := restore(p.wma.Name(), p.wma); err != nil {
		return err
	}

	for _, c := range st.History {
		p.history.Push(c)
	}
	p.latest = st.Latest
	p.penultimate = st.Penultimate
	p.window.Restore(st.LastTS)
	p.lastPrice = st.LastPrice
	p.candles = st.Candles
	return nil
}
