package export

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"supertrend-engine/internal/model"
)

const (
	archiveBatch = 256
	archiveFlush = time.Second
)

// Archive appends candles, ticks and signals to per-instrument CSV files
// under dir:
//
//	{dir}/{instrument}_candles.csv
//	{dir}/{instrument}_ticks.csv
//	{dir}/signals.csv
//
// Implements model.CandleSink, model.TickSink and model.SignalSink.
type Archive struct {
	dir string
	mu  sync.Mutex // serializes file appends
}

// NewArchive creates the archive directory.
func NewArchive(dir string) (*Archive, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &Archive{dir: dir}, nil
}

// Dir returns the archive directory.
func (a *Archive) Dir() string { return a.dir }

// CandlePath returns the candle file of one instrument.
func (a *Archive) CandlePath(instrument string) string {
	return filepath.Join(a.dir, instrument+"_candles.csv")
}

func (a *Archive) tickPath(instrument string) string {
	return filepath.Join(a.dir, instrument+"_ticks.csv")
}

// AppendCandles appends candles, grouped into their instrument files.
func (a *Archive) AppendCandles(candles []model.Candle) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for inst, cs := range groupBy(candles, func(c model.Candle) string { return c.Instrument }) {
		cs := cs
		if err := appendRecords(a.CandlePath(inst), &cs); err != nil {
			return fmt.Errorf("archive candles %s: %w", inst, err)
		}
	}
	return nil
}

// AppendTicks appends ticks, grouped into their instrument files.
func (a *Archive) AppendTicks(ticks []model.Tick) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for inst, ts := range groupBy(ticks, func(t model.Tick) string { return t.Instrument }) {
		recs := toTickRecords(ts)
		if err := appendRecords(a.tickPath(inst), &recs); err != nil {
			return fmt.Errorf("archive ticks %s: %w", inst, err)
		}
	}
	return nil
}

// PublishSignal appends one signal to signals.csv.
func (a *Archive) PublishSignal(_ context.Context, sig model.Signal) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	rows := []model.Signal{sig}
	if err := appendRecords(filepath.Join(a.dir, "signals.csv"), &rows); err != nil {
		return fmt.Errorf("archive signal: %w", err)
	}
	return nil
}

// Run archives candles until ctx is cancelled or candleCh is closed.
func (a *Archive) Run(ctx context.Context, candleCh <-chan model.Candle) {
	drain(ctx, "candles", candleCh, a.AppendCandles)
}

// RunTicks archives ticks until ctx is cancelled or tickCh is closed.
func (a *Archive) RunTicks(ctx context.Context, tickCh <-chan model.Tick) {
	drain(ctx, "ticks", tickCh, a.AppendTicks)
}

// LoadSeed reads the instrument's candle file and returns the last limit
// candles at or after since. A missing file yields no candles.
// Implements model.SeedLoader.
func (a *Archive) LoadSeed(_ context.Context, instrument string, since time.Time, limit int) ([]model.Candle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.Open(a.CandlePath(instrument))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	all, err := ReadCandles(f)
	if err != nil {
		return nil, err
	}
	var out []model.Candle
	for _, c := range all {
		if !c.TS.Before(since) {
			out = append(out, c)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func groupBy[T any](items []T, key func(T) string) map[string][]T {
	m := make(map[string][]T)
	for _, it := range items {
		k := key(it)
		m[k] = append(m[k], it)
	}
	return m
}

func drain[T any](ctx context.Context, what string, ch <-chan T, write func([]T) error) {
	batch := make([]T, 0, archiveBatch)
	ticker := time.NewTicker(archiveFlush)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := write(batch); err != nil {
			log.Printf("[export] %s write error: %v", what, err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case v, ok := <-ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, v)
			if len(batch) >= archiveBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
