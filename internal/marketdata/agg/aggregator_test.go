package agg

import (
	"errors"
	"testing"
	"time"

	"supertrend-engine/internal/model"
)

var t0 = time.Date(2024, 6, 3, 9, 15, 0, 0, time.UTC)

func tick(inst string, i int, price float64, qty int64) model.Tick {
	return model.Tick{Instrument: inst, TS: t0.Add(time.Duration(i) * time.Millisecond), LastPrice: price, LastQty: qty}
}

func TestWindow_BasicCandle(t *testing.T) {
	w := New("260105", 4)
	prices := []float64{10, 12, 8, 11}
	qtys := []int64{1, 2, 3, 4}

	var (
		c    model.Candle
		done bool
		err  error
	)
	for i := range prices {
		c, done, err = w.Ingest(tick("260105", i, prices[i], qtys[i]))
		if err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		if i < 3 && done {
			t.Fatalf("candle emitted after %d ticks", i+1)
		}
	}
	if !done {
		t.Fatal("expected candle after windowSize ticks")
	}
	if c.Open != 10 || c.High != 12 || c.Low != 8 || c.Close != 11 || c.Volume != 10 {
		t.Errorf("candle = %+v, want {open=10 high=12 low=8 close=11 volume=10}", c)
	}
	if c.Ticks != 4 {
		t.Errorf("ticks = %d, want 4", c.Ticks)
	}
	if !c.TS.Equal(t0) || !c.CloseTS.Equal(t0.Add(3*time.Millisecond)) {
		t.Errorf("ts=%v close_ts=%v", c.TS, c.CloseTS)
	}
	if w.Pending() != 0 {
		t.Errorf("window not reset: pending=%d", w.Pending())
	}
}

func TestWindow_NoPartialCandle(t *testing.T) {
	w := New("260105", DefaultSize)
	for i := 0; i < DefaultSize-1; i++ {
		if _, done, _ := w.Ingest(tick("260105", i, 100, 1)); done {
			t.Fatalf("candle emitted after %d ticks", i+1)
		}
	}
	if w.Pending() != DefaultSize-1 {
		t.Errorf("pending = %d", w.Pending())
	}
	w.Reset()
	if w.Pending() != 0 {
		t.Errorf("pending after reset = %d", w.Pending())
	}
}

func TestWindow_ConsecutiveCandlesIndependent(t *testing.T) {
	w := New("A", 2)
	w.Ingest(tick("A", 0, 100, 5))
	first, _, _ := w.Ingest(tick("A", 1, 110, 5))
	w.Ingest(tick("A", 2, 90, 1))
	second, done, _ := w.Ingest(tick("A", 3, 95, 1))
	if !done {
		t.Fatal("second candle not emitted")
	}
	if first.Volume != 10 || second.Volume != 2 {
		t.Errorf("volumes %d, %d; want 10, 2", first.Volume, second.Volume)
	}
	if second.Open != 90 || second.High != 95 || second.Low != 90 {
		t.Errorf("second candle leaked previous window: %+v", second)
	}
}

func TestWindow_OutOfOrderRejected(t *testing.T) {
	w := New("A", 3)
	dropped := 0
	w.OnDroppedTick = func() { dropped++ }

	w.Ingest(tick("A", 5, 100, 1))
	_, _, err := w.Ingest(tick("A", 4, 1, 1))
	if !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("err = %v, want ErrOutOfOrder", err)
	}
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
	if w.Pending() != 1 {
		t.Errorf("rejected tick was folded: pending=%d", w.Pending())
	}

	// Equal timestamps are in order.
	if _, _, err := w.Ingest(tick("A", 5, 101, 1)); err != nil {
		t.Errorf("same-timestamp tick rejected: %v", err)
	}
}

func TestWindow_WrongInstrument(t *testing.T) {
	w := New("A", 3)
	if _, _, err := w.Ingest(tick("B", 0, 1, 1)); err == nil {
		t.Fatal("expected error for foreign instrument")
	}
}

func TestWindow_OpenDay(t *testing.T) {
	w := New("A", 2)
	a := tick("A", 0, 100, 1)
	a.Day = model.DayOHLC{Open: 95, High: 105, Low: 90, Close: 99}
	b := tick("A", 1, 106, 1)
	b.Day = model.DayOHLC{Open: 95, High: 106, Low: 90, Close: 99}
	w.Ingest(a)
	w.Ingest(b)
	if got := w.OpenDay(); got.High != 105 {
		t.Errorf("open day high = %v, want 105", got.High)
	}
}
