package ringbuf

import (
	"testing"

	"supertrend-engine/internal/model"
)

func TestRing_PushLast(t *testing.T) {
	r := New(4) // rounds to 4

	r.Push(model.Candle{Instrument: "A", Close: 1})
	r.Push(model.Candle{Instrument: "A", Close: 2})

	if r.Len() != 2 {
		t.Fatalf("expected len=2, got %d", r.Len())
	}
	got := r.Last(5)
	if len(got) != 2 || got[0].Close != 1 || got[1].Close != 2 {
		t.Fatalf("Last(5) = %+v", got)
	}
	newest, ok := r.Newest()
	if !ok || newest.Close != 2 {
		t.Fatalf("Newest = %+v ok=%v", newest, ok)
	}
}

func TestRing_OverwritesOldest(t *testing.T) {
	r := New(4)
	for i := 1; i <= 10; i++ {
		r.Push(model.Candle{Close: float64(i)})
	}
	if r.Len() != 4 {
		t.Fatalf("expected len=4, got %d", r.Len())
	}
	if r.Overwritten() != 6 {
		t.Errorf("expected overwritten=6, got %d", r.Overwritten())
	}
	if r.Total() != 10 {
		t.Errorf("expected total=10, got %d", r.Total())
	}
	got := r.Last(4)
	for i, c := range got {
		if c.Close != float64(7+i) {
			t.Errorf("Last[%d] = %.0f, want %d", i, c.Close, 7+i)
		}
	}
	if last2 := r.Last(2); last2[0].Close != 9 || last2[1].Close != 10 {
		t.Errorf("Last(2) = %+v", last2)
	}
}

func TestRing_Empty(t *testing.T) {
	r := New(3)
	if r.Cap() != 4 {
		t.Errorf("expected cap=4, got %d", r.Cap())
	}
	if _, ok := r.Newest(); ok {
		t.Error("Newest on empty ring should return false")
	}
	if got := r.Last(3); len(got) != 0 {
		t.Errorf("Last on empty ring = %+v", got)
	}
}

func TestNextPow2(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, 1}, {1, 1}, {2, 2}, {3, 4}, {5, 8}, {500, 512}, {1024, 1024},
	}
	for _, tt := range tests {
		if got := nextPow2(tt.in); got != tt.want {
			t.Errorf("nextPow2(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
