package redis

import (
	"errors"
	"testing"
	"time"
)

// clock is a settable time source for breaker tests.
type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(threshold int) (*Breaker, *clock) {
	c := &clock{t: time.Date(2024, 6, 3, 9, 15, 0, 0, time.UTC)}
	b := NewBreaker("redis", threshold, 10*time.Second)
	b.now = c.now
	return b, c
}

var errWrite = errors.New("write failed")

func fail() error { return errWrite }
func ok() error   { return nil }

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreaker(3)

	b.Do("candle", fail)
	b.Do("candle", fail)
	b.Do("signal", ok) // success resets the streak
	b.Do("candle", fail)
	b.Do("candle", fail)
	if b.State() != BreakerClosed {
		t.Fatalf("expected closed after a broken streak, got %v", b.State())
	}

	if err := b.Do("indicators", fail); !errors.Is(err, errWrite) {
		t.Fatalf("tripping write should return its own error, got %v", err)
	}
	st := b.Stats()
	if st.State != BreakerOpen || st.Trips != 1 || st.LastError != errWrite.Error() {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestBreaker_RejectsWithSinkAndOp(t *testing.T) {
	b, c := newTestBreaker(1)
	b.Do("candle", fail)

	called := false
	err := b.Do("snapshot", func() error { called = true; return nil })
	if called {
		t.Fatal("write ran while open")
	}
	var oe *OpenError
	if !errors.As(err, &oe) || !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected *OpenError matching ErrCircuitOpen, got %v", err)
	}
	if oe.Sink != "redis" || oe.Op != "snapshot" || !oe.Until.Equal(c.now().Add(10*time.Second)) {
		t.Errorf("unexpected open error %+v", oe)
	}
}

func TestBreaker_SingleTrialAfterCooldown(t *testing.T) {
	b, c := newTestBreaker(1)
	b.Do("candle", fail)
	c.advance(10 * time.Second)

	// The trial write is in flight: a concurrent write is rejected.
	var inner error
	err := b.Do("signal", func() error {
		if b.State() != BreakerHalfOpen {
			t.Errorf("expected half-open during trial, got %v", b.State())
		}
		inner = b.Do("candle", ok)
		return nil
	})
	if err != nil {
		t.Fatalf("trial write failed: %v", err)
	}
	if !errors.Is(inner, ErrCircuitOpen) {
		t.Errorf("second write during trial should be rejected, got %v", inner)
	}
	if b.State() != BreakerClosed {
		t.Errorf("successful trial should close, got %v", b.State())
	}
}

func TestBreaker_FailedTrialReopens(t *testing.T) {
	b, c := newTestBreaker(2)
	b.Do("candle", fail)
	b.Do("candle", fail)
	c.advance(11 * time.Second)

	if err := b.Do("snapshot", fail); !errors.Is(err, errWrite) {
		t.Fatalf("expected trial error, got %v", err)
	}
	if b.State() != BreakerOpen {
		t.Fatalf("failed trial should reopen, got %v", b.State())
	}
	if b.Stats().Trips != 2 {
		t.Errorf("expected 2 trips, got %d", b.Stats().Trips)
	}
	// The cooldown restarts from the failed trial.
	c.advance(5 * time.Second)
	if err := b.Do("candle", ok); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected rejection inside the new cooldown, got %v", err)
	}
}

func TestBreaker_OnStateChangeNamesSink(t *testing.T) {
	b, c := newTestBreaker(1)
	var got []string
	b.OnStateChange = func(sink string, from, to BreakerState) {
		got = append(got, sink+":"+from.String()+">"+to.String())
	}

	b.Do("candle", fail)
	c.advance(10 * time.Second)
	b.Do("candle", ok)

	want := []string{"redis:closed>open", "redis:open>half-open", "redis:half-open>closed"}
	if len(got) != len(want) {
		t.Fatalf("got transitions %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d: got %s, want %s", i, got[i], want[i])
		}
	}
}
