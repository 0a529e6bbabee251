package redis

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// BreakerState is the position of a sink's breaker.
type BreakerState int

const (
	BreakerClosed   BreakerState = 0
	BreakerOpen     BreakerState = 1
	BreakerHalfOpen BreakerState = 2
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen matches every write rejected by an open breaker.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// OpenError reports which sink rejected which write, and until when.
type OpenError struct {
	Sink  string
	Op    string
	Until time.Time
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("%s %s rejected: circuit open until %s", e.Sink, e.Op, e.Until.Format(time.TimeOnly))
}

func (e *OpenError) Is(target error) bool { return target == ErrCircuitOpen }

// BreakerStats is a point-in-time view of a breaker.
type BreakerStats struct {
	Sink      string
	State     BreakerState
	Streak    int
	Trips     int
	LastError string
}

// Breaker guards the candle, indicator, signal and checkpoint writes of one
// named sink. threshold consecutive failures open it; after cooldown a
// single trial write is admitted and its outcome closes or reopens it.
type Breaker struct {
	sink      string
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	state    BreakerState
	streak   int
	openedAt time.Time
	trial    bool
	trips    int
	lastErr  error

	OnStateChange func(sink string, from, to BreakerState)
}

// NewBreaker creates a closed breaker for sink.
func NewBreaker(sink string, threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 1
	}
	return &Breaker{sink: sink, threshold: threshold, cooldown: cooldown, now: time.Now}
}

// Sink returns the name the breaker was created for.
func (b *Breaker) Sink() string { return b.sink }

// Do runs fn for op unless the breaker rejects it with an *OpenError.
func (b *Breaker) Do(op string, fn func() error) error {
	if err := b.admit(op); err != nil {
		return err
	}
	err := fn()
	b.record(err)
	return err
}

func (b *Breaker) admit(op string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		until := b.openedAt.Add(b.cooldown)
		if b.now().Before(until) {
			return &OpenError{Sink: b.sink, Op: op, Until: until}
		}
		b.setState(BreakerHalfOpen)
		b.trial = true
	case BreakerHalfOpen:
		if b.trial {
			return &OpenError{Sink: b.sink, Op: op, Until: b.now()}
		}
		b.trial = true
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerHalfOpen {
		b.trial = false
		if err != nil {
			b.lastErr = err
			b.trip()
			return
		}
		b.streak = 0
		b.setState(BreakerClosed)
		return
	}
	if err == nil {
		b.streak = 0
		return
	}
	b.lastErr = err
	b.streak++
	if b.state == BreakerClosed && b.streak >= b.threshold {
		b.trip()
	}
}

func (b *Breaker) trip() {
	b.openedAt = b.now()
	b.trips++
	b.setState(BreakerOpen)
}

func (b *Breaker) setState(to BreakerState) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.OnStateChange != nil {
		b.OnStateChange(b.sink, from, to)
	}
}

// State returns the current position.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats returns the breaker's counters.
func (b *Breaker) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := BreakerStats{Sink: b.sink, State: b.state, Streak: b.streak, Trips: b.trips}
	if b.lastErr != nil {
		st.LastError = b.lastErr.Error()
	}
	return st
}
