// Package ringbuf provides a fixed-capacity candle history that overwrites
// its oldest entry when full. Memory stays bounded no matter how long an
// instrument streams.
package ringbuf

import "supertrend-engine/internal/model"

// Ring is a bounded history of model.Candle in append order.
// Size is rounded up to a power of two for fast bitwise modulo.
// Not safe for concurrent use; the owning pipeline serializes access.
type Ring struct {
	buf  []model.Candle
	mask uint64
	head uint64 // total candles ever pushed

	// Overwritten counts candles evicted by Push on a full ring.
	overwritten uint64
}

// New creates a ring buffer. capacity is rounded up to the next power of two.
// Minimum capacity is 2.
func New(capacity int) *Ring {
	cap := nextPow2(capacity)
	if cap < 2 {
		cap = 2
	}
	return &Ring{
		buf:  make([]model.Candle, cap),
		mask: uint64(cap - 1),
	}
}

// Push appends a candle, evicting the oldest one when the ring is full.
func (r *Ring) Push(c model.Candle) {
	if r.head >= uint64(len(r.buf)) {
		r.overwritten++
	}
	r.buf[r.head&r.mask] = c
	r.head++
}

// Last returns up to n most recent candles, oldest first.
func (r *Ring) Last(n int) []model.Candle {
	size := r.Len()
	if n > size || n < 0 {
		n = size
	}
	out := make([]model.Candle, n)
	start := r.head - uint64(n)
	for i := 0; i < n; i++ {
		out[i] = r.buf[(start+uint64(i))&r.mask]
	}
	return out
}

// Newest returns the most recently pushed candle.
func (r *Ring) Newest() (model.Candle, bool) {
	if r.head == 0 {
		return model.Candle{}, false
	}
	return r.buf[(r.head-1)&r.mask], true
}

// Len returns the current number of retained candles.
func (r *Ring) Len() int {
	if r.head < uint64(len(r.buf)) {
		return int(r.head)
	}
	return len(r.buf)
}

// Total returns the number of candles ever pushed.
func (r *Ring) Total() uint64 { return r.head }

// Cap returns the buffer capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Overwritten returns the total number of candles evicted by Push.
func (r *Ring) Overwritten() uint64 {
	return r.overwritten
}

// nextPow2 returns the smallest power of 2 >= n.
func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
