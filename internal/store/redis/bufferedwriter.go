package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"

	"supertrend-engine/internal/model"
)

type writeKind string

const (
	writeCandle     writeKind = "candle"
	writeIndicators writeKind = "indicators"
	writeSignal     writeKind = "signal"
	writeSnapshot   writeKind = "snapshot"
)

// pendingWrite represents a write that was buffered during circuit-open state.
type pendingWrite struct {
	Kind writeKind
	Data []byte // JSON-encoded payload
}

// sink is the subset of Writer the buffered writer drives.
type sink interface {
	WriteCandle(ctx context.Context, c model.Candle) error
	WriteIndicatorBatch(ctx context.Context, results []model.IndicatorResult) error
	PublishSignal(ctx context.Context, sig model.Signal) error
	SaveSnapshotJSON(ctx context.Context, data []byte) error
	ReadLatestSnapshotJSON(ctx context.Context) ([]byte, error)
}

// BufferedWriter wraps a Redis Writer with a Breaker.
// While the breaker is open, candle, indicator and signal writes are queued
// locally and checkpoints are coalesced to the newest one. Everything is
// replayed when the breaker closes again.
type BufferedWriter struct {
	writer sink
	cb     *Breaker
	ctx    context.Context

	mu       sync.Mutex
	buffer   []pendingWrite
	maxBuf   int // max buffered writes before dropping oldest (default: 10000)
	snapshot []byte

	// Callbacks
	OnBuffer func()          // called when a write is buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered writes
}

// NewBufferedWriter creates a BufferedWriter wrapping the given Writer.
func NewBufferedWriter(ctx context.Context, w *Writer, cb *Breaker, maxBufferSize int) *BufferedWriter {
	return newBufferedWriter(ctx, w, cb, maxBufferSize)
}

func newBufferedWriter(ctx context.Context, w sink, cb *Breaker, maxBufferSize int) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bw := &BufferedWriter{
		writer: w,
		cb:     cb,
		ctx:    ctx,
		buffer: make([]pendingWrite, 0, 256),
		maxBuf: maxBufferSize,
	}

	// Register flush on circuit close
	prevCallback := cb.OnStateChange
	cb.OnStateChange = func(name string, from, to BreakerState) {
		if prevCallback != nil {
			prevCallback(name, from, to)
		}
		if to == BreakerClosed {
			go bw.flush()
		}
	}

	return bw
}

// WriteCandle writes a completed candle through the breaker.
// If the circuit is open, the write is buffered locally.
func (bw *BufferedWriter) WriteCandle(c model.Candle) error {
	return bw.do(writeCandle, c, func() error { return bw.writer.WriteCandle(bw.ctx, c) })
}

// WriteIndicators writes one candle's indicator values through the breaker.
func (bw *BufferedWriter) WriteIndicators(results []model.IndicatorResult) error {
	return bw.do(writeIndicators, results, func() error { return bw.writer.WriteIndicatorBatch(bw.ctx, results) })
}

// PublishSignal publishes a signal through the breaker.
// Implements model.SignalSink; a buffered signal is not an error.
func (bw *BufferedWriter) PublishSignal(_ context.Context, sig model.Signal) error {
	return bw.do(writeSignal, sig, func() error { return bw.writer.PublishSignal(bw.ctx, sig) })
}

// SaveSnapshotJSON stores a checkpoint through the breaker. While open only
// the newest checkpoint is kept for replay. Implements model.SnapshotStore.
func (bw *BufferedWriter) SaveSnapshotJSON(ctx context.Context, data []byte) error {
	err := bw.cb.Do(string(writeSnapshot), func() error { return bw.writer.SaveSnapshotJSON(ctx, data) })
	if !errors.Is(err, ErrCircuitOpen) {
		return err
	}
	bw.mu.Lock()
	bw.snapshot = append(bw.snapshot[:0], data...)
	bw.mu.Unlock()
	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
	return nil
}

// ReadLatestSnapshotJSON reads straight from Redis, bypassing the breaker.
func (bw *BufferedWriter) ReadLatestSnapshotJSON(ctx context.Context) ([]byte, error) {
	return bw.writer.ReadLatestSnapshotJSON(ctx)
}

// Breaker returns the breaker guarding this writer.
func (bw *BufferedWriter) Breaker() *Breaker { return bw.cb }

func (bw *BufferedWriter) do(kind writeKind, payload interface{}, fn func() error) error {
	err := bw.cb.Do(string(kind), fn)
	if errors.Is(err, ErrCircuitOpen) {
		bw.bufferWrite(kind, payload)
		return nil // buffered, not lost
	}
	return err
}

func (bw *BufferedWriter) bufferWrite(kind writeKind, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[buffered-writer] marshal error: %v", err)
		return
	}

	bw.mu.Lock()
	defer bw.mu.Unlock()

	if len(bw.buffer) >= bw.maxBuf {
		// Buffer full: drop oldest
		bw.buffer = bw.buffer[1:]
	}
	bw.buffer = append(bw.buffer, pendingWrite{Kind: kind, Data: data})

	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
}

// flush replays all buffered writes through the underlying writer, in order.
func (bw *BufferedWriter) flush() {
	bw.mu.Lock()
	if len(bw.buffer) == 0 && bw.snapshot == nil {
		bw.mu.Unlock()
		return
	}
	// Take ownership of the buffer
	toFlush := bw.buffer
	snap := bw.snapshot
	bw.buffer = make([]pendingWrite, 0, 256)
	bw.snapshot = nil
	bw.mu.Unlock()

	flushed := 0
	for _, pw := range toFlush {
		var err error
		switch pw.Kind {
		case writeCandle:
			var c model.Candle
			if err = json.Unmarshal(pw.Data, &c); err == nil {
				err = bw.writer.WriteCandle(bw.ctx, c)
			}
		case writeIndicators:
			var results []model.IndicatorResult
			if err = json.Unmarshal(pw.Data, &results); err == nil {
				err = bw.writer.WriteIndicatorBatch(bw.ctx, results)
			}
		case writeSignal:
			var sig model.Signal
			if err = json.Unmarshal(pw.Data, &sig); err == nil {
				err = bw.writer.PublishSignal(bw.ctx, sig)
			}
		}
		if err != nil {
			log.Printf("[buffered-writer] replay %s failed: %v", pw.Kind, err)
			continue
		}
		flushed++
	}

	total := len(toFlush)
	if snap != nil {
		total++
		if err := bw.writer.SaveSnapshotJSON(bw.ctx, snap); err != nil {
			log.Printf("[buffered-writer] replay checkpoint failed: %v", err)
		} else {
			flushed++
		}
	}

	log.Printf("[buffered-writer] %s: flushed %d/%d buffered writes", bw.cb.Sink(), flushed, total)
	if bw.OnFlush != nil {
		bw.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered writes waiting to be flushed,
// counting a held checkpoint as one.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	n := len(bw.buffer)
	if bw.snapshot != nil {
		n++
	}
	return n
}
