package model

import (
	"context"
	"time"
)

// ── Port Interfaces ──
// These interfaces decouple the signal core from concrete storage and
// delivery implementations (Redis, SQLite, CSV, notifiers).

// SignalSink receives emitted signal events.
type SignalSink interface {
	// PublishSignal delivers one signal. Implementations must not block indefinitely.
	PublishSignal(ctx context.Context, sig Signal) error
}

// CandleSink archives completed candles and their indicator values.
type CandleSink interface {
	// Run reads candles from candleCh and writes them.
	// Blocks until ctx is cancelled or candleCh is closed.
	Run(ctx context.Context, candleCh <-chan Candle)
}

// TickSink archives raw ticks.
type TickSink interface {
	// RunTicks reads ticks from tickCh and writes them.
	// Blocks until ctx is cancelled or tickCh is closed.
	RunTicks(ctx context.Context, tickCh <-chan Tick)
}

// SeedLoader supplies the historical candles that pre-populate an
// instrument's series before live ticks arrive. Candles are returned in
// ascending time order.
type SeedLoader interface {
	LoadSeed(ctx context.Context, instrument string, since time.Time, limit int) ([]Candle, error)
}

// SnapshotStore reads and writes pipeline snapshots as raw JSON.
// Using []byte avoids a model→pipeline→model import cycle.
type SnapshotStore interface {
	// SaveSnapshotJSON persists a JSON-encoded registry snapshot.
	SaveSnapshotJSON(ctx context.Context, data []byte) error

	// ReadLatestSnapshotJSON loads the most recent snapshot as raw JSON.
	// Returns nil, nil if no snapshot exists.
	ReadLatestSnapshotJSON(ctx context.Context) ([]byte, error)
}
