package redis

import (
	"context"
	"fmt"
	"log"
	"time"
	"unsafe"

	"supertrend-engine/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	// Stream trimming: a full session of 210-tick candles + buffer
	candleStreamMaxLen    = 5000
	indicatorStreamMaxLen = 2000
	signalStreamMaxLen    = 10000
	defaultLatestTTL      = 24 * time.Hour
	snapshotTTL           = 24 * time.Hour
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr        string // Redis address, e.g. "localhost:6379"
	Password    string
	DB          int
	SnapshotKey string // defaults to DefaultSnapshotKey
}

// Writer writes candles, indicator values, signals and checkpoints to Redis.
type Writer struct {
	client      *goredis.Client
	snapshotKey string
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	key := cfg.SnapshotKey
	if key == "" {
		key = DefaultSnapshotKey
	}
	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Writer{client: client, snapshotKey: key}, nil
}

// WriteCandle performs pipelined writes for a completed candle:
// SET latest, XADD to the stream, PUBLISH.
func (w *Writer) WriteCandle(ctx context.Context, candle model.Candle) error {
	jsonData := string(candle.JSON())

	pipe := w.client.Pipeline()
	pipe.Set(ctx, candleLatestKey(candle.Instrument), jsonData, defaultLatestTTL)
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: candleStreamKey(candle.Instrument),
		MaxLen: candleStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	pipe.Publish(ctx, candleChannel(candle.Instrument), jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("candle pipeline error for %s: %w", candle.Instrument, err)
	}
	return nil
}

// WriteIndicatorBatch writes every ready indicator value of one candle in a
// single Redis pipeline (XADD + SET + PUBLISH per value). Values that are not
// ready are skipped: an undefined indicator is never published as 0.
// Optimized: []byte→string zero-copy, no fmt.Sprintf.
func (w *Writer) WriteIndicatorBatch(ctx context.Context, results []model.IndicatorResult) error {
	if len(results) == 0 {
		return nil
	}

	pipe := w.client.Pipeline()
	queued := 0
	for i := range results {
		ind := &results[i]
		if !ind.Ready {
			continue
		}
		jsonBytes := ind.JSON()
		// Zero-copy []byte→string (safe: jsonBytes is not mutated after this)
		jsonData := *(*string)(unsafe.Pointer(&jsonBytes))

		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: ind.StreamKey(),
			MaxLen: indicatorStreamMaxLen,
			Approx: true,
			Values: map[string]interface{}{"data": jsonData},
		})
		pipe.Set(ctx, ind.LatestKey(), jsonData, defaultLatestTTL)
		pipe.Publish(ctx, indicatorChannel(ind.Instrument), jsonData)
		queued++
	}
	if queued == 0 {
		return nil
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("indicator batch pipeline error (%d results): %w", queued, err)
	}
	return nil
}

// PublishSignal appends the signal to the signals stream, stores it as the
// instrument's latest signal and publishes it. Implements model.SignalSink.
func (w *Writer) PublishSignal(ctx context.Context, sig model.Signal) error {
	jsonData := string(sig.JSON())

	pipe := w.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: SignalStream,
		MaxLen: signalStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": jsonData, "kind": string(sig.Kind), "instrument": sig.Instrument},
	})
	pipe.Set(ctx, signalLatestKey(sig.Instrument), jsonData, defaultLatestTTL)
	pipe.Publish(ctx, SignalChannel, jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("signal pipeline error for %s %s: %w", sig.Instrument, sig.Kind, err)
	}
	return nil
}

// SaveSnapshotJSON stores the registry checkpoint under the snapshot key.
// Snapshots are also in SQLite for durability, so a TTL is fine here.
func (w *Writer) SaveSnapshotJSON(ctx context.Context, data []byte) error {
	if err := w.client.Set(ctx, w.snapshotKey, string(data), snapshotTTL).Err(); err != nil {
		return fmt.Errorf("redis set snapshot %s: %w", w.snapshotKey, err)
	}
	return nil
}

// ReadLatestSnapshotJSON loads the registry checkpoint. Returns nil, nil if
// no snapshot exists.
func (w *Writer) ReadLatestSnapshotJSON(ctx context.Context) ([]byte, error) {
	data, err := w.client.Get(ctx, w.snapshotKey).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil // no snapshot found
		}
		return nil, fmt.Errorf("redis get snapshot %s: %w", w.snapshotKey, err)
	}
	return data, nil
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
