package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"supertrend-engine/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
	keepSnapshots     = 10
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/sigengine.db"
}

// Writer is a single-connection SQLite writer with transaction batching.
// It archives candles, ticks, indicator values and signals, and keeps
// registry checkpoints.
type Writer struct {
	db *sql.DB

	// OnCommit is called with the duration of every successful batch commit
	// (optional, set before Run).
	OnCommit func(time.Duration)
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", dsn(cfg.DBPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

func dsn(path string) string {
	return path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
}

// Timestamps are stored as Unix milliseconds: many ticks share a second.
func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			instrument TEXT    NOT NULL,
			ts         INTEGER NOT NULL,
			close_ts   INTEGER NOT NULL,
			open       REAL    NOT NULL,
			high       REAL    NOT NULL,
			low        REAL    NOT NULL,
			close      REAL    NOT NULL,
			volume     INTEGER,
			ticks      INTEGER,
			PRIMARY KEY (instrument, ts)
		);

		CREATE TABLE IF NOT EXISTS ticks (
			instrument TEXT    NOT NULL,
			ts         INTEGER NOT NULL,
			price      REAL    NOT NULL,
			qty        INTEGER,
			day_open   REAL,
			day_high   REAL,
			day_low    REAL,
			day_close  REAL
		);
		CREATE INDEX IF NOT EXISTS idx_ticks_inst_ts ON ticks (instrument, ts);

		CREATE TABLE IF NOT EXISTS indicators (
			instrument TEXT    NOT NULL,
			name       TEXT    NOT NULL,
			ts         INTEGER NOT NULL,
			value      REAL,
			PRIMARY KEY (instrument, name, ts)
		);

		CREATE TABLE IF NOT EXISTS signals (
			id         TEXT    PRIMARY KEY,
			instrument TEXT    NOT NULL,
			symbol     TEXT,
			kind       TEXT    NOT NULL,
			ts         INTEGER NOT NULL,
			last_price REAL,
			reason     TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_signals_ts ON signals (ts);

		CREATE TABLE IF NOT EXISTS snapshots (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			data       TEXT    NOT NULL,
			created_at INTEGER NOT NULL
		);
	`)
	return err
}

// runBatched drains ch into insert in batched transactions.
// Flushes every batchSize items OR every flushDelay, whichever first.
// Blocks until ctx is cancelled or ch is closed; pending items are flushed.
func runBatched[T any](ctx context.Context, what string, ch <-chan T, insert func([]T) error, observe func(time.Duration)) {
	batch := make([]T, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := insert(batch); err != nil {
			log.Printf("[sqlite] %s batch insert error: %v", what, err)
		} else {
			d := time.Since(start)
			if observe != nil {
				observe(d)
			}
			if d > 100*time.Millisecond {
				log.Printf("[sqlite] committed %d %s in %v", len(batch), what, d)
			}
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
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// Run archives completed candles. Implements model.CandleSink.
func (w *Writer) Run(ctx context.Context, candleCh <-chan model.Candle) {
	runBatched(ctx, "candles", candleCh, w.InsertCandles, w.OnCommit)
}

// RunTicks archives raw ticks. Implements model.TickSink.
func (w *Writer) RunTicks(ctx context.Context, tickCh <-chan model.Tick) {
	runBatched(ctx, "ticks", tickCh, w.insertTicks, w.OnCommit)
}

// RunIndicators archives ready indicator values.
func (w *Writer) RunIndicators(ctx context.Context, indCh <-chan model.IndicatorResult) {
	runBatched(ctx, "indicators", indCh, w.insertIndicators, w.OnCommit)
}

// execBatch runs one prepared statement per item in a single transaction.
func execBatch[T any](db *sql.DB, query string, items []T, args func(T) []interface{}) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(query)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, it := range items {
		a := args(it)
		if a == nil {
			continue
		}
		if _, err := stmt.Exec(a...); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// InsertCandles upserts a batch of candles in a single transaction.
func (w *Writer) InsertCandles(candles []model.Candle) error {
	return execBatch(w.db, `
		INSERT OR REPLACE INTO candles (instrument, ts, close_ts, open, high, low, close, volume, ticks)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, candles, func(c model.Candle) []interface{} {
		return []interface{}{c.Instrument, c.TS.UnixMilli(), c.CloseTS.UnixMilli(), c.Open, c.High, c.Low, c.Close, c.Volume, c.Ticks}
	})
}

func (w *Writer) insertTicks(ticks []model.Tick) error {
	return execBatch(w.db, `
		INSERT INTO ticks (instrument, ts, price, qty, day_open, day_high, day_low, day_close)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, ticks, func(t model.Tick) []interface{} {
		return []interface{}{t.Instrument, t.TS.UnixMilli(), t.LastPrice, t.LastQty, t.Day.Open, t.Day.High, t.Day.Low, t.Day.Close}
	})
}

// insertIndicators skips values that are not ready: undefined is stored as absent, never as 0.
func (w *Writer) insertIndicators(results []model.IndicatorResult) error {
	return execBatch(w.db, `
		INSERT OR REPLACE INTO indicators (instrument, name, ts, value)
		VALUES (?, ?, ?, ?)
	`, results, func(r model.IndicatorResult) []interface{} {
		if !r.Ready {
			return nil
		}
		return []interface{}{r.Instrument, r.Name, r.TS.UnixMilli(), r.Value}
	})
}

// PublishSignal stores one signal. Implements model.SignalSink.
func (w *Writer) PublishSignal(ctx context.Context, sig model.Signal) error {
	_, err := w.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO signals (id, instrument, symbol, kind, ts, last_price, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, sig.ID, sig.Instrument, sig.Symbol, string(sig.Kind), sig.TS.UnixMilli(), sig.LastPrice, sig.Reason)
	if err != nil {
		return fmt.Errorf("sqlite insert signal: %w", err)
	}
	return nil
}

// SaveSnapshotJSON stores a registry checkpoint and prunes old ones.
func (w *Writer) SaveSnapshotJSON(ctx context.Context, data []byte) error {
	_, err := w.db.ExecContext(ctx, `INSERT INTO snapshots (data, created_at) VALUES (?, ?)`,
		string(data), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite insert snapshot: %w", err)
	}

	// Prune old snapshots, keep the most recent few
	_, err = w.db.ExecContext(ctx,
		`DELETE FROM snapshots WHERE id NOT IN (SELECT id FROM snapshots ORDER BY id DESC LIMIT ?)`, keepSnapshots)
	if err != nil {
		log.Printf("[sqlite] prune snapshots warning: %v", err)
	}
	return nil
}

// ReadLatestSnapshotJSON loads the most recent checkpoint written through
// this connection. Returns nil, nil if none exists.
func (w *Writer) ReadLatestSnapshotJSON(ctx context.Context) ([]byte, error) {
	return readLatestSnapshot(ctx, w.db)
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
