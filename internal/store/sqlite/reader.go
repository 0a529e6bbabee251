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

// Reader provides read-only access to SQLite for seeding, export and
// snapshot restore.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// ReadCandles reads candles of one instrument with since <= ts < until,
// ordered by timestamp ascending for correct replay order. A zero until
// means no upper bound; limit <= 0 means no limit.
func (r *Reader) ReadCandles(ctx context.Context, instrument string, since, until time.Time, limit int) ([]model.Candle, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT instrument, ts, close_ts, open, high, low, close, volume, ticks
		FROM candles
		WHERE instrument = ? AND ts >= ? AND ts < ?
		ORDER BY ts ASC
		LIMIT ?
	`, instrument, since.UnixMilli(), upper(until), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()
	return scanCandles(rows)
}

// LoadSeed returns the last limit candles of instrument at or after since,
// oldest first. Implements model.SeedLoader.
func (r *Reader) LoadSeed(ctx context.Context, instrument string, since time.Time, limit int) ([]model.Candle, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT instrument, ts, close_ts, open, high, low, close, volume, ticks FROM (
			SELECT * FROM candles
			WHERE instrument = ? AND ts >= ?
			ORDER BY ts DESC
			LIMIT ?
		) ORDER BY ts ASC
	`, instrument, since.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query seed candles: %w", err)
	}
	defer rows.Close()
	return scanCandles(rows)
}

func scanCandles(rows *sql.Rows) ([]model.Candle, error) {
	var candles []model.Candle
	for rows.Next() {
		var c model.Candle
		var ts, closeTS int64
		var volume, ticks sql.NullInt64
		if err := rows.Scan(&c.Instrument, &ts, &closeTS, &c.Open, &c.High, &c.Low, &c.Close, &volume, &ticks); err != nil {
			return nil, fmt.Errorf("sqlite scan candles: %w", err)
		}
		c.TS = fromMillis(ts)
		c.CloseTS = fromMillis(closeTS)
		c.Volume = volume.Int64
		c.Ticks = int(ticks.Int64)
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// ReadTicks reads raw ticks of one instrument with since <= ts < until, ascending.
func (r *Reader) ReadTicks(ctx context.Context, instrument string, since, until time.Time) ([]model.Tick, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT instrument, ts, price, qty, day_open, day_high, day_low, day_close
		FROM ticks
		WHERE instrument = ? AND ts >= ? AND ts < ?
		ORDER BY ts ASC, rowid ASC
	`, instrument, since.UnixMilli(), upper(until))
	if err != nil {
		return nil, fmt.Errorf("sqlite query ticks: %w", err)
	}
	defer rows.Close()

	var ticks []model.Tick
	for rows.Next() {
		var t model.Tick
		var ts int64
		var qty sql.NullInt64
		var do, dh, dl, dc sql.NullFloat64
		if err := rows.Scan(&t.Instrument, &ts, &t.LastPrice, &qty, &do, &dh, &dl, &dc); err != nil {
			return nil, fmt.Errorf("sqlite scan ticks: %w", err)
		}
		t.TS = fromMillis(ts)
		t.LastQty = qty.Int64
		t.Day = model.DayOHLC{Open: do.Float64, High: dh.Float64, Low: dl.Float64, Close: dc.Float64}
		ticks = append(ticks, t)
	}
	return ticks, rows.Err()
}

// ReadSignals reads signals with since <= ts < until, ascending. An empty
// instrument matches every instrument.
func (r *Reader) ReadSignals(ctx context.Context, instrument string, since, until time.Time) ([]model.Signal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, instrument, symbol, kind, ts, last_price, reason
		FROM signals
		WHERE (? = '' OR instrument = ?) AND ts >= ? AND ts < ?
		ORDER BY ts ASC
	`, instrument, instrument, since.UnixMilli(), upper(until))
	if err != nil {
		return nil, fmt.Errorf("sqlite query signals: %w", err)
	}
	defer rows.Close()

	var out []model.Signal
	for rows.Next() {
		var s model.Signal
		var kind string
		var ts int64
		var symbol, reason sql.NullString
		var price sql.NullFloat64
		if err := rows.Scan(&s.ID, &s.Instrument, &symbol, &kind, &ts, &price, &reason); err != nil {
			return nil, fmt.Errorf("sqlite scan signals: %w", err)
		}
		s.Symbol = symbol.String
		s.Kind = model.SignalKind(kind)
		s.TS = fromMillis(ts)
		s.LastPrice = price.Float64
		s.Reason = reason.String
		out = append(out, s)
	}
	return out, rows.Err()
}

// ReadIndicators reads the last limit stored values of one indicator,
// oldest first. Only ready values are ever stored.
func (r *Reader) ReadIndicators(ctx context.Context, instrument, name string, limit int) ([]model.IndicatorResult, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT ts, value FROM (
			SELECT ts, value FROM indicators
			WHERE instrument = ? AND name = ?
			ORDER BY ts DESC
			LIMIT ?
		) ORDER BY ts ASC
	`, instrument, name, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query indicators: %w", err)
	}
	defer rows.Close()

	var out []model.IndicatorResult
	for rows.Next() {
		var ts int64
		var v float64
		if err := rows.Scan(&ts, &v); err != nil {
			return nil, fmt.Errorf("sqlite scan indicators: %w", err)
		}
		out = append(out, model.IndicatorResult{Name: name, Instrument: instrument, Value: v, TS: fromMillis(ts), Ready: true})
	}
	return out, rows.Err()
}

// Instruments lists every instrument with stored candles.
func (r *Reader) Instruments(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT instrument FROM candles ORDER BY instrument`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query instruments: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ReadLatestSnapshotJSON loads the most recent registry checkpoint.
// Returns nil, nil if no snapshot exists.
func (r *Reader) ReadLatestSnapshotJSON(ctx context.Context) ([]byte, error) {
	return readLatestSnapshot(ctx, r.db)
}

func readLatestSnapshot(ctx context.Context, db *sql.DB) ([]byte, error) {
	var data string
	err := db.QueryRowContext(ctx, `SELECT data FROM snapshots ORDER BY id DESC LIMIT 1`).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // no snapshot
		}
		return nil, fmt.Errorf("sqlite read snapshot: %w", err)
	}
	return []byte(data), nil
}

func upper(until time.Time) int64 {
	if until.IsZero() {
		return 1<<63 - 1
	}
	return until.UnixMilli()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
