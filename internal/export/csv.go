// Package export writes candles, ticks and signals as CSV files and reads
// candle CSVs back as seed history.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"

	"supertrend-engine/internal/model"
)

// tickRecord is the flat CSV row for a tick.
type tickRecord struct {
	Instrument string    `csv:"instrument"`
	TS         time.Time `csv:"ts"`
	LastPrice  float64   `csv:"last_price"`
	LastQty    int64     `csv:"last_qty"`
	DayOpen    float64   `csv:"day_open"`
	DayHigh    float64   `csv:"day_high"`
	DayLow     float64   `csv:"day_low"`
	DayClose   float64   `csv:"day_close"`
}

func toTickRecords(ticks []model.Tick) []tickRecord {
	out := make([]tickRecord, len(ticks))
	for i, t := range ticks {
		out[i] = tickRecord{
			Instrument: t.Instrument,
			TS:         t.TS,
			LastPrice:  t.LastPrice,
			LastQty:    t.LastQty,
			DayOpen:    t.Day.Open,
			DayHigh:    t.Day.High,
			DayLow:     t.Day.Low,
			DayClose:   t.Day.Close,
		}
	}
	return out
}

// WriteCandles writes candles with a header row.
func WriteCandles(w io.Writer, candles []model.Candle) error {
	if err := gocsv.Marshal(&candles, w); err != nil {
		return fmt.Errorf("export candles: %w", err)
	}
	return nil
}

// WriteTicks writes ticks with a header row.
func WriteTicks(w io.Writer, ticks []model.Tick) error {
	recs := toTickRecords(ticks)
	if err := gocsv.Marshal(&recs, w); err != nil {
		return fmt.Errorf("export ticks: %w", err)
	}
	return nil
}

// WriteSignals writes signals with a header row.
func WriteSignals(w io.Writer, signals []model.Signal) error {
	if err := gocsv.Marshal(&signals, w); err != nil {
		return fmt.Errorf("export signals: %w", err)
	}
	return nil
}

// ReadCandles parses a candle CSV written by WriteCandles.
func ReadCandles(r io.Reader) ([]model.Candle, error) {
	var candles []model.Candle
	if err := gocsv.Unmarshal(r, &candles); err != nil {
		return nil, fmt.Errorf("parse candles: %w", err)
	}
	return candles, nil
}

// WriteCandlesFile writes candles to path, creating parent directories.
func WriteCandlesFile(path string, candles []model.Candle) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	if err := gocsv.MarshalFile(&candles, f); err != nil {
		return fmt.Errorf("export candles to %s: %w", path, err)
	}
	return nil
}

// appendRecords appends rows to path, writing the header only when the
// file is new or empty. records must be a pointer to a slice.
func appendRecords(path string, records interface{}) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return gocsv.Marshal(records, f)
	}
	return gocsv.MarshalWithoutHeaders(records, f)
}
