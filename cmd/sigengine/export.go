package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"supertrend-engine/internal/export"
	"supertrend-engine/internal/model"
	sqlitestore "supertrend-engine/internal/store/sqlite"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored candles, ticks or signals from SQLite as CSV",
	Example: `  sigengine export --what candles --instrument 26009 --since 2026-10-16 -o banknifty.csv
  sigengine export --what signals --since 2026-10-16T09:15:00+05:30`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		what, _ := cmd.Flags().GetString("what")
		instrument, _ := cmd.Flags().GetString("instrument")
		outPath, _ := cmd.Flags().GetString("out")
		dbPath, _ := cmd.Flags().GetString("db")
		if dbPath == "" {
			dbPath = cfg.SQLitePath
		}
		since, err := parseTimeFlag(cmd, "since")
		if err != nil {
			return err
		}
		until, err := parseTimeFlag(cmd, "until")
		if err != nil {
			return err
		}

		r, err := sqlitestore.NewReader(dbPath)
		if err != nil {
			return err
		}
		defer r.Close()

		toStdout := outPath == "" || outPath == "-"
		// write runs fn against the output and closes it.
		write := func(fn func(io.Writer) error) error {
			if toStdout {
				return fn(os.Stdout)
			}
			f, err := os.Create(outPath)
			if err != nil {
				return err
			}
			if err := fn(f); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		}

		ctx := context.Background()
		switch what {
		case "candles":
			ids := []string{instrument}
			if instrument == "" {
				if ids, err = r.Instruments(ctx); err != nil {
					return err
				}
			}
			var candles []model.Candle
			for _, id := range ids {
				cs, err := r.ReadCandles(ctx, id, since, until, 0)
				if err != nil {
					return err
				}
				candles = append(candles, cs...)
			}
			fmt.Fprintf(os.Stderr, "exporting %d candles\n", len(candles))
			if !toStdout {
				return export.WriteCandlesFile(outPath, candles)
			}
			return export.WriteCandles(os.Stdout, candles)
		case "ticks":
			if instrument == "" {
				return fmt.Errorf("--instrument is required for ticks")
			}
			ticks, err := r.ReadTicks(ctx, instrument, since, until)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "exporting %d ticks\n", len(ticks))
			return write(func(w io.Writer) error { return export.WriteTicks(w, ticks) })
		case "signals":
			sigs, err := r.ReadSignals(ctx, instrument, since, until)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "exporting %d signals\n", len(sigs))
			return write(func(w io.Writer) error { return export.WriteSignals(w, sigs) })
		default:
			return fmt.Errorf("unknown --what %q (candles, ticks, signals)", what)
		}
	},
}

func init() {
	exportCmd.Flags().String("what", "candles", "What to export: candles, ticks or signals")
	exportCmd.Flags().StringP("instrument", "i", "", "Instrument id (required for ticks; all instruments when empty)")
	exportCmd.Flags().StringP("out", "o", "-", "Output file, - for stdout")
	exportCmd.Flags().String("db", "", "SQLite path (defaults to SQLITE_PATH)")
	exportCmd.Flags().StringP("since", "s", "", "Start time, RFC3339 or YYYY-MM-DD (IST)")
	exportCmd.Flags().StringP("until", "u", "", "End time, RFC3339 or YYYY-MM-DD (IST); empty means now")
}
