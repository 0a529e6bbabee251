package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"supertrend-engine/internal/export"
	"supertrend-engine/internal/markethours"
	"supertrend-engine/internal/model"
	"supertrend-engine/internal/pipeline"
	sqlitestore "supertrend-engine/internal/store/sqlite"
	"supertrend-engine/internal/strategy"
)

var seedCheckCmd = &cobra.Command{
	Use:   "seed-check",
	Short: "Warm each watch-list pipeline from stored candles and print its indicator state",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		var loaders []model.SeedLoader
		r, err := sqlitestore.NewReader(cfg.SQLitePath)
		if err != nil {
			return err
		}
		defer r.Close()
		loaders = append(loaders, r)
		if cfg.ExportDir != "" {
			a, err := export.NewArchive(cfg.ExportDir)
			if err != nil {
				return err
			}
			loaders = append(loaders, a)
		}

		reg, err := pipeline.NewRegistry(cfg.Pipeline, strategy.NewEvaluator(cfg.EvaluatorOptions()), pipeline.Hooks{})
		if err != nil {
			return err
		}
		since := markethours.PreviousTradingDay(time.Now())
		fmt.Fprintf(os.Stderr, "seeding from %s, up to %d candles per instrument\n", since.Format(time.RFC3339), cfg.SeedCandles)

		ctx := context.Background()
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "INSTRUMENT\tCANDLES\tLAST CLOSE\tSLOW\tMID\tFAST\tRSI")
		for _, inst := range cfg.Instruments {
			p := reg.Add(inst)
			var candles []model.Candle
			for _, l := range loaders {
				if candles, err = l.LoadSeed(ctx, inst.ID, since, cfg.SeedCandles); err == nil && len(candles) > 0 {
					break
				}
			}
			if _, err := p.Seed(candles); err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", inst.ID, err)
			}
			latest, err := p.Latest()
			if err != nil {
				fmt.Fprintf(tw, "%s\t0\t-\t-\t-\t-\t-\n", inst.Name())
				continue
			}
			rsi := ""
			for _, period := range cfg.Pipeline.RSIPeriods {
				v := latest.RSIFor(period)
				if v.Valid {
					rsi += fmt.Sprintf("%d=%.1f ", period, v.V)
				} else {
					rsi += fmt.Sprintf("%d=- ", period)
				}
			}
			n, _ := p.Stats()
			fmt.Fprintf(tw, "%s\t%d\t%.2f\t%s\t%s\t%s\t%s\n", inst.Name(), n, latest.Candle.Close, latest.Slow, latest.Mid, latest.Fast, rsi)
		}
		return tw.Flush()
	},
}
