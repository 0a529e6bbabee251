package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"supertrend-engine/internal/model"
	redisstore "supertrend-engine/internal/store/redis"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print recent signals from Redis, then follow new ones live",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		recent, _ := cmd.Flags().GetInt64("recent")
		indicators, _ := cmd.Flags().GetStringSlice("indicator")

		r, err := redisstore.NewReader(redisstore.ReaderConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return err
		}
		defer r.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		for _, inst := range cfg.Instruments {
			for _, name := range indicators {
				res, err := r.LatestIndicator(ctx, name, inst.ID)
				if err != nil {
					return err
				}
				if res == nil {
					fmt.Printf("%-12s %-10s -\n", inst.Name(), name)
					continue
				}
				fmt.Printf("%-12s %-10s %10.4f  (%s)\n", inst.Name(), name, res.Value, res.TS.Format("15:04:05"))
			}
		}

		if recent > 0 {
			sigs, err := r.RecentSignals(ctx, recent)
			if err != nil {
				return err
			}
			for _, s := range sigs {
				printSignal(s)
			}
		}

		out := make(chan model.Signal, 64)
		errCh := make(chan error, 1)
		go func() { errCh <- r.SubscribeSignals(ctx, out) }()
		fmt.Fprintln(os.Stderr, "following live signals, Ctrl-C to stop")
		for {
			select {
			case <-ctx.Done():
				return nil
			case err := <-errCh:
				if ctx.Err() != nil {
					return nil
				}
				return err
			case s := <-out:
				printSignal(s)
			}
		}
	},
}

func printSignal(s model.Signal) {
	fmt.Printf("%s  %-12s %-28s %10.2f  %s\n", s.TS.Format("2006-01-02 15:04:05"), s.Symbol, s.Kind, s.LastPrice, s.Reason)
}

func init() {
	watchCmd.Flags().Int64("recent", 20, "Number of recent signals to print first (0 for none)")
	watchCmd.Flags().StringSlice("indicator", nil, "Print the latest value of these indicators (e.g. ST_21_3,RSI_13) per watch-list instrument first")
}
