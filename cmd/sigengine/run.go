package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"supertrend-engine/config"
	"supertrend-engine/internal/logger"
	"supertrend-engine/internal/markethours"
	"supertrend-engine/internal/sigengine"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the live signal engine until SIGINT/SIGTERM",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			s := <-sigCh
			log.Printf("[sigengine] received %s, stopping", s)
			cancel()
		}()

		svc, err := sigengine.New(ctx, cfg, sigengine.Options{})
		if err != nil {
			return err
		}
		return svc.Run(ctx)
	},
}

// loadConfig loads .env and the environment, installs the logger and
// registers extra market holidays.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	level := cfg.LogLevel
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		level = v
	}
	logger.Init("sigengine", logger.ParseLevel(level))
	if err := markethours.ParseHolidays(cfg.Holidays); err != nil {
		return nil, err
	}
	return cfg, nil
}
