// Command sigengine runs the SuperTrend signal engine and its tooling.
package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sigengine",
	Short: "Tick-count SuperTrend/RSI signal engine",
	Long: `sigengine folds live ticks into fixed-count candles per instrument,
runs three SuperTrends and the RSI family on them and emits trade signals.
Configuration comes from the environment (and an optional .env file).`,
	SilenceUsage: true,
}

func main() {
	rootCmd.PersistentFlags().String("log-level", "", "Log level override (debug, info, warn, error)")
	rootCmd.AddCommand(runCmd, exportCmd, seedCheckCmd, watchCmd)
	cobra.CheckErr(rootCmd.Execute())
}
