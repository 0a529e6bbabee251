package pipeline

import (
	"fmt"
	"strconv"

	"supertrend-engine/internal/marketdata/agg"
)

// STSpec configures one SuperTrend instance.
type STSpec struct {
	Period     int     `json:"period" yaml:"period"`
	Multiplier float64 `json:"multiplier" yaml:"multiplier"`
}

func (s STSpec) String() string {
	return strconv.Itoa(s.Period) + ":" + strconv.FormatFloat(s.Multiplier, 'f', -1, 64)
}

// Config is the static, read-only configuration shared by every pipeline.
type Config struct {
	WindowSize int `json:"window_size"`

	// SuperTrends lists the slow, mid and fast instances, in that order.
	SuperTrends []STSpec `json:"supertrends"`

	RSIPeriods []int `json:"rsi_periods"`

	// DisplayPeriod is the EMA/WMA period (export only).
	DisplayPeriod int `json:"display_period"`

	// HistorySize bounds the retained candle history per instrument.
	HistorySize int `json:"history_size"`
}

// DefaultConfig returns the 210-tick, 21/3 13/2 8/1 configuration.
func DefaultConfig() Config {
	return Config{
		WindowSize:    agg.DefaultSize,
		SuperTrends:   []STSpec{{21, 3}, {13, 2}, {8, 1}},
		RSIPeriods:    []int{13, 21, 34},
		DisplayPeriod: 21,
		HistorySize:   512,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.WindowSize < 1 {
		return fmt.Errorf("window size must be >= 1, got %d", c.WindowSize)
	}
	if len(c.SuperTrends) != 3 {
		return fmt.Errorf("need exactly 3 supertrends (slow, mid, fast), got %d", len(c.SuperTrends))
	}
	seenST := make(map[STSpec]bool, len(c.SuperTrends))
	for _, s := range c.SuperTrends {
		if s.Period < 1 || s.Multiplier <= 0 {
			return fmt.Errorf("invalid supertrend %s", s)
		}
		if seenST[s] {
			return fmt.Errorf("duplicate supertrend %s", s)
		}
		seenST[s] = true
	}
	seenRSI := make(map[int]bool, len(c.RSIPeriods))
	for _, p := range c.RSIPeriods {
		if p < 1 {
			return fmt.Errorf("invalid RSI period %d", p)
		}
		if seenRSI[p] {
			return fmt.Errorf("duplicate RSI period %d", p)
		}
		seenRSI[p] = true
	}
	if c.DisplayPeriod < 1 {
		return fmt.Errorf("invalid display period %d", c.DisplayPeriod)
	}
	return nil
}

// MaxPeriod returns the longest lookback across all indicators.
func (c Config) MaxPeriod() int {
	max := c.DisplayPeriod
	for _, s := range c.SuperTrends {
		if s.Period > max {
			max = s.Period
		}
	}
	for _, p := range c.RSIPeriods {
		if p+1 > max {
			max = p + 1
		}
	}
	return max
}

// Compatible reports whether indicator state computed under o can be
// continued under c. HistorySize may differ.
func (c Config) Compatible(o Config) bool {
	if c.WindowSize != o.WindowSize || c.DisplayPeriod != o.DisplayPeriod {
		return false
	}
	if len(c.SuperTrends) != len(o.SuperTrends) || len(c.RSIPeriods) != len(o.RSIPeriods) {
		return false
	}
	for i := range c.SuperTrends {
		if c.SuperTrends[i] != o.SuperTrends[i] {
			return false
		}
	}
	for i := range c.RSIPeriods {
		if c.RSIPeriods[i] != o.RSIPeriods[i] {
			return false
		}
	}
	return true
}
