package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"supertrend-engine/internal/markethours"
)

// parseTimeFlag reads an RFC3339 timestamp or a YYYY-MM-DD date (midnight
// IST). An empty flag yields the zero time.
func parseTimeFlag(cmd *cobra.Command, name string) (time.Time, error) {
	v, _ := cmd.Flags().GetString(name)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", v, markethours.IST)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: want RFC3339 or YYYY-MM-DD, got %q", name, v)
	}
	return t, nil
}
