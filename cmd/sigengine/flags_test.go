package main

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supertrend-engine/internal/markethours"
)

func TestParseTimeFlag(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("since", "", "")

	got, err := parseTimeFlag(cmd, "since")
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	require.NoError(t, cmd.Flags().Set("since", "2026-10-16"))
	got, err = parseTimeFlag(cmd, "since")
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2026, 10, 16, 0, 0, 0, 0, markethours.IST)))

	require.NoError(t, cmd.Flags().Set("since", "2026-10-16T09:15:00+05:30"))
	got, err = parseTimeFlag(cmd, "since")
	require.NoError(t, err)
	assert.Equal(t, 9, got.In(markethours.IST).Hour())

	require.NoError(t, cmd.Flags().Set("since", "yesterday"))
	_, err = parseTimeFlag(cmd, "since")
	assert.Error(t, err)
}
