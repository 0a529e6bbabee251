package pipeline

import (
	"errors"

	"supertrend-engine/internal/marketdata/agg"
)

var (
	// ErrUnknownInstrument is returned for a tick whose instrument has no pipeline.
	ErrUnknownInstrument = errors.New("pipeline: unknown instrument")

	// ErrOutOfOrder is returned for a tick or seed candle older than the
	// last entry of the instrument's series.
	ErrOutOfOrder = agg.ErrOutOfOrder

	// ErrInsufficientHistory is returned when no candle has completed yet.
	ErrInsufficientHistory = errors.New("pipeline: insufficient history")

	// ErrIncompatibleSnapshot is returned when a checkpoint was taken with
	// different window or indicator parameters.
	ErrIncompatibleSnapshot = errors.New("pipeline: snapshot config differs")
)
