package sigengine

import (
	"context"
	"log"
	"time"

	"supertrend-engine/internal/markethours"
)

// snapshotLoop periodically checkpoints the registry to every snapshot store.
func (svc *Service) snapshotLoop(ctx context.Context) {
	if svc.cfg.SnapshotInterval <= 0 {
		return
	}
	ticker := time.NewTicker(svc.cfg.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.saveSnapshot(ctx)
		}
	}
}

// saveSnapshot writes one checkpoint. Returns the number of stores that
// accepted it.
func (svc *Service) saveSnapshot(ctx context.Context) int {
	snap := svc.reg.Snapshot()
	data, err := snap.Marshal()
	if err != nil {
		log.Printf("[sigengine] snapshot encode error: %v", err)
		return 0
	}
	saved := 0
	for _, s := range svc.snapshots {
		if err := s.store.SaveSnapshotJSON(ctx, data); err != nil {
			log.Printf("[sigengine] %s snapshot write error: %v", s.name, err)
			svc.prom.SinkErrors.WithLabelValues(s.name + "_snapshot").Inc()
			continue
		}
		svc.prom.SnapshotsSaved.WithLabelValues(s.name).Inc()
		saved++
	}
	if saved > 0 {
		log.Printf("[sigengine] ✅ checkpoint saved (%d pipelines, %d open trades)", len(snap.Pipelines), len(snap.OpenTrades))
	}
	return saved
}

// marketLoop tracks the trading session for health and metrics and logs
// session transitions.
func (svc *Service) marketLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	var open, first = false, true
	update := func() {
		now := time.Now()
		isOpen := markethours.IsMarketOpen(now)
		if first || isOpen != open {
			log.Printf("[sigengine] %s", markethours.StatusString(now))
		}
		open, first = isOpen, false
		svc.health.SetMarketOpen(isOpen)
		if isOpen {
			svc.prom.MarketState.Set(1)
		} else {
			svc.prom.MarketState.Set(0)
		}
	}

	update()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}
