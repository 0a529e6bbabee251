package sigengine

import (
	"context"
	"errors"
	"log"
	"time"

	"supertrend-engine/internal/markethours"
	"supertrend-engine/internal/pipeline"
)

// restore warms the registry before ticks flow: first from the newest
// usable checkpoint, then by seeding any pipeline the checkpoint did not
// cover from stored candles of the previous trading day onwards.
func (svc *Service) restore(ctx context.Context) {
	svc.restoreSnapshot(ctx)
	svc.seed(ctx, time.Now())
	svc.prom.OpenTrades.Set(float64(len(svc.reg.Evaluator().OpenTrades())))
}

// restoreSnapshot tries each snapshot store in order and applies the first
// checkpoint that decodes and matches the running configuration.
func (svc *Service) restoreSnapshot(ctx context.Context) bool {
	for _, s := range svc.snapshots {
		data, err := s.store.ReadLatestSnapshotJSON(ctx)
		if err != nil {
			log.Printf("[sigengine] WARNING: %s snapshot read failed: %v", s.name, err)
			continue
		}
		if data == nil {
			continue
		}
		snap, err := pipeline.UnmarshalRegistrySnapshot(data)
		if err != nil {
			log.Printf("[sigengine] WARNING: %s snapshot unreadable: %v", s.name, err)
			continue
		}
		n, err := svc.reg.Restore(snap)
		if errors.Is(err, pipeline.ErrIncompatibleSnapshot) {
			log.Printf("[sigengine] %s snapshot ignored: %v", s.name, err)
			continue
		}
		if err != nil {
			log.Printf("[sigengine] WARNING: %s snapshot restore failed after %d pipelines: %v", s.name, n, err)
			continue
		}
		log.Printf("[sigengine] ✅ restored %d pipelines, %d open trades from %s snapshot taken %s",
			n, len(snap.OpenTrades), s.name, snap.TakenAt.Format(time.RFC3339))
		return true
	}
	log.Printf("[sigengine] no usable snapshot, cold start")
	return false
}

// seed pre-populates pipelines that have no candles yet. Loaders are tried
// in order; the first one returning candles wins for that instrument.
func (svc *Service) seed(ctx context.Context, now time.Time) {
	if svc.cfg.SeedCandles <= 0 {
		return
	}
	since := markethours.PreviousTradingDay(now)
	for _, inst := range svc.reg.Instruments() {
		p, ok := svc.reg.Get(inst.ID)
		if !ok {
			continue
		}
		if n, _ := p.Stats(); n > 0 {
			continue
		}
		for _, l := range svc.seeds {
			candles, err := l.loader.LoadSeed(ctx, inst.ID, since, svc.cfg.SeedCandles)
			if err != nil {
				log.Printf("[sigengine] WARNING: %s seed for %s failed: %v", l.name, inst.ID, err)
				continue
			}
			if len(candles) == 0 {
				continue
			}
			applied, err := p.Seed(candles)
			if err != nil {
				log.Printf("[sigengine] WARNING: seed %s: %v", inst.ID, err)
			}
			log.Printf("[sigengine] seeded %s with %d/%d candles from %s", inst.Name(), applied, len(candles), l.name)
			break
		}
	}
}
