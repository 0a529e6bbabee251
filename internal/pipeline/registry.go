package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"supertrend-engine/internal/model"
	"supertrend-engine/internal/strategy"
)

// workerBuffer is the per-instrument tick queue depth used by Run.
const workerBuffer = 1024

// Registry maps instrument id → Pipeline.
type Registry struct {
	cfg   Config
	eval  *strategy.Evaluator
	hooks Hooks

	mu    sync.RWMutex
	pipes map[string]*Pipeline
}

// NewRegistry creates an empty registry. All pipelines share cfg and eval.
func NewRegistry(cfg Config, eval *strategy.Evaluator, hooks Hooks) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline config: %w", err)
	}
	return &Registry{
		cfg:   cfg,
		eval:  eval,
		hooks: hooks,
		pipes: make(map[string]*Pipeline),
	}, nil
}

// Config returns the shared pipeline configuration.
func (r *Registry) Config() Config { return r.cfg }

// Evaluator returns the shared signal evaluator.
func (r *Registry) Evaluator() *strategy.Evaluator { return r.eval }

// Add registers inst and returns its pipeline. Adding an instrument twice
// returns the existing pipeline.
func (r *Registry) Add(inst model.Instrument) *Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pipes[inst.ID]; ok {
		return p
	}
	p := New(inst, r.cfg, r.eval, r.hooks)
	r.pipes[inst.ID] = p
	return p
}

// Get returns the pipeline for instrument.
func (r *Registry) Get(instrument string) (*Pipeline, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pipes[instrument]
	return p, ok
}

// Instruments returns the registered instruments ordered by id.
func (r *Registry) Instruments() []model.Instrument {
	r.mu.RLock()
	out := make([]model.Instrument, 0, len(r.pipes))
	for _, p := range r.pipes {
		out = append(out, p.inst)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Ingest routes one tick to its pipeline. Ticks for unregistered
// instruments return ErrUnknownInstrument.
func (r *Registry) Ingest(tick model.Tick) (*Result, error) {
	p, ok := r.Get(tick.Instrument)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInstrument, tick.Instrument)
	}
	return p.Ingest(tick)
}

// Run consumes a mixed tick stream and processes each instrument on its own
// goroutine, preserving per-instrument arrival order. emit is called from
// the worker goroutines for every completed candle and must be safe for
// concurrent use. Run returns once every worker has stopped, so a snapshot
// taken afterwards is consistent. Partial windows are never flushed.
func (r *Registry) Run(ctx context.Context, tickCh <-chan model.Tick, emit func(*Result)) {
	r.mu.RLock()
	queues := make(map[string]chan model.Tick, len(r.pipes))
	pipes := make(map[string]*Pipeline, len(r.pipes))
	for id, p := range r.pipes {
		queues[id] = make(chan model.Tick, workerBuffer)
		pipes[id] = p
	}
	r.mu.RUnlock()

	var wg sync.WaitGroup
	for id, q := range queues {
		wg.Add(1)
		go func(p *Pipeline, q <-chan model.Tick) {
			defer wg.Done()
			r.work(ctx, p, q, emit)
		}(pipes[id], q)
	}

	defer func() {
		for _, q := range queues {
			close(q)
		}
		wg.Wait()
		log.Printf("[pipeline] registry stopped (%d instruments)", len(queues))
	}()

	unknown := make(map[string]time.Time)
	for {
		select {
		case <-ctx.Done():
			return
		case tick, ok := <-tickCh:
			if !ok {
				return
			}
			q, known := queues[tick.Instrument]
			if !known {
				r.dropUnknown(tick.Instrument, unknown)
				continue
			}
			select {
			case q <- tick:
			case <-ctx.Done():
				return
			}
		}
	}
}

// work folds ticks for one pipeline. After cancellation the remaining
// queue is drained without processing.
func (r *Registry) work(ctx context.Context, p *Pipeline, q <-chan model.Tick, emit func(*Result)) {
	for tick := range q {
		if ctx.Err() != nil {
			continue
		}
		res, err := p.Ingest(tick)
		if err != nil {
			if errors.Is(err, ErrOutOfOrder) {
				log.Printf("[pipeline] WARNING: %v", err)
			} else {
				log.Printf("[pipeline] %s: ingest error: %v", p.inst.Name(), err)
			}
			continue
		}
		if res != nil && emit != nil {
			emit(res)
		}
	}
}

// dropUnknown reports a tick for an unregistered instrument, logging at
// most once a minute per instrument.
func (r *Registry) dropUnknown(instrument string, lastLog map[string]time.Time) {
	if r.hooks.OnDroppedTick != nil {
		r.hooks.OnDroppedTick("unknown_instrument")
	}
	if t, ok := lastLog[instrument]; ok && time.Since(t) < time.Minute {
		return
	}
	lastLog[instrument] = time.Now()
	log.Printf("[pipeline] WARNING: %v: %s (tick dropped)", ErrUnknownInstrument, instrument)
}

// Snapshot captures every pipeline and the Open Trade Set.
func (r *Registry) Snapshot() *RegistrySnapshot {
	r.mu.RLock()
	pipes := make([]*Pipeline, 0, len(r.pipes))
	for _, p := range r.pipes {
		pipes = append(pipes, p)
	}
	r.mu.RUnlock()
	sort.Slice(pipes, func(i, j int) bool { return pipes[i].inst.ID < pipes[j].inst.ID })

	snap := &RegistrySnapshot{
		Version:    SnapshotVersion,
		TakenAt:    time.Now().UTC(),
		Config:     r.cfg,
		Pipelines:  make([]State, 0, len(pipes)),
		OpenTrades: r.eval.OpenTrades(),
	}
	for _, p := range pipes {
		snap.Pipelines = append(snap.Pipelines, p.State())
	}
	return snap
}

// Restore applies a checkpoint. States for instruments no longer in the
// watch-list are skipped, as are open trades for them. Returns the number
// of pipelines restored.
func (r *Registry) Restore(snap *RegistrySnapshot) (int, error) {
	if snap == nil {
		return 0, nil
	}
	if !r.cfg.Compatible(snap.Config) {
		return 0, fmt.Errorf("%w: have window=%d st=%v rsi=%v", ErrIncompatibleSnapshot,
			snap.Config.WindowSize, snap.Config.SuperTrends, snap.Config.RSIPeriods)
	}
	restored := 0
	for _, st := range snap.Pipelines {
		p, ok := r.Get(st.Instrument.ID)
		if !ok {
			log.Printf("[pipeline] snapshot has unknown instrument %s, skipping", st.Instrument.ID)
			continue
		}
		if err := p.Restore(st); err != nil {
			return restored, err
		}
		restored++
	}

	trades := make([]strategy.OpenTrade, 0, len(snap.OpenTrades))
	for _, t := range snap.OpenTrades {
		if _, ok := r.Get(t.Instrument); ok {
			trades = append(trades, t)
		}
	}
	r.eval.Restore(trades)
	return restored, nil
}
