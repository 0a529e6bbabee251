package sigengine

import (
	"context"
	"log"
	"log/slog"
	"strconv"
	"time"

	"supertrend-engine/internal/logger"
	"supertrend-engine/internal/marketdata/bus"
	"supertrend-engine/internal/model"
	"supertrend-engine/internal/pipeline"
)

const sinkBuffer = 1024

// sinkInputs are the per-concern queues a completed result is split into.
type sinkInputs struct {
	candles    chan model.Candle
	indicators chan model.IndicatorResult
	signals    chan model.Signal
}

// startSinks starts the candle, indicator and signal writers. They exit
// once their input is closed by dispatch.
func (svc *Service) startSinks(ctx context.Context, goSink func(func())) *sinkInputs {
	in := &sinkInputs{
		candles:    make(chan model.Candle, sinkBuffer),
		indicators: make(chan model.IndicatorResult, sinkBuffer*4),
		signals:    make(chan model.Signal, sinkBuffer),
	}
	svc.sqlWriter.OnCommit = func(d time.Duration) { svc.prom.SQLiteCommitDur.Observe(d.Seconds()) }

	candleBus := bus.New[model.Candle]("candles", sinkBuffer)
	sqlCandles := candleBus.SubscribeBlocking()
	goSink(func() { svc.sqlWriter.Run(ctx, sqlCandles) })
	if svc.archive != nil {
		csvCandles := candleBus.SubscribeBlocking()
		goSink(func() { svc.archive.Run(ctx, csvCandles) })
	}
	goSink(func() { candleBus.Run(ctx, in.candles) })
	goSink(func() { svc.sqlWriter.RunIndicators(ctx, in.indicators) })
	goSink(func() { svc.publishSignals(ctx, in.signals) })
	return in
}

// dispatch splits each result into its candle, indicator readings and
// signals. Closes the sink inputs when results is closed.
func (svc *Service) dispatch(results <-chan *pipeline.Result, out *sinkInputs) {
	defer func() {
		close(out.candles)
		close(out.indicators)
		close(out.signals)
	}()
	for res := range results {
		out.candles <- res.Candle
		for _, ind := range res.Indicators {
			if ind.Ready {
				out.indicators <- ind
			}
		}
		for _, sig := range res.Signals {
			out.signals <- sig
		}
	}
}

// publishSignals delivers every signal to every sink. A failing sink is
// counted and logged; it never holds back the others.
func (svc *Service) publishSignals(ctx context.Context, signals <-chan model.Signal) {
	for sig := range signals {
		for _, s := range svc.sinks {
			sctx, cancel := context.WithTimeout(ctx, sinkTimeout)
			err := s.sink.PublishSignal(sctx, sig)
			cancel()
			if err != nil {
				svc.prom.SinkErrors.WithLabelValues(s.name).Inc()
				log.Printf("[sigengine] %s sink: signal %s %s: %v", s.name, sig.Instrument, sig.Kind, err)
			}
		}
	}
}

// writeRedis mirrors candles and indicator readings into Redis through the
// circuit breaker. Lossy: it reads from a non-blocking subscription.
func (svc *Service) writeRedis(results <-chan *pipeline.Result) {
	for res := range results {
		if err := svc.redisBuf.WriteCandle(res.Candle); err != nil {
			svc.prom.SinkErrors.WithLabelValues("redis").Inc()
		}
		if len(res.Indicators) > 0 {
			if err := svc.redisBuf.WriteIndicators(res.Indicators); err != nil {
				svc.prom.SinkErrors.WithLabelValues("redis").Inc()
			}
		}
	}
}

// observe records metrics and logs for a completed candle. Called from the
// registry workers.
func (svc *Service) observe(res *pipeline.Result) {
	svc.prom.ObserveCandle(res.Elapsed, res.Signals)
	svc.health.SetLastCandleTime(res.Candle.CloseTS)
	for _, sig := range res.Signals {
		ctx := logger.WithTraceID(context.Background(), logger.GenerateTraceID(sig.Instrument, res.Candle.TS))
		attrs := append([]any{
			"instrument", sig.Instrument,
			"symbol", sig.Symbol,
			"kind", string(sig.Kind),
			"price", sig.LastPrice,
			"reason", sig.Reason,
		}, logger.LogWithTrace(ctx)...)
		slog.Info("signal", attrs...)
	}
}

// monitorTicks counts live ticks and tracks feed freshness.
func (svc *Service) monitorTicks(ticks <-chan model.Tick) {
	for tick := range ticks {
		svc.prom.TicksTotal.Inc()
		svc.health.SetLastTickTime(tick.TS)
	}
}

// saturationLoop publishes the fill level of every bus subscriber.
func (svc *Service) saturationLoop(ctx context.Context, stats map[string]func() []bus.ChannelStat) {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for name, fn := range stats {
				for i, st := range fn() {
					svc.prom.ObserveSaturation(name+"_"+strconv.Itoa(i), st.Len, st.Cap)
				}
			}
		}
	}
}
