// Package sigengine is the top-level orchestrator of the signal engine: it
// connects the tick feed to the pipeline registry and fans completed
// candles, indicator readings and signals out to the stores and notifiers.
package sigengine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"supertrend-engine/config"
	"supertrend-engine/internal/export"
	"supertrend-engine/internal/marketdata/bus"
	"supertrend-engine/internal/marketdata/feed"
	"supertrend-engine/internal/metrics"
	"supertrend-engine/internal/model"
	"supertrend-engine/internal/notification"
	"supertrend-engine/internal/pipeline"
	redisstore "supertrend-engine/internal/store/redis"
	sqlitestore "supertrend-engine/internal/store/sqlite"
	"supertrend-engine/internal/strategy"
)

const (
	tickBuffer       = 4096
	resultBuffer     = 1024
	sinkTimeout      = 5 * time.Second
	shutdownTimeout  = 5 * time.Second
	monitorInterval  = 5 * time.Second
	livenessInterval = 10 * time.Second
	redisMaxFailures = 5
	redisResetAfter  = 10 * time.Second
	redisMaxBuffered = 10000
)

// TickSource pushes live ticks into tickCh until ctx is cancelled.
type TickSource interface {
	Start(ctx context.Context, tickCh chan<- model.Tick) error
}

// Options overrides the components New would otherwise build from Config.
type Options struct {
	Source     TickSource            // defaults to the WebSocket feed at cfg.FeedURL
	Notifier   notification.Notifier // defaults to log + configured Telegram/webhook
	Registerer prometheus.Registerer // defaults to the global registry
}

type namedStore struct {
	name  string
	store model.SnapshotStore
}

type namedLoader struct {
	name   string
	loader model.SeedLoader
}

type namedSink struct {
	name string
	sink model.SignalSink
}

// Service wires all dependencies, manages lifecycle and coordinates goroutines.
type Service struct {
	cfg *config.Config

	reg      *pipeline.Registry
	prom     *metrics.Metrics
	health   *metrics.HealthStatus
	notifier notification.Notifier
	source   TickSource

	redisWriter *redisstore.Writer
	breaker     *redisstore.Breaker
	redisBuf    *redisstore.BufferedWriter
	sqlWriter   *sqlitestore.Writer
	sqlReader   *sqlitestore.Reader
	archive     *export.Archive

	snapshots []namedStore
	seeds     []namedLoader
	sinks     []namedSink
}

// New connects the stores and builds the registry for cfg's watch-list.
// Redis is optional: an empty address or a failed connection leaves it off.
// ctx bounds the background flushing of buffered Redis writes.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	svc := &Service{
		cfg:      cfg,
		prom:     metrics.NewMetricsWith(reg),
		health:   metrics.NewHealthStatus(),
		notifier: opts.Notifier,
		source:   opts.Source,
	}
	if svc.notifier == nil {
		svc.notifier = buildNotifier(cfg)
	}

	eval := strategy.NewEvaluator(cfg.EvaluatorOptions())
	eval.OnOpenTradesChanged = func(n int) { svc.prom.OpenTrades.Set(float64(n)) }

	var err error
	svc.reg, err = pipeline.NewRegistry(cfg.Pipeline, eval, pipeline.Hooks{
		OnDroppedTick:        func(reason string) { svc.prom.DroppedTicks.WithLabelValues(reason).Inc() },
		OnInvariantViolation: func(name string) { svc.prom.InvariantViolations.WithLabelValues(name).Inc() },
	})
	if err != nil {
		return nil, err
	}
	for _, inst := range cfg.Instruments {
		svc.reg.Add(inst)
	}
	svc.health.SetInstruments(len(cfg.Instruments))

	if err := svc.openSQLite(); err != nil {
		return nil, err
	}
	svc.openRedis(ctx)

	if cfg.ExportDir != "" {
		svc.archive, err = export.NewArchive(cfg.ExportDir)
		if err != nil {
			svc.Close()
			return nil, err
		}
		svc.seeds = append(svc.seeds, namedLoader{"csv", svc.archive})
		svc.sinks = append(svc.sinks, namedSink{"csv", svc.archive})
	}
	svc.sinks = append(svc.sinks, namedSink{"notify", notification.NewSignalSink(svc.notifier)})

	if svc.source == nil {
		ing, err := feed.New(feed.Config{URL: cfg.FeedURL, Instruments: instrumentIDs(cfg.Instruments)})
		if err != nil {
			svc.Close()
			return nil, err
		}
		ing.OnReconnect = func() { svc.prom.FeedReconnects.Inc() }
		ing.OnConnection = svc.health.SetFeedConnected
		ing.OnDrop = func(reason string) { svc.prom.DroppedTicks.WithLabelValues(reason).Inc() }
		svc.source = ing
	}
	return svc, nil
}

func (svc *Service) openSQLite() error {
	path := svc.cfg.SQLitePath
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("sqlite dir: %w", err)
		}
	}
	var err error
	svc.sqlWriter, err = sqlitestore.New(sqlitestore.WriterConfig{DBPath: path})
	if err != nil {
		return err
	}
	svc.sqlReader, err = sqlitestore.NewReader(path)
	if err != nil {
		svc.sqlWriter.Close()
		return err
	}
	svc.snapshots = append(svc.snapshots, namedStore{"sqlite", svc.sqlWriter})
	svc.seeds = append(svc.seeds, namedLoader{"sqlite", svc.sqlReader})
	svc.sinks = append(svc.sinks, namedSink{"sqlite", svc.sqlWriter})
	return nil
}

func (svc *Service) openRedis(ctx context.Context) {
	if svc.cfg.RedisAddr == "" {
		log.Printf("[sigengine] redis disabled")
		return
	}
	w, err := redisstore.New(redisstore.WriterConfig{
		Addr:        svc.cfg.RedisAddr,
		Password:    svc.cfg.RedisPassword,
		DB:          svc.cfg.RedisDB,
		SnapshotKey: svc.cfg.SnapshotKey,
	})
	if err != nil {
		log.Printf("[sigengine] WARNING: redis unavailable: %v (continuing without redis)", err)
		return
	}
	svc.redisWriter = w
	svc.health.SetRedisEnabled(true)

	svc.breaker = redisstore.NewBreaker("redis", redisMaxFailures, redisResetAfter)
	svc.breaker.OnStateChange = func(sink string, from, to redisstore.BreakerState) {
		svc.prom.RedisCircuitBreakerState.Set(float64(to))
		if to == redisstore.BreakerOpen {
			svc.prom.RedisCircuitBreakerTrips.Inc()
			go svc.alert(notification.Alert{
				Level:   notification.AlertCritical,
				Title:   "Redis circuit open",
				Message: fmt.Sprintf("%s writes failing (%s to %s), buffering candles, signals and the latest checkpoint locally", sink, from, to),
			})
		}
	}
	svc.redisBuf = redisstore.NewBufferedWriter(ctx, w, svc.breaker, redisMaxBuffered)
	svc.redisBuf.OnBuffer = func() { svc.prom.RedisBufferedWrites.Inc() }
	svc.redisBuf.OnFlush = func(n int) { log.Printf("[sigengine] redis recovered, flushed %d buffered writes", n) }

	svc.snapshots = append([]namedStore{{"redis", svc.redisBuf}}, svc.snapshots...)
	svc.sinks = append(svc.sinks, namedSink{"redis", svc.redisBuf})
}

func buildNotifier(cfg *config.Config) notification.Notifier {
	m := notification.Multi{notification.NewLogNotifier()}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		m = append(m, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	if cfg.WebhookURL != "" {
		m = append(m, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	return m
}

func instrumentIDs(insts []model.Instrument) []string {
	ids := make([]string, len(insts))
	for i, inst := range insts {
		ids[i] = inst.ID
	}
	return ids
}

// Registry exposes the pipeline registry.
func (svc *Service) Registry() *pipeline.Registry { return svc.reg }

// Run restores state, starts all loops and blocks until ctx is cancelled.
// On the way out it drains in-flight results into the sinks and writes a
// final checkpoint.
func (svc *Service) Run(ctx context.Context) error {
	restoreCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	svc.restore(restoreCtx)
	cancel()

	var loops sync.WaitGroup
	goLoop := func(fn func()) {
		loops.Add(1)
		go func() {
			defer loops.Done()
			fn()
		}()
	}

	// Sinks keep running after ctx is cancelled so the results of the last
	// candles can still be written.
	sinkCtx, cancelSinks := context.WithCancel(context.Background())
	defer cancelSinks()

	// ---- Ticks: feed → bus → registry / archives ----
	tickCh := make(chan model.Tick, tickBuffer)
	tickBus := bus.New[model.Tick]("ticks", tickBuffer)
	tickBus.OnDrop = func(int) { svc.prom.FanoutDropsTotal.WithLabelValues("ticks").Inc() }
	registryIn := tickBus.SubscribeBlocking()
	monitorIn := tickBus.Subscribe()
	sqlTicks := tickBus.Subscribe()
	var csvTicks <-chan model.Tick
	if svc.archive != nil {
		csvTicks = tickBus.Subscribe()
	}

	goLoop(func() {
		if err := svc.source.Start(ctx, tickCh); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[sigengine] tick source stopped: %v", err)
		}
	})
	goLoop(func() { tickBus.Run(ctx, tickCh) })
	goLoop(func() { svc.monitorTicks(monitorIn) })
	goLoop(func() { svc.sqlWriter.RunTicks(sinkCtx, sqlTicks) })
	if csvTicks != nil {
		goLoop(func() { svc.archive.RunTicks(sinkCtx, csvTicks) })
	}

	// ---- Results: registry → bus → candle / indicator / signal sinks ----
	resultIn := make(chan *pipeline.Result, resultBuffer)
	resultBus := bus.New[*pipeline.Result]("results", resultBuffer)
	resultBus.OnDrop = func(int) { svc.prom.FanoutDropsTotal.WithLabelValues("results").Inc() }
	var sinks sync.WaitGroup
	goSink := func(fn func()) {
		sinks.Add(1)
		go func() {
			defer sinks.Done()
			fn()
		}()
	}
	dispatchIn := resultBus.SubscribeBlocking()
	if svc.redisBuf != nil {
		redisIn := resultBus.Subscribe()
		goSink(func() { svc.writeRedis(redisIn) })
	}
	goSink(func() { resultBus.Run(sinkCtx, resultIn) })
	sinkIn := svc.startSinks(sinkCtx, goSink)
	goSink(func() { svc.dispatch(dispatchIn, sinkIn) })

	// ---- Background loops ----
	goLoop(func() { svc.snapshotLoop(ctx) })
	goLoop(func() { svc.marketLoop(ctx) })
	goLoop(func() {
		svc.saturationLoop(ctx, map[string]func() []bus.ChannelStat{
			"ticks":   tickBus.ChannelStats,
			"results": resultBus.ChannelStats,
		})
	})

	svc.health.CheckSQLite(ctx, svc.sqlWriter.DB())
	svc.health.StartLivenessChecker(ctx, svc.redisClient(), svc.sqlWriter.DB(), livenessInterval)

	var metricsSrv *metrics.Server
	if svc.cfg.MetricsAddr != "" {
		metricsSrv = metrics.NewServer(svc.cfg.MetricsAddr, svc.health)
		metricsSrv.Start()
	}
	apiSrv := svc.startAPI()

	svc.banner()

	// Blocks until ctx is cancelled and every worker has stopped.
	svc.reg.Run(ctx, registryIn, func(res *pipeline.Result) {
		svc.observe(res)
		resultIn <- res
	})

	log.Printf("[sigengine] shutting down...")
	close(resultIn)
	done := make(chan struct{})
	go func() {
		sinks.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		log.Printf("[sigengine] WARNING: sinks did not drain within %s", shutdownTimeout)
	}
	cancelSinks()

	finalCtx, cancelFinal := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelFinal()
	svc.saveSnapshot(finalCtx)

	if metricsSrv != nil {
		metricsSrv.Stop(finalCtx)
	}
	if apiSrv != nil {
		apiSrv.Shutdown(finalCtx)
	}
	loops.Wait()
	svc.Close()
	log.Printf("[sigengine] shutdown complete")
	return nil
}

func (svc *Service) redisClient() *goredis.Client {
	if svc.redisWriter == nil {
		return nil
	}
	return svc.redisWriter.Client()
}

func (svc *Service) banner() {
	log.Printf("[sigengine] ════════════════════════════════════════")
	log.Printf("[sigengine]   SuperTrend signal engine running")
	log.Printf("[sigengine]   Instruments: %d  Window: %d ticks", len(svc.cfg.Instruments), svc.cfg.Pipeline.WindowSize)
	log.Printf("[sigengine]   SuperTrends: %v  RSI: %v", svc.cfg.Pipeline.SuperTrends, svc.cfg.Pipeline.RSIPeriods)
	log.Printf("[sigengine]   Redis: %v  SQLite: %s  CSV: %q", svc.redisWriter != nil, svc.cfg.SQLitePath, svc.cfg.ExportDir)
	log.Printf("[sigengine] ════════════════════════════════════════")
}

func (svc *Service) alert(a notification.Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()
	if err := svc.notifier.Send(ctx, a); err != nil {
		log.Printf("[sigengine] alert %q failed: %v", a.Title, err)
	}
}

// Close releases the stores. Safe to call on a partially built Service.
func (svc *Service) Close() {
	if svc.redisWriter != nil {
		svc.redisWriter.Close()
	}
	if svc.sqlReader != nil {
		svc.sqlReader.Close()
	}
	if svc.sqlWriter != nil {
		svc.sqlWriter.Close()
	}
}
