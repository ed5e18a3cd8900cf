// Command hadron launches the market-data intake and decisioning pipeline:
// ingest, normalize, fan out, route by priority, evaluate strategies,
// project order intents, and simulate execution.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sourcegraph/conc"

	"github.com/hadron/hadron/internal/bus"
	"github.com/hadron/hadron/internal/config"
	"github.com/hadron/hadron/internal/coordinator"
	"github.com/hadron/hadron/internal/directory"
	"github.com/hadron/hadron/internal/engine"
	"github.com/hadron/hadron/internal/gateway"
	"github.com/hadron/hadron/internal/health"
	"github.com/hadron/hadron/internal/ingest"
	"github.com/hadron/hadron/internal/normalizer"
	"github.com/hadron/hadron/internal/persistence/migrations"
	"github.com/hadron/hadron/internal/persistence/postgres"
	"github.com/hadron/hadron/internal/recorder"
	"github.com/hadron/hadron/internal/router"
	"github.com/hadron/hadron/internal/schema"
	"github.com/hadron/hadron/internal/strategy"
	"github.com/hadron/hadron/internal/telemetry"
)

const (
	hadronLoggerPrefix       = "hadron "
	shutdownTimeout          = 30 * time.Second
	httpShutdownTimeout      = 5 * time.Second
	lifecycleShutdownTimeout = 10 * time.Second
	telemetryShutdownTimeout = 5 * time.Second
	migrationsTimeout        = 60 * time.Second
)

func main() {
	tuningPath := parseFlags()
	ctx, cancel := newSignalContext()
	defer cancel()

	logger := newLogger()

	cfg, err := config.Load(tuningPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	logger.Printf("configuration loaded: shards=%d simulation=%t", cfg.ShardCount, cfg.SimulationMode)

	telemetryProvider, err := telemetry.Init(ctx)
	if err != nil {
		logger.Fatalf("initialise telemetry: %v", err)
	}

	migCtx, migCancel := context.WithTimeout(ctx, migrationsTimeout)
	if err := migrations.Apply(migCtx, cfg.DatabaseURL, "", logger); err != nil {
		migCancel()
		logger.Fatalf("apply migrations: %v", err)
	}
	migCancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("connect to database: %v", err)
	}
	defer pool.Close()

	store := postgres.New(pool)

	dir := directory.New(store.Instruments, store.Instruments)
	norm := normalizer.New(dir, logger)

	dataBus := bus.New(cfg.Tuning.FanoutBufferSize)
	defer dataBus.Close()

	var lifecycle conc.WaitGroup

	startIngestors(ctx, &lifecycle, cfg, norm, dataBus, logger)

	shards := make([]*router.ShardQueues, cfg.ShardCount)
	for i := range shards {
		shards[i] = router.NewShardQueues(router.DefaultFastCapacity, router.DefaultWarmCapacity, router.DefaultColdCapacity)
	}
	rtr := router.New(shards, logger)

	routerConsumer := dataBus.NewConsumer("router")
	lifecycle.Go(func() { pumpRouter(ctx, routerConsumer, rtr, logger) })

	decisions := make(chan schema.StrategyDecision, 4096)
	for shardID, queues := range shards {
		eng := engine.New(shardID, queues, strategy.NewSMA5(), decisions, logger)
		lifecycle.Go(func() { eng.Run(ctx) })
	}

	coord := coordinator.New()
	gwMode := gateway.ModeSimulation
	if !cfg.SimulationMode {
		gwMode = gateway.ModeLive
	}
	gw := gateway.New(gwMode, store.Orders, logger)

	rec := recorder.New(store.Ticks, dataBus.NewConsumer("recorder"), logger,
		recorder.WithBatchSize(cfg.Tuning.RecorderBatchSize),
		recorder.WithFlushInterval(cfg.Tuning.RecorderFlushTick))
	lifecycle.Go(func() { rec.Run(ctx) })
	lifecycle.Go(func() { pumpDecisions(ctx, decisions, coord, gw, rec, logger) })

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: buildHealthMux(store),
	}
	lifecycle.Go(func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("health server error: %v", err)
		}
	})
	logger.Printf("health endpoint listening on %s", httpServer.Addr)

	logger.Print("hadron started; awaiting shutdown signal")
	<-ctx.Done()
	logger.Print("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	shutdownStart := time.Now()
	performGracefulShutdown(shutdownCtx, logger, gracefulShutdownConfig{
		server:     httpServer,
		mainCancel: cancel,
		lifecycle:  &lifecycle,
		dataBus:    dataBus,
		telemetry:  telemetryProvider,
	})
	logger.Printf("shutdown completed in %v", time.Since(shutdownStart))
}

func parseFlags() string {
	tuningPath := flag.String("tuning", "", "Path to optional YAML tuning file")
	flag.Parse()
	return *tuningPath
}

func newSignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newLogger() *log.Logger {
	return log.New(os.Stdout, hadronLoggerPrefix, log.LstdFlags|log.Lmicroseconds)
}

func buildHealthMux(pinger health.Pinger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", health.Handler(pinger))
	return mux
}

// startIngestors spawns one ingestor goroutine per discovered credential,
// per venue, forwarding raw events through the normalizer onto the bus.
func startIngestors(ctx context.Context, lifecycle *conc.WaitGroup, cfg config.Config, norm *normalizer.Normalizer, dataBus *bus.Bus, logger *log.Logger) {
	sink := &normalizingSink{ctx: ctx, norm: norm, bus: dataBus, logger: logger}

	started := 0

	equitiesCreds, err := config.DiscoverEquitiesCredentials()
	if err != nil {
		logger.Printf("equities ingest disabled: %v", err)
	} else {
		for _, cred := range equitiesCreds {
			cred := cred
			ing := ingest.NewEquitiesIngestor(cfg.EquitiesWSURL, cred, cfg.EquitiesTickers, sink, logger)
			lifecycle.Go(func() { ing.Run(ctx) })
			started++
		}
	}

	predictionCreds, err := config.DiscoverPredictionMarketCredentials()
	if err != nil {
		logger.Printf("prediction-market ingest disabled: %v", err)
	} else {
		for _, cred := range predictionCreds {
			cred := cred
			ing, err := ingest.NewPredictionMarketIngestor(cfg.PredictionMarketWSURL, cred, sink, logger)
			if err != nil {
				logger.Printf("prediction-market ingestor slot %d disabled: %v", cred.Slot, err)
				continue
			}
			lifecycle.Go(func() { ing.Run(ctx) })
			started++
		}
	}

	if started == 0 {
		logger.Print("WARNING: no ingest sessions started for either venue; pipeline is idle")
	}
}

// normalizingSink adapts ingest.Sink to the normalizer, publishing the
// resulting canonical tick onto the fan-out bus.
type normalizingSink struct {
	ctx    context.Context
	norm   *normalizer.Normalizer
	bus    *bus.Bus
	logger *log.Logger
}

func (s *normalizingSink) Publish(raw schema.RawEvent) {
	tick, err := s.norm.Normalize(s.ctx, raw)
	if err != nil {
		s.logger.Printf("normalize error: %v", err)
		return
	}
	if tick == nil {
		return
	}
	s.bus.Publish(*tick)
}

// pumpRouter drains the bus via its own consumer cursor and forwards every
// tick into the priority router, logging (never terminating on) lag.
func pumpRouter(ctx context.Context, consumer *bus.Consumer, rtr *router.Router, logger *log.Logger) {
	for {
		tick, err := consumer.Recv(ctx)
		if err != nil {
			var lag bus.Lag
			if asLag(err, &lag) {
				logger.Printf("router consumer lagged, missed %d ticks", lag.Missed)
				continue
			}
			return
		}
		rtr.Route(tick)
	}
}

func asLag(err error, target *bus.Lag) bool {
	l, ok := err.(bus.Lag)
	if ok {
		*target = l
	}
	return ok
}

// pumpDecisions projects each strategy decision into an order intent, hands
// it to the gateway for execution, and forwards the resulting execution to
// the recorder for observation.
func pumpDecisions(ctx context.Context, decisions <-chan schema.StrategyDecision, coord *coordinator.Coordinator, gw *gateway.Gateway, rec *recorder.Recorder, logger *log.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case decision := <-decisions:
			intent := coord.Project(decision)
			if intent == nil {
				continue
			}
			exec, err := gw.Execute(ctx, *intent)
			if err != nil {
				logger.Printf("gateway execute error for intent %s: %v", intent.ID, err)
				continue
			}
			if exec != nil {
				rec.ObserveExecution(*exec)
			}
		}
	}
}

type gracefulShutdownConfig struct {
	server     *http.Server
	mainCancel context.CancelFunc
	lifecycle  *conc.WaitGroup
	dataBus    *bus.Bus
	telemetry  *telemetry.Provider
}

func performGracefulShutdown(ctx context.Context, logger *log.Logger, cfg gracefulShutdownConfig) {
	shutdownStep := func(name string, timeout time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		logger.Printf("shutdown: %s...", name)
		if err := fn(stepCtx); err != nil {
			logger.Printf("shutdown: %s failed: %v", name, err)
		} else {
			logger.Printf("shutdown: %s completed", name)
		}
	}

	if cfg.server != nil {
		shutdownStep("stopping health server", httpShutdownTimeout, func(stepCtx context.Context) error {
			return cfg.server.Shutdown(stepCtx)
		})
	}

	logger.Print("shutdown: cancelling main context")
	if cfg.mainCancel != nil {
		cfg.mainCancel()
	}

	if cfg.lifecycle != nil {
		shutdownStep("waiting for lifecycle goroutines", lifecycleShutdownTimeout, func(stepCtx context.Context) error {
			done := make(chan struct{})
			go func() {
				cfg.lifecycle.Wait()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-stepCtx.Done():
				return fmt.Errorf("timeout waiting for goroutines: %w", stepCtx.Err())
			}
		})
	}

	if cfg.dataBus != nil {
		logger.Print("shutdown: closing fan-out bus")
		cfg.dataBus.Close()
	}

	if cfg.telemetry != nil {
		shutdownStep("shutting down telemetry", telemetryShutdownTimeout, func(stepCtx context.Context) error {
			return cfg.telemetry.Shutdown(stepCtx)
		})
	}
}
