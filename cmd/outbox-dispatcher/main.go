package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinic-scheduling/internal/config"
	"github.com/clinicore/clinic-scheduling/internal/db"
	"github.com/clinicore/clinic-scheduling/internal/logging"
	"github.com/clinicore/clinic-scheduling/internal/metrics"
	"github.com/clinicore/clinic-scheduling/internal/outbox"
	redisclient "github.com/clinicore/clinic-scheduling/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config load error: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logging.New(cfg.Env, cfg.LogLevel, "outbox-dispatcher")
	log.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.DispatchInterval).
		Int("batch", cfg.DispatchBatch).
		Msg("outbox-dispatcher starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("error closing redis")
		}
	}()
	log.Info().Msg("connected to Redis")

	registry := prometheus.NewRegistry()
	mets := metrics.NewCollector(registry)
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: ":" + cfg.MetricsPort, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()

	store := outbox.NewPgStore(pgPool)
	sink := outbox.NewRedisSink(rdb, cfg.EventStream)
	dispatcher := outbox.NewDispatcher(store, sink, cfg.DispatchBatch, mets.EventsDispatched, log)

	// Run once at startup so a backlog drains without waiting a full tick.
	runOnce(rootCtx, dispatcher, log)

	ticker := time.NewTicker(cfg.DispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info().Msg("shutdown signal received, stopping outbox dispatcher")
			return
		case <-ticker.C:
			runOnce(rootCtx, dispatcher, log)
		}
	}
}

func runOnce(ctx context.Context, dispatcher *outbox.Dispatcher, log zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	dispatched, err := dispatcher.Run(runCtx)
	if err != nil {
		log.Error().Err(err).Msg("dispatch run error")
		return
	}
	if dispatched > 0 {
		log.Info().Int("dispatched", dispatched).Dur("took", time.Since(start)).Msg("dispatch run complete")
	}
}
