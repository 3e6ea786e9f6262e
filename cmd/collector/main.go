package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/presence/internal/config"
	"example.com/presence/internal/ledger"
	"example.com/presence/internal/notify"
	"example.com/presence/internal/outbox"
	persistence "example.com/presence/internal/persistence/postgres"
	"example.com/presence/internal/reconcile"
	"example.com/presence/internal/source"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	repo := persistence.NewRepository(pool)
	emitter := notify.NewOutboxEmitter(repo)
	led := ledger.New(repo, repo, emitter)

	gateway := source.NewGatewayClient(cfg.GatewayURL)

	// The startup sweep must finish before any live update is applied;
	// otherwise a live diff can race a seed and double-open a session. Its
	// observed snapshots prime the poller, so the first live sweep diffs
	// against them instead of re-reporting every kept session as started.
	reconciler := reconcile.New(repo, gateway, led, cfg.DriftTolerance)
	observed, err := reconciler.Run(ctx)
	if err != nil {
		log.Fatalf("startup reconciliation failed: %v", err)
	}
	log.Println("startup reconciliation complete")

	producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
	defer producer.Close()

	registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
	outboxDispatcher := outbox.NewDispatcher(pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
	go outboxDispatcher.Start(ctx)

	workers := ledger.NewDispatcher(led, cfg.LedgerWorkers, cfg.DriftTolerance)
	workers.Start(ctx)

	poller := source.NewPoller(gateway, workers, cfg.PollInterval, source.WithInitialSnapshots(observed))
	go func() {
		if err := poller.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("poller stopped with error: %v", err)
		}
	}()

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler()}
	go func() {
		log.Printf("collector metrics listening on %s", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("collector shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics server shutdown error: %v", err)
	}

	workers.Wait()
	outboxDispatcher.Wait()
}
