package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"swiftclaim/internal/audit"
	auditstore "swiftclaim/internal/audit/store"
	claimhandler "swiftclaim/internal/claim/handler"
	claimmetrics "swiftclaim/internal/claim/metrics"
	"swiftclaim/internal/claim/service"
	claimstore "swiftclaim/internal/claim/store"
	"swiftclaim/internal/evidence/cache"
	"swiftclaim/internal/evidence/flight"
	"swiftclaim/internal/evidence/medical"
	httpapi "swiftclaim/internal/http"
	"swiftclaim/internal/ledger"
	"swiftclaim/internal/platform/config"
	"swiftclaim/internal/platform/httpserver"
	"swiftclaim/internal/platform/kafka"
	"swiftclaim/internal/platform/logger"
	"swiftclaim/internal/platform/metrics"
	"swiftclaim/internal/platform/middleware"
	"swiftclaim/internal/platform/postgres"
	platformredis "swiftclaim/internal/platform/redis"
	policystore "swiftclaim/internal/policy/store"
	"swiftclaim/internal/policy/validator"
	"swiftclaim/internal/reconcile"
)

const auditOutboxSize = 256

// main wires the dependency graph and owns process lifecycle. Business logic
// lives in the internal packages.
func main() {
	log := logger.New()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("configuration failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("postgres connection failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Evidence sources, cached through Redis when configured.
	var medSource medical.Source = medical.NewPostgres(db)
	var flightSource flight.Source = flight.NewPostgres(db)
	rdb, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if rdb != nil {
		defer rdb.Close()
		medSource = cache.NewMedical(medSource, rdb, cfg.Redis.CacheTTL, log)
		flightSource = cache.NewFlight(flightSource, rdb, cfg.Redis.CacheTTL, log)
	}

	// Audit trail: relational store always, broker fan-out when configured.
	auditStore := auditstore.NewPostgresStore(db)
	var outbox chan audit.Event
	kafkaClient, err := kafka.New(cfg.Kafka)
	if err != nil {
		log.Error("kafka connection failed", "error", err)
		os.Exit(1)
	}
	if kafkaClient != nil {
		defer kafkaClient.Close()
		if err := kafka.EnsureTopic(ctx, kafkaClient, cfg.Kafka.AuditTopic); err != nil {
			log.Error("kafka topic setup failed", "error", err)
			os.Exit(1)
		}
		outbox = make(chan audit.Event, auditOutboxSize)
		publisher := audit.NewPublisher(kafkaClient, outbox, log)
		go func() {
			if err := publisher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("audit publisher stopped", "error", err)
			}
		}()
	}
	recorder := audit.NewRecorder(auditStore, outbox, log)

	claims := claimstore.NewPostgres(db)
	policies := policystore.NewPostgres(db)
	gateway := ledger.NewClient(cfg.Ledger.URL, cfg.Ledger.APIKey, cfg.Ledger.Timeout)
	txs := newClaimPostgresTx(db)
	cm := claimmetrics.New()

	svc := service.New(
		claims,
		txs,
		validator.New(policies, claims, medSource, flightSource),
		policies,
		gateway,
		recorder,
		cm,
		log,
	)

	sweeper := reconcile.New(claims, txs, gateway, recorder, cm, log, cfg.ReconcileInterval, cfg.ReconcileMinAge)
	go func() {
		if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("reconciler stopped", "error", err)
		}
	}()

	router := httpapi.NewRouter(
		claimhandler.New(svc, log),
		middleware.NewVerifier(cfg.JWTSigningKey),
		metrics.New(),
		log,
	)
	srv := httpserver.New(cfg.Addr, router)

	go func() {
		log.Info("swiftclaim listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
