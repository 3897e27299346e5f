// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in the internal packages.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"medigate/internal/audit"
	audithandler "medigate/internal/audit/handler"
	auditkafka "medigate/internal/audit/kafka"
	auditmem "medigate/internal/audit/store/memory"
	auditpg "medigate/internal/audit/store/postgres"
	"medigate/internal/gateway"
	httpapi "medigate/internal/http"
	"medigate/internal/identity"
	"medigate/internal/notify"
	notifyhandler "medigate/internal/notify/handler"
	"medigate/internal/platform/config"
	"medigate/internal/platform/httpserver"
	"medigate/internal/platform/logger"
	platformredis "medigate/internal/platform/redis"
	"medigate/internal/reset"
	resethandler "medigate/internal/reset/handler"
	resetmem "medigate/internal/reset/store/memory"
	resetredis "medigate/internal/reset/store/redis"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Reset token store: Redis when configured, in-memory otherwise. Redis
	// expires abandoned tokens via key TTLs; the memory store needs a sweep
	// loop, started with the other workers below.
	var (
		resetStore reset.Store
		sweeper    *resetmem.InMemoryStore
	)
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		resetStore = resetredis.New(redisClient.Client)
	} else {
		sweeper = resetmem.New()
		resetStore = sweeper
	}

	// Audit store: Postgres when configured, in-memory otherwise.
	var auditStore audit.Store = auditmem.New()
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.New(ctx, cfg.Postgres.URL)
		if err != nil {
			log.Error("postgres connection failed", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		auditStore = auditpg.New(pool)
	}

	var auditSink audit.Sink
	mirror, err := auditkafka.New(cfg.Kafka, log)
	if err != nil {
		log.Error("kafka connection failed", "error", err)
		os.Exit(1)
	}
	if mirror != nil {
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := mirror.Close(flushCtx); err != nil {
				log.Error("kafka flush failed", "error", err)
			}
		}()
		auditSink = mirror
	}

	recorder := audit.NewRecorder(auditStore, auditSink, log, cfg.AuditBuffer, cfg.AuditQueryWindow)

	verifier := identity.NewJWTVerifier(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
	gw := gateway.New(verifier, recorder, log, cfg.PublicPrefixes, cfg.VerifyTimeout)

	credentials := reset.NewInMemoryCredentials()
	resetService := reset.NewService(resetStore, credentials, reset.LogNotifier{Logger: log}, log, cfg.ResetTokenTTL)

	notifyRouter := notify.NewRouter(cfg.SubscriberBuffer)

	router := httpapi.NewRouter(
		gw,
		resethandler.New(resetService, recorder, log),
		audithandler.New(recorder, log),
		notifyhandler.New(notifyRouter, recorder, log),
	)

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting medigate", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		err := recorder.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if sweeper != nil {
		g.Go(func() error {
			err := sweeper.Run(gctx, cfg.ResetTokenTTL)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
