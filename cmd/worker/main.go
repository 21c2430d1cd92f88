package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/stagepass/stagepass/internal/config"
	"github.com/stagepass/stagepass/internal/db"
	"github.com/stagepass/stagepass/internal/notifications"
	"github.com/stagepass/stagepass/internal/observability"
	"github.com/stagepass/stagepass/internal/queue/redisclient"
	"github.com/stagepass/stagepass/internal/queue/worker"
	"github.com/stagepass/stagepass/internal/repo/postgres"
)

func main() {
	cfg, err := config.Load()

	if err != nil {
		log.Fatal(err)
	}

	slog.SetDefault(observability.NewLogger(cfg.Env))

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)

	defer stop()

	pool, err := db.NewPool(cfg.DBURL)

	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}

	defer pool.Close()

	prom := observability.NewProm(prometheus.DefaultRegisterer)

	jobsRepo := postgres.NewJobsRepo(pool, prom)
	deliveriesRepo := postgres.NewEmailDeliveriesRepo(pool)
	tokensRepo := postgres.NewActionTokensRepo(pool)

	// expired action tokens are dead weight once past expires_at; sweep
	// them so the table stays small
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := tokensRepo.DeleteExpired(ctx)
				if err != nil {
					slog.Default().WarnContext(ctx, "expired token sweep failed", "err", err)
					continue
				}
				if n > 0 {
					slog.Default().InfoContext(ctx, "expired tokens deleted", "count", n)
				}
			}
		}
	}()

	var nudger worker.Nudger

	redisClient := redisclient.New(redisclient.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	if err := redisClient.Ping(ctx); err != nil {
		log.Printf("redis unavailable, polling only: %v", err)
		_ = redisClient.Close()
	} else {
		defer redisClient.Close()
		nudger = redisClient
	}

	notifier := notifications.NewProtectedNotifier(
		notifications.NewLogNotifier(),
		notifications.ProtectedNotifierConfig{},
	)

	host, _ := os.Hostname()
	workerID := host + "-" + strconv.Itoa(os.Getpid())

	w := worker.New(worker.Config{
		PollInterval:  cfg.WorkerPollInterval,
		WorkerID:      workerID,
		Concurrency:   4,
		ShutdownGrace: 10 * time.Second,
	}, jobsRepo, deliveriesRepo, notifier, nudger, nil).WithProm(prom)

	// liveness/readiness sidecar for orchestration
	healthSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port+1),
		Handler: w.HealthHandler(),
	}

	go func() {
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("health server failed: %v", err)
		}
	}()

	log.Println("worker has started")

	if err := w.Run(ctx); err != nil {
		log.Printf("worker stopped with error: %v", err)
	}

	sctx, cancel := config.WithTimeout(3 * time.Second)
	_ = healthSrv.Shutdown(sctx)
	cancel()

	log.Println("worker shutdown complete")
}
