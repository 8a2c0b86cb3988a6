// Command worker runs the face-match and liveness workers.
//
// Each worker consumes its queue one message at a time, evaluates the job
// against the inference sidecars, publishes the result and reports it to
// case management. Health probes are served on the health port and
// Prometheus metrics on the metrics port. SIGINT/SIGTERM stops both workers,
// letting an in-flight message finish within the stop timeout.
//
// Usage:
//
//	go run ./cmd/worker [-config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/internal/consumer"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/internal/dedupe"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/internal/dispatch"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/internal/ekyc/facematch"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/internal/ekyc/liveness"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/internal/healthcheck"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/internal/inference"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/internal/media"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/internal/report"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/rpc"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/tracing"
)

const (
	faceMatchWorker = "face-match"
	livenessWorker  = "liveness"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting workers",
		"face_match_queue", cfg.Kafka.Topics.FaceMatch,
		"liveness_queue", cfg.Kafka.Topics.Liveness,
		"group", cfg.Kafka.ConsumerGroup,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("worker service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("worker service stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	m := metrics.New()
	checker := health.NewChecker(cfg.Server.RequestTimeout)

	var db *postgres.Client
	if cfg.Postgres.Enabled {
		var err error
		db, err = postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, health will report degraded", "error", err)
			db = nil
		} else {
			defer db.Close()
			checker.Register("postgres", health.PingCheck(db.Ping, false))
		}
	}
	summary := healthcheck.NewService(repository(db), cfg.Service, 0)

	factory := kafka.NewConnectionFactory(cfg.Kafka)
	checker.Register("kafka", health.PingCheck(factory.Ping, true))

	var guard *dedupe.Guard
	if cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		checker.Register("redis", health.PingCheck(rdb.Ping, false))
		guard = dedupe.NewGuard(rdb, cfg.Redis.ProcessedTTL)
		slog.Info("job dedupe enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.ProcessedTTL)
	}

	embedder := rpc.NewClient(cfg.Inference.EmbedderAddr, cfg.Inference.DialTimeout)
	defer embedder.Close()
	detector := rpc.NewClient(cfg.Inference.DetectorAddr, cfg.Inference.DialTimeout)
	defer detector.Close()

	reporter := report.NewReporter(
		dispatch.NewResultPublisher(kafka.NewPublisher(factory), cfg.Kafka.Topics),
		report.NewBackofficeClient(cfg.Reporting.BackofficeURL, cfg.Reporting.Timeout,
			report.NewBreaker("backoffice", cfg.Reporting, m)),
		report.NewMediaClient(cfg.Reporting.MediaURL, cfg.Reporting.UploadTimeout,
			report.NewBreaker("media", cfg.Reporting, m)),
		media.NewEncoder(cfg.Reporting.VideoFPS, cfg.Reporting.VideoQuality),
		m,
	)
	deps := consumer.Deps{
		Tracer:  tracing.NewTracer(cfg.Tracing.Enabled, logger.WithComponent("tracing")),
		Guard:   guard,
		Metrics: m,
	}

	opts := []kafka.WorkerOption{
		kafka.WithPrefetch(cfg.Worker.Prefetch),
		kafka.WithReconnectBackoff(cfg.Worker.ReconnectBackoff),
		kafka.WithStopTimeout(cfg.Worker.StopTimeout),
		kafka.WithAckTimeout(cfg.Worker.AckTimeout),
		kafka.WithMetrics(m),
		kafka.WithLogger(slog.Default()),
	}
	workers := []*kafka.Worker{
		kafka.NewWorker(faceMatchWorker, cfg.Kafka.Topics.FaceMatch, factory,
			consumer.FaceMatch(faceMatchWorker, facematch.NewEvaluator(inference.NewEmbedder(embedder)), reporter, deps),
			opts...),
		kafka.NewWorker(livenessWorker, cfg.Kafka.Topics.Liveness, factory,
			consumer.Liveness(livenessWorker, liveness.NewEvaluator(inference.NewDetector(detector)), reporter, deps),
			opts...),
	}
	for _, w := range workers {
		checker.Register("worker."+w.Name(), workerCheck(w))
		w.Start(ctx)
	}

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	mux.HandleFunc("GET /healthz", summary.Handler())
	healthServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HealthPort),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("health server listening", "addr", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping workers")

		var errs []error
		for _, w := range workers {
			if err := w.Stop(); err != nil {
				errs = append(errs, err)
			}
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := healthServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}

// workerCheck reports a worker down while it is not attached to its queue.
func workerCheck(w *kafka.Worker) health.Check {
	return func(context.Context) health.ComponentHealth {
		state := w.State()
		if state == kafka.StateConsuming {
			return health.ComponentHealth{Status: health.StatusUp}
		}
		return health.ComponentHealth{Status: health.StatusDegraded, Message: state.String()}
	}
}

func repository(db *postgres.Client) healthcheck.Repository {
	if db == nil {
		return nil
	}
	return db
}
