// Command dispatcher starts the eKYC dispatch HTTP API.
//
// Face-match and liveness requests are validated, turned into jobs and
// published to their queues; the caller gets a job handle back with 202.
// KTP OCR runs inline against the OCR sidecar. Metrics and health probes are
// served on the metrics port.
//
// Usage:
//
//	go run ./cmd/dispatcher [-config configs/development.yaml]
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

	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/internal/api/handler"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/internal/api/router"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/internal/dispatch"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/internal/ekyc/ocr"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/internal/healthcheck"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/internal/inference"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/rpc"
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
	slog.Info("starting dispatcher", "port", cfg.Server.Port, "brokers", cfg.Kafka.Brokers)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("dispatcher failed", "error", err)
		os.Exit(1)
	}
	slog.Info("dispatcher stopped")
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
	svc := dispatch.NewService(kafka.NewPublisher(factory), cfg.Kafka.Topics, cfg.Dispatch, m)

	ocrClient := rpc.NewClient(cfg.Inference.OCRAddr, cfg.Inference.DialTimeout)
	defer ocrClient.Close()
	provider, err := ocr.NewProvider(ctx, cfg.Inference.OCRLanguages, cfg.Inference.OCRMinConfidence, inference.ReaderFactory(ocrClient))
	if err != nil {
		return fmt.Errorf("building ocr provider: %w", err)
	}
	slog.Info("ocr provider ready", "addr", cfg.Inference.OCRAddr, "languages", cfg.Inference.OCRLanguages)

	h := handler.New(svc, provider, cfg.Server.RequestTimeout)
	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router.New(h, router.Options{
			Metrics:        m,
			RequestTimeout: cfg.Server.RequestTimeout,
			MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if cfg.Metrics.Enabled {
		shutdownOps := metrics.StartServer(cfg.Metrics.Port,
			metrics.Route{Pattern: "GET /health/live", Handler: checker.LiveHandler()},
			metrics.Route{Pattern: "GET /health/ready", Handler: checker.ReadyHandler()},
			metrics.Route{Pattern: "GET /healthz", Handler: summary.Handler()},
		)
		defer shutdownOps(context.Background())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("dispatcher listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// repository keeps a nil *postgres.Client from becoming a non-nil interface.
func repository(db *postgres.Client) healthcheck.Repository {
	if db == nil {
		return nil
	}
	return db
}
