package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/presence/internal/config"
	"github.com/your-org/presence/internal/models"
	"github.com/your-org/presence/internal/notify"
	"github.com/your-org/presence/internal/observability"
	"github.com/your-org/presence/internal/queue"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	metricsPort := flag.Int("metrics-port", 9091, "prometheus metrics port")
	workers := flag.Int("workers", 2, "concurrent delivery workers")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)
	logger := slog.Default()

	slog.Info("starting presence notifier", "workers", *workers, "urls", len(cfg.Notify.URLs))

	dispatcher, err := notify.NewDispatcher(cfg.Notify.URLs, logger)
	if err != nil {
		slog.Error("init dispatcher", "error", err)
		os.Exit(1)
	}

	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}
	producer.Close()

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = consumer.ConsumeNotifications(ctx, "notifier", func(ctx context.Context, msg jetstream.Msg) error {
		var ev models.NotificationEvent
		if err := json.Unmarshal(msg.Data(), &ev); err != nil {
			// Poison message; retrying cannot fix it.
			slog.Error("malformed notification event", "error", err)
			return nil
		}
		return dispatcher.Dispatch(ctx, ev)
	}, *workers)
	if err != nil {
		slog.Error("start notification consumer", "error", err)
		os.Exit(1)
	}

	// Metrics endpoint
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", *metricsPort),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down notifier...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)

	slog.Info("notifier stopped")
}
