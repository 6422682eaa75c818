package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/presence/internal/api"
	"github.com/your-org/presence/internal/api/ws"
	"github.com/your-org/presence/internal/attendance"
	"github.com/your-org/presence/internal/config"
	"github.com/your-org/presence/internal/identity"
	"github.com/your-org/presence/internal/ledger"
	"github.com/your-org/presence/internal/liveness"
	"github.com/your-org/presence/internal/observability"
	"github.com/your-org/presence/internal/queue"
	"github.com/your-org/presence/internal/storage"
	"github.com/your-org/presence/internal/token"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)
	logger := slog.Default()

	slog.Info("starting presence API service", "port", cfg.Server.Port)

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.EnsureSchema(context.Background()); err != nil {
		slog.Error("ensure schema", "error", err)
		os.Exit(1)
	}

	// Connect to MinIO
	captures, err := storage.NewCaptureStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := captures.EnsureBucket(context.Background()); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Face pipeline
	ort.SetSharedLibraryPath(getONNXLibPath())
	faces, err := identity.NewService(cfg.Vision.ModelsDir, float32(cfg.Vision.DetectionThreshold), logger)
	if err != nil {
		slog.Error("init face pipeline", "error", err)
		os.Exit(1)
	}
	defer faces.Close()
	defer ort.DestroyEnvironment()
	if faces.Degraded() {
		slog.Warn("face pipeline running degraded, using fallback descriptor")
	}

	// Token decode cascade
	recognizer, err := token.NewTextRecognizer()
	if err != nil {
		slog.Warn("ocr unavailable, decode cascade runs without text stage", "error", err)
		recognizer = nil
	} else {
		defer recognizer.Close()
	}
	decoder := token.NewDecoder(token.NewSymbolReader(), recognizer, logger)
	extractor := token.NewExtractor(cfg.Verify.RegisterLength, cfg.Verify.RegisterMinLength, cfg.Verify.RegisterMaxLength)

	matcher := identity.NewMatcher(cfg.Verify.VerificationThreshold, cfg.Verify.IdentificationThreshold)
	live := liveness.NewEvaluator(cfg.Verify.LivenessThreshold, logger)
	auditLog := ledger.New(db)

	svc := attendance.NewService(
		db, captures, producer, hub, auditLog,
		faces, decoder, extractor, matcher, live,
		attendance.NewClassifier(cfg.Verify),
		logger,
	)

	router := api.NewRouter(api.RouterConfig{
		APIKey:   cfg.Server.APIKey,
		Service:  svc,
		DB:       db,
		Captures: captures,
		Producer: producer,
		Ledger:   auditLog,
		Hub:      hub,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}

// getONNXLibPath returns the ONNX Runtime shared library path.
func getONNXLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}
