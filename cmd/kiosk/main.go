package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/your-org/presence/internal/capture"
	"github.com/your-org/presence/internal/observability"
)

// The kiosk is the capture edge: it pulls frames from the local camera and
// submits them to the API. All verification logic lives server-side; the
// kiosk only rate-limits and retries.
func main() {
	source := flag.String("source", "/dev/video0", "camera source (v4l2 device, rtsp:// or http:// URL)")
	apiURL := flag.String("api", "http://localhost:8080", "presence API base URL")
	apiKey := flag.String("api-key", os.Getenv("PRESENCE_API_KEY"), "API key")
	fps := flag.Float64("fps", 0.5, "capture frames per second")
	width := flag.Int("width", 1280, "frame width")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	observability.SetupLogger(*logLevel, "text")

	slog.Info("starting presence kiosk", "source", *source, "api", *apiURL, "fps", *fps)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutting down kiosk...")
		cancel()
	}()

	client := &http.Client{Timeout: 30 * time.Second}
	grabber := &capture.FFmpegGrabber{}

	for ctx.Err() == nil {
		err := grabber.Start(ctx, *source, *fps, *width, func(frame []byte) error {
			return submit(ctx, client, *apiURL, *apiKey, frame)
		})
		if ctx.Err() != nil {
			break
		}
		slog.Error("camera source ended, restarting", "error", err)
		select {
		case <-ctx.Done():
		case <-time.After(3 * time.Second):
		}
	}

	slog.Info("kiosk stopped")
}

// submit posts one frame to the capture endpoint. Conflict means the
// person already has an outcome today; that is business as usual at a
// kiosk people walk past repeatedly.
func submit(ctx context.Context, client *http.Client, apiURL, apiKey string, frame []byte) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("image", "frame.jpg")
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	if err := mw.WriteField("captured_at", time.Now().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("write captured_at: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+"/v1/attendance/captures", &body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("submit capture: %w", err)
	}
	defer resp.Body.Close()
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch resp.StatusCode {
	case http.StatusCreated:
		slog.Info("capture accepted")
	case http.StatusConflict:
		slog.Debug("capture ignored, outcome already exists")
	case http.StatusUnprocessableEntity:
		slog.Debug("no face in frame")
	default:
		slog.Warn("capture rejected", "status", resp.StatusCode, "body", string(payload))
	}
	return nil
}
