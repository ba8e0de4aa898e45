// Mindscope Extractor — стадия uploaded → audio_extracted.
//
// Extractor:
//   - Получает события из video_processing_queue
//   - Скачивает видео из MinIO и извлекает MP3 через ffmpeg
//   - Загружает аудио обратно и публикует событие в audio_processing_queue
//
// Workers масштабируются горизонтально.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Mindscope/internal/config"
	"github.com/shaiso/Mindscope/internal/domain"
	"github.com/shaiso/Mindscope/internal/media"
	"github.com/shaiso/Mindscope/internal/mq"
	"github.com/shaiso/Mindscope/internal/stages"
	"github.com/shaiso/Mindscope/internal/storage"
	"github.com/shaiso/Mindscope/internal/telemetry"
	"github.com/shaiso/Mindscope/internal/worker"
)

func main() {
	logger := telemetry.SetupLogger("mindscope-extractor")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("starting mindscope-extractor")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// MinIO
	minioClient, err := storage.NewClient(storage.Options{
		Endpoint:  cfg.MinIOEndpoint,
		AccessKey: cfg.MinIOAccessKey,
		SecretKey: cfg.MinIOSecretKey,
		UseSSL:    cfg.MinIOUseSSL,
		Region:    cfg.MinIORegion,
	})
	if err != nil {
		logger.Error("failed to create minio client", "error", err)
		os.Exit(1)
	}
	videos := storage.NewBlobStore(minioClient, cfg.VideoBucket, logger)
	if err := videos.EnsureBucket(ctx); err != nil {
		logger.Error("failed to ensure bucket", "bucket", cfg.VideoBucket, "error", err)
		os.Exit(1)
	}

	// RabbitMQ
	contract := domain.ExtractorContract
	mqConn := mq.NewConnection(cfg.RabbitMQURL, "mindscope-extractor", logger, mq.QueuesFor(contract)...)
	if err := mqConn.Connect(ctx); err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()
	logger.Info("rabbitmq connected")

	// Worker
	w := worker.New(worker.Config{
		Contract:  contract,
		Processor: stages.NewAudioExtraction(videos, media.NewFFmpegExtractor(cfg.FFmpegBinary), cfg.ScratchDir, logger),
		Publisher: mq.NewPublisher(mqConn, logger),
		Conn:      mqConn,
		Logger:    logger,
	})

	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !mqConn.IsConnected() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("rabbitmq disconnected"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := cfg.Port("EXTRACTOR_PORT", "8091")

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	w.Stop()
	logger.Info("mindscope-extractor stopped")
}
