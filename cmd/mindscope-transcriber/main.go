// Mindscope Transcriber — стадия audio_extracted → transcribed.
//
// Transcriber получает события из audio_processing_queue, отправляет аудио
// в сервис распознавания речи с разметкой спикеров, ждёт готовности
// (без общего таймаута), сохраняет транскрипт JSON в MinIO и публикует
// событие в transcription_processing_queue.
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
	"github.com/shaiso/Mindscope/internal/mq"
	"github.com/shaiso/Mindscope/internal/stages"
	"github.com/shaiso/Mindscope/internal/storage"
	"github.com/shaiso/Mindscope/internal/telemetry"
	"github.com/shaiso/Mindscope/internal/transcription"
	"github.com/shaiso/Mindscope/internal/worker"
)

func main() {
	logger := telemetry.SetupLogger("mindscope-transcriber")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Require("ASSEMBLYAI_API_KEY"); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger.Info("starting mindscope-transcriber")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// MinIO: аудио и транскрипты лежат в bucket видео
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
	media := storage.NewBlobStore(minioClient, cfg.VideoBucket, logger)
	if err := media.EnsureBucket(ctx); err != nil {
		logger.Error("failed to ensure bucket", "bucket", cfg.VideoBucket, "error", err)
		os.Exit(1)
	}

	transcriber := transcription.NewClient(transcription.Config{
		BaseURL:      cfg.AssemblyAIBaseURL,
		APIKey:       cfg.AssemblyAIAPIKey,
		PollInterval: cfg.TranscriptionPollInterval,
		Logger:       logger,
	})

	// RabbitMQ
	contract := domain.TranscriberContract
	mqConn := mq.NewConnection(cfg.RabbitMQURL, "mindscope-transcriber", logger, mq.QueuesFor(contract)...)
	if err := mqConn.Connect(ctx); err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()
	logger.Info("rabbitmq connected")

	w := worker.New(worker.Config{
		Contract:  contract,
		Processor: stages.NewTranscription(media, transcriber, cfg.ScratchDir, logger),
		Publisher: mq.NewPublisher(mqConn, logger),
		Conn:      mqConn,
		Logger:    logger,
	})

	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

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

	port := cfg.Port("TRANSCRIBER_PORT", "8092")

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	w.Stop()
	logger.Info("mindscope-transcriber stopped")
}
