// Mindscope API — HTTP-поверхность системы.
//
// API принимает загрузку видео сеанса (входная стадия pipeline: назначает
// video_id и публикует событие uploaded в video_processing_queue), отдаёт
// результаты анализа и историю владельца, обслуживает Super Advisor.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Mindscope/internal/api"
	"github.com/shaiso/Mindscope/internal/config"
	"github.com/shaiso/Mindscope/internal/domain"
	"github.com/shaiso/Mindscope/internal/llm"
	"github.com/shaiso/Mindscope/internal/mq"
	"github.com/shaiso/Mindscope/internal/repo"
	"github.com/shaiso/Mindscope/internal/storage"
	"github.com/shaiso/Mindscope/internal/telemetry"
)

var startTime = time.Now()

func main() {
	logger := telemetry.SetupLogger("mindscope-api")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("starting mindscope-api")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Подключаемся к базе данных
	pool, err := repo.NewPool(ctx, cfg.DBURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	records := repo.NewAnalysisRepo(pool)
	if err := records.EnsureSchema(ctx); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

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
	analyses := storage.NewBlobStore(minioClient, cfg.AnalysisBucket, logger)
	for _, b := range []*storage.BlobStore{videos, analyses} {
		if err := b.EnsureBucket(ctx); err != nil {
			logger.Error("failed to ensure bucket", "bucket", b.Bucket(), "error", err)
			os.Exit(1)
		}
	}

	// RabbitMQ: API только публикует входное событие
	mqConn := mq.NewConnection(cfg.RabbitMQURL, "mindscope-api", logger, mq.QueuesFor(domain.EntryContract)...)
	if err := mqConn.Connect(ctx); err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()
	logger.Info("rabbitmq connected")
	logger.Debug(mq.TopologyInfo())

	if err := cfg.Require("OPENAI_API_KEY"); err != nil {
		logger.Warn("advisor will fail until configured", "error", err)
	}
	advisor := llm.NewClient(llm.Config{
		BaseURL: cfg.OpenAIBaseURL,
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.LLMModel,
		Logger:  logger,
	})

	handler := api.NewHandler(api.Config{
		Videos:         videos,
		Analyses:       analyses,
		Records:        records,
		Publisher:      mq.NewPublisher(mqConn, logger),
		Advisor:        advisor,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Logger:         logger,
	})

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !mqConn.IsConnected() {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, "rabbitmq disconnected")
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	handler.RegisterRoutes(mux)

	addr := cfg.Port("API_PORT", "8080")

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}
