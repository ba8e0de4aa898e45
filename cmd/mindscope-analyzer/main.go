// Mindscope Analyzer — терминальная стадия transcribed → analysis_completed.
//
// Analyzer:
//   - Получает события из transcription_processing_queue
//   - Читает транскрипт, получает анализ от языковой модели через
//     content-addressed кэш
//   - Сохраняет <id>-analysis.json в MinIO и запись в PostgreSQL
//   - Публикует событие в analysis_completed_queue
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Mindscope/internal/cache"
	"github.com/shaiso/Mindscope/internal/config"
	"github.com/shaiso/Mindscope/internal/domain"
	"github.com/shaiso/Mindscope/internal/llm"
	"github.com/shaiso/Mindscope/internal/mq"
	"github.com/shaiso/Mindscope/internal/repo"
	"github.com/shaiso/Mindscope/internal/stages"
	"github.com/shaiso/Mindscope/internal/storage"
	"github.com/shaiso/Mindscope/internal/telemetry"
	"github.com/shaiso/Mindscope/internal/worker"
)

func main() {
	logger := telemetry.SetupLogger("mindscope-analyzer")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Require("OPENAI_API_KEY"); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger.Info("starting mindscope-analyzer")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
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
	logger.Info("database connected")

	// MinIO: транскрипты в bucket видео, анализы в отдельном bucket
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
	transcripts := storage.NewBlobStore(minioClient, cfg.VideoBucket, logger)
	analyses := storage.NewBlobStore(minioClient, cfg.AnalysisBucket, logger)
	for _, b := range []*storage.BlobStore{transcripts, analyses} {
		if err := b.EnsureBucket(ctx); err != nil {
			logger.Error("failed to ensure bucket", "bucket", b.Bucket(), "error", err)
			os.Exit(1)
		}
	}

	// Кэш анализов
	store, closeStore := openCacheStore(ctx, cfg, logger)
	defer closeStore()

	analysisCache := cache.New(store, cache.Config{
		Namespace: stages.AnalysisNamespace,
		TTL:       cfg.CacheTTL,
		Logger:    logger,
	})

	model := llm.NewClient(llm.Config{
		BaseURL: cfg.OpenAIBaseURL,
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.LLMModel,
		Logger:  logger,
	})

	// RabbitMQ
	contract := domain.AnalyzerContract
	mqConn := mq.NewConnection(cfg.RabbitMQURL, "mindscope-analyzer", logger, mq.QueuesFor(contract)...)
	if err := mqConn.Connect(ctx); err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()
	logger.Info("rabbitmq connected")

	w := worker.New(worker.Config{
		Contract: contract,
		Processor: stages.NewAnalysis(stages.AnalysisConfig{
			Transcripts: transcripts,
			Analyses:    analyses,
			Analyzer:    model,
			Cache:       analysisCache,
			Records:     records,
			Logger:      logger,
		}),
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

	port := cfg.Port("ANALYZER_PORT", "8093")

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	w.Stop()
	logger.Info("mindscope-analyzer stopped")
}

// openCacheStore выбирает хранилище кэша по CACHE_BACKEND.
// Недоступный Redis не мешает старту: анализ просто идёт без кэша.
func openCacheStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (cache.Store, func()) {
	noop := func() {}

	switch cfg.CacheBackend {
	case config.CacheMemory:
		logger.Info("analysis cache: in-process memory")
		return cache.NewMemoryStore(), noop
	case config.CacheNone:
		logger.Info("analysis cache disabled")
		return nil, noop
	}

	rs, err := cache.NewRedisStore(ctx, cache.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		logger.Warn("redis not available, analysis cache disabled", "addr", cfg.RedisAddr, "error", err)
		return nil, noop
	}

	logger.Info("analysis cache: redis", "addr", cfg.RedisAddr)
	return rs, func() { rs.Close() }
}
