package api

import (
	"context"
	"io"
	"log/slog"

	"github.com/shaiso/Mindscope/internal/domain"
	"github.com/shaiso/Mindscope/internal/mq"
)

// VideoStore — bucket загруженных видео. Реализуется *storage.BlobStore.
type VideoStore interface {
	UploadStream(ctx context.Context, r io.Reader, size int64, key, contentType string) error
}

// AnalysisStore — bucket анализов. Реализуется *storage.BlobStore.
type AnalysisStore interface {
	List(ctx context.Context, prefix string) ([]string, error)
	Download(ctx context.Context, key string) ([]byte, error)
}

// RecordStore — document store анализов. Реализуется *repo.AnalysisRepo.
type RecordStore interface {
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]domain.AnalysisRecord, error)
	GetByArtifact(ctx context.Context, artifactID string) (*domain.AnalysisRecord, error)
}

// Publisher публикует событие входной стадии. Реализуется *mq.Publisher.
type Publisher interface {
	Publish(ctx context.Context, queue mq.Queue, event domain.StageEvent) error
}

// Advisor — Super Advisor. Реализуется *llm.Client.
type Advisor interface {
	Advise(ctx context.Context, query string, emotions []string) (*domain.Advice, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	videos         VideoStore
	analyses       AnalysisStore
	records        RecordStore
	publisher      Publisher
	advisor        Advisor
	maxUploadBytes int64
	logger         *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Videos    VideoStore
	Analyses  AnalysisStore
	Records   RecordStore
	Publisher Publisher
	Advisor   Advisor

	// MaxUploadBytes — ограничение размера загрузки. 0 — 1 GiB.
	MaxUploadBytes int64

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 1 << 30
	}
	return &Handler{
		videos:         cfg.Videos,
		analyses:       cfg.Analyses,
		records:        cfg.Records,
		publisher:      cfg.Publisher,
		advisor:        cfg.Advisor,
		maxUploadBytes: maxUpload,
		logger:         logger,
	}
}
