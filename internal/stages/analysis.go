package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/shaiso/Mindscope/internal/cache"
	"github.com/shaiso/Mindscope/internal/domain"
	"github.com/shaiso/Mindscope/internal/storage"
	"github.com/shaiso/Mindscope/internal/telemetry"
)

// AnalysisNamespace — namespace ключей кэша анализов.
const AnalysisNamespace = "analysis"

// Analysis — терминальная стадия transcribed → analysis_completed.
type Analysis struct {
	transcripts ObjectStore
	analyses    ObjectStore
	analyzer    Analyzer
	cache       *cache.Cache
	records     RecordStore
	logger      *slog.Logger
}

// AnalysisConfig — зависимости стадии анализа.
type AnalysisConfig struct {
	// Transcripts — bucket с транскриптами.
	Transcripts ObjectStore

	// Analyses — bucket для <id>-analysis.json.
	Analyses ObjectStore

	Analyzer Analyzer

	// Cache — кэш результатов модели. nil — без кэша.
	Cache *cache.Cache

	Records RecordStore
	Logger  *slog.Logger
}

// NewAnalysis создаёт стадию.
func NewAnalysis(cfg AnalysisConfig) *Analysis {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := cfg.Cache
	if c == nil {
		c = cache.New(nil, cache.Config{Namespace: AnalysisNamespace, Logger: logger})
	}
	return &Analysis{
		transcripts: cfg.Transcripts,
		analyses:    cfg.Analyses,
		analyzer:    cfg.Analyzer,
		cache:       c,
		records:     cfg.Records,
		logger:      logger,
	}
}

// Process читает транскрипт, получает анализ (из кэша или от модели),
// сохраняет его в bucket анализов и в document store.
func (s *Analysis) Process(ctx context.Context, event domain.StageEvent) (map[string]string, error) {
	logger := telemetry.FromContextOr(ctx, s.logger)

	transcriptKey, _ := event.Field(domain.PayloadTranscriptFilename)
	analysisKey := storage.AnalysisKey(event.ArtifactID)

	logger.Info("fetching transcript", "key", transcriptKey)
	transcript, err := s.transcripts.Download(ctx, transcriptKey)
	if err != nil {
		return nil, fmt.Errorf("download transcript: %w", err)
	}
	if !json.Valid(transcript) {
		return nil, fmt.Errorf("transcript %s is not valid JSON", transcriptKey)
	}

	result, hit, err := s.cache.GetOrComputeJSON(ctx, transcript, func(ctx context.Context) ([]byte, error) {
		return s.analyzer.Analyze(ctx, transcript)
	})
	if err != nil {
		return nil, err
	}
	logger.Info("analysis ready", "cache_hit", hit, "bytes", len(result))

	if err := s.analyses.Upload(ctx, result, analysisKey, ContentTypeJSON); err != nil {
		return nil, fmt.Errorf("upload analysis: %w", err)
	}

	rec, err := s.records.Append(ctx, event.OwnerID, event.ArtifactID, result)
	if err != nil {
		return nil, fmt.Errorf("persist analysis: %w", err)
	}
	logger.Info("analysis persisted", "record_id", rec.ID, "key", analysisKey)

	return map[string]string{domain.PayloadAnalysisFile: analysisKey}, nil
}
