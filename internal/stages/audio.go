package stages

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shaiso/Mindscope/internal/domain"
	"github.com/shaiso/Mindscope/internal/storage"
	"github.com/shaiso/Mindscope/internal/telemetry"
)

// AudioExtraction — стадия uploaded → audio_extracted.
type AudioExtraction struct {
	videos     ObjectStore
	extractor  AudioExtractor
	scratchDir string
	logger     *slog.Logger
}

// NewAudioExtraction создаёт стадию.
func NewAudioExtraction(videos ObjectStore, extractor AudioExtractor, scratchDir string, logger *slog.Logger) *AudioExtraction {
	if logger == nil {
		logger = slog.Default()
	}
	return &AudioExtraction{videos: videos, extractor: extractor, scratchDir: scratchDir, logger: logger}
}

// Process скачивает видео, извлекает MP3 и загружает его как <id>.mp3.
func (s *AudioExtraction) Process(ctx context.Context, event domain.StageEvent) (map[string]string, error) {
	logger := telemetry.FromContextOr(ctx, s.logger)

	videoKey, _ := event.Field(domain.PayloadFilename)
	audioKey := storage.AudioKey(event.ArtifactID)

	dir, err := newScratch(s.scratchDir, event.ArtifactID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := dir.Cleanup(); err != nil {
			logger.Warn("failed to remove scratch dir", "error", err)
		}
	}()

	videoPath := dir.Path(videoKey)
	audioPath := dir.Path(audioKey)

	logger.Info("downloading video", "key", videoKey)
	if err := s.videos.DownloadFile(ctx, videoKey, videoPath); err != nil {
		return nil, fmt.Errorf("download video: %w", err)
	}

	logger.Info("extracting audio")
	if err := s.extractor.Extract(ctx, videoPath, audioPath); err != nil {
		return nil, err
	}

	logger.Info("uploading audio", "key", audioKey)
	if err := s.videos.UploadFile(ctx, audioPath, audioKey, ContentTypeMP3); err != nil {
		return nil, fmt.Errorf("upload audio: %w", err)
	}

	return map[string]string{domain.PayloadAudioFilename: audioKey}, nil
}
