package stages

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shaiso/Mindscope/internal/domain"
	"github.com/shaiso/Mindscope/internal/storage"
	"github.com/shaiso/Mindscope/internal/telemetry"
)

// Transcription — стадия audio_extracted → transcribed.
type Transcription struct {
	store       ObjectStore
	transcriber Transcriber
	scratchDir  string
	logger      *slog.Logger
}

// NewTranscription создаёт стадию.
func NewTranscription(store ObjectStore, transcriber Transcriber, scratchDir string, logger *slog.Logger) *Transcription {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transcription{store: store, transcriber: transcriber, scratchDir: scratchDir, logger: logger}
}

// Process скачивает MP3, распознаёт речь и загружает транскрипт как <id>.json.
func (s *Transcription) Process(ctx context.Context, event domain.StageEvent) (map[string]string, error) {
	logger := telemetry.FromContextOr(ctx, s.logger)

	audioKey, _ := event.Field(domain.PayloadAudioFilename)
	transcriptKey := storage.TranscriptKey(event.ArtifactID)

	dir, err := newScratch(s.scratchDir, event.ArtifactID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := dir.Cleanup(); err != nil {
			logger.Warn("failed to remove scratch dir", "error", err)
		}
	}()

	audioPath := dir.Path(audioKey)

	logger.Info("downloading audio", "key", audioKey)
	if err := s.store.DownloadFile(ctx, audioKey, audioPath); err != nil {
		return nil, fmt.Errorf("download audio: %w", err)
	}

	transcript, err := s.transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}

	logger.Info("uploading transcript", "key", transcriptKey, "bytes", len(transcript))
	if err := s.store.Upload(ctx, transcript, transcriptKey, ContentTypeJSON); err != nil {
		return nil, fmt.Errorf("upload transcript: %w", err)
	}

	return map[string]string{domain.PayloadTranscriptFilename: transcriptKey}, nil
}
