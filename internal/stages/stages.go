package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shaiso/Mindscope/internal/domain"
)

// ObjectStore — операции object storage, нужные стадиям.
// Реализуется *storage.BlobStore.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, data []byte, key, contentType string) error
	DownloadFile(ctx context.Context, key, path string) error
	UploadFile(ctx context.Context, path, key, contentType string) error
}

// AudioExtractor извлекает аудиодорожку. Реализуется *media.FFmpegExtractor.
type AudioExtractor interface {
	Extract(ctx context.Context, src, dst string) error
}

// Transcriber распознаёт речь. Реализуется *transcription.Client.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (json.RawMessage, error)
}

// Analyzer строит анализ транскрипта. Реализуется *llm.Client.
type Analyzer interface {
	Analyze(ctx context.Context, transcript json.RawMessage) (json.RawMessage, error)
}

// RecordStore — document store анализов. Реализуется *repo.AnalysisRepo.
type RecordStore interface {
	Append(ctx context.Context, ownerID, artifactID string, analysis json.RawMessage) (*domain.AnalysisRecord, error)
}

// Content types объектов.
const (
	ContentTypeMP3  = "audio/mpeg"
	ContentTypeJSON = "application/json"
)

// scratch — локальный каталог одного артефакта.
type scratch struct {
	dir string
}

// newScratch создаёт каталог root/<artifactID>.
func newScratch(root, artifactID string) (*scratch, error) {
	if artifactID == "" || artifactID == "." || artifactID == ".." ||
		strings.ContainsAny(artifactID, `/\`) {
		return nil, fmt.Errorf("%w: unsafe artifact_id %q", domain.ErrMalformedMessage, artifactID)
	}
	if root == "" {
		root = os.TempDir()
	}

	dir := filepath.Join(root, artifactID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	return &scratch{dir: dir}, nil
}

// Path возвращает локальный путь для имени объекта.
func (s *scratch) Path(name string) string {
	return filepath.Join(s.dir, filepath.Base(name))
}

// Cleanup удаляет каталог со всем содержимым.
func (s *scratch) Cleanup() error {
	return os.RemoveAll(s.dir)
}
