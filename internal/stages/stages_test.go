package stages

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Mindscope/internal/cache"
	"github.com/shaiso/Mindscope/internal/domain"
	"github.com/shaiso/Mindscope/internal/storage"
)

// --- fakes ---

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memStore) put(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
}

func (m *memStore) get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return data, ok
}

func (m *memStore) Download(_ context.Context, key string) ([]byte, error) {
	data, ok := m.get(key)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return data, nil
}

func (m *memStore) Upload(_ context.Context, data []byte, key, contentType string) error {
	m.put(key, data)
	m.mu.Lock()
	m.types[key] = contentType
	m.mu.Unlock()
	return nil
}

func (m *memStore) DownloadFile(ctx context.Context, key, path string) error {
	data, err := m.Download(ctx, key)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (m *memStore) UploadFile(ctx context.Context, path, key, contentType string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return m.Upload(ctx, data, key, contentType)
}

type fakeExtractor struct {
	err error
}

func (f fakeExtractor) Extract(_ context.Context, src, dst string) error {
	if f.err != nil {
		return f.err
	}
	if _, err := os.Stat(src); err != nil {
		return err
	}
	return os.WriteFile(dst, []byte("mp3"), 0o644)
}

type fakeTranscriber struct {
	gotPath string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, path string) (json.RawMessage, error) {
	f.gotPath = path
	return json.RawMessage(`{"status":"completed","utterances":[]}`), nil
}

type countingAnalyzer struct {
	calls atomic.Int32
	err   error
}

func (a *countingAnalyzer) Analyze(context.Context, json.RawMessage) (json.RawMessage, error) {
	a.calls.Add(1)
	if a.err != nil {
		return nil, a.err
	}
	return json.RawMessage(`{"analysis":[{"speaker":"A","emotion":"Hope"}]}`), nil
}

type memRecords struct {
	mu      sync.Mutex
	records []domain.AnalysisRecord
}

func (r *memRecords) Append(_ context.Context, owner, artifact string, analysis json.RawMessage) (*domain.AnalysisRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := domain.AnalysisRecord{ID: uuid.New(), OwnerID: owner, ArtifactID: artifact, Analysis: analysis, CreatedAt: time.Now()}
	r.records = append(r.records, rec)
	return &rec, nil
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("redis: connection refused")
}

func (failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("redis: connection refused")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func assertScratchRemoved(t *testing.T, root, artifactID string) {
	t.Helper()
	if _, err := os.Stat(filepath.Join(root, artifactID)); !os.IsNotExist(err) {
		t.Errorf("scratch dir for %s must be removed, stat err=%v", artifactID, err)
	}
}

// --- AudioExtraction ---

func TestAudioExtraction_Process(t *testing.T) {
	root := t.TempDir()
	videos := newMemStore()
	videos.put("v1.mp4", []byte("video"))

	stage := NewAudioExtraction(videos, fakeExtractor{}, root, testLogger())
	event := domain.NewEvent("v1", "u1", domain.StageUploaded, map[string]string{domain.PayloadFilename: "v1.mp4"})

	added, err := stage.Process(context.Background(), event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if added[domain.PayloadAudioFilename] != "v1.mp3" {
		t.Errorf("expected audio_filename v1.mp3, got %v", added)
	}
	if data, ok := videos.get("v1.mp3"); !ok || string(data) != "mp3" {
		t.Errorf("audio not uploaded: %q %v", data, ok)
	}
	if videos.types["v1.mp3"] != ContentTypeMP3 {
		t.Errorf("unexpected content type %q", videos.types["v1.mp3"])
	}
	assertScratchRemoved(t, root, "v1")
}

func TestAudioExtraction_FailureCleansUp(t *testing.T) {
	root := t.TempDir()
	videos := newMemStore()
	videos.put("v2.mp4", []byte("video"))
	boom := errors.New("no audio stream")

	stage := NewAudioExtraction(videos, fakeExtractor{err: boom}, root, testLogger())
	event := domain.NewEvent("v2", "", domain.StageUploaded, map[string]string{domain.PayloadFilename: "v2.mp4"})

	if _, err := stage.Process(context.Background(), event); !errors.Is(err, boom) {
		t.Fatalf("expected extractor error, got %v", err)
	}
	if _, ok := videos.get("v2.mp3"); ok {
		t.Error("nothing must be uploaded after failure")
	}
	assertScratchRemoved(t, root, "v2")
}

func TestAudioExtraction_MissingVideo(t *testing.T) {
	stage := NewAudioExtraction(newMemStore(), fakeExtractor{}, t.TempDir(), testLogger())
	event := domain.NewEvent("v3", "", domain.StageUploaded, map[string]string{domain.PayloadFilename: "v3.mp4"})

	if _, err := stage.Process(context.Background(), event); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected storage.ErrNotFound, got %v", err)
	}
}

func TestScratch_RejectsUnsafeArtifactID(t *testing.T) {
	for _, id := range []string{"", "..", "../etc", `a\b`} {
		if _, err := newScratch(t.TempDir(), id); !errors.Is(err, domain.ErrMalformedMessage) {
			t.Errorf("artifact id %q: expected ErrMalformedMessage, got %v", id, err)
		}
	}
}

// --- Transcription ---

func TestTranscription_Process(t *testing.T) {
	root := t.TempDir()
	store := newMemStore()
	store.put("v1.mp3", []byte("mp3"))
	tr := &fakeTranscriber{}

	stage := NewTranscription(store, tr, root, testLogger())
	event := domain.NewEvent("v1", "", domain.StageAudioExtracted, map[string]string{domain.PayloadAudioFilename: "v1.mp3"})

	added, err := stage.Process(context.Background(), event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if added[domain.PayloadTranscriptFilename] != "v1.json" {
		t.Errorf("expected transcript_filename v1.json, got %v", added)
	}
	if tr.gotPath != filepath.Join(root, "v1", "v1.mp3") {
		t.Errorf("unexpected local audio path %q", tr.gotPath)
	}
	if _, ok := store.get("v1.json"); !ok {
		t.Error("transcript not uploaded")
	}
	assertScratchRemoved(t, root, "v1")
}

// --- Analysis ---

type analysisFixture struct {
	transcripts *memStore
	analyses    *memStore
	analyzer    *countingAnalyzer
	records     *memRecords
	stage       *Analysis
}

func newAnalysisFixture(store cache.Store) *analysisFixture {
	f := &analysisFixture{
		transcripts: newMemStore(),
		analyses:    newMemStore(),
		analyzer:    &countingAnalyzer{},
		records:     &memRecords{},
	}
	var c *cache.Cache
	if store != nil {
		c = cache.New(store, cache.Config{Namespace: AnalysisNamespace, Logger: testLogger()})
	}
	f.stage = NewAnalysis(AnalysisConfig{
		Transcripts: f.transcripts,
		Analyses:    f.analyses,
		Analyzer:    f.analyzer,
		Cache:       c,
		Records:     f.records,
		Logger:      testLogger(),
	})
	return f
}

func transcribedEvent(id, owner string) domain.StageEvent {
	return domain.NewEvent(id, owner, domain.StageTranscribed,
		map[string]string{domain.PayloadTranscriptFilename: id + ".json"})
}

func TestAnalysis_Process(t *testing.T) {
	f := newAnalysisFixture(cache.NewMemoryStore())
	f.transcripts.put("v1.json", []byte(`{"utterances":[{"speaker":"A","text":"hi"}]}`))

	added, err := f.stage.Process(context.Background(), transcribedEvent("v1", "u1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if added[domain.PayloadAnalysisFile] != "v1-analysis.json" {
		t.Errorf("expected analysis_file v1-analysis.json, got %v", added)
	}
	if _, ok := f.analyses.get("v1-analysis.json"); !ok {
		t.Error("analysis not uploaded to analysis bucket")
	}
	if len(f.records.records) != 1 || f.records.records[0].OwnerID != "u1" {
		t.Errorf("expected one record for u1, got %+v", f.records.records)
	}
}

func TestAnalysis_CacheHitSkipsModel(t *testing.T) {
	f := newAnalysisFixture(cache.NewMemoryStore())
	f.transcripts.put("v1.json", []byte(`{"a":1,"b":[1,2]}`))
	// тот же транскрипт с другим порядком ключей и пробелами
	f.transcripts.put("v2.json", []byte("{ \"b\": [1, 2],\n \"a\": 1 }"))

	ctx := context.Background()
	if _, err := f.stage.Process(ctx, transcribedEvent("v1", "u1")); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := f.stage.Process(ctx, transcribedEvent("v2", "u2")); err != nil {
		t.Fatalf("second: %v", err)
	}

	if f.analyzer.calls.Load() != 1 {
		t.Errorf("expected model called once, got %d", f.analyzer.calls.Load())
	}
	first, _ := f.analyses.get("v1-analysis.json")
	second, _ := f.analyses.get("v2-analysis.json")
	if string(first) != string(second) {
		t.Errorf("cached result differs: %s vs %s", first, second)
	}
	if len(f.records.records) != 2 {
		t.Errorf("each artifact gets its own record, got %d", len(f.records.records))
	}
}

func TestAnalysis_ConcurrentAfterFirstPut(t *testing.T) {
	f := newAnalysisFixture(cache.NewMemoryStore())
	for _, id := range []string{"c0", "c1", "c2", "c3", "c4", "c5"} {
		f.transcripts.put(id+".json", []byte(`{"same":"transcript"}`))
	}

	ctx := context.Background()
	if _, err := f.stage.Process(ctx, transcribedEvent("c0", "")); err != nil {
		t.Fatalf("first: %v", err)
	}

	var wg sync.WaitGroup
	for _, id := range []string{"c1", "c2", "c3", "c4", "c5"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := f.stage.Process(ctx, transcribedEvent(id, "")); err != nil {
				t.Errorf("%s: %v", id, err)
			}
		}(id)
	}
	wg.Wait()

	if f.analyzer.calls.Load() != 1 {
		t.Errorf("expected a single computation, got %d", f.analyzer.calls.Load())
	}
}

func TestAnalysis_UnavailableCacheStillCompletes(t *testing.T) {
	f := newAnalysisFixture(failingStore{})
	f.transcripts.put("v1.json", []byte(`{}`))

	if _, err := f.stage.Process(context.Background(), transcribedEvent("v1", "")); err != nil {
		t.Fatalf("cache outage must not fail the stage: %v", err)
	}
	if f.analyzer.calls.Load() != 1 {
		t.Errorf("expected model call on forced miss, got %d", f.analyzer.calls.Load())
	}
}

func TestAnalysis_WithoutCache(t *testing.T) {
	f := newAnalysisFixture(nil)
	f.transcripts.put("v1.json", []byte(`{}`))

	ctx := context.Background()
	for range 2 {
		if _, err := f.stage.Process(ctx, transcribedEvent("v1", "")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if f.analyzer.calls.Load() != 2 {
		t.Errorf("bypassed cache must compute every time, got %d", f.analyzer.calls.Load())
	}
}

func TestAnalysis_ModelErrorLeavesNoTrace(t *testing.T) {
	mem := cache.NewMemoryStore()
	f := newAnalysisFixture(mem)
	f.analyzer.err = errors.New("llm: 503")
	f.transcripts.put("v1.json", []byte(`{}`))

	if _, err := f.stage.Process(context.Background(), transcribedEvent("v1", "")); err == nil {
		t.Fatal("expected error")
	}
	if mem.Len() != 0 {
		t.Error("failed computation must not be cached")
	}
	if _, ok := f.analyses.get("v1-analysis.json"); ok {
		t.Error("nothing must be uploaded")
	}
	if len(f.records.records) != 0 {
		t.Error("nothing must be persisted")
	}
}

func TestAnalysis_InvalidTranscript(t *testing.T) {
	f := newAnalysisFixture(cache.NewMemoryStore())
	f.transcripts.put("v1.json", []byte(`not json`))

	if _, err := f.stage.Process(context.Background(), transcribedEvent("v1", "")); err == nil {
		t.Fatal("expected error for invalid transcript")
	}
	if f.analyzer.calls.Load() != 0 {
		t.Error("model must not be called")
	}
}
