package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func testCache(store Store) *Cache {
	return New(store, Config{
		Namespace: "analysis",
		TTL:       time.Hour,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

// failingStore имитирует недоступное хранилище.
type failingStore struct{ sets int }

func (f *failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, ErrUnavailable
}

func (f *failingStore) Set(context.Context, string, []byte, time.Duration) error {
	f.sets++
	return ErrUnavailable
}

// --- Fingerprint Tests ---

func TestFingerprint_Deterministic(t *testing.T) {
	input := map[string]any{"text": "I feel stuck", "speaker": "A"}

	a, err := Fingerprint(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := Fingerprint(input)
	if a != b {
		t.Errorf("fingerprint should be stable: %s != %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("expected sha256 hex (64 chars), got %d", len(a))
	}
}

func TestFingerprintJSON_IgnoresKeyOrderAndWhitespace(t *testing.T) {
	a, err := FingerprintJSON([]byte(`{"speaker":"A","text":"hello","confidence":0.93}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := FingerprintJSON([]byte("{\n  \"text\": \"hello\",\n  \"confidence\": 0.93,\n  \"speaker\": \"A\"\n}"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != b {
		t.Error("semantically identical JSON should share a fingerprint")
	}
}

func TestFingerprintJSON_SensitiveToContent(t *testing.T) {
	base := `{"utterances":[{"speaker":"A","text":"I feel stuck"}]}`
	variants := []string{
		`{"utterances":[{"speaker":"B","text":"I feel stuck"}]}`,
		`{"utterances":[{"speaker":"A","text":"I feel stuck."}]}`,
		`{"utterances":[{"speaker":"A","text":"I feel stuck"},{"speaker":"B","text":"ok"}]}`,
		`{"utterances":[{"speaker":"A","text":"I feel stuck","confidence":1}]}`,
	}

	fp, _ := FingerprintJSON([]byte(base))
	for _, v := range variants {
		other, err := FingerprintJSON([]byte(v))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if other == fp {
			t.Errorf("changed input should change fingerprint: %s", v)
		}
	}
}

func TestCanonicalize_PreservesNumbers(t *testing.T) {
	out, err := Canonicalize([]byte(`{"b": 12345678901234567890, "a": 1.50}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"a":1.50,"b":12345678901234567890}`
	if string(out) != want {
		t.Errorf("expected %s, got %s", want, out)
	}
}

func TestFingerprintJSON_Invalid(t *testing.T) {
	for _, raw := range []string{``, `{`, `{"a":1} {"b":2}`} {
		if _, err := FingerprintJSON([]byte(raw)); !errors.Is(err, ErrFingerprint) {
			t.Errorf("expected ErrFingerprint for %q, got %v", raw, err)
		}
	}
}

// --- Cache Tests ---

func TestCache_PutGetExpires(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore().WithClock(func() time.Time { return now })
	c := testCache(store)
	ctx := context.Background()

	if err := c.Put(ctx, "fp1", []byte(`{"ok":true}`), time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok := c.Get(ctx, "fp1")
	if !ok || string(got) != `{"ok":true}` {
		t.Fatalf("expected hit before ttl, got %q ok=%v", got, ok)
	}

	now = now.Add(59 * time.Second)
	if _, ok := c.Get(ctx, "fp1"); !ok {
		t.Error("entry should still be valid just before ttl")
	}

	now = now.Add(time.Second)
	if _, ok := c.Get(ctx, "fp1"); ok {
		t.Error("entry should expire once ttl elapsed")
	}
	if store.Len() != 0 {
		t.Errorf("expired entry should be evicted, len=%d", store.Len())
	}
}

func TestCache_LastWriteWins(t *testing.T) {
	c := testCache(NewMemoryStore())
	ctx := context.Background()

	c.Put(ctx, "fp", []byte("first"), 0)
	c.Put(ctx, "fp", []byte("second"), 0)

	got, ok := c.Get(ctx, "fp")
	if !ok || string(got) != "second" {
		t.Errorf("expected second, got %q", got)
	}
}

func TestCache_KeyNamespace(t *testing.T) {
	store := NewMemoryStore()
	c := testCache(store)
	c.Put(context.Background(), "abc", []byte("x"), 0)

	if _, ok, _ := store.Get(context.Background(), "analysis:abc"); !ok {
		t.Error("entry should be stored under namespaced key")
	}
}

func TestCache_GetOrComputeSkipsOnHit(t *testing.T) {
	c := testCache(NewMemoryStore())
	ctx := context.Background()
	var calls int32

	compute := func(context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return []byte(`{"analysis":[]}`), nil
	}

	input := map[string]any{"text": "session transcript"}

	first, hit, err := c.GetOrCompute(ctx, input, compute)
	if err != nil || hit {
		t.Fatalf("first call should miss and compute: hit=%v err=%v", hit, err)
	}

	second, hit, err := c.GetOrCompute(ctx, input, compute)
	if err != nil || !hit {
		t.Fatalf("second call should hit: hit=%v err=%v", hit, err)
	}

	if string(first) != string(second) {
		t.Errorf("cached body differs: %s vs %s", first, second)
	}
	if calls != 1 {
		t.Errorf("expected one computation, got %d", calls)
	}
}

func TestCache_ConcurrentIdenticalRequests(t *testing.T) {
	c := testCache(NewMemoryStore())
	ctx := context.Background()
	var calls int32

	compute := func(context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(10 * time.Millisecond)
		return []byte(`{"clinical_recommendations":"slow down"}`), nil
	}

	raw := []byte(`{"text":"same transcript"}`)

	var wg sync.WaitGroup
	results := make([][]byte, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, _, err := c.GetOrComputeJSON(ctx, raw, compute)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	if string(results[0]) != string(results[1]) {
		t.Errorf("concurrent results differ: %s vs %s", results[0], results[1])
	}
	// Гонка допустима: до двух вычислений
	if calls < 1 || calls > 2 {
		t.Errorf("expected 1 or 2 computations, got %d", calls)
	}

	// После записи в кэш новых вычислений нет
	before := atomic.LoadInt32(&calls)
	if _, hit, _ := c.GetOrComputeJSON(ctx, raw, compute); !hit {
		t.Error("request after settle should hit")
	}
	if atomic.LoadInt32(&calls) != before {
		t.Error("hit must not trigger computation")
	}
}

func TestCache_ComputeErrorIsNotCached(t *testing.T) {
	store := NewMemoryStore()
	c := testCache(store)
	boom := errors.New("llm unavailable")

	_, _, err := c.GetOrCompute(context.Background(), "input", func(context.Context) ([]byte, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected compute error, got %v", err)
	}
	if store.Len() != 0 {
		t.Error("failed computation must not be cached")
	}
}

func TestCache_UnavailableStoreDegradesToMiss(t *testing.T) {
	store := &failingStore{}
	c := testCache(store)
	var calls int

	for i := 0; i < 2; i++ {
		res, hit, err := c.GetOrCompute(context.Background(), "input", func(context.Context) ([]byte, error) {
			calls++
			return []byte("fresh"), nil
		})
		if err != nil {
			t.Fatalf("cache failure must not fail the caller: %v", err)
		}
		if hit || string(res) != "fresh" {
			t.Errorf("expected forced miss with fresh result, got hit=%v res=%s", hit, res)
		}
	}

	if calls != 2 {
		t.Errorf("every call should recompute, got %d", calls)
	}
	if store.sets != 2 {
		t.Errorf("writes should still be attempted, got %d", store.sets)
	}
}

func TestCache_NilStoreBypass(t *testing.T) {
	c := testCache(nil)
	if c.Enabled() {
		t.Error("cache without store should be disabled")
	}

	if err := c.Put(context.Background(), "fp", []byte("x"), 0); err != nil {
		t.Errorf("put on disabled cache should be a no-op, got %v", err)
	}
	if _, ok := c.Get(context.Background(), "fp"); ok {
		t.Error("disabled cache should always miss")
	}
}

func TestRedisStore_UnreachableIsMiss(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	store := NewRedisStoreFromClient(client)
	if _, _, err := store.Get(context.Background(), "k"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	c := testCache(store)
	if _, ok := c.Get(context.Background(), "k"); ok {
		t.Error("unreachable redis should be a miss")
	}
}
