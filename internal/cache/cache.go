package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/shaiso/Mindscope/internal/telemetry"
)

// DefaultTTL — время жизни записи по умолчанию.
const DefaultTTL = 24 * time.Hour

// Store — хранилище байтов с TTL.
type Store interface {
	// Get возвращает значение и true, если ключ есть и не истёк.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set записывает значение, перезаписывая предыдущее (last-write-wins).
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// ComputeFunc — дорогое детерминированное вычисление.
type ComputeFunc func(ctx context.Context) ([]byte, error)

// Cache — content-addressed кэш над Store.
type Cache struct {
	store     Store
	namespace string
	ttl       time.Duration
	logger    *slog.Logger
}

// Config — конфигурация Cache.
type Config struct {
	// Namespace — префикс ключей, например "analysis".
	Namespace string

	// TTL — время жизни записей (default: 24h).
	TTL time.Duration

	// Logger
	Logger *slog.Logger
}

// New создаёт Cache. store == nil означает, что кэш отключён:
// каждый Get — промах, Put ничего не делает.
func New(store Store, cfg Config) *Cache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Cache{
		store:     store,
		namespace: cfg.Namespace,
		ttl:       ttl,
		logger:    logger,
	}
}

// Enabled возвращает false для кэша без хранилища.
func (c *Cache) Enabled() bool {
	return c != nil && c.store != nil
}

// Key возвращает ключ хранилища для отпечатка.
func (c *Cache) Key(fingerprint string) string {
	if c.namespace == "" {
		return fingerprint
	}
	return c.namespace + ":" + fingerprint
}

// Get возвращает сохранённый результат. Чистое чтение.
// Недоступность хранилища — промах.
func (c *Cache) Get(ctx context.Context, fingerprint string) ([]byte, bool) {
	if !c.Enabled() {
		return nil, false
	}

	value, ok, err := c.store.Get(ctx, c.Key(fingerprint))
	if err != nil {
		c.logger.Warn("cache unavailable, treating as miss",
			"namespace", c.namespace,
			"fingerprint", fingerprint,
			"error", err,
		)
		telemetry.CacheRequests.WithLabelValues(c.namespace, telemetry.CacheUnavailable).Inc()
		return nil, false
	}

	if !ok {
		telemetry.CacheRequests.WithLabelValues(c.namespace, telemetry.CacheMiss).Inc()
		return nil, false
	}

	telemetry.CacheRequests.WithLabelValues(c.namespace, telemetry.CacheHit).Inc()
	return value, true
}

// Put сохраняет результат под отпечатком. ttl <= 0 — TTL кэша по умолчанию.
func (c *Cache) Put(ctx context.Context, fingerprint string, result []byte, ttl time.Duration) error {
	if !c.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	return c.store.Set(ctx, c.Key(fingerprint), result, ttl)
}

// GetOrCompute — контракт использования кэша: отпечаток считается до
// вызова, при попадании вычисление пропускается, при промахе результат
// вычисляется и записывается до возврата.
//
// hit сообщает, был ли результат взят из кэша. Ошибки кэша не
// возвращаются: возвращается только ошибка compute.
func (c *Cache) GetOrCompute(ctx context.Context, input any, compute ComputeFunc) (result []byte, hit bool, err error) {
	fingerprint, fpErr := Fingerprint(input)
	if fpErr != nil {
		c.logger.Warn("cannot fingerprint input, bypassing cache", "error", fpErr)
		result, err = compute(ctx)
		return result, false, err
	}

	return c.getOrCompute(ctx, fingerprint, compute)
}

// GetOrComputeJSON — то же, что GetOrCompute, для уже сериализованного JSON.
func (c *Cache) GetOrComputeJSON(ctx context.Context, raw []byte, compute ComputeFunc) (result []byte, hit bool, err error) {
	fingerprint, fpErr := FingerprintJSON(raw)
	if fpErr != nil {
		c.logger.Warn("cannot fingerprint input, bypassing cache", "error", fpErr)
		result, err = compute(ctx)
		return result, false, err
	}

	return c.getOrCompute(ctx, fingerprint, compute)
}

func (c *Cache) getOrCompute(ctx context.Context, fingerprint string, compute ComputeFunc) ([]byte, bool, error) {
	if cached, ok := c.Get(ctx, fingerprint); ok {
		c.logger.Info("cache hit", "namespace", c.namespace, "fingerprint", fingerprint)
		return cached, true, nil
	}

	if c.Enabled() {
		c.logger.Info("cache miss, computing", "namespace", c.namespace, "fingerprint", fingerprint)
	}

	result, err := compute(ctx)
	if err != nil {
		return nil, false, err
	}

	if err := c.Put(ctx, fingerprint, result, 0); err != nil {
		c.logger.Warn("cache write failed", "namespace", c.namespace, "fingerprint", fingerprint, "error", err)
	}

	return result, false, nil
}
