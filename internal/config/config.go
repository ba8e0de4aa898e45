// Package config собирает настройки процессов Mindscope из переменных
// окружения. Файл .env в рабочем каталоге подхватывается автоматически;
// уже заданные переменные окружения имеют приоритет над ним.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrMissing — не задана обязательная переменная.
var ErrMissing = errors.New("required setting is missing")

// Бэкенды кэша анализов.
const (
	CacheRedis  = "redis"
	CacheMemory = "memory"
	CacheNone   = "none"
)

// Config — настройки, общие для всех бинарников.
type Config struct {
	// RabbitMQ
	RabbitMQURL string

	// MinIO
	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOUseSSL    bool
	MinIORegion    string
	VideoBucket    string
	AnalysisBucket string

	// Кэш анализов
	CacheBackend  string
	CacheTTL      time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Document store
	DBURL string

	// Языковая модель
	OpenAIAPIKey  string
	OpenAIBaseURL string
	LLMModel      string

	// Транскрипция
	AssemblyAIAPIKey          string
	AssemblyAIBaseURL         string
	TranscriptionPollInterval time.Duration

	// Локальная обработка
	FFmpegBinary string
	ScratchDir   string

	// HTTP API
	MaxUploadBytes int64

	lookup func(string) (string, bool)
}

// Load читает .env (если есть) и окружение процесса.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return LoadFrom(os.LookupEnv)
}

// LoadFrom строит Config по функции поиска переменных.
func LoadFrom(lookup func(string) (string, bool)) (*Config, error) {
	e := env{lookup: lookup}

	c := &Config{
		RabbitMQURL: e.str("RABBITMQ_URL", ""),

		MinIOEndpoint:  e.str("MINIO_ENDPOINT", "localhost:9000"),
		MinIOAccessKey: e.first("MINIO_ROOT_USER", "MINIO_ACCESS_KEY"),
		MinIOSecretKey: e.first("MINIO_ROOT_PASSWORD", "MINIO_SECRET_KEY"),
		MinIORegion:    e.str("MINIO_REGION", ""),
		VideoBucket:    e.str("MINIO_BUCKET_NAME", "therapy-videos"),
		AnalysisBucket: e.str("MINIO_ANALYSIS_BUCKET", "therapy-analysis"),

		CacheBackend:  strings.ToLower(e.str("CACHE_BACKEND", CacheRedis)),
		RedisAddr:     e.str("REDIS_ADDR", ""),
		RedisPassword: e.str("REDIS_PASSWORD", ""),

		DBURL: e.str("DB_URL", ""),

		OpenAIAPIKey:  e.str("OPENAI_API_KEY", ""),
		OpenAIBaseURL: e.str("OPENAI_BASE_URL", ""),
		LLMModel:      e.str("LLM_MODEL", ""),

		AssemblyAIAPIKey:  e.str("ASSEMBLYAI_API_KEY", ""),
		AssemblyAIBaseURL: e.str("ASSEMBLYAI_BASE_URL", ""),

		FFmpegBinary: e.str("FFMPEG_BINARY", "ffmpeg"),
		ScratchDir:   e.str("SCRATCH_DIR", filepath.Join(os.TempDir(), "mindscope")),

		lookup: lookup,
	}

	if c.RabbitMQURL == "" {
		c.RabbitMQURL = (&url.URL{
			Scheme: "amqp",
			User:   url.UserPassword(e.str("RABBITMQ_USER", "guest"), e.str("RABBITMQ_PASS", "guest")),
			Host:   net.JoinHostPort(e.str("RABBITMQ_HOST", "localhost"), e.str("RABBITMQ_PORT", "5672")),
			Path:   "/",
		}).String()
	}

	if c.RedisAddr == "" {
		c.RedisAddr = net.JoinHostPort(e.str("REDIS_HOST", "localhost"), e.str("REDIS_PORT", "6379"))
	}

	var err error
	if c.MinIOUseSSL, err = e.boolean("MINIO_USE_SSL", false); err != nil {
		return nil, err
	}
	if c.RedisDB, err = e.integer("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if c.CacheTTL, err = e.duration("CACHE_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if c.TranscriptionPollInterval, err = e.duration("TRANSCRIPTION_POLL_INTERVAL", 3*time.Second); err != nil {
		return nil, err
	}
	uploadMB, err := e.integer("MAX_UPLOAD_MB", 1024)
	if err != nil {
		return nil, err
	}
	c.MaxUploadBytes = int64(uploadMB) << 20

	switch c.CacheBackend {
	case CacheRedis, CacheMemory, CacheNone:
	default:
		return nil, fmt.Errorf("CACHE_BACKEND: unknown backend %q", c.CacheBackend)
	}

	return c, nil
}

// Require проверяет, что перечисленные переменные заданы.
func (c *Config) Require(keys ...string) error {
	var missing []string
	for _, k := range keys {
		if v, ok := c.lookup(k); !ok || strings.TrimSpace(v) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissing, strings.Join(missing, ", "))
	}
	return nil
}

// Port возвращает адрес прослушивания из переменной key или ":"+fallback.
func (c *Config) Port(key, fallback string) string {
	e := env{lookup: c.lookup}
	return ":" + e.str(key, fallback)
}

type env struct {
	lookup func(string) (string, bool)
}

func (e env) str(key, fallback string) string {
	if v, ok := e.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func (e env) first(keys ...string) string {
	for _, k := range keys {
		if v := e.str(k, ""); v != "" {
			return v
		}
	}
	return ""
}

func (e env) boolean(key string, fallback bool) (bool, error) {
	v := e.str(key, "")
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func (e env) integer(key string, fallback int) (int, error) {
	v := e.str(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func (e env) duration(key string, fallback time.Duration) (time.Duration, error) {
	v := e.str(key, "")
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
