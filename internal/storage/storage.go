// Package storage — object storage (MinIO/S3) для артефактов pipeline.
//
// Ядро pipeline содержимое объектов не интерпретирует: стадии только
// скачивают, загружают и проверяют наличие объектов по ключу.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrNotFound — объекта с таким ключом нет.
var ErrNotFound = errors.New("object not found")

// Options — параметры подключения к MinIO.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
}

// NewClient создаёт клиент MinIO.
func NewClient(opts Options) (*minio.Client, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client init: %w", err)
	}
	return client, nil
}

// BlobStore — операции над одним bucket.
type BlobStore struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// NewBlobStore создаёт BlobStore. Bucket не проверяется до EnsureBucket.
func NewBlobStore(client *minio.Client, bucket string, logger *slog.Logger) *BlobStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &BlobStore{
		client: client,
		bucket: bucket,
		logger: logger.With("bucket", bucket),
	}
}

// Bucket возвращает имя bucket.
func (s *BlobStore) Bucket() string {
	return s.bucket
}

// EnsureBucket создаёт bucket, если его ещё нет.
func (s *BlobStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}

	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		// Параллельный процесс мог создать bucket раньше нас
		code := minio.ToErrorResponse(err).Code
		if code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists" {
			return nil
		}
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}

	s.logger.Info("created bucket")
	return nil
}

// Download читает объект целиком.
func (s *BlobStore) Download(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.wrap("get", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.wrap("read", key, err)
	}
	return data, nil
}

// Upload записывает объект.
func (s *BlobStore) Upload(ctx context.Context, data []byte, key, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return s.wrap("put", key, err)
	}

	s.logger.Debug("uploaded object", "key", key, "size", len(data))
	return nil
}

// UploadStream записывает объект из потока. size < 0 — размер неизвестен,
// minio-go загрузит объект по частям.
func (s *BlobStore) UploadStream(ctx context.Context, r io.Reader, size int64, key, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return s.wrap("put", key, err)
	}

	s.logger.Debug("uploaded stream", "key", key, "size", size)
	return nil
}

// DownloadFile скачивает объект в локальный файл.
func (s *BlobStore) DownloadFile(ctx context.Context, key, path string) error {
	if err := s.client.FGetObject(ctx, s.bucket, key, path, minio.GetObjectOptions{}); err != nil {
		return s.wrap("fget", key, err)
	}
	return nil
}

// UploadFile загружает локальный файл.
func (s *BlobStore) UploadFile(ctx context.Context, path, key, contentType string) error {
	_, err := s.client.FPutObject(ctx, s.bucket, key, path, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return s.wrap("fput", key, err)
	}

	s.logger.Debug("uploaded file", "key", key, "path", path)
	return nil
}

// Exists проверяет наличие объекта.
func (s *BlobStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, s.wrap("stat", key, err)
}

// List возвращает ключи объектов с префиксом, отсортированные по имени.
// Отсутствующий bucket — пустой список.
func (s *BlobStore) List(ctx context.Context, prefix string) ([]string, error) {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		return []string{}, nil
	}

	keys := []string{}
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s: %w", s.bucket, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *BlobStore) wrap(op, key string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%s %s/%s: %w", op, s.bucket, key, ErrNotFound)
	}
	return fmt.Errorf("%s %s/%s: %w", op, s.bucket, key, err)
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}
