// Package transcription — клиент сервиса распознавания речи с разметкой
// спикеров (AssemblyAI-совместимый REST API).
//
// Порядок работы: Upload аудиофайла → Start задания → Wait до статуса
// completed/error. Transcribe делает всё это за один вызов.
package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Значения по умолчанию.
const (
	DefaultBaseURL      = "https://api.assemblyai.com/v2"
	DefaultPollInterval = 3 * time.Second

	defaultRequestTimeout  = 60 * time.Second
	defaultRetryInitial    = 500 * time.Millisecond
	defaultRetryMaxElapsed = 30 * time.Second
)

// Статусы задания.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// Ошибки клиента.
var (
	// ErrFailed — сервис завершил задание со статусом error.
	ErrFailed = errors.New("transcription failed")

	// ErrAPI — сервис ответил ошибкой, которую бессмысленно повторять (4xx).
	ErrAPI = errors.New("transcription api error")

	// errPending — задание ещё не готово, нужен следующий опрос.
	errPending = errors.New("transcription pending")
)

// Config — настройки клиента.
type Config struct {
	BaseURL string
	APIKey  string

	// PollInterval — пауза между опросами статуса. Общего таймаута нет:
	// ожидание ограничено только ctx.
	PollInterval time.Duration

	// RetryInitial и RetryMaxElapsed — backoff для одиночного HTTP-запроса.
	RetryInitial    time.Duration
	RetryMaxElapsed time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client — клиент сервиса транскрипции.
type Client struct {
	baseURL         string
	apiKey          string
	pollInterval    time.Duration
	retryInitial    time.Duration
	retryMaxElapsed time.Duration
	http            *http.Client
	logger          *slog.Logger
}

// NewClient создаёт клиент.
func NewClient(cfg Config) *Client {
	c := &Client{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:          cfg.APIKey,
		pollInterval:    cfg.PollInterval,
		retryInitial:    cfg.RetryInitial,
		retryMaxElapsed: cfg.RetryMaxElapsed,
		http:            cfg.HTTPClient,
		logger:          cfg.Logger,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultPollInterval
	}
	if c.retryInitial <= 0 {
		c.retryInitial = defaultRetryInitial
	}
	if c.retryMaxElapsed <= 0 {
		c.retryMaxElapsed = defaultRetryMaxElapsed
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: defaultRequestTimeout}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "transcription")
	return c
}

// Transcribe загружает аудиофайл, запускает распознавание с разметкой
// спикеров и ждёт результата. Возвращает JSON ответа сервиса как есть.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (json.RawMessage, error) {
	uploadURL, err := c.Upload(ctx, audioPath)
	if err != nil {
		return nil, err
	}

	id, err := c.Start(ctx, uploadURL)
	if err != nil {
		return nil, err
	}

	return c.Wait(ctx, id)
}

// Upload отправляет аудиофайл и возвращает его URL в сервисе.
func (c *Client) Upload(ctx context.Context, audioPath string) (string, error) {
	c.logger.Info("uploading audio", "path", audioPath)

	var resp struct {
		UploadURL string `json:"upload_url"`
	}
	err := c.doJSON(ctx, func() (*http.Request, error) {
		f, err := os.Open(audioPath)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("open audio: %w", err))
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", f)
		if err != nil {
			f.Close()
			return nil, err
		}
		req.Header.Set("Content-Type", "application/octet-stream")
		return req, nil
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("upload audio: %w", err)
	}
	if resp.UploadURL == "" {
		return "", fmt.Errorf("%w: upload response without upload_url", ErrAPI)
	}
	return resp.UploadURL, nil
}

// Start запускает задание с разметкой спикеров и возвращает его id.
func (c *Client) Start(ctx context.Context, audioURL string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"audio_url":      audioURL,
		"speaker_labels": true,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	err = c.doJSON(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcript", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("start transcription: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("%w: transcript response without id", ErrAPI)
	}

	c.logger.Info("transcription started", "transcript_id", resp.ID)
	return resp.ID, nil
}

// Wait опрашивает задание каждые PollInterval до completed или error.
func (c *Client) Wait(ctx context.Context, id string) (json.RawMessage, error) {
	var result json.RawMessage

	poll := func() error {
		var raw json.RawMessage
		err := c.doJSON(ctx, func() (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/transcript/"+id, nil)
		}, &raw)
		if err != nil {
			return backoff.Permanent(err)
		}

		var status struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		}
		if err := json.Unmarshal(raw, &status); err != nil {
			return backoff.Permanent(fmt.Errorf("decode status: %w", err))
		}

		switch status.Status {
		case StatusCompleted:
			result = raw
			return nil
		case StatusError:
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrFailed, status.Error))
		default:
			c.logger.Debug("transcription in progress", "transcript_id", id, "status", status.Status)
			return errPending
		}
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(c.pollInterval), ctx)
	if err := backoff.Retry(poll, b); err != nil {
		return nil, fmt.Errorf("wait transcript %s: %w", id, err)
	}

	c.logger.Info("transcription completed", "transcript_id", id)
	return result, nil
}

// doJSON выполняет запрос с backoff: сетевые ошибки и 5xx повторяются,
// 4xx — сразу ErrAPI. newReq вызывается на каждую попытку.
func (c *Client) doJSON(ctx context.Context, newReq func() (*http.Request, error), target any) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInitial
	bo.MaxElapsedTime = c.retryMaxElapsed

	op := func() error {
		req, err := newReq()
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", c.apiKey)

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			return fmt.Errorf("server error %d: %s", resp.StatusCode, truncate(body))
		}
		if resp.StatusCode >= 300 {
			return backoff.Permanent(fmt.Errorf("%w: status %d: %s", ErrAPI, resp.StatusCode, truncate(body)))
		}
		if err := json.Unmarshal(body, target); err != nil {
			return backoff.Permanent(fmt.Errorf("%w: decode response: %v", ErrAPI, err))
		}
		return nil
	}

	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}

func truncate(b []byte) string {
	const n = 300
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
