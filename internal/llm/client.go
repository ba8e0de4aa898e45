// Package llm — клиент языковой модели (OpenAI Responses-совместимый REST API):
// психологический анализ транскрипта и Super Advisor.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Значения по умолчанию.
const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-5-nano-2025-08-07"

	defaultRequestTimeout  = 5 * time.Minute
	defaultRetryInitial    = time.Second
	defaultRetryMaxElapsed = 2 * time.Minute
)

// Ошибки клиента.
var (
	// ErrAPI — модель ответила ошибкой, которую бессмысленно повторять.
	ErrAPI = errors.New("llm api error")

	// ErrInvalidOutput — ответ модели не является ожидаемым JSON.
	ErrInvalidOutput = errors.New("llm returned invalid output")
)

// Config — настройки клиента.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string

	RetryInitial    time.Duration
	RetryMaxElapsed time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client — клиент языковой модели.
type Client struct {
	baseURL         string
	apiKey          string
	model           string
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
		model:           cfg.Model,
		retryInitial:    cfg.RetryInitial,
		retryMaxElapsed: cfg.RetryMaxElapsed,
		http:            cfg.HTTPClient,
		logger:          cfg.Logger,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.model == "" {
		c.model = DefaultModel
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
	c.logger = c.logger.With("component", "llm", "model", c.model)
	return c
}

// Model возвращает имя модели.
func (c *Client) Model() string {
	return c.model
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responsesRequest struct {
	Model     string         `json:"model"`
	Input     []message      `json:"input"`
	Text      map[string]any `json:"text,omitempty"`
	Reasoning map[string]any `json:"reasoning,omitempty"`
}

type responsesResponse struct {
	OutputText string `json:"output_text"`
	Output     []struct {
		Type    string `json:"type"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
}

// text собирает текст ответа из output[].content[] типа output_text.
func (r *responsesResponse) text() string {
	if r.OutputText != "" {
		return r.OutputText
	}
	var b strings.Builder
	for _, item := range r.Output {
		if item.Type != "message" {
			continue
		}
		for _, part := range item.Content {
			if part.Type == "output_text" {
				b.WriteString(part.Text)
			}
		}
	}
	return b.String()
}

// complete отправляет system+user сообщения и возвращает JSON из ответа.
func (c *Client) complete(ctx context.Context, system, user string) (json.RawMessage, error) {
	body, err := json.Marshal(responsesRequest{
		Model: c.model,
		Input: []message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Text:      map[string]any{"format": map[string]string{"type": "text"}, "verbosity": "medium"},
		Reasoning: map[string]any{"effort": "medium"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var resp responsesResponse
	if err := c.doJSON(ctx, body, &resp); err != nil {
		return nil, err
	}

	out := StripCodeFences(resp.text())
	if !json.Valid([]byte(out)) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidOutput, truncate([]byte(out)))
	}
	return json.RawMessage(out), nil
}

// doJSON выполняет POST /responses с backoff: сеть, 429 и 5xx повторяются.
func (c *Client) doJSON(ctx context.Context, body []byte, target any) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInitial
	bo.MaxElapsedTime = c.retryMaxElapsed

	attempt := 0
	op := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/responses", bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			c.logger.Warn("llm request failed", "attempt", attempt, "error", err)
			return err
		}
		defer resp.Body.Close()

		data, _ := io.ReadAll(resp.Body)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			c.logger.Warn("llm request failed", "attempt", attempt, "status", resp.StatusCode)
			return fmt.Errorf("status %d: %s", resp.StatusCode, truncate(data))
		}
		if resp.StatusCode >= 300 {
			return backoff.Permanent(fmt.Errorf("%w: status %d: %s", ErrAPI, resp.StatusCode, truncate(data)))
		}
		if err := json.Unmarshal(data, target); err != nil {
			return backoff.Permanent(fmt.Errorf("%w: decode response: %v", ErrAPI, err))
		}
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return fmt.Errorf("llm request: %w", err)
	}
	return nil
}

// StripCodeFences убирает markdown-обёртку ```json ... ```, которую модель
// иногда добавляет вопреки инструкции.
func StripCodeFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

func truncate(b []byte) string {
	const n = 300
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
