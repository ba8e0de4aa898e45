package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(url string) *Client {
	return NewClient(Config{
		BaseURL:         url,
		APIKey:          "sk-test",
		RetryInitial:    time.Millisecond,
		RetryMaxElapsed: 200 * time.Millisecond,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

// replyWith отвечает в формате Responses API с одним output_text.
func replyWith(t *testing.T, text string, inspect func(req responsesRequest)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/responses" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("unexpected authorization %q", r.Header.Get("Authorization"))
		}
		var req responsesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if inspect != nil {
			inspect(req)
		}
		resp := map[string]any{
			"output": []any{
				map[string]any{"type": "reasoning"},
				map[string]any{
					"type":    "message",
					"content": []any{map[string]any{"type": "output_text", "text": text}},
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"  ```\n[]\n```  ", `[]`},
	}
	for _, tt := range tests {
		if got := StripCodeFences(tt.in); got != tt.want {
			t.Errorf("StripCodeFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAnalyze(t *testing.T) {
	answer := "```json\n{\"participants\":{\"A\":\"Therapist\"},\"analysis\":[],\"clinical_recommendations\":\"rest\"}\n```"
	server := httptest.NewServer(replyWith(t, answer, func(req responsesRequest) {
		if req.Model != DefaultModel {
			t.Errorf("expected default model, got %q", req.Model)
		}
		if len(req.Input) != 2 || req.Input[0].Role != "system" || req.Input[1].Role != "user" {
			t.Errorf("unexpected input %+v", req.Input)
		}
		if !strings.Contains(req.Input[1].Content, `"utterances"`) {
			t.Errorf("transcript must be in user message, got %q", req.Input[1].Content)
		}
	}))
	defer server.Close()

	out, err := testClient(server.URL).Analyze(context.Background(), json.RawMessage(`{"utterances":[]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(string(out), `{"participants"`) {
		t.Errorf("expected fences stripped, got %s", out)
	}
}

func TestAnalyze_InvalidOutput(t *testing.T) {
	server := httptest.NewServer(replyWith(t, "I cannot analyze this.", nil))
	defer server.Close()

	_, err := testClient(server.URL).Analyze(context.Background(), json.RawMessage(`{}`))
	if !errors.Is(err, ErrInvalidOutput) {
		t.Fatalf("expected ErrInvalidOutput, got %v", err)
	}
}

func TestAdvise(t *testing.T) {
	history := make([]string, 60)
	for i := range history {
		history[i] = fmt.Sprintf("e%d", i)
	}

	answer := `{"detected_category":"Worried","advices":["1","2","3","4","5"]}`
	server := httptest.NewServer(replyWith(t, answer, func(req responsesRequest) {
		system := req.Input[0].Content
		if strings.Contains(system, "e9,") || !strings.Contains(system, "e10, ") || !strings.Contains(system, "e59") {
			t.Errorf("expected only the last 50 emotions in prompt, got %q", system)
		}
		if !strings.Contains(system, "Happy, Sad, Worried, Excited") {
			t.Errorf("expected categories in prompt")
		}
		if req.Input[1].Content != "I can't sleep before exams" {
			t.Errorf("unexpected user message %q", req.Input[1].Content)
		}
	}))
	defer server.Close()

	advice, err := testClient(server.URL).Advise(context.Background(), "I can't sleep before exams", history)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if advice.DetectedCategory != "Worried" || len(advice.Advices) != 5 {
		t.Errorf("unexpected advice %+v", advice)
	}
}

func TestRecentEmotions(t *testing.T) {
	if got := RecentEmotions([]string{"a", "b"}); len(got) != 2 {
		t.Errorf("short history must be kept, got %v", got)
	}
	long := make([]string, 120)
	long[119] = "last"
	got := RecentEmotions(long)
	if len(got) != MaxHistoryEmotions || got[len(got)-1] != "last" {
		t.Errorf("expected last %d emotions, got %d", MaxHistoryEmotions, len(got))
	}
}

func TestRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	ok := replyWith(t, `{}`, nil)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		ok(w, r)
	}))
	defer server.Close()

	if _, err := testClient(server.URL).Analyze(context.Background(), json.RawMessage(`{}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected retry after 429, got %d calls", calls.Load())
	}
}

func TestBadRequestIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad model"}}`))
	}))
	defer server.Close()

	_, err := testClient(server.URL).Analyze(context.Background(), json.RawMessage(`{}`))
	if !errors.Is(err, ErrAPI) {
		t.Fatalf("expected ErrAPI, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected single call, got %d", calls.Load())
	}
}
