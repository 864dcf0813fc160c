package summarize

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"siftgram/internal/retry"
	logx "siftgram/pkg/logx"
)

var fastBackoff = retry.Policy{Attempts: 3, Initial: time.Millisecond, Factor: 1.5}

func completionJSON(t *testing.T, content string) []byte {
	t.Helper()
	resp := openai.ChatCompletionResponse{
		ID:     "cmpl-1",
		Object: "chat.completion",
		Model:  "test-model",
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content}},
		},
	}
	b, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return b
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient(Config{
		APIKey:  "test-key",
		BaseURL: url,
		Model:   "test-model",
		Backoff: fastBackoff,
	}, logx.Nop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestSummarizeReturnsCompletion(t *testing.T) {
	t.Parallel()

	var gotReq openai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(completionJSON(t, "  # Weekly Digest\n\nQuiet week.\n"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	out, err := c.Summarize(context.Background(), "3 messages from Ada")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if out != "# Weekly Digest\n\nQuiet week." {
		t.Fatalf("unexpected summary: %q", out)
	}

	if gotReq.Model != "test-model" {
		t.Fatalf("unexpected model %q", gotReq.Model)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[1].Content != "3 messages from Ada" {
		t.Fatalf("unexpected messages: %+v", gotReq.Messages)
	}
	if gotReq.Messages[0].Role != openai.ChatMessageRoleSystem {
		t.Fatalf("first message should carry the system prompt")
	}
}

func TestSummarizeRetriesTransientFailure(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "upstream hiccup", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(completionJSON(t, "second try"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	out, err := c.Summarize(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if out != "second try" {
		t.Fatalf("unexpected summary: %q", out)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestSummarizeExhaustsAttempts(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if _, err := c.Summarize(context.Background(), "prompt"); err == nil {
		t.Fatalf("expected an error")
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestSummarizeRejectsEmptyCompletion(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(completionJSON(t, "   "))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if _, err := c.Summarize(context.Background(), "prompt"); err == nil {
		t.Fatalf("expected an error for blank completion text")
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Config{}, logx.Nop()); err == nil {
		t.Fatalf("expected an error without an api key")
	}
}
