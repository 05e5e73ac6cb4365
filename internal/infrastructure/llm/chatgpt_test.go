package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	cohere "github.com/cohere-ai/cohere-go/v2"
	"github.com/cohere-ai/cohere-go/v2/option"

	"ContentCurator/internal/config"
	"ContentCurator/internal/ports"
	"ContentCurator/internal/retry"
)

func TestChatGPTScoreRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing bearer token")
		}
		var body chatRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body.ResponseFormat["type"] != "json_object" || len(body.Messages) != 2 {
			t.Errorf("unexpected request: %+v", body)
		}
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"scores\":{}}"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	var slept []time.Duration
	client := NewChatGPTClient(config.ChatGPTConfig{Endpoint: srv.URL, Model: "m", APIKey: "key", MaxAttempts: 3},
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }))

	out, err := client.Score(context.Background(), ports.ScoreRequest{SystemPrompt: "sys", UserPrompt: "user"})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if out != `{"scores":{}}` {
		t.Fatalf("unexpected content %q", out)
	}
	if calls.Load() != 2 || len(slept) != 1 || slept[0] != time.Second {
		t.Fatalf("expected one retry honouring Retry-After, calls=%d slept=%v", calls.Load(), slept)
	}
}

func TestChatGPTScoreDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer srv.Close()

	client := NewChatGPTClient(config.ChatGPTConfig{Endpoint: srv.URL, Model: "m", APIKey: "key"},
		WithSleeper(func(time.Duration) {}))
	_, err := client.Score(context.Background(), ports.ScoreRequest{UserPrompt: "user"})
	var statusErr *retry.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 status error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single call, got %d", calls.Load())
	}
}

func TestChatGPTScoreMisconfigured(t *testing.T) {
	t.Parallel()

	client := NewChatGPTClient(config.ChatGPTConfig{Model: "m"})
	if _, err := client.Score(context.Background(), ports.ScoreRequest{UserPrompt: "x"}); err == nil {
		t.Fatalf("expected error without api key")
	}
}

type fakeCohere struct {
	last *cohere.ChatRequest
	text string
}

func (f *fakeCohere) Chat(_ context.Context, req *cohere.ChatRequest, _ ...option.RequestOption) (*cohere.NonStreamedChatResponse, error) {
	f.last = req
	return &cohere.NonStreamedChatResponse{Text: f.text}, nil
}

func TestCohereScorer(t *testing.T) {
	t.Parallel()

	fake := &fakeCohere{text: `{"scores":{"a":5}}`}
	scorer := &CohereScorer{api: fake, model: "command-r"}
	out, err := scorer.Score(context.Background(), ports.ScoreRequest{SystemPrompt: "judge", UserPrompt: "content"})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if out != fake.text {
		t.Fatalf("unexpected output %q", out)
	}
	if fake.last.Message != "content" || fake.last.Model == nil || *fake.last.Model != "command-r" {
		t.Fatalf("unexpected request: %+v", fake.last)
	}
	if fake.last.Preamble == nil || *fake.last.Preamble != "judge" {
		t.Fatalf("expected preamble to carry system prompt")
	}
}
