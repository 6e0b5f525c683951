package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"appraiserai/pkg/credential"
	"appraiserai/pkg/prompt"
)

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func newTestProvider(t *testing.T, key string) credential.Provider {
	t.Helper()
	p := credential.NewMemoryProvider()
	if key != "" {
		if err := p.Set(context.Background(), key); err != nil {
			t.Fatalf("set key: %v", err)
		}
	}
	return p
}

func newTestClient(t *testing.T, baseURL string, creds credential.Provider, sleeper *recordingSleeper) *OpenAIVisionClient {
	t.Helper()
	cfg := OpenAIConfig{
		BaseURL:   baseURL,
		MaxTokens: 4000,
		Timeout:   5 * time.Second,
		Retry:     RetryPolicy{MaxAttempts: 3, MinBackoff: time.Millisecond, MaxBackoff: 4 * time.Millisecond},
	}
	if sleeper != nil {
		cfg.Sleep = sleeper.Sleep
	}
	client, err := NewOpenAIVisionClient(cfg, creds)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestOpenAIVisionClientBuildsImageRequest(t *testing.T) {
	var payload map[string]any
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"gpt-4o-mini","choices":[{"message":{"role":"assistant","content":"1. ITEM IDENTIFICATION: Victorian teapot"}}],"usage":{"prompt_tokens":900,"completion_tokens":120,"total_tokens":1020}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, newTestProvider(t, "sk-abc123"), nil)
	text := prompt.Build("standard", prompt.Item{Title: "Victorian Teapot"})
	res, err := client.Describe(context.Background(), VisionRequest{Prompt: text, ImageBase64: "/9j/4AAQ"})
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if res.Text != "1. ITEM IDENTIFICATION: Victorian teapot" || res.Usage.TotalTokens != 1020 || res.Usage.PromptTokens != 900 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if auth != "Bearer sk-abc123" {
		t.Fatalf("authorization header = %q", auth)
	}
	if payload["model"] != DefaultOpenAIModel {
		t.Fatalf("model = %v", payload["model"])
	}
	if mt, _ := payload["max_tokens"].(float64); int(mt) != 4000 {
		t.Fatalf("max_tokens = %v", payload["max_tokens"])
	}
	messages, ok := payload["messages"].([]any)
	if !ok || len(messages) != 1 {
		t.Fatalf("expected one user message, got %#v", payload["messages"])
	}
	msg := messages[0].(map[string]any)
	if msg["role"] != "user" {
		t.Fatalf("role = %v", msg["role"])
	}
	content := msg["content"].([]any)
	first := content[0].(map[string]any)
	if first["type"] != "text" || !strings.HasPrefix(first["text"].(string), prompt.Resolve("standard").Text) {
		t.Fatalf("first part should start with the standard template: %#v", first)
	}
	second := content[1].(map[string]any)
	if second["type"] != "image_url" {
		t.Fatalf("second part type = %v", second["type"])
	}
	url := second["image_url"].(map[string]any)["url"].(string)
	if !strings.HasPrefix(url, "data:image/jpeg;base64,") {
		t.Fatalf("image url = %q", url)
	}
}

func TestOpenAIVisionClientSystemMessageAndTemperature(t *testing.T) {
	var payload oaiChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw struct {
			Messages    []json.RawMessage `json:"messages"`
			Temperature *float64          `json:"temperature"`
		}
		_ = json.NewDecoder(r.Body).Decode(&raw)
		payload.Temperature = raw.Temperature
		payload.Messages = make([]oaiMessage, len(raw.Messages))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"title\":\"Teapot\"}"}}]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, newTestProvider(t, "sk-abc123"), nil)
	_, err := client.Describe(context.Background(), VisionRequest{
		System:      prompt.Resolve(prompt.ProductListingID).Text,
		Prompt:      "Brand: Wedgwood\n",
		ImageBase64: "AAAA",
		Temperature: 0.7,
	})
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if len(payload.Messages) != 2 {
		t.Fatalf("expected system and user messages, got %d", len(payload.Messages))
	}
	if payload.Temperature == nil || *payload.Temperature != 0.7 {
		t.Fatalf("temperature = %v", payload.Temperature)
	}
}

func TestOpenAIVisionClientHonoursRetryAfterThenGivesUp(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached for gpt-4o-mini"}}`))
	}))
	defer server.Close()

	sleeper := &recordingSleeper{}
	client := newTestClient(t, server.URL, newTestProvider(t, "sk-abc123"), sleeper)
	_, err := client.Describe(context.Background(), VisionRequest{Prompt: "appraise", ImageBase64: "AAAA"})
	if !errors.Is(err, ErrRateLimited) || KindOf(err) != KindRateLimited {
		t.Fatalf("expected rate limited error, got %v", err)
	}
	if MessageOf(err) != "Rate limit reached for gpt-4o-mini" {
		t.Fatalf("message = %q", MessageOf(err))
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
	if len(sleeper.delays) != 2 {
		t.Fatalf("expected 2 waits, got %v", sleeper.delays)
	}
	for _, d := range sleeper.delays {
		if d < 2*time.Second {
			t.Fatalf("waited %v, want at least 2s", d)
		}
	}
}

func TestOpenAIVisionClientCapsLongRetryAfter(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "86400")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"maintenance"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"model":"gpt-4o-mini","choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	sleeper := &recordingSleeper{}
	client := newTestClient(t, server.URL, newTestProvider(t, "sk-abc123"), sleeper)
	if _, err := client.Describe(context.Background(), VisionRequest{Prompt: "appraise", ImageBase64: "AAAA"}); err != nil {
		t.Fatalf("describe: %v", err)
	}
	if len(sleeper.delays) != 1 {
		t.Fatalf("expected 1 wait, got %v", sleeper.delays)
	}
	// capped at the 5s client timeout
	if sleeper.delays[0] != 5*time.Second {
		t.Fatalf("waited %v, want 5s", sleeper.delays[0])
	}
}

func TestOpenAIVisionClientRetriesServerErrorThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	sleeper := &recordingSleeper{}
	client := newTestClient(t, server.URL, newTestProvider(t, "sk-abc123"), sleeper)
	res, err := client.Describe(context.Background(), VisionRequest{Prompt: "appraise", ImageBase64: "AAAA"})
	if err != nil || res.Text != "ok" {
		t.Fatalf("describe = %+v, %v", res, err)
	}
	if len(sleeper.delays) != 1 || sleeper.delays[0] <= 0 || sleeper.delays[0] > 4*time.Millisecond {
		t.Fatalf("unexpected backoff: %v", sleeper.delays)
	}
}

func TestOpenAIVisionClientUnauthorizedIsTerminal(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided"}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, newTestProvider(t, "sk-revoked"), &recordingSleeper{})
	_, err := client.Describe(context.Background(), VisionRequest{Prompt: "appraise", ImageBase64: "AAAA"})
	if !errors.Is(err, ErrInvalidCredential) || KindOf(err) != KindCredential {
		t.Fatalf("expected invalid credential, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("401 must not be retried, got %d calls", calls)
	}
}

func TestOpenAIVisionClientSurfacesUpstreamMessageVerbatim(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid image data","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, newTestProvider(t, "sk-abc123"), &recordingSleeper{})
	_, err := client.Describe(context.Background(), VisionRequest{Prompt: "appraise", ImageBase64: "AAAA"})
	if !errors.Is(err, ErrUpstream) || MessageOf(err) != "Invalid image data" {
		t.Fatalf("expected verbatim upstream error, got %v", err)
	}
	var tagged *Error
	if !errors.As(err, &tagged) || tagged.Status != http.StatusBadRequest {
		t.Fatalf("expected status 400 on tagged error, got %#v", err)
	}
}

func TestOpenAIVisionClientMissingContentIsInvalidResponse(t *testing.T) {
	for _, body := range []string{`{"choices":[]}`, `{"choices":[{"message":{"content":"  "}}]}`, `not json`} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		client := newTestClient(t, server.URL, newTestProvider(t, "sk-abc123"), nil)
		_, err := client.Describe(context.Background(), VisionRequest{Prompt: "appraise", ImageBase64: "AAAA"})
		server.Close()
		if !errors.Is(err, ErrInvalidResponse) {
			t.Fatalf("body %q: expected ErrInvalidResponse, got %v", body, err)
		}
	}
}

func TestOpenAIVisionClientCredentialErrorsSkipNetwork(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, newTestProvider(t, ""), nil)
	_, err := client.Describe(context.Background(), VisionRequest{Prompt: "appraise", ImageBase64: "AAAA"})
	if !errors.Is(err, ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential, got %v", err)
	}

	_, err = client.Describe(context.Background(), VisionRequest{Prompt: "appraise", ImageBase64: "data:image/png;base64,AAAA"})
	if KindOf(err) != KindInvalidInput {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("no request expected, got %d", calls)
	}
}

func TestRetryAfterParsesSecondsAndDates(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if d, ok := RetryAfter("2", now); !ok || d != 2*time.Second {
		t.Fatalf("seconds = %v %v", d, ok)
	}
	if d, ok := RetryAfter(now.Add(5*time.Second).Format(http.TimeFormat), now); !ok || d != 5*time.Second {
		t.Fatalf("date = %v %v", d, ok)
	}
	if _, ok := RetryAfter("soon", now); ok {
		t.Fatal("expected garbage to be ignored")
	}
}

func TestBackoffWithJitterStaysWithinBounds(t *testing.T) {
	for attempt := 0; attempt < 6; attempt++ {
		d := backoffWithJitter(attempt, time.Second, 8*time.Second)
		if d < 500*time.Millisecond || d > 8*time.Second {
			t.Fatalf("attempt %d backoff %v out of range", attempt, d)
		}
	}
}
