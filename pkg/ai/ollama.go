package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"appraiserai/pkg/domain"
)

const (
	defaultOllamaBaseURL = "http://127.0.0.1:11434"
	DefaultOllamaModel   = "llava"
)

// OllamaConfig configures the Ollama vision client.
type OllamaConfig struct {
	BaseURL     string
	Model       string
	MaxTokens   int
	Timeout     time.Duration
	Retry       RetryPolicy
	Sleep       Sleeper
	LogRequests bool
}

// OllamaVisionClient calls /api/chat with the image in the message images field.
type OllamaVisionClient struct {
	baseURL   string
	model     string
	maxTokens int
	transport transport
}

// NewOllamaVisionClient constructs a client for a local multimodal model.
func NewOllamaVisionClient(cfg OllamaConfig) *OllamaVisionClient {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultOllamaModel
	}
	return &OllamaVisionClient{
		baseURL:   baseURL,
		model:     model,
		maxTokens: cfg.MaxTokens,
		transport: newTransport("ollama", cfg.Timeout, cfg.Retry, cfg.Sleep, cfg.LogRequests),
	}
}

// Describe implements VisionGenerator using Ollama /api/chat.
func (c *OllamaVisionClient) Describe(ctx context.Context, in VisionRequest) (VisionResult, error) {
	if err := in.validate(); err != nil {
		return VisionResult{}, err
	}
	messages := make([]ollamaChatMessage, 0, 2)
	if system := strings.TrimSpace(in.System); system != "" {
		messages = append(messages, ollamaChatMessage{Role: "system", Content: system})
	}
	messages = append(messages, ollamaChatMessage{Role: "user", Content: in.Prompt, Images: []string{in.ImageBase64}})

	reqBody := ollamaChatRequest{Model: c.model, Messages: messages, Stream: false}
	if c.maxTokens > 0 || in.Temperature > 0 {
		reqBody.Options = &ollamaOptions{NumPredict: c.maxTokens, Temperature: in.Temperature}
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return VisionResult{}, err
	}
	url := c.baseURL + "/api/chat"
	respBody, err := c.transport.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, ollamaErrorMessage)
	if err != nil {
		return VisionResult{}, err
	}

	var resp ollamaChatResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return VisionResult{}, newError(KindInvalidResponse, http.StatusOK, ErrInvalidResponse, fmt.Sprintf("decode ollama response: %v", err))
	}
	text := strings.TrimSpace(resp.Message.Content)
	if text == "" {
		return VisionResult{}, newError(KindInvalidResponse, http.StatusOK, ErrInvalidResponse, "")
	}
	return VisionResult{
		Text:  text,
		Model: c.model,
		Usage: domain.Usage{
			Model:            c.model,
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		},
	}, nil
}

func ollamaErrorMessage(body []byte) string {
	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return ""
	}
	return errResp.Error
}

type ollamaChatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaOptions struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  *ollamaOptions      `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message         ollamaChatMessage `json:"message"`
	PromptEvalCount int               `json:"prompt_eval_count"`
	EvalCount       int               `json:"eval_count"`
}
