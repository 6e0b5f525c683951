package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"appraiserai/pkg/credential"
	"appraiserai/pkg/domain"
)

const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "gpt-4o-mini"
	DefaultMaxTokens     = 4000
)

// OpenAIConfig configures the chat completions vision client.
type OpenAIConfig struct {
	BaseURL     string
	Model       string
	MaxTokens   int
	Timeout     time.Duration
	Retry       RetryPolicy
	Sleep       Sleeper
	LogRequests bool
}

// OpenAIVisionClient calls an OpenAI-compatible /chat/completions endpoint
// with an image_url content part. The bearer key is read from the
// credential provider on every call.
type OpenAIVisionClient struct {
	baseURL   string
	model     string
	maxTokens int
	creds     credential.Provider
	transport transport
}

// NewOpenAIVisionClient builds a vision client backed by creds.
func NewOpenAIVisionClient(cfg OpenAIConfig, creds credential.Provider) (*OpenAIVisionClient, error) {
	if creds == nil {
		return nil, errors.New("openai vision client requires a credential provider")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultOpenAIModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &OpenAIVisionClient{
		baseURL:   baseURL,
		model:     model,
		maxTokens: maxTokens,
		creds:     creds,
		transport: newTransport("openai", cfg.Timeout, cfg.Retry, cfg.Sleep, cfg.LogRequests),
	}, nil
}

// Describe implements VisionGenerator.
func (c *OpenAIVisionClient) Describe(ctx context.Context, in VisionRequest) (VisionResult, error) {
	if err := in.validate(); err != nil {
		return VisionResult{}, err
	}
	apiKey, err := c.apiKey(ctx)
	if err != nil {
		return VisionResult{}, err
	}

	body, err := json.Marshal(c.buildRequest(in))
	if err != nil {
		return VisionResult{}, err
	}
	url := c.baseURL + "/chat/completions"
	respBody, err := c.transport.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+apiKey)
		return req, nil
	}, oaiErrorMessage)
	if err != nil {
		return VisionResult{}, err
	}

	var chatResp oaiChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return VisionResult{}, newError(KindInvalidResponse, http.StatusOK, ErrInvalidResponse, fmt.Sprintf("decode openai response: %v", err))
	}
	if len(chatResp.Choices) == 0 {
		return VisionResult{}, newError(KindInvalidResponse, http.StatusOK, ErrInvalidResponse, "")
	}
	text := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	if text == "" {
		return VisionResult{}, newError(KindInvalidResponse, http.StatusOK, ErrInvalidResponse, "")
	}
	model := chatResp.Model
	if model == "" {
		model = c.model
	}
	return VisionResult{
		Text:  text,
		Model: model,
		Usage: domain.Usage{
			Model:            model,
			PromptTokens:     chatResp.Usage.PromptTokens,
			CompletionTokens: chatResp.Usage.CompletionTokens,
			TotalTokens:      chatResp.Usage.TotalTokens,
		},
	}, nil
}

func (c *OpenAIVisionClient) apiKey(ctx context.Context) (string, error) {
	key, ok, err := c.creds.Get(ctx)
	if err != nil {
		return "", newError(KindCredential, 0, ErrNoCredential, fmt.Sprintf("read api key: %v", err))
	}
	if !ok {
		return "", newError(KindCredential, 0, ErrNoCredential, "OpenAI API key is not configured")
	}
	key, err = credential.ValidateKey(key)
	if err != nil {
		return "", newError(KindCredential, 0, ErrInvalidCredential, "OpenAI API key format is invalid")
	}
	return key, nil
}

func (c *OpenAIVisionClient) buildRequest(in VisionRequest) oaiChatRequest {
	messages := make([]oaiMessage, 0, 2)
	if system := strings.TrimSpace(in.System); system != "" {
		messages = append(messages, oaiMessage{Role: "system", Content: system})
	}
	messages = append(messages, oaiMessage{
		Role: "user",
		Content: []oaiContentPart{
			{Type: "text", Text: in.Prompt},
			{Type: "image_url", ImageURL: &oaiImageURL{URL: "data:" + in.mimeType() + ";base64," + in.ImageBase64}},
		},
	})
	req := oaiChatRequest{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: c.maxTokens,
	}
	if in.Temperature > 0 {
		t := in.Temperature
		req.Temperature = &t
	}
	return req
}

func oaiErrorMessage(body []byte) string {
	var errResp oaiErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		return ""
	}
	return errResp.Error.Message
}

// OpenAI chat completions request/response types.

type oaiMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type oaiContentPart struct {
	Type     string       `json:"type"`
	Text     string       `json:"text,omitempty"`
	ImageURL *oaiImageURL `json:"image_url,omitempty"`
}

type oaiImageURL struct {
	URL string `json:"url"`
}

type oaiChatRequest struct {
	Model       string       `json:"model"`
	Messages    []oaiMessage `json:"messages"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature *float64     `json:"temperature,omitempty"`
}

type oaiChatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type oaiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
